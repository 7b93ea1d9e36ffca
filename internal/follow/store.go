package follow

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// DefaultPageLimit is the listing size used when the client sends none.
	DefaultPageLimit = 3
	// MaxPageLimit caps client supplied listing sizes.
	MaxPageLimit = 100
)

// ErrEdgeNotFound indicates that no edge exists for the requested pair.
var ErrEdgeNotFound = errors.New("follow_store.not_found")

// Page selects a window of a listing. Number starts at 1.
type Page struct {
	Number int
	Limit  int
}

// NewPage applies listing defaults and bounds. Number is capped so Offset never overflows.
func NewPage(number int, limit int) Page {
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if number < 1 {
		number = 1
	}
	if maxNumber := math.MaxInt / limit; number > maxNumber {
		number = maxNumber
	}
	return Page{Number: number, Limit: limit}
}

// Offset returns the number of rows skipped before the page.
func (page Page) Offset() int {
	return (page.Number - 1) * page.Limit
}

// Store persists follow edges. Every mutation is one guarded statement and
// reports whether it affected a row.
type Store interface {
	Find(ctx context.Context, requesterID string, targetID string) (Edge, error)
	// Insert adds the edge unless one already exists for the pair.
	Insert(ctx context.Context, edge Edge) (bool, error)
	// Resend sets status=pending and created_at when the edge is currently rejected.
	Resend(ctx context.Context, requesterID string, targetID string, createdAt time.Time) (bool, error)
	Delete(ctx context.Context, requesterID string, targetID string) (bool, error)
	// Resolve sets the status of a pending edge whose target is targetID.
	Resolve(ctx context.Context, edgeID string, targetID string, next Status) (bool, error)
	// ListPending returns pending edges targeting targetID ordered by created_at ascending.
	ListPending(ctx context.Context, targetID string) ([]Edge, error)
	// ListFollowers returns accepted edges targeting userID.
	ListFollowers(ctx context.Context, userID string, page Page) ([]Edge, error)
	// ListFollowing returns accepted edges requested by userID.
	ListFollowing(ctx context.Context, userID string, page Page) ([]Edge, error)
	// CountFollowers and CountFollowing count accepted edges on either side of userID.
	CountFollowers(ctx context.Context, userID string) (int64, error)
	CountFollowing(ctx context.Context, userID string) (int64, error)
	// Transact runs fn against a transactional view of the store.
	Transact(ctx context.Context, fn func(tx Store) error) error
}
