package followpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/followgate/internal/follow"
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

var _ follow.Store = (*Store)(nil)

// Store persists follow edges in PostgreSQL with hand-written statements.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// NewStore constructs a Postgres store bound to pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (store *Store) Find(ctx context.Context, requesterID string, targetID string) (follow.Edge, error) {
	row := store.db.QueryRow(ctx, `
SELECT id, user_id, target_id, status, created_at
FROM follows
WHERE user_id = $1 AND target_id = $2
`, requesterID, targetID)
	edge, err := scanEdge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return follow.Edge{}, fmt.Errorf("follow_store.find.pg: %w", follow.ErrEdgeNotFound)
		}
		return follow.Edge{}, fmt.Errorf("follow_store.find.pg: %w", err)
	}
	return edge, nil
}

func (store *Store) Insert(ctx context.Context, edge follow.Edge) (bool, error) {
	tag, err := store.db.Exec(ctx, `
INSERT INTO follows (id, user_id, target_id, status, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, target_id) DO NOTHING
`, edge.ID, edge.RequesterID, edge.TargetID, string(edge.Status), edge.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("follow_store.insert.pg: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (store *Store) Resend(ctx context.Context, requesterID string, targetID string, createdAt time.Time) (bool, error) {
	tag, err := store.db.Exec(ctx, `
UPDATE follows
SET status = $1, created_at = $2
WHERE user_id = $3 AND target_id = $4 AND status = $5
`, string(follow.StatusPending), createdAt.UTC(), requesterID, targetID, string(follow.StatusRejected))
	if err != nil {
		return false, fmt.Errorf("follow_store.resend.pg: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (store *Store) Delete(ctx context.Context, requesterID string, targetID string) (bool, error) {
	tag, err := store.db.Exec(ctx, `
DELETE FROM follows
WHERE user_id = $1 AND target_id = $2
`, requesterID, targetID)
	if err != nil {
		return false, fmt.Errorf("follow_store.delete.pg: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (store *Store) Resolve(ctx context.Context, edgeID string, targetID string, next follow.Status) (bool, error) {
	tag, err := store.db.Exec(ctx, `
UPDATE follows
SET status = $1
WHERE id = $2 AND target_id = $3 AND status = $4
`, string(next), edgeID, targetID, string(follow.StatusPending))
	if err != nil {
		return false, fmt.Errorf("follow_store.resolve.pg: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (store *Store) ListPending(ctx context.Context, targetID string) ([]follow.Edge, error) {
	edges, err := store.queryEdges(ctx, `
SELECT id, user_id, target_id, status, created_at
FROM follows
WHERE target_id = $1 AND status = $2
ORDER BY created_at ASC, id ASC
`, targetID, string(follow.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("follow_store.list_pending.pg: %w", err)
	}
	return edges, nil
}

func (store *Store) ListFollowers(ctx context.Context, userID string, page follow.Page) ([]follow.Edge, error) {
	edges, err := store.queryEdges(ctx, `
SELECT id, user_id, target_id, status, created_at
FROM follows
WHERE target_id = $1 AND status = $2
ORDER BY created_at ASC, id ASC
LIMIT $3 OFFSET $4
`, userID, string(follow.StatusAccepted), page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("follow_store.list_followers.pg: %w", err)
	}
	return edges, nil
}

func (store *Store) ListFollowing(ctx context.Context, userID string, page follow.Page) ([]follow.Edge, error) {
	edges, err := store.queryEdges(ctx, `
SELECT id, user_id, target_id, status, created_at
FROM follows
WHERE user_id = $1 AND status = $2
ORDER BY created_at ASC, id ASC
LIMIT $3 OFFSET $4
`, userID, string(follow.StatusAccepted), page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("follow_store.list_following.pg: %w", err)
	}
	return edges, nil
}

func (store *Store) CountFollowers(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := store.db.QueryRow(ctx, `
SELECT count(*) FROM follows WHERE target_id = $1 AND status = $2
`, userID, string(follow.StatusAccepted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("follow_store.count_followers.pg: %w", err)
	}
	return count, nil
}

func (store *Store) CountFollowing(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := store.db.QueryRow(ctx, `
SELECT count(*) FROM follows WHERE user_id = $1 AND status = $2
`, userID, string(follow.StatusAccepted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("follow_store.count_following.pg: %w", err)
	}
	return count, nil
}

// Transact runs fn inside a pgx transaction. Nested calls reuse the open transaction.
func (store *Store) Transact(ctx context.Context, fn func(tx follow.Store) error) error {
	if store.pool == nil {
		return fn(store)
	}
	return pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

func (store *Store) queryEdges(ctx context.Context, sql string, arguments ...any) ([]follow.Edge, error) {
	rows, err := store.db.Query(ctx, sql, arguments...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	edges := make([]follow.Edge, 0)
	for rows.Next() {
		edge, scanErr := scanEdge(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func scanEdge(row pgx.Row) (follow.Edge, error) {
	var edge follow.Edge
	var status string
	if err := row.Scan(&edge.ID, &edge.RequesterID, &edge.TargetID, &status, &edge.CreatedAt); err != nil {
		return follow.Edge{}, err
	}
	edge.Status = follow.Status(status)
	edge.CreatedAt = edge.CreatedAt.UTC()
	return edge, nil
}
