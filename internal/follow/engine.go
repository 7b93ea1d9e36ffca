package follow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tyemirov/followgate/internal/identity"
	"go.uber.org/zap"
)

// Validation and lookup failures returned by Engine.
var (
	ErrInvalidIdentifier = errors.New("follow.invalid_identifier")
	ErrUnsupportedAction = errors.New("follow.unsupported_action")
	ErrSelfFollow        = errors.New("follow.self_follow")
	ErrRequesterMismatch = errors.New("follow.requester_mismatch")
	ErrRequestNotFound   = errors.New("follow.request_not_found")
	ErrProfileNotFound   = errors.New("follow.profile_not_found")
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// MetricsRecorder increments relationship event counters.
type MetricsRecorder interface {
	Increment(event string)
}

type nopMetrics struct{}

func (nopMetrics) Increment(string) {}

// EngineDependencies groups the collaborators of an Engine.
type EngineDependencies struct {
	Store      Store
	Identities identity.Store
	Clock      Clock
	Logger     *zap.Logger
	Metrics    MetricsRecorder
}

// Engine applies relationship commands through the state machine and the store.
type Engine struct {
	store      Store
	identities identity.Store
	clock      Clock
	logger     *zap.Logger
	metrics    MetricsRecorder
}

// NewEngine validates dependencies and constructs an Engine.
func NewEngine(dependencies EngineDependencies) (*Engine, error) {
	if dependencies.Store == nil {
		return nil, fmt.Errorf("follow.engine.new: store is required")
	}
	if dependencies.Identities == nil {
		return nil, fmt.Errorf("follow.engine.new: identity store is required")
	}
	engine := &Engine{
		store:      dependencies.Store,
		identities: dependencies.Identities,
		clock:      dependencies.Clock,
		logger:     dependencies.Logger,
		metrics:    dependencies.Metrics,
	}
	if engine.clock == nil {
		engine.clock = systemClock{}
	}
	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}
	if engine.metrics == nil {
		engine.metrics = nopMetrics{}
	}
	return engine, nil
}

// FollowInput is a follow, request or unfollow command issued by CallerID.
type FollowInput struct {
	CallerID string
	// ClaimedRequesterID is the optional requester id sent by the client; it must match CallerID.
	ClaimedRequesterID string
	TargetID           string
	Action             Action
	// IsRequest forces pending semantics for a follow.
	IsRequest bool
}

// HandleInput is an approve or reject command issued by the target of a pending request.
type HandleInput struct {
	CallerID  string
	RequestID string
	Action    Action
}

// PendingRequest is a pending edge enriched with the requester's profile.
type PendingRequest struct {
	ID          string
	RequesterID string
	Username    string
	ProfilePic  string
	CreatedAt   time.Time
}

// Counterpart is the other side of an accepted edge.
type Counterpart struct {
	ID         string
	Username   string
	ProfilePic string
}

// Profile is an account's public card with its accepted relationship counts.
type Profile struct {
	ID             string
	Username       string
	ProfilePic     string
	AccountType    string
	FollowersCount int64
	FollowingCount int64
}

// Listing is one page of counterparts.
type Listing struct {
	Entries []Counterpart
	Page    Page
}

// Follow applies a follow, request or unfollow command.
func (engine *Engine) Follow(ctx context.Context, input FollowInput) (Result, error) {
	callerID, callerOK := canonicalID(input.CallerID)
	targetID, targetOK := canonicalID(input.TargetID)
	if !callerOK || !targetOK {
		return Result{}, fmt.Errorf("follow.follow: %w", ErrInvalidIdentifier)
	}
	if strings.TrimSpace(input.ClaimedRequesterID) != "" {
		claimedID, claimedOK := canonicalID(input.ClaimedRequesterID)
		if !claimedOK || claimedID != callerID {
			return Result{}, fmt.Errorf("follow.follow: %w", ErrRequesterMismatch)
		}
	}
	action := Action(strings.ToLower(strings.TrimSpace(string(input.Action))))
	switch action {
	case ActionFollow:
		if input.IsRequest {
			action = ActionRequest
		}
	case ActionRequest, ActionUnfollow:
	default:
		return Result{}, fmt.Errorf("follow.follow.%s: %w", action, ErrUnsupportedAction)
	}
	if callerID == targetID {
		return Result{}, fmt.Errorf("follow.follow: %w", ErrSelfFollow)
	}

	var outcome Outcome
	err := engine.store.Transact(ctx, func(tx Store) error {
		var current *Edge
		existing, findErr := tx.Find(ctx, callerID, targetID)
		switch {
		case findErr == nil:
			current = &existing
		case !errors.Is(findErr, ErrEdgeNotFound):
			return findErr
		}

		decision := Decide(current, Command{Action: action})
		applied, applyErr := engine.apply(ctx, tx, decision, callerID, targetID)
		if applyErr != nil {
			return applyErr
		}
		outcome = decision.Outcome
		if !applied {
			outcome = decision.Conflict
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("follow.follow: %w", err)
	}
	engine.metrics.Increment("follow." + string(outcome))
	engine.logger.Debug("follow command applied",
		zap.String("code", "follow."+string(outcome)),
		zap.String("requester_id", callerID),
		zap.String("target_id", targetID))
	return ResultFor(outcome), nil
}

// HandleRequest approves or rejects a pending request targeting the caller.
// A request that is missing, already resolved, or targets someone else yields ErrRequestNotFound.
func (engine *Engine) HandleRequest(ctx context.Context, input HandleInput) (Result, error) {
	callerID, callerOK := canonicalID(input.CallerID)
	if !callerOK {
		return Result{}, fmt.Errorf("follow.handle_request: %w", ErrInvalidIdentifier)
	}
	requestID, requestOK := canonicalID(input.RequestID)
	if !requestOK {
		return Result{}, fmt.Errorf("follow.handle_request: %w", ErrRequestNotFound)
	}
	action := Action(strings.ToLower(strings.TrimSpace(string(input.Action))))
	if action != ActionApprove && action != ActionReject {
		return Result{}, fmt.Errorf("follow.handle_request.%s: %w", action, ErrUnsupportedAction)
	}

	decision := Decide(nil, Command{Action: action})
	err := engine.store.Transact(ctx, func(tx Store) error {
		resolved, resolveErr := tx.Resolve(ctx, requestID, callerID, decision.Next)
		if resolveErr != nil {
			return resolveErr
		}
		if !resolved {
			return ErrRequestNotFound
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("follow.handle_request: %w", err)
	}
	engine.metrics.Increment("follow." + string(decision.Outcome))
	return ResultFor(decision.Outcome), nil
}

// PendingRequests lists pending requests targeting ownerID, oldest first.
func (engine *Engine) PendingRequests(ctx context.Context, ownerID string) ([]PendingRequest, error) {
	ownerID, ok := canonicalID(ownerID)
	if !ok {
		return nil, fmt.Errorf("follow.pending_requests: %w", ErrInvalidIdentifier)
	}
	edges, err := engine.store.ListPending(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("follow.pending_requests: %w", err)
	}
	requests := make([]PendingRequest, 0, len(edges))
	for _, edge := range edges {
		profile, lookupErr := engine.profile(ctx, edge.RequesterID)
		if lookupErr != nil {
			return nil, fmt.Errorf("follow.pending_requests: %w", lookupErr)
		}
		requests = append(requests, PendingRequest{
			ID:          edge.ID,
			RequesterID: edge.RequesterID,
			Username:    profile.Username,
			ProfilePic:  profile.ProfilePic,
			CreatedAt:   edge.CreatedAt,
		})
	}
	return requests, nil
}

// Followers lists accepted followers of userID.
func (engine *Engine) Followers(ctx context.Context, userID string, page Page) (Listing, error) {
	userID, ok := canonicalID(userID)
	if !ok {
		return Listing{}, fmt.Errorf("follow.followers: %w", ErrInvalidIdentifier)
	}
	page = NewPage(page.Number, page.Limit)
	edges, err := engine.store.ListFollowers(ctx, userID, page)
	if err != nil {
		return Listing{}, fmt.Errorf("follow.followers: %w", err)
	}
	return engine.listing(ctx, edges, page, func(edge Edge) string { return edge.RequesterID })
}

// Following lists accounts userID follows.
func (engine *Engine) Following(ctx context.Context, userID string, page Page) (Listing, error) {
	userID, ok := canonicalID(userID)
	if !ok {
		return Listing{}, fmt.Errorf("follow.following: %w", ErrInvalidIdentifier)
	}
	page = NewPage(page.Number, page.Limit)
	edges, err := engine.store.ListFollowing(ctx, userID, page)
	if err != nil {
		return Listing{}, fmt.Errorf("follow.following: %w", err)
	}
	return engine.listing(ctx, edges, page, func(edge Edge) string { return edge.TargetID })
}

// Profile resolves userID and counts its accepted followers and followings.
func (engine *Engine) Profile(ctx context.Context, userID string) (Profile, error) {
	userID, ok := canonicalID(userID)
	if !ok {
		return Profile{}, fmt.Errorf("follow.profile: %w", ErrInvalidIdentifier)
	}
	account, err := engine.identities.Lookup(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return Profile{}, fmt.Errorf("follow.profile: %w", ErrProfileNotFound)
		}
		return Profile{}, fmt.Errorf("follow.profile: %w", err)
	}
	profile := Profile{
		ID:          account.ID,
		Username:    account.Name,
		ProfilePic:  account.ProfilePic,
		AccountType: account.AccountType,
	}
	err = engine.store.Transact(ctx, func(tx Store) error {
		followers, countErr := tx.CountFollowers(ctx, userID)
		if countErr != nil {
			return countErr
		}
		following, countErr := tx.CountFollowing(ctx, userID)
		if countErr != nil {
			return countErr
		}
		profile.FollowersCount = followers
		profile.FollowingCount = following
		return nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("follow.profile: %w", err)
	}
	return profile, nil
}

func (engine *Engine) apply(ctx context.Context, tx Store, decision Decision, requesterID string, targetID string) (bool, error) {
	switch decision.Operation {
	case OpInsert:
		return tx.Insert(ctx, Edge{
			ID:          uuid.NewString(),
			RequesterID: requesterID,
			TargetID:    targetID,
			Status:      decision.Next,
			CreatedAt:   engine.clock.Now().UTC(),
		})
	case OpResend:
		return tx.Resend(ctx, requesterID, targetID, engine.clock.Now().UTC())
	case OpDelete:
		return tx.Delete(ctx, requesterID, targetID)
	default:
		return true, nil
	}
}

func (engine *Engine) listing(ctx context.Context, edges []Edge, page Page, counterpartID func(Edge) string) (Listing, error) {
	entries := make([]Counterpart, 0, len(edges))
	for _, edge := range edges {
		profile, err := engine.profile(ctx, counterpartID(edge))
		if err != nil {
			return Listing{}, fmt.Errorf("follow.listing: %w", err)
		}
		entries = append(entries, profile)
	}
	return Listing{Entries: entries, Page: page}, nil
}

// profile resolves display fields; an identity removed since the edge was written renders with empty fields.
func (engine *Engine) profile(ctx context.Context, identityID string) (Counterpart, error) {
	account, err := engine.identities.Lookup(ctx, identityID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			engine.logger.Warn("edge counterpart missing",
				zap.String("code", "follow.counterpart_missing"),
				zap.String("user_id", identityID))
			return Counterpart{ID: identityID}, nil
		}
		return Counterpart{}, err
	}
	return Counterpart{ID: account.ID, Username: account.Name, ProfilePic: account.ProfilePic}, nil
}

// canonicalID parses any accepted uuid spelling and returns the lowercase hyphenated form stored in edges.
func canonicalID(value string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
