package follow

import (
	"context"
	"sort"
	"sync"
	"time"
)

type pairKey struct {
	requesterID string
	targetID    string
}

type memoryTables struct {
	edges map[pairKey]Edge
}

// MemoryStore keeps edges in process memory. Its mutex plays the role of the
// database uniqueness constraint and transaction isolation.
type MemoryStore struct {
	mutex  sync.Mutex
	tables *memoryTables
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: &memoryTables{edges: make(map[pairKey]Edge)}}
}

func (store *MemoryStore) Find(ctx context.Context, requesterID string, targetID string) (Edge, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.Find(ctx, requesterID, targetID)
}

func (store *MemoryStore) Insert(ctx context.Context, edge Edge) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.Insert(ctx, edge)
}

func (store *MemoryStore) Resend(ctx context.Context, requesterID string, targetID string, createdAt time.Time) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.Resend(ctx, requesterID, targetID, createdAt)
}

func (store *MemoryStore) Delete(ctx context.Context, requesterID string, targetID string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.Delete(ctx, requesterID, targetID)
}

func (store *MemoryStore) Resolve(ctx context.Context, edgeID string, targetID string, next Status) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.Resolve(ctx, edgeID, targetID, next)
}

func (store *MemoryStore) ListPending(ctx context.Context, targetID string) ([]Edge, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.ListPending(ctx, targetID)
}

func (store *MemoryStore) ListFollowers(ctx context.Context, userID string, page Page) ([]Edge, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.ListFollowers(ctx, userID, page)
}

func (store *MemoryStore) ListFollowing(ctx context.Context, userID string, page Page) ([]Edge, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.ListFollowing(ctx, userID, page)
}

func (store *MemoryStore) CountFollowers(ctx context.Context, userID string) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.CountFollowers(ctx, userID)
}

func (store *MemoryStore) CountFollowing(ctx context.Context, userID string) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.tables.CountFollowing(ctx, userID)
}

// Transact holds the store lock for the duration of fn and restores the
// previous contents when fn fails.
func (store *MemoryStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	snapshot := make(map[pairKey]Edge, len(store.tables.edges))
	for key, edge := range store.tables.edges {
		snapshot[key] = edge
	}
	if err := fn(store.tables); err != nil {
		store.tables.edges = snapshot
		return err
	}
	return nil
}

func (tables *memoryTables) Find(ctx context.Context, requesterID string, targetID string) (Edge, error) {
	edge, ok := tables.edges[pairKey{requesterID: requesterID, targetID: targetID}]
	if !ok {
		return Edge{}, ErrEdgeNotFound
	}
	return edge, nil
}

func (tables *memoryTables) Insert(ctx context.Context, edge Edge) (bool, error) {
	key := pairKey{requesterID: edge.RequesterID, targetID: edge.TargetID}
	if _, exists := tables.edges[key]; exists {
		return false, nil
	}
	tables.edges[key] = edge
	return true, nil
}

func (tables *memoryTables) Resend(ctx context.Context, requesterID string, targetID string, createdAt time.Time) (bool, error) {
	key := pairKey{requesterID: requesterID, targetID: targetID}
	edge, ok := tables.edges[key]
	if !ok || edge.Status != StatusRejected {
		return false, nil
	}
	edge.Status = StatusPending
	edge.CreatedAt = createdAt
	tables.edges[key] = edge
	return true, nil
}

func (tables *memoryTables) Delete(ctx context.Context, requesterID string, targetID string) (bool, error) {
	key := pairKey{requesterID: requesterID, targetID: targetID}
	if _, ok := tables.edges[key]; !ok {
		return false, nil
	}
	delete(tables.edges, key)
	return true, nil
}

func (tables *memoryTables) Resolve(ctx context.Context, edgeID string, targetID string, next Status) (bool, error) {
	for key, edge := range tables.edges {
		if edge.ID != edgeID {
			continue
		}
		if edge.TargetID != targetID || edge.Status != StatusPending {
			return false, nil
		}
		edge.Status = next
		tables.edges[key] = edge
		return true, nil
	}
	return false, nil
}

func (tables *memoryTables) ListPending(ctx context.Context, targetID string) ([]Edge, error) {
	return tables.selectEdges(func(edge Edge) bool {
		return edge.TargetID == targetID && edge.Status == StatusPending
	}, Page{}), nil
}

func (tables *memoryTables) ListFollowers(ctx context.Context, userID string, page Page) ([]Edge, error) {
	return tables.selectEdges(func(edge Edge) bool {
		return edge.TargetID == userID && edge.Status == StatusAccepted
	}, page), nil
}

func (tables *memoryTables) ListFollowing(ctx context.Context, userID string, page Page) ([]Edge, error) {
	return tables.selectEdges(func(edge Edge) bool {
		return edge.RequesterID == userID && edge.Status == StatusAccepted
	}, page), nil
}

func (tables *memoryTables) CountFollowers(ctx context.Context, userID string) (int64, error) {
	return tables.countEdges(func(edge Edge) bool {
		return edge.TargetID == userID && edge.Status == StatusAccepted
	}), nil
}

func (tables *memoryTables) CountFollowing(ctx context.Context, userID string) (int64, error) {
	return tables.countEdges(func(edge Edge) bool {
		return edge.RequesterID == userID && edge.Status == StatusAccepted
	}), nil
}

func (tables *memoryTables) countEdges(match func(Edge) bool) int64 {
	var count int64
	for _, edge := range tables.edges {
		if match(edge) {
			count++
		}
	}
	return count
}

func (tables *memoryTables) Transact(ctx context.Context, fn func(tx Store) error) error {
	return fn(tables)
}

// selectEdges filters and orders by created_at then id. A zero Page returns every match.
func (tables *memoryTables) selectEdges(match func(Edge) bool, page Page) []Edge {
	selected := make([]Edge, 0)
	for _, edge := range tables.edges {
		if match(edge) {
			selected = append(selected, edge)
		}
	}
	sort.Slice(selected, func(left, right int) bool {
		if !selected[left].CreatedAt.Equal(selected[right].CreatedAt) {
			return selected[left].CreatedAt.Before(selected[right].CreatedAt)
		}
		return selected[left].ID < selected[right].ID
	})
	if page.Limit == 0 {
		return selected
	}
	offset := page.Offset()
	if offset >= len(selected) {
		return []Edge{}
	}
	end := offset + page.Limit
	if end > len(selected) {
		end = len(selected)
	}
	return selected[offset:end]
}
