package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory identity store used for local runs and tests.
type MemoryStore struct {
	mutex   sync.RWMutex
	byID    map[string]Identity
	byEmail map[string]string
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Identity),
		byEmail: make(map[string]string),
	}
}

// Lookup returns the identity with the given id.
func (store *MemoryStore) Lookup(ctx context.Context, identityID string) (Identity, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	record, ok := store.byID[identityID]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return record, nil
}

// LookupByEmail returns the identity registered under the email.
func (store *MemoryStore) LookupByEmail(ctx context.Context, email string) (Identity, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	identityID, ok := store.byEmail[normalizeEmail(email)]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return store.byID[identityID], nil
}

// Create stores a new identity with a generated id.
func (store *MemoryStore) Create(ctx context.Context, candidate NewIdentity) (Identity, error) {
	if err := validateCandidate(candidate); err != nil {
		return Identity{}, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	email := normalizeEmail(candidate.Email)
	if _, exists := store.byEmail[email]; exists {
		return Identity{}, ErrEmailTaken
	}
	record := Identity{
		ID:           uuid.NewString(),
		Name:         candidate.Name,
		Email:        email,
		AccountType:  normalizeAccountType(candidate.AccountType),
		ProfilePic:   candidate.ProfilePic,
		PasswordHash: candidate.PasswordHash,
	}
	store.byID[record.ID] = record
	store.byEmail[email] = record.ID
	return record, nil
}

// Remove deletes an identity. Tokens issued for it stop resolving.
func (store *MemoryStore) Remove(identityID string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byID[identityID]
	if !ok {
		return
	}
	delete(store.byEmail, record.Email)
	delete(store.byID, identityID)
}
