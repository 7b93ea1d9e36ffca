// Package identity holds the identity records that authentication resolves tokens against.
package identity

import (
	"context"
	"errors"
	"strings"
)

// Account kinds recognised on identities.
const (
	AccountTypePublic  = "public"
	AccountTypePrivate = "private"
)

var (
	// ErrIdentityNotFound indicates no identity matched the lookup key.
	ErrIdentityNotFound = errors.New("identity_store.not_found")
	// ErrEmailTaken indicates an identity with the same email already exists.
	ErrEmailTaken = errors.New("identity_store.email_taken")
	// ErrInvalidIdentity indicates a create request is missing required fields.
	ErrInvalidIdentity = errors.New("identity_store.invalid_identity")
)

// Identity is a registered principal.
type Identity struct {
	ID           string
	Name         string
	Email        string
	AccountType  string
	ProfilePic   string
	PasswordHash string
}

// NewIdentity carries the fields needed to create an identity.
type NewIdentity struct {
	Name         string
	Email        string
	AccountType  string
	ProfilePic   string
	PasswordHash string
}

// Store resolves identities. Registration and profile editing live outside this service.
type Store interface {
	Lookup(ctx context.Context, identityID string) (Identity, error)
	LookupByEmail(ctx context.Context, email string) (Identity, error)
	Create(ctx context.Context, candidate NewIdentity) (Identity, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeAccountType(accountType string) string {
	if strings.EqualFold(strings.TrimSpace(accountType), AccountTypePrivate) {
		return AccountTypePrivate
	}
	return AccountTypePublic
}

func validateCandidate(candidate NewIdentity) error {
	if strings.TrimSpace(candidate.Name) == "" || normalizeEmail(candidate.Email) == "" {
		return ErrInvalidIdentity
	}
	if candidate.PasswordHash == "" {
		return ErrInvalidIdentity
	}
	return nil
}
