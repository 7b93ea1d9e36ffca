package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/tyemirov/followgate/internal/identity"
	"github.com/tyemirov/followgate/pkg/tokenvalidator"
)

// Authentication failure kinds. All of them surface to clients as the same 401 response.
var (
	ErrMissingCredential   = tokenvalidator.ErrMissingCredential
	ErrMalformedCredential = tokenvalidator.ErrMalformedCredential
	ErrInvalidSignature    = tokenvalidator.ErrInvalidSignature
	ErrExpired             = tokenvalidator.ErrExpired
	ErrUnknownSubject      = errors.New("auth.gate.unknown_subject")
)

// AuthGate validates bearer credentials and resolves the caller's identity.
type AuthGate struct {
	validator  *tokenvalidator.Validator
	identities identity.Store
}

// NewAuthGate constructs a gate bound to the signing secret and identity store.
func NewAuthGate(configuration ServerConfig, identities identity.Store, clock tokenvalidator.Clock) (*AuthGate, error) {
	if identities == nil {
		return nil, fmt.Errorf("auth.gate.new: identity store is required")
	}
	validator, err := tokenvalidator.New(tokenvalidator.Config{
		SigningKey: configuration.SigningKey,
		Clock:      clock,
	})
	if err != nil {
		return nil, fmt.Errorf("auth.gate.new: %w", err)
	}
	return &AuthGate{validator: validator, identities: identities}, nil
}

// Authenticate checks the raw Authorization header value and returns the resolved identity.
// The identity is looked up on every call; nothing is cached between requests.
func (gate *AuthGate) Authenticate(ctx context.Context, rawHeaderValue string) (identity.Identity, error) {
	claims, err := gate.validator.ValidateHeader(rawHeaderValue)
	if err != nil {
		return identity.Identity{}, err
	}
	resolved, lookupErr := gate.identities.Lookup(ctx, claims.ID)
	if lookupErr != nil {
		if errors.Is(lookupErr, identity.ErrIdentityNotFound) {
			return identity.Identity{}, fmt.Errorf("auth.gate.authenticate: %w", ErrUnknownSubject)
		}
		return identity.Identity{}, fmt.Errorf("auth.gate.lookup: %w", lookupErr)
	}
	return resolved, nil
}

// FailureCode returns the diagnostic code for an authentication failure, or "" for other errors.
func FailureCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "auth.gate.missing_credential"
	case errors.Is(err, ErrMalformedCredential):
		return "auth.gate.malformed_credential"
	case errors.Is(err, ErrInvalidSignature):
		return "auth.gate.invalid_signature"
	case errors.Is(err, ErrExpired):
		return "auth.gate.expired"
	case errors.Is(err, ErrUnknownSubject):
		return "auth.gate.unknown_subject"
	default:
		return ""
	}
}
