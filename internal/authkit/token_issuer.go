package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/followgate/internal/identity"
	"github.com/tyemirov/followgate/pkg/tokenvalidator"
)

var (
	errEmptySubject    = errors.New("subject must be non-empty")
	errEmptySigningKey = errors.New("signing key must be non-empty")
	errNonPositiveTTL  = errors.New("token ttl must be greater than zero")
)

// TokenIssuer mints HS256 bearer tokens carrying an identity snapshot.
type TokenIssuer struct {
	signingKey []byte
	ttl        time.Duration
	clock      tokenvalidator.Clock
}

// NewTokenIssuer constructs an issuer from the shared configuration.
func NewTokenIssuer(configuration ServerConfig, clock tokenvalidator.Clock) (*TokenIssuer, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("jwt.issuer.new: %w", errEmptySigningKey)
	}
	if configuration.TokenTTL <= 0 {
		return nil, fmt.Errorf("jwt.issuer.new: %w", errNonPositiveTTL)
	}
	if clock == nil {
		clock = tokenvalidator.SystemClock()
	}
	return &TokenIssuer{
		signingKey: configuration.SigningKey,
		ttl:        configuration.TokenTTL,
		clock:      clock,
	}, nil
}

// Issue signs a token for the identity that expires TokenTTL after the current clock reading.
func (issuer *TokenIssuer) Issue(subject identity.Identity) (string, time.Time, error) {
	if strings.TrimSpace(subject.ID) == "" {
		return "", time.Time{}, fmt.Errorf("jwt.mint.failure: %w", errEmptySubject)
	}
	issuedAt := issuer.clock.Now().UTC()
	expiresAt := issuedAt.Add(issuer.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenvalidator.Claims{
		ID:    subject.ID,
		Name:  subject.Name,
		Email: subject.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(issuer.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt.mint.failure: %w", err)
	}
	return signed, expiresAt, nil
}
