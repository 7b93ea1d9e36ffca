package tokenvalidator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}

// Config configures the Validator.
type Config struct {
	SigningKey []byte
	Clock      Clock
}

// BearerScheme is the only accepted Authorization scheme.
const BearerScheme = "Bearer"

// Sentinel errors exposed by the validator. Each maps to one authentication failure kind.
var (
	ErrMissingSigningKey   = errors.New("token.validator.missing_signing_key")
	ErrMissingCredential   = errors.New("token.validator.missing_credential")
	ErrMalformedCredential = errors.New("token.validator.malformed_credential")
	ErrInvalidSignature    = errors.New("token.validator.invalid_signature")
	ErrExpired             = errors.New("token.validator.expired")
)

// Claims represent the identity snapshot embedded in bearer tokens.
type Claims struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// GetExpiresAt returns the expiry timestamp.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Validator validates HS256 bearer tokens.
type Validator struct {
	signingKey []byte
	clock      Clock
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("token.validator.new: %w", ErrMissingSigningKey)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Validator{
		signingKey: configuration.SigningKey,
		clock:      clock,
	}, nil
}

// ParseBearer extracts the token from an Authorization header value of the form "Bearer <token>".
func ParseBearer(headerValue string) (string, error) {
	if strings.TrimSpace(headerValue) == "" {
		return "", fmt.Errorf("token.validator.parse_bearer: %w", ErrMissingCredential)
	}
	prefix := BearerScheme + " "
	if !strings.HasPrefix(headerValue, prefix) {
		return "", fmt.Errorf("token.validator.parse_bearer: %w", ErrMalformedCredential)
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(headerValue, prefix))
	if tokenString == "" || strings.ContainsAny(tokenString, " \t") {
		return "", fmt.Errorf("token.validator.parse_bearer: %w", ErrMalformedCredential)
	}
	return tokenString, nil
}

// ValidateToken verifies signature first, then expiry, and returns the parsed claims.
func (validator *Validator) ValidateToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token.validator.validate_token: %w", ErrMissingCredential)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return validator.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time {
			return validator.clock.Now()
		}))
	if parseErr != nil {
		return nil, fmt.Errorf("token.validator.validate_token: %w", classifyParseError(parseErr))
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("token.validator.validate_token: %w", ErrInvalidSignature)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.ID) == "" {
		return nil, fmt.Errorf("token.validator.validate_token: %w", ErrMalformedCredential)
	}
	return claims, nil
}

// ValidateHeader parses the Authorization header value and validates the bearer token.
func (validator *Validator) ValidateHeader(headerValue string) (*Claims, error) {
	tokenString, err := ParseBearer(headerValue)
	if err != nil {
		return nil, err
	}
	return validator.ValidateToken(tokenString)
}

func classifyParseError(parseErr error) error {
	switch {
	case errors.Is(parseErr, jwt.ErrTokenMalformed):
		return ErrMalformedCredential
	case errors.Is(parseErr, jwt.ErrTokenSignatureInvalid), errors.Is(parseErr, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(parseErr, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformedCredential
	}
}
