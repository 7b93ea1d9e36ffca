package tokenvalidator

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

func mintToken(t *testing.T, signingKey []byte, subject string, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:    subject,
		Name:  "Demo User",
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
	result, err := token.SignedString(signingKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return result
}

func TestNewValidatorRequiresSigningKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	if err == nil || !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
}

func TestNewValidatorDefaultsClock(t *testing.T) {
	t.Parallel()

	validator, err := New(Config{SigningKey: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validator.clock == nil {
		t.Fatalf("expected default clock to be set")
	}
}

func TestParseBearer(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		header    string
		expected  string
		expectErr error
	}{
		{name: "missing", header: "", expectErr: ErrMissingCredential},
		{name: "whitespace", header: "   ", expectErr: ErrMissingCredential},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", expectErr: ErrMalformedCredential},
		{name: "lowercase scheme", header: "bearer abc.def.ghi", expectErr: ErrMalformedCredential},
		{name: "scheme only", header: "Bearer ", expectErr: ErrMalformedCredential},
		{name: "two tokens", header: "Bearer abc def", expectErr: ErrMalformedCredential},
		{name: "valid", header: "Bearer abc.def.ghi", expected: "abc.def.ghi"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			tokenString, err := ParseBearer(testCase.header)
			if testCase.expectErr != nil {
				if !errors.Is(err, testCase.expectErr) {
					t.Fatalf("expected %v, got %v", testCase.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tokenString != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, tokenString)
			}
		})
	}
}

func TestValidateTokenSuccess(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator, err := New(Config{
		SigningKey: []byte("secret-key"),
		Clock:      fixedClock{current: now},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tokenValue := mintToken(t, []byte("secret-key"), "user-123", now, time.Minute)

	claims, validateErr := validator.ValidateHeader("Bearer " + tokenValue)
	if validateErr != nil {
		t.Fatalf("unexpected validation error: %v", validateErr)
	}
	if claims.ID != "user-123" || claims.Email != "user@example.com" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if !claims.GetExpiresAt().Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected expiry: %v", claims.GetExpiresAt())
	}
}

func TestValidateTokenRejectsInvalidCases(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tests := []struct {
		name      string
		tokenFunc func() string
		expectErr error
	}{
		{
			name:      "empty token",
			tokenFunc: func() string { return "" },
			expectErr: ErrMissingCredential,
		},
		{
			name:      "not a jwt",
			tokenFunc: func() string { return "not-a-jwt" },
			expectErr: ErrMalformedCredential,
		},
		{
			name: "stale secret",
			tokenFunc: func() string {
				return mintToken(t, []byte("rotated-away-key"), "user-123", now, time.Hour)
			},
			expectErr: ErrInvalidSignature,
		},
		{
			name: "stale secret and expired",
			tokenFunc: func() string {
				return mintToken(t, []byte("rotated-away-key"), "user-123", now.Add(-2*time.Hour), time.Minute)
			},
			expectErr: ErrInvalidSignature,
		},
		{
			name: "expired",
			tokenFunc: func() string {
				return mintToken(t, []byte("secret-key"), "user-123", now.Add(-2*time.Minute), time.Minute)
			},
			expectErr: ErrExpired,
		},
		{
			name: "missing subject",
			tokenFunc: func() string {
				return mintToken(t, []byte("secret-key"), "", now, time.Minute)
			},
			expectErr: ErrMalformedCredential,
		},
		{
			name: "missing expiry",
			tokenFunc: func() string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: "user-123"})
				signed, err := token.SignedString([]byte("secret-key"))
				if err != nil {
					t.Fatalf("failed to sign token: %v", err)
				}
				return signed
			},
			expectErr: ErrMalformedCredential,
		},
		{
			name: "wrong algorithm",
			tokenFunc: func() string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
					ID:               "user-123",
					RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
				})
				signed, err := token.SignedString([]byte("secret-key"))
				if err != nil {
					t.Fatalf("failed to sign token: %v", err)
				}
				return signed
			},
			expectErr: ErrInvalidSignature,
		},
	}

	validator, err := New(Config{
		SigningKey: []byte("secret-key"),
		Clock:      fixedClock{current: now},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			_, validateErr := validator.ValidateToken(testCase.tokenFunc())
			if validateErr == nil || !errors.Is(validateErr, testCase.expectErr) {
				t.Fatalf("expected %v, got %v", testCase.expectErr, validateErr)
			}
		})
	}
}
