package authkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/followgate/internal/identity"
	"go.uber.org/zap/zaptest"
)

type controllableClock struct {
	current time.Time
}

func (clock *controllableClock) Now() time.Time {
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

type failingIdentityStore struct {
	identity.Store
	err error
}

func (store failingIdentityStore) Lookup(ctx context.Context, identityID string) (identity.Identity, error) {
	return identity.Identity{}, store.err
}

func newTestServerConfig() ServerConfig {
	return ServerConfig{
		SigningKey: []byte("secret-key-1234567890"),
		TokenTTL:   DefaultTokenTTL,
	}
}

func seedIdentity(t *testing.T, store identity.Store, email string, password string) identity.Identity {
	t.Helper()
	hashed, err := identity.HashPassword(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	created, err := store.Create(context.Background(), identity.NewIdentity{
		Name:         "Test User",
		Email:        email,
		AccountType:  identity.AccountTypePublic,
		PasswordHash: hashed,
	})
	if err != nil {
		t.Fatalf("seed identity failed: %v", err)
	}
	return created
}

func TestAuthGateFailureKinds(t *testing.T) {
	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	configuration := newTestServerConfig()
	identities := identity.NewMemoryStore()
	account := identity.Identity{ID: "", Name: "Ghost"}
	created, err := identities.Create(context.Background(), identity.NewIdentity{Name: "Live", Email: "live@example.com", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	issuer, err := NewTokenIssuer(configuration, clock)
	if err != nil {
		t.Fatalf("issuer failed: %v", err)
	}
	gate, err := NewAuthGate(configuration, identities, clock)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}

	validToken, _, err := issuer.Issue(created)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	account.ID = "3f2c8a1e-0000-4000-8000-000000000000"
	orphanToken, _, err := issuer.Issue(account)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	staleIssuer, err := NewTokenIssuer(ServerConfig{SigningKey: []byte("previous-secret"), TokenTTL: time.Hour}, clock)
	if err != nil {
		t.Fatalf("issuer failed: %v", err)
	}
	staleToken, _, err := staleIssuer.Issue(created)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	testCases := []struct {
		name      string
		header    string
		advance   time.Duration
		expectErr error
		code      string
	}{
		{name: "missing", header: "", expectErr: ErrMissingCredential, code: "auth.gate.missing_credential"},
		{name: "malformed", header: "Token " + validToken, expectErr: ErrMalformedCredential, code: "auth.gate.malformed_credential"},
		{name: "stale secret", header: "Bearer " + staleToken, expectErr: ErrInvalidSignature, code: "auth.gate.invalid_signature"},
		{name: "unknown subject", header: "Bearer " + orphanToken, expectErr: ErrUnknownSubject, code: "auth.gate.unknown_subject"},
		{name: "expired", header: "Bearer " + validToken, advance: 25 * time.Hour, expectErr: ErrExpired, code: "auth.gate.expired"},
	}

	for _, testCase := range testCases {
		clock.Advance(testCase.advance)
		_, authErr := gate.Authenticate(context.Background(), testCase.header)
		if !errors.Is(authErr, testCase.expectErr) {
			t.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expectErr, authErr)
		}
		if code := FailureCode(authErr); code != testCase.code {
			t.Fatalf("%s: expected code %s, got %s", testCase.name, testCase.code, code)
		}
	}
}

func TestAuthGateResolvesCurrentIdentity(t *testing.T) {
	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	configuration := newTestServerConfig()
	identities := identity.NewMemoryStore()
	created := seedIdentity(t, identities, "owner@example.com", "pw")

	issuer, _ := NewTokenIssuer(configuration, clock)
	gate, _ := NewAuthGate(configuration, identities, clock)
	token, _, err := issuer.Issue(created)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	resolved, err := gate.Authenticate(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.ID != created.ID || resolved.Email != "owner@example.com" {
		t.Fatalf("unexpected identity: %#v", resolved)
	}

	identities.Remove(created.ID)
	if _, err := gate.Authenticate(context.Background(), "Bearer "+token); !errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("expected ErrUnknownSubject after identity removal, got %v", err)
	}
}

func TestAuthGateSurfacesLookupFailure(t *testing.T) {
	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	configuration := newTestServerConfig()
	storeErr := errors.New("connection refused")
	gate, err := NewAuthGate(configuration, failingIdentityStore{err: storeErr}, clock)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	issuer, _ := NewTokenIssuer(configuration, clock)
	token, _, _ := issuer.Issue(identity.Identity{ID: "user-1"})

	_, authErr := gate.Authenticate(context.Background(), "Bearer "+token)
	if !errors.Is(authErr, storeErr) {
		t.Fatalf("expected storage error, got %v", authErr)
	}
	if FailureCode(authErr) != "" {
		t.Fatalf("storage failure must not be classified as auth error")
	}
}

func TestRequireBearerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	clock := &controllableClock{current: time.Now().UTC()}
	configuration := newTestServerConfig()
	identities := identity.NewMemoryStore()
	created := seedIdentity(t, identities, "caller@example.com", "pw")
	issuer, _ := NewTokenIssuer(configuration, clock)
	gate, _ := NewAuthGate(configuration, identities, clock)
	metrics := NewCounterMetrics()

	router := gin.New()
	protected := router.Group("/api")
	protected.Use(RequireBearer(gate, zaptest.NewLogger(t), metrics))
	protected.GET("/whoami", WithCaller(func(contextGin *gin.Context, caller Caller) {
		contextGin.JSON(http.StatusOK, gin.H{"id": caller.ID()})
	}))

	token, _, _ := issuer.Issue(created)

	okRequest := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	okRequest.Header.Set("Authorization", "Bearer "+token)
	okRecorder := httptest.NewRecorder()
	router.ServeHTTP(okRecorder, okRequest)
	if okRecorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", okRecorder.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(okRecorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload["id"] != created.ID {
		t.Fatalf("expected caller id %s, got %s", created.ID, payload["id"])
	}

	rejectedBodies := make(map[string]struct{})
	for _, header := range []string{"", "Basic abc", "Bearer not.a.jwt", "Bearer " + token + "x"} {
		request := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		if header != "" {
			request.Header.Set("Authorization", header)
		}
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, recorder.Code)
		}
		rejectedBodies[recorder.Body.String()] = struct{}{}
	}
	if len(rejectedBodies) != 1 {
		t.Fatalf("expected a single generic unauthorized body, got %v", rejectedBodies)
	}
	for body := range rejectedBodies {
		if body != `{"message":"Unauthorized"}` {
			t.Fatalf("unexpected unauthorized body %s", body)
		}
	}

	if metrics.Count(metricAuthGateSuccess) != 1 {
		t.Fatalf("expected one gate success, got %d", metrics.Count(metricAuthGateSuccess))
	}
	if metrics.Count("auth.gate.missing_credential") != 1 || metrics.Count("auth.gate.malformed_credential") != 2 || metrics.Count("auth.gate.invalid_signature") != 1 {
		t.Fatalf("unexpected failure counters: %v", metrics.Snapshot())
	}
}

func TestWithCallerRejectsMissingCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/open", WithCaller(func(contextGin *gin.Context, caller Caller) {
		t.Fatalf("handler must not run without a caller")
	}))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/open", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}
