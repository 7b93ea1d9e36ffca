package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/followgate/internal/authkit"
	"github.com/tyemirov/followgate/internal/identity"
	"github.com/tyemirov/followgate/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/idtoken"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigValidation(t *testing.T) {
	testCases := []struct {
		name            string
		settings        map[string]interface{}
		expectedMessage string
	}{
		{
			name:            "missing signing key",
			settings:        map[string]interface{}{},
			expectedMessage: "config.missing_jwt_signing_key: jwt_signing_key must be provided",
		},
		{
			name:            "non-positive ttl",
			settings:        map[string]interface{}{"jwt_signing_key": "secret", "token_ttl": 0},
			expectedMessage: "config.invalid_token_ttl: token_ttl must be greater than zero",
		},
		{
			name:            "unknown driver",
			settings:        map[string]interface{}{"jwt_signing_key": "secret", "store_driver": "mongo"},
			expectedMessage: "config.invalid_store_driver: store_driver must be gorm or pgx",
		},
		{
			name:            "cors without origins",
			settings:        map[string]interface{}{"jwt_signing_key": "secret", "enable_cors": true},
			expectedMessage: "config.missing_cors_allowed_origins: cors_allowed_origins must be provided when enable_cors is true",
		},
		{
			name:            "negative rate",
			settings:        map[string]interface{}{"jwt_signing_key": "secret", "follow_rate_per_minute": -1},
			expectedMessage: "config.invalid_follow_rate: follow_rate_per_minute and follow_rate_burst must not be negative",
		},
	}

	for _, testCase := range testCases {
		viper.Reset()
		for key, value := range testCase.settings {
			viper.Set(key, value)
		}
		_, err := LoadServerConfig()
		if err == nil || err.Error() != testCase.expectedMessage {
			t.Fatalf("%s: expected error %q, got %v", testCase.name, testCase.expectedMessage, err)
		}
	}
	viper.Reset()
}

func TestLoadServerConfigDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("jwt_signing_key", "signing-secret")

	settings, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}
	if settings.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h default ttl, got %v", settings.Auth.TokenTTL)
	}
	if settings.StoreDriver != storeDriverGORM || settings.ListenAddr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if settings.RateLimit.RequestsPerMinute != 60 || settings.RateLimit.Burst != 20 {
		t.Fatalf("unexpected rate limit defaults: %+v", settings.RateLimit)
	}
}

func TestRunServerValidatorInitFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreValidator := withGoogleValidatorBuilderStub(func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
		return nil, errors.New("validator_fail")
	})
	defer restoreValidator()

	viper.Set("listen_addr", ":0")
	viper.Set("google_web_client_id", "client")
	viper.Set("jwt_signing_key", "signing-secret")

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err == nil || err.Error() != "config.google_validator_init: validator_fail" {
		t.Fatalf("expected google validator init error, got %v", err)
	}
}

func TestRunServerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		if server.Handler == nil {
			t.Fatalf("expected handler to be configured")
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreValidator := withGoogleValidatorBuilderStub(func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
		return noopGoogleValidator{}, nil
	})
	defer restoreValidator()

	viper.Set("listen_addr", ":0")
	viper.Set("google_web_client_id", "client")
	viper.Set("jwt_signing_key", "signing-secret")
	viper.Set("database_url", "sqlite:file:server-"+uuid.NewString()+"?mode=memory&cache=shared")
	viper.Set("enable_cors", true)
	viper.Set("cors_allowed_origins", []string{"http://localhost:5173"})

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err != nil {
		t.Fatalf("expected runServer to succeed, got %v", err)
	}
}

func TestRunServerInMemoryStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreValidator := withGoogleValidatorBuilderStub(func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
		t.Fatalf("google validator must not be built without a client id")
		return nil, nil
	})
	defer restoreValidator()

	viper.Set("listen_addr", ":0")
	viper.Set("jwt_signing_key", "signing-secret")

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err != nil {
		t.Fatalf("expected runServer to succeed with in-memory store, got %v", err)
	}
}

func TestOpenBackendsPGXRequiresPostgres(t *testing.T) {
	_, err := openBackends(context.Background(), ServerSettings{
		DatabaseURL: "sqlite:file:pgx-" + uuid.NewString() + "?mode=memory&cache=shared",
		StoreDriver: storeDriverPGX,
	}, zaptest.NewLogger(t))
	if err == nil || !strings.HasPrefix(err.Error(), configCodePGXRequiresPostgres) {
		t.Fatalf("expected %s error, got %v", configCodePGXRequiresPostgres, err)
	}
}

func TestApplicationServesLoginAndFollowFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)

	databaseURL := "sqlite:file:app-" + uuid.NewString() + "?mode=memory&cache=shared"
	app, err := newApplication(context.Background(), ServerSettings{
		Auth:        authkit.ServerConfig{SigningKey: []byte("application-secret"), TokenTTL: time.Hour},
		DatabaseURL: databaseURL,
		StoreDriver: storeDriverGORM,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newApplication failed: %v", err)
	}
	defer app.Close()

	follower, err := createAccount(context.Background(), databaseURL, identity.NewIdentity{Name: "Follower", Email: "follower@example.com"}, "pw-1")
	if err != nil {
		t.Fatalf("create follower failed: %v", err)
	}
	target, err := createAccount(context.Background(), databaseURL, identity.NewIdentity{Name: "Target", Email: "target@example.com", AccountType: identity.AccountTypePrivate}, "pw-2")
	if err != nil {
		t.Fatalf("create target failed: %v", err)
	}

	serve := func(method string, path string, token string, body string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		request.Header.Set("Content-Type", "application/json")
		if token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
		recorder := httptest.NewRecorder()
		app.router.ServeHTTP(recorder, request)
		return recorder
	}

	if health := serve(http.MethodGet, "/healthz", "", ""); health.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from healthz, got %d", health.Code)
	}

	rejected := serve(http.MethodPost, "/api/user/login", "", `{"email":"follower@example.com","password":"wrong"}`)
	if rejected.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rejected.Code)
	}

	login := serve(http.MethodPost, "/api/user/login", "", `{"email":"follower@example.com","password":"pw-1"}`)
	if login.Code != http.StatusOK {
		t.Fatalf("expected 200 from login, got %d: %s", login.Code, login.Body.String())
	}
	var loginPayload struct {
		Token string `json:"token"`
	}
	if decodeErr := json.Unmarshal(login.Body.Bytes(), &loginPayload); decodeErr != nil || loginPayload.Token == "" {
		t.Fatalf("expected token in login payload: %v", decodeErr)
	}

	followed := serve(http.MethodPost, "/api/user/auth/follow", loginPayload.Token, `{"targetId":"`+target.ID+`","action":"follow","isRequest":true}`)
	if followed.Code != http.StatusOK || !strings.Contains(followed.Body.String(), `"status":"pending"`) {
		t.Fatalf("expected pending follow request, got %d: %s", followed.Code, followed.Body.String())
	}

	unauthorized := serve(http.MethodGet, "/api/user/auth/me", "", "")
	if unauthorized.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", unauthorized.Code)
	}

	me := serve(http.MethodGet, "/api/user/auth/me", loginPayload.Token, "")
	if me.Code != http.StatusOK || !strings.Contains(me.Body.String(), follower.ID) {
		t.Fatalf("expected follower profile from /me, got %d: %s", me.Code, me.Body.String())
	}

	metrics := serve(http.MethodGet, "/metrics", "", "")
	if metrics.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", metrics.Code)
	}
	for _, expected := range []string{`event="auth.login.success"`, `event="auth.login.failure"`, `event="follow.requested"`, `event="auth.gate.missing_credential"`} {
		if !strings.Contains(metrics.Body.String(), expected) {
			t.Fatalf("expected metrics exposition to contain %s", expected)
		}
	}
}

func TestUsersAddCommand(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "users.db")
	command := newRootCommand()
	var output bytes.Buffer
	command.SetOut(&output)
	command.SetArgs([]string{"users", "add",
		"--database_url", databaseURL,
		"--name", "Operator",
		"--email", "Operator@Example.com",
		"--password", "s3cret",
		"--account_type", "private",
	})
	if err := command.Execute(); err != nil {
		t.Fatalf("users add failed: %v", err)
	}
	if !strings.Contains(output.String(), "operator@example.com") {
		t.Fatalf("unexpected command output %q", output.String())
	}

	database, err := storage.Open(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	store, err := identity.NewDatabaseStore(context.Background(), database.DB, database.DriverLabel)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	account, err := store.LookupByEmail(context.Background(), "operator@example.com")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if account.AccountType != identity.AccountTypePrivate {
		t.Fatalf("expected private account, got %s", account.AccountType)
	}
	if compareErr := identity.ComparePassword(account.PasswordHash, "s3cret"); compareErr != nil {
		t.Fatalf("expected stored bcrypt hash to verify: %v", compareErr)
	}
	if sqlDB, sqlErr := database.DB.DB(); sqlErr == nil {
		_ = sqlDB.Close()
	}
}

func TestUsersAddRequiresDatabase(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	command := newRootCommand()
	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{"users", "add", "--name", "n", "--email", "e@example.com", "--password", "p"})
	err := command.Execute()
	if err == nil || !strings.HasPrefix(err.Error(), configCodeUsersRequireDatabase) {
		t.Fatalf("expected %s error, got %v", configCodeUsersRequireDatabase, err)
	}
}

func TestNewRootCommandHelp(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
}

func withServeHTTPStub(stub func(server *http.Server) error) func() {
	previous := serveHTTP
	serveHTTP = stub
	return func() {
		serveHTTP = previous
	}
}

type noopGoogleValidator struct{}

func (noopGoogleValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	return &idtoken.Payload{}, nil
}

func withGoogleValidatorBuilderStub(stub func(ctx context.Context) (authkit.GoogleTokenValidator, error)) func() {
	previous := buildGoogleTokenValidator
	buildGoogleTokenValidator = stub
	return func() {
		buildGoogleTokenValidator = previous
	}
}
