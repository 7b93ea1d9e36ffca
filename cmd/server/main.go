package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/followgate/internal/authkit"
	"github.com/tyemirov/followgate/internal/follow"
	"github.com/tyemirov/followgate/internal/web"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewGoogleTokenValidator(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "followgate",
		Short:   "Social graph API with stateless bearer authentication and a concurrency-safe follow state machine",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.PersistentFlags().String("database_url", "", "Database URL (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for bearer tokens")
	rootCmd.Flags().Duration("token_ttl", authkit.DefaultTokenTTL, "Bearer token lifetime")
	rootCmd.Flags().String("store_driver", storeDriverGORM, "Relationship store driver for postgres URLs (gorm or pgx)")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID; enables /auth/google when set")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.Flags().Float64("follow_rate_per_minute", 60, "Sustained relationship mutations per caller per minute (0 disables limiting)")
	rootCmd.Flags().Int("follow_rate_burst", 20, "Relationship mutation burst per caller")

	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database_url"))
	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("token_ttl", rootCmd.Flags().Lookup("token_ttl"))
	_ = viper.BindPFlag("store_driver", rootCmd.Flags().Lookup("store_driver"))
	_ = viper.BindPFlag("google_web_client_id", rootCmd.Flags().Lookup("google_web_client_id"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))
	_ = viper.BindPFlag("follow_rate_per_minute", rootCmd.Flags().Lookup("follow_rate_per_minute"))
	_ = viper.BindPFlag("follow_rate_burst", rootCmd.Flags().Lookup("follow_rate_burst"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newUsersCommand())

	return rootCmd
}

const (
	storeDriverGORM = "gorm"
	storeDriverPGX  = "pgx"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidTokenTTL         = "config.invalid_token_ttl"
	configCodeInvalidStoreDriver      = "config.invalid_store_driver"
	configCodeMissingCORSOrigins      = "config.missing_cors_allowed_origins"
	configCodeInvalidRateLimit        = "config.invalid_follow_rate"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// ServerSettings is the validated process configuration.
type ServerSettings struct {
	Auth               authkit.ServerConfig
	ListenAddr         string
	DatabaseURL        string
	StoreDriver        string
	EnableCORS         bool
	CORSAllowedOrigins []string
	RateLimit          web.RateLimitConfig
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverSettings, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverSettings))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func LoadServerConfig() (ServerSettings, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return ServerSettings{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	tokenTTL := authkit.DefaultTokenTTL
	if viper.IsSet("token_ttl") {
		tokenTTL = viper.GetDuration("token_ttl")
	}
	if tokenTTL <= 0 {
		return ServerSettings{}, configError(configCodeInvalidTokenTTL, "token_ttl must be greater than zero")
	}

	storeDriver := strings.ToLower(strings.TrimSpace(viper.GetString("store_driver")))
	if storeDriver == "" {
		storeDriver = storeDriverGORM
	}
	if storeDriver != storeDriverGORM && storeDriver != storeDriverPGX {
		return ServerSettings{}, configError(configCodeInvalidStoreDriver, "store_driver must be gorm or pgx")
	}

	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if enableCORS && len(corsAllowedOrigins) == 0 {
		return ServerSettings{}, configError(configCodeMissingCORSOrigins, "cors_allowed_origins must be provided when enable_cors is true")
	}

	ratePerMinute := 60.0
	if viper.IsSet("follow_rate_per_minute") {
		ratePerMinute = viper.GetFloat64("follow_rate_per_minute")
	}
	rateBurst := 20
	if viper.IsSet("follow_rate_burst") {
		rateBurst = viper.GetInt("follow_rate_burst")
	}
	if ratePerMinute < 0 || rateBurst < 0 {
		return ServerSettings{}, configError(configCodeInvalidRateLimit, "follow_rate_per_minute and follow_rate_burst must not be negative")
	}

	listenAddr := viper.GetString("listen_addr")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return ServerSettings{
		Auth: authkit.ServerConfig{
			SigningKey:        []byte(jwtSigningKey),
			TokenTTL:          tokenTTL,
			GoogleWebClientID: strings.TrimSpace(viper.GetString("google_web_client_id")),
		},
		ListenAddr:         listenAddr,
		DatabaseURL:        strings.TrimSpace(viper.GetString("database_url")),
		StoreDriver:        storeDriver,
		EnableCORS:         enableCORS,
		CORSAllowedOrigins: corsAllowedOrigins,
		RateLimit: web.RateLimitConfig{
			RequestsPerMinute: ratePerMinute,
			Burst:             rateBurst,
		},
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverSettings, ok := contextValue.(ServerSettings)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	gin.SetMode(gin.ReleaseMode)
	application, buildErr := newApplication(commandContext, serverSettings, logger)
	if buildErr != nil {
		return buildErr
	}
	defer application.Close()

	server := &http.Server{
		Addr:              serverSettings.ListenAddr,
		Handler:           application.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", serverSettings.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

type application struct {
	router   *gin.Engine
	backends *backends
}

// Close releases database handles held by the application.
func (app *application) Close() {
	app.backends.Close()
}

func newApplication(ctx context.Context, serverSettings ServerSettings, logger *zap.Logger) (*application, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	stores, storesErr := openBackends(ctx, serverSettings, logger)
	if storesErr != nil {
		return nil, storesErr
	}

	var googleValidator authkit.GoogleTokenValidator
	if serverSettings.Auth.GoogleWebClientID != "" {
		validator, validatorErr := buildGoogleTokenValidator(ctx)
		if validatorErr != nil {
			stores.Close()
			return nil, fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
		}
		googleValidator = validator
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsRecorder := authkit.NewPrometheusMetrics(registry)

	issuer, issuerErr := authkit.NewTokenIssuer(serverSettings.Auth, nil)
	if issuerErr != nil {
		stores.Close()
		return nil, issuerErr
	}
	gate, gateErr := authkit.NewAuthGate(serverSettings.Auth, stores.identities, nil)
	if gateErr != nil {
		stores.Close()
		return nil, gateErr
	}
	engine, engineErr := follow.NewEngine(follow.EngineDependencies{
		Store:      stores.follows,
		Identities: stores.identities,
		Logger:     logger,
		Metrics:    metricsRecorder,
	})
	if engineErr != nil {
		stores.Close()
		return nil, engineErr
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(web.RequestID())
	router.Use(zapLoggerMiddleware(logger))

	if serverSettings.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, serverSettings.CORSAllowedOrigins)
		if corsErr != nil {
			stores.Close()
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/user")
	authkit.MountAuthRoutes(api, authkit.RouteDependencies{
		Configuration:   serverSettings.Auth,
		Issuer:          issuer,
		Identities:      stores.identities,
		GoogleValidator: googleValidator,
		Logger:          logger,
		Metrics:         metricsRecorder,
	})

	protected := api.Group("/auth")
	protected.Use(authkit.RequireBearer(gate, logger, metricsRecorder))
	protected.GET("/me", web.HandleWhoAmI())
	web.MountFollowRoutes(protected, web.FollowRouteDependencies{
		Engine:  engine,
		Limiter: web.NewCallerRateLimiter(serverSettings.RateLimit),
		Logger:  logger,
	})

	return &application{router: router, backends: stores}, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
			zap.String("request_id", web.RequestIDFromContext(contextGin)),
		)
	}
}
