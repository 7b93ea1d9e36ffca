package authkit

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/followgate/internal/identity"
	"go.uber.org/zap"
)

// googleIssuers are the issuer values Google places in ID tokens.
var googleIssuers = map[string]struct{}{
	"https://accounts.google.com": {},
	"accounts.google.com":         {},
}

// RouteDependencies groups the collaborators used by the public auth routes.
type RouteDependencies struct {
	Configuration   ServerConfig
	Issuer          *TokenIssuer
	Identities      identity.Store
	GoogleValidator GoogleTokenValidator
	Logger          *zap.Logger
	Metrics         MetricsRecorder
}

// MountAuthRoutes registers /login and, when a Google client id is configured, /auth/google.
func MountAuthRoutes(router gin.IRouter, dependencies RouteDependencies) {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := dependencies.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}

	router.POST("/login", func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Email) == "" || inbound.Password == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
			return
		}

		account, lookupErr := dependencies.Identities.LookupByEmail(contextGin.Request.Context(), inbound.Email)
		if lookupErr != nil {
			if errors.Is(lookupErr, identity.ErrIdentityNotFound) {
				metrics.Increment(metricAuthLoginFailure)
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
				return
			}
			logger.Error("login lookup failed",
				zap.String("code", "auth.login.lookup_error"),
				zap.Error(lookupErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		if compareErr := identity.ComparePassword(account.PasswordHash, inbound.Password); compareErr != nil {
			if !errors.Is(compareErr, identity.ErrPasswordMismatch) {
				logger.Warn("password comparison failed",
					zap.String("code", "auth.login.compare_error"),
					zap.String("user_id", account.ID),
					zap.Error(compareErr))
			}
			metrics.Increment(metricAuthLoginFailure)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
			return
		}

		if respondWithToken(contextGin, dependencies.Issuer, account, logger) {
			metrics.Increment(metricAuthLoginSuccess)
		}
	})

	if strings.TrimSpace(dependencies.Configuration.GoogleWebClientID) == "" || dependencies.GoogleValidator == nil {
		return
	}

	router.POST("/auth/google", func(contextGin *gin.Context) {
		var inbound struct {
			GoogleIDToken string `json:"google_id_token"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.GoogleIDToken) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "google_id_token is required"})
			return
		}
		payload, validateErr := dependencies.GoogleValidator.Validate(contextGin.Request.Context(), inbound.GoogleIDToken, dependencies.Configuration.GoogleWebClientID)
		if validateErr != nil {
			logger.Info("google token rejected",
				zap.String("code", "auth.google.invalid_token"),
				zap.Error(validateErr))
			metrics.Increment(metricAuthGoogleFailure)
			AbortUnauthorized(contextGin)
			return
		}
		issuerValue, _ := payload.Claims["iss"].(string)
		if _, known := googleIssuers[issuerValue]; !known {
			metrics.Increment(metricAuthGoogleFailure)
			AbortUnauthorized(contextGin)
			return
		}
		userEmail, _ := payload.Claims["email"].(string)
		emailVerified, _ := payload.Claims["email_verified"].(bool)
		if userEmail == "" || !emailVerified {
			metrics.Increment(metricAuthGoogleFailure)
			AbortUnauthorized(contextGin)
			return
		}

		account, lookupErr := dependencies.Identities.LookupByEmail(contextGin.Request.Context(), userEmail)
		if lookupErr != nil {
			if errors.Is(lookupErr, identity.ErrIdentityNotFound) {
				metrics.Increment(metricAuthGoogleFailure)
				AbortUnauthorized(contextGin)
				return
			}
			logger.Error("google login lookup failed",
				zap.String("code", "auth.google.lookup_error"),
				zap.Error(lookupErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}

		if respondWithToken(contextGin, dependencies.Issuer, account, logger) {
			metrics.Increment(metricAuthGoogleSuccess)
		}
	})
}

func respondWithToken(contextGin *gin.Context, issuer *TokenIssuer, account identity.Identity, logger *zap.Logger) bool {
	token, expiresAt, mintErr := issuer.Issue(account)
	if mintErr != nil {
		logger.Error("token mint failed",
			zap.String("code", "auth.token.mint_error"),
			zap.String("user_id", account.ID),
			zap.Error(mintErr))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return false
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"message":   "Login successful",
		"token":     token,
		"expiresAt": expiresAt.Unix(),
		"user":      PublicProfile(account),
	})
	return true
}

// PublicProfile renders the client-facing view of an identity.
func PublicProfile(account identity.Identity) gin.H {
	return gin.H{
		"id":          account.ID,
		"name":        account.Name,
		"email":       account.Email,
		"accountType": account.AccountType,
		"profilePic":  account.ProfilePic,
	}
}
