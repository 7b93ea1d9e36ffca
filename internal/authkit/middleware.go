package authkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/followgate/internal/identity"
	"go.uber.org/zap"
)

const callerContextKey = "authkit.caller"

// Caller is the authenticated identity attached to a single protected request.
type Caller struct {
	Identity identity.Identity
}

// ID returns the caller's identity id.
func (caller Caller) ID() string {
	return caller.Identity.ID
}

// ProtectedHandler receives the authenticated caller explicitly.
type ProtectedHandler func(contextGin *gin.Context, caller Caller)

// RequireBearer authenticates the Authorization header and attaches the Caller.
// Every failure kind yields the same 401 body; the kind is only logged and counted.
func RequireBearer(gate *AuthGate, logger *zap.Logger, metrics MetricsRecorder) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return func(contextGin *gin.Context) {
		resolved, err := gate.Authenticate(contextGin.Request.Context(), contextGin.GetHeader("Authorization"))
		if err != nil {
			code := FailureCode(err)
			if code == "" {
				logger.Error("identity lookup failed",
					zap.String("code", "auth.gate.lookup_error"),
					zap.Error(err))
				metrics.Increment(metricAuthGateError)
				contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
				return
			}
			logger.Info("request rejected",
				zap.String("code", code),
				zap.String("path", contextGin.Request.URL.Path))
			metrics.Increment(code)
			AbortUnauthorized(contextGin)
			return
		}
		metrics.Increment(metricAuthGateSuccess)
		contextGin.Set(callerContextKey, Caller{Identity: resolved})
		contextGin.Next()
	}
}

// CallerFromContext returns the caller attached by RequireBearer.
func CallerFromContext(contextGin *gin.Context) (Caller, bool) {
	value, found := contextGin.Get(callerContextKey)
	if !found {
		return Caller{}, false
	}
	caller, ok := value.(Caller)
	if !ok || caller.ID() == "" {
		return Caller{}, false
	}
	return caller, true
}

// WithCaller adapts a ProtectedHandler to gin, passing the authenticated caller explicitly.
func WithCaller(handler ProtectedHandler) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		caller, ok := CallerFromContext(contextGin)
		if !ok {
			AbortUnauthorized(contextGin)
			return
		}
		handler(contextGin, caller)
	}
}

// AbortUnauthorized writes the generic unauthorized response.
func AbortUnauthorized(contextGin *gin.Context) {
	contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
}
