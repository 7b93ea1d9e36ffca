package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errWildcardOrigin      = errors.New("cors.wildcard_origin")
	errEmptyAllowedOrigins = errors.New("cors.empty_origins")
	errInvalidOrigin       = errors.New("cors.invalid_origin")
)

// ConfigureCORS lets browser clients on the listed origins send bearer tokens.
// Each origin must be a bare http(s) scheme://host; a wildcard is refused.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, candidate := range allowedOrigins {
		origin, err := canonicalOrigin(candidate)
		if err != nil {
			return nil, err
		}
		if origin == "" || containsOrigin(origins, origin) {
			continue
		}
		if strings.HasPrefix(origin, "http://") && !isLoopbackOrigin(origin) {
			logger.Warn("plain http origin allowed",
				zap.String("code", "cors.origin.unsafe"),
				zap.String("origin", origin))
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		return nil, errEmptyAllowedOrigins
	}

	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}), nil
}

// canonicalOrigin returns scheme://host for a configured origin, or "" for a blank entry.
func canonicalOrigin(candidate string) (string, error) {
	trimmed := strings.TrimSpace(candidate)
	switch trimmed {
	case "":
		return "", nil
	case "*":
		return "", errWildcardOrigin
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s", errInvalidOrigin, trimmed)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %s", errInvalidOrigin, trimmed)
	}
	if strings.Trim(parsed.Path, "/") != "" || parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("%w: %s is not a bare origin", errInvalidOrigin, trimmed)
	}
	return scheme + "://" + strings.ToLower(parsed.Host), nil
}

func containsOrigin(origins []string, origin string) bool {
	for _, existing := range origins {
		if existing == origin {
			return true
		}
	}
	return false
}

func isLoopbackOrigin(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
