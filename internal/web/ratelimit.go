package web

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/followgate/internal/authkit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimitConfig configures CallerRateLimiter.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
}

type callerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// CallerRateLimiter throttles requests per authenticated caller, falling back to the client IP.
type CallerRateLimiter struct {
	mutex     sync.Mutex
	limit     rate.Limit
	perMinute float64
	burst     int
	limiters  map[string]*callerLimiter
	lastSweep time.Time
	now       func() time.Time
}

// NewCallerRateLimiter constructs a limiter. A non-positive rate disables limiting.
func NewCallerRateLimiter(config RateLimitConfig) *CallerRateLimiter {
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(config.RequestsPerMinute / 60.0)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	return &CallerRateLimiter{
		limit:     limit,
		perMinute: config.RequestsPerMinute,
		burst:     burst,
		limiters:  make(map[string]*callerLimiter),
		now:       time.Now,
	}
}

// Allow reports whether a request for key may proceed.
func (limiter *CallerRateLimiter) Allow(key string) bool {
	return limiter.limiterFor(key).AllowN(limiter.now(), 1)
}

// Size returns the number of tracked callers.
func (limiter *CallerRateLimiter) Size() int {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return len(limiter.limiters)
}

// Middleware rejects throttled requests with 429 and a Retry-After header.
func (limiter *CallerRateLimiter) Middleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		key := "ip:" + contextGin.ClientIP()
		if caller, ok := authkit.CallerFromContext(contextGin); ok {
			key = "caller:" + caller.ID()
		}
		if limiter.Allow(key) {
			contextGin.Next()
			return
		}
		logger.Warn("rate limit exceeded",
			zap.String("code", "api.rate_limited"),
			zap.String("key", key),
			zap.String("path", contextGin.FullPath()))
		contextGin.Header("Retry-After", strconv.Itoa(limiter.retryAfterSeconds()))
		contextGin.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests"})
	}
}

func (limiter *CallerRateLimiter) limiterFor(key string) *rate.Limiter {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	now := limiter.now()
	if now.Sub(limiter.lastSweep) > limiterIdleTTL {
		for existingKey, entry := range limiter.limiters {
			if now.Sub(entry.lastAccess) > limiterIdleTTL {
				delete(limiter.limiters, existingKey)
			}
		}
		limiter.lastSweep = now
	}
	entry, exists := limiter.limiters[key]
	if !exists {
		entry = &callerLimiter{limiter: rate.NewLimiter(limiter.limit, limiter.burst)}
		limiter.limiters[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter
}

func (limiter *CallerRateLimiter) retryAfterSeconds() int {
	if limiter.perMinute <= 0 {
		return 1
	}
	seconds := int(math.Ceil(60.0 / limiter.perMinute))
	if seconds < 1 {
		return 1
	}
	return seconds
}
