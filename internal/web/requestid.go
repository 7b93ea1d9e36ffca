package web

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request correlation id in both directions.
	RequestIDHeader = "X-Request-ID"

	requestIDContextKey = "web.request_id"
	maxRequestIDLength  = 128
)

// RequestID reuses a client supplied X-Request-ID or generates one, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		requestID := strings.TrimSpace(contextGin.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		contextGin.Set(requestIDContextKey, requestID)
		contextGin.Header(RequestIDHeader, requestID)
		contextGin.Next()
	}
}

// RequestIDFromContext returns the id attached by RequestID, or "".
func RequestIDFromContext(contextGin *gin.Context) string {
	return contextGin.GetString(requestIDContextKey)
}
