package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the canonical HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID string is stored so
	// that handlers and other middleware can retrieve it without reading the response header.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware returns a Gin handler that assigns every request a fresh
// UUID v4 identifier.
//
// The identifier is always generated server-side; an inbound X-Request-ID
// header is never adopted. The audit middleware uses this value as the
// correlation ID that keys a request's pre-handler row and its post-handler
// status patch, and the security-event writers store it in a UUID column, so
// the value must be a UUID and must be unique per request — a caller-supplied
// header satisfies neither.
//
// The identifier is stored in gin.Context under RequestIDKey so that handlers
// and downstream middleware can read it without parsing HTTP headers:
//
//	id, _ := c.Get(middleware.RequestIDKey)
//
// It is also set on the response X-Request-ID header so clients can correlate
// their request with server-side structured log entries.
//
// Register this middleware as early as possible so all downstream logging includes the ID:
//
//	router.Use(gin.Recovery())
//	router.Use(RequestIDMiddleware())
//	router.Use(MetricsMiddleware())
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()

		// Store in context for use by handlers and other middleware (e.g. logging).
		c.Set(RequestIDKey, id)

		// Tell the caller which ID to quote when correlating with server-side logs.
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
