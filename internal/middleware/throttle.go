// throttle.go provides per-category request throttling backed by Redis, with a
// best-effort audit trail of violations.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"

	"github.com/opsdeck/opsdeck/internal/audit"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/db/models"
	"github.com/opsdeck/opsdeck/internal/telemetry"
)

// Throttle category names. Each category gets its own bucket space so a caller
// exhausting the dashboard budget keeps their webhook budget intact.
const (
	ThrottleCategoryDashboard = "dashboard"
	ThrottleCategoryWebhook   = "webhook"
)

// throttleKey derives the bucket key for a caller. API-key callers are
// throttled per token; everyone else per client IP.
func throttleKey(c *gin.Context, category string) string {
	if apiKey := CurrentAPIKey(c); apiKey != nil {
		return "throttle:" + category + ":apikey_" + apiKey.Token
	}
	return "throttle:" + category + ":ip_" + c.ClientIP()
}

// ThrottleMiddleware enforces the request budget for one named category using
// a Redis-backed sliding window. Redis being unreachable fails open: a broken
// cache must degrade to unthrottled service, not an outage.
//
// A rejected request gets a 429 with a retry hint, and a throttle_violation
// audit row is written best-effort with the caller's auth type and the
// remaining wait in seconds (clamped to zero or more).
func ThrottleMiddleware(limiter *redis_rate.Limiter, category string, rate config.RateSpec, rec *audit.Recorder) gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   rate.RequestsPerMinute,
		Burst:  rate.Burst,
		Period: time.Minute,
	}

	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), throttleKey(c, category), limit)
		if err != nil {
			slog.Warn("throttle: limiter unavailable, failing open", "category", category, "error", err)
			c.Next()
			return
		}

		if res.Allowed > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rate.RequestsPerMinute))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Next()
			return
		}

		waitSeconds := int(res.RetryAfter.Round(time.Second).Seconds())
		if waitSeconds < 0 {
			waitSeconds = 0
		}

		authType := AuthType(c)
		telemetry.ThrottleViolationsTotal.WithLabelValues(category, authType).Inc()
		recordThrottleViolation(c, rec, category, authType, waitSeconds)

		c.Header("Retry-After", strconv.Itoa(waitSeconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":               "Request was throttled",
			"retry_after_seconds": waitSeconds,
		})
	}
}

// recordThrottleViolation persists the violation as an audit row with result
// status 429. Failures are swallowed by the Recorder; the caller's 429 is
// never affected.
func recordThrottleViolation(c *gin.Context, rec *audit.Recorder, category, authType string, waitSeconds int) {
	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	action := "throttle_violation"
	status := "429"

	entry := &models.AuditLog{
		CorrelationID: c.GetString(RequestIDKey),
		IPAddress:     &ip,
		Endpoint:      c.Request.URL.Path,
		Method:        c.Request.Method,
		Action:        &action,
		Payload: map[string]interface{}{
			"action":                 action,
			"category":               category,
			"path":                   c.Request.URL.Path,
			"method":                 c.Request.Method,
			"ip":                     ip,
			"auth_type":              authType,
			"remaining_wait_seconds": waitSeconds,
		},
		ResultStatus: &status,
		CreatedAt:    time.Now(),
	}
	if userAgent != "" {
		entry.UserAgent = &userAgent
	}
	if user := CurrentUser(c); user != nil {
		entry.UserID = &user.ID
	}

	rec.Record(c.Request.Context(), entry)
}
