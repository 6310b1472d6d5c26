// Package middleware provides Gin HTTP middleware for identity resolution,
// authorization, request throttling, audit capture, security headers, request
// IDs, and Prometheus metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → Identity → Audit → Throttle → Permission → Handler
//
// Security headers run first so they appear on all responses including errors.
// Identity resolves the caller exactly once per request; every later component
// (audit, throttle, permission gates) reads the resolved identity from the
// request context instead of re-parsing the Authorization header.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/db/models"
	"github.com/opsdeck/opsdeck/internal/db/repositories"
	"github.com/opsdeck/opsdeck/internal/telemetry"
)

// Context keys populated by IdentityMiddleware.
const (
	// ContextUser holds *models.UserWithProfile when a JWT caller is resolved.
	ContextUser = "user"
	// ContextUserID holds the resolved user's ID string.
	ContextUserID = "user_id"
	// ContextAPIKey holds *models.APIKey when an API-key caller is resolved.
	ContextAPIKey = "api_key"
	// ContextAuthType holds one of AuthTypeAPIKey, AuthTypeUser, AuthTypeAnon.
	ContextAuthType = "auth_type"
)

// Auth type labels describing how (or whether) the caller authenticated.
const (
	AuthTypeAPIKey = "api_key"
	AuthTypeUser   = "user"
	AuthTypeAnon   = "anon"
)

// IdentityMiddleware resolves the caller's identity from the Authorization
// header exactly once per request and stores it in the request context.
//
// Two schemes are recognised:
//
//   - "ApiKey <token>"  — exact-match lookup of an active API key. An unknown
//     or deactivated token is a hard 401: presenting the ApiKey scheme commits
//     the caller to it, there is no fallback to another scheme.
//   - "Bearer <jwt>"    — HS256 access token. An invalid or expired token
//     leaves the request anonymous rather than failing it; endpoints that
//     require authentication enforce it through their permission gates.
//
// Requests with no Authorization header, or any other scheme, proceed as
// anonymous (auth_type "anon").
func IdentityMiddleware(userRepo *repositories.UserRepository, apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextAuthType, AuthTypeAnon)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		// API key scheme.
		if token, ok := auth.ParseAPIKeyHeader(authHeader); ok {
			apiKey, err := apiKeyRepo.GetActiveByToken(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Authentication failed",
				})
				return
			}
			if apiKey == nil {
				telemetry.AuthAttemptsTotal.WithLabelValues("api_key", "failure").Inc()
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": auth.ErrInvalidAPIKey.Error(),
				})
				return
			}

			telemetry.AuthAttemptsTotal.WithLabelValues("api_key", "success").Inc()
			c.Set(ContextAPIKey, apiKey)
			c.Set(ContextAuthType, AuthTypeAPIKey)
			c.Next()
			return
		}

		// Bearer/JWT scheme.
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			claims, err := auth.ValidateJWT(token)
			if err != nil || claims.TokenType != auth.TokenTypeAccess {
				// Invalid access tokens degrade to anonymous; the permission
				// layer decides whether anonymous is acceptable.
				telemetry.AuthAttemptsTotal.WithLabelValues("jwt", "failure").Inc()
				c.Next()
				return
			}

			user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to load user",
				})
				return
			}
			if user == nil || !user.IsActive {
				telemetry.AuthAttemptsTotal.WithLabelValues("jwt", "failure").Inc()
				c.Next()
				return
			}

			telemetry.AuthAttemptsTotal.WithLabelValues("jwt", "success").Inc()
			c.Set(ContextUser, user)
			c.Set(ContextUserID, user.ID)
			c.Set(ContextAuthType, AuthTypeUser)
		}

		c.Next()
	}
}

// CurrentUser returns the resolved user for the request, or nil for anonymous
// and API-key callers.
func CurrentUser(c *gin.Context) *models.UserWithProfile {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*models.UserWithProfile)
	return user
}

// CurrentAPIKey returns the resolved API key for the request, or nil.
func CurrentAPIKey(c *gin.Context) *models.APIKey {
	v, ok := c.Get(ContextAPIKey)
	if !ok {
		return nil
	}
	key, _ := v.(*models.APIKey)
	return key
}

// AuthType returns the caller's auth type label (api_key, user, or anon).
func AuthType(c *gin.Context) string {
	return c.GetString(ContextAuthType)
}
