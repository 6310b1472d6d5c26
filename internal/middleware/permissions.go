// permissions.go provides the two authorization gates: an admin-or-read-only
// gate for user-facing endpoints and a per-scope gate factory for endpoints
// that accept API-key callers.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/opsdeck/internal/auth"
)

// AdminOrReadOnly denies unauthenticated callers outright, lets admins and
// staff through for any method, and restricts everyone else to side-effect-free
// methods (GET, HEAD, OPTIONS).
func AdminOrReadOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		if user.IsAdmin() {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Write access requires the admin role",
			})
		}
	}
}

// RequireScope returns a gate admitting API-key callers whose key carries the
// required scope exactly, and admin users. Each call site supplies its own
// scope, producing an independent predicate.
//
// An API-key caller whose key lacks the scope is denied even if the key holds
// a broader scope: granting tasks:write does not imply tasks:read.
func RequireScope(required auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := CurrentAPIKey(c); apiKey != nil {
			if apiKey.IsActive && auth.HasScope(apiKey.Scopes, required) {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "API key is missing required scope: " + string(required),
			})
			return
		}

		if user := CurrentUser(c); user != nil && user.IsAdmin() {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
	}
}
