// sessions.go implements the admin session listing. The Session model tags
// the refresh token with json:"-", so the credential never appears in output.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/opsdeck/internal/db/repositories"
)

// Listing page-size bounds.
const (
	sessionDefaultLimit = 50
	sessionMaxLimit     = 200
)

// SessionHandlers handles the session listing endpoint.
type SessionHandlers struct {
	sessionRepo *repositories.SessionRepository
}

// NewSessionHandlers creates a new SessionHandlers instance.
func NewSessionHandlers(sessionRepo *repositories.SessionRepository) *SessionHandlers {
	return &SessionHandlers{sessionRepo: sessionRepo}
}

// ListSessionsHandler returns recent login sessions, newest first, with the
// current active count. Supported query parameters: limit, offset.
// GET /admin/sessions
func (h *SessionHandlers) ListSessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parsePositiveInt(c.Query("limit"), sessionDefaultLimit)
		if limit > sessionMaxLimit {
			limit = sessionMaxLimit
		}
		offset := parsePositiveInt(c.Query("offset"), 0)

		sessions, err := h.sessionRepo.ListSessions(c.Request.Context(), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
			return
		}

		activeCount, err := h.sessionRepo.CountActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"sessions":     sessions,
			"active_count": activeCount,
			"limit":        limit,
			"offset":       offset,
		})
	}
}
