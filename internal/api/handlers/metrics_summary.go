// metrics_summary.go implements the operational summary endpoint. This is an
// application-level view (session and audit volumes); Prometheus metrics live
// on the telemetry side port.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/opsdeck/internal/db/repositories"
)

// MetricsHandlers handles the metrics summary endpoint.
type MetricsHandlers struct {
	sessionRepo *repositories.SessionRepository
	auditRepo   *repositories.AuditRepository
}

// NewMetricsHandlers creates a new MetricsHandlers instance.
func NewMetricsHandlers(sessionRepo *repositories.SessionRepository, auditRepo *repositories.AuditRepository) *MetricsHandlers {
	return &MetricsHandlers{
		sessionRepo: sessionRepo,
		auditRepo:   auditRepo,
	}
}

// SummaryHandler returns active-session and audit-volume counts.
// GET /metrics/summary
func (h *MetricsHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		activeSessions, err := h.sessionRepo.CountActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load metrics"})
			return
		}

		auditEntries, err := h.auditRepo.Count(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load metrics"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"active_sessions": activeSessions,
			"audit_entries":   auditEntries,
			"generated_at":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}
