// audit_logs.go implements the admin audit log listing with filtering and
// pagination.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/opsdeck/internal/db/repositories"
)

// Listing page-size bounds.
const (
	auditDefaultLimit = 50
	auditMaxLimit     = 200
)

// AuditLogHandlers handles the audit log listing endpoint.
type AuditLogHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance.
func NewAuditLogHandlers(auditRepo *repositories.AuditRepository) *AuditLogHandlers {
	return &AuditLogHandlers{auditRepo: auditRepo}
}

// ListAuditLogsHandler returns audit entries, newest first. Supported query
// parameters: user_id, action, endpoint, start_date, end_date (RFC3339),
// limit, offset.
// GET /admin/audit-logs
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := repositories.AuditFilters{}

		if v := c.Query("user_id"); v != "" {
			filters.UserID = &v
		}
		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("endpoint"); v != "" {
			filters.Endpoint = &v
		}
		if v := c.Query("start_date"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be RFC3339"})
				return
			}
			filters.StartDate = &t
		}
		if v := c.Query("end_date"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be RFC3339"})
				return
			}
			filters.EndDate = &t
		}

		limit := parsePositiveInt(c.Query("limit"), auditDefaultLimit)
		if limit > auditMaxLimit {
			limit = auditMaxLimit
		}
		offset := parsePositiveInt(c.Query("offset"), 0)

		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs":   logs,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}

// parsePositiveInt parses a non-negative integer query value, falling back to
// def on absence or garbage.
func parsePositiveInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
