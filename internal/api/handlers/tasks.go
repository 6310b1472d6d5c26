// tasks.go implements the task dashboard endpoint, which surfaces recent
// background-job executions.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/opsdeck/internal/db/repositories"
)

// dashboardRunLimit is how many recent job runs the dashboard returns.
const dashboardRunLimit = 10

// TaskHandlers handles the task dashboard endpoint.
type TaskHandlers struct {
	jobRunRepo *repositories.JobRunRepository
}

// NewTaskHandlers creates a new TaskHandlers instance.
func NewTaskHandlers(jobRunRepo *repositories.JobRunRepository) *TaskHandlers {
	return &TaskHandlers{jobRunRepo: jobRunRepo}
}

// DashboardHandler returns the most recent background job runs, newest first.
// GET /tasks/dashboard
func (h *TaskHandlers) DashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := h.jobRunRepo.ListRecent(c.Request.Context(), dashboardRunLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job runs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"runs":  runs,
			"count": len(runs),
		})
	}
}
