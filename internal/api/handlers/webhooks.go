// webhooks.go implements the inbound GitHub webhook endpoint. Deliveries are
// acknowledged and logged; the endpoint is anonymous and protected by the
// "webhook" throttle category rather than authentication.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// WebhookHandlers handles inbound webhook deliveries.
type WebhookHandlers struct{}

// NewWebhookHandlers creates a new WebhookHandlers instance.
func NewWebhookHandlers() *WebhookHandlers {
	return &WebhookHandlers{}
}

// GitHubHandler acknowledges a GitHub webhook delivery. Ping events get an
// immediate pong; everything else is accepted for asynchronous processing.
// POST /webhooks/github
func (h *WebhookHandlers) GitHubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		event := c.GetHeader("X-GitHub-Event")
		delivery := c.GetHeader("X-GitHub-Delivery")

		if event == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing X-GitHub-Event header"})
			return
		}

		if event == "ping" {
			c.JSON(http.StatusOK, gin.H{"detail": "pong"})
			return
		}

		slog.Info("webhook delivery accepted", "event", event, "delivery", delivery)
		c.JSON(http.StatusAccepted, gin.H{
			"detail":   "accepted",
			"event":    event,
			"delivery": delivery,
		})
	}
}
