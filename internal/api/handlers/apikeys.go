// apikeys.go implements the admin API key management endpoints. The raw token
// is returned exactly once, on creation or regeneration; listings only ever
// show the masked form.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/opsdeck/internal/audit"
	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/db/models"
	"github.com/opsdeck/opsdeck/internal/db/repositories"
	"github.com/opsdeck/opsdeck/internal/middleware"
)

// APIKeyHandlers handles API key management endpoints.
type APIKeyHandlers struct {
	apiKeyRepo *repositories.APIKeyRepository
	recorder   *audit.Recorder
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance.
func NewAPIKeyHandlers(apiKeyRepo *repositories.APIKeyRepository, recorder *audit.Recorder) *APIKeyHandlers {
	return &APIKeyHandlers{
		apiKeyRepo: apiKeyRepo,
		recorder:   recorder,
	}
}

// CreateAPIKeyRequest represents the request to create a new API key.
type CreateAPIKeyRequest struct {
	Name   string   `json:"name" binding:"required"`
	Scopes []string `json:"scopes" binding:"required,min=1"`
}

// apiKeyResponse shapes a key for JSON output with the token masked.
func apiKeyResponse(k *models.APIKey) gin.H {
	return gin.H{
		"id":         k.ID,
		"name":       k.Name,
		"token":      k.MaskedToken(),
		"scopes":     k.Scopes,
		"is_active":  k.IsActive,
		"created_at": k.CreatedAt.Format(time.RFC3339),
	}
}

// ListAPIKeysHandler lists all API keys with masked tokens, newest first.
// GET /admin/apikeys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := h.apiKeyRepo.ListAPIKeys(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
			return
		}

		resp := make([]gin.H, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, apiKeyResponse(k))
		}
		c.JSON(http.StatusOK, gin.H{"keys": resp})
	}
}

// CreateAPIKeyHandler creates a new API key. The full token appears in this
// response and nowhere else.
// POST /admin/apikeys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: name and at least one scope are required",
			})
			return
		}

		if err := auth.ValidateScopes(req.Scopes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, err := auth.GenerateToken()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
			return
		}

		key := &models.APIKey{
			Name:     req.Name,
			Token:    token,
			Scopes:   req.Scopes,
			IsActive: true,
		}
		if err := h.apiKeyRepo.CreateAPIKey(c.Request.Context(), key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":         key.ID,
			"name":       key.Name,
			"token":      key.Token, // returned once
			"scopes":     key.Scopes,
			"is_active":  key.IsActive,
			"created_at": key.CreatedAt.Format(time.RFC3339),
		})
	}
}

// RegenerateAPIKeyHandler swaps the token on an existing key. The record keeps
// its identity, name, and scopes; the old token stops authenticating
// immediately. A security-event audit row records both tokens in masked form.
// POST /admin/apikeys/:id/regenerate
func (h *APIKeyHandlers) RegenerateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		key, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), keyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to regenerate API key"})
			return
		}
		if key == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		oldMasked := key.MaskedToken()

		token, err := auth.GenerateToken()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to regenerate API key"})
			return
		}

		updated, err := h.apiKeyRepo.RegenerateToken(c.Request.Context(), keyID, token)
		if err != nil || updated == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to regenerate API key"})
			return
		}

		h.recordRegeneration(c, updated, oldMasked)

		c.JSON(http.StatusOK, gin.H{
			"id":         updated.ID,
			"name":       updated.Name,
			"token":      updated.Token, // returned once
			"scopes":     updated.Scopes,
			"is_active":  updated.IsActive,
			"created_at": updated.CreatedAt.Format(time.RFC3339),
		})
	}
}

// DeactivateAPIKeyHandler marks a key inactive. Keys are never deleted, so the
// audit trail keeps resolving old key IDs.
// DELETE /admin/apikeys/:id
func (h *APIKeyHandlers) DeactivateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		key, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), keyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate API key"})
			return
		}
		if key == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}

		if err := h.apiKeyRepo.DeactivateAPIKey(c.Request.Context(), keyID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate API key"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"detail": "API key deactivated"})
	}
}

// recordRegeneration writes the security-event row for a token swap. Only
// masked token forms go into the payload.
func (h *APIKeyHandlers) recordRegeneration(c *gin.Context, key *models.APIKey, oldMasked string) {
	ip := c.ClientIP()
	action := "api_key.regenerated"
	status := "200"

	entry := &models.AuditLog{
		CorrelationID: c.GetString(middleware.RequestIDKey),
		IPAddress:     &ip,
		Endpoint:      c.Request.URL.Path,
		Method:        c.Request.Method,
		Action:        &action,
		Payload: map[string]interface{}{
			"action":    action,
			"key_id":    key.ID,
			"key_name":  key.Name,
			"old_token": oldMasked,
			"new_token": key.MaskedToken(),
		},
		ResultStatus: &status,
	}
	if ua := c.Request.UserAgent(); ua != "" {
		entry.UserAgent = &ua
	}
	if user := middleware.CurrentUser(c); user != nil {
		entry.UserID = &user.ID
	}

	h.recorder.Record(c.Request.Context(), entry)
}
