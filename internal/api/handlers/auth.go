// Package handlers implements the HTTP handlers behind the OpsDeck router.
// Handlers bind and validate input, call into the repositories, and shape JSON
// responses; identity, audit, and throttling concerns live in the middleware
// layer (see internal/middleware).
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/cache"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/db/models"
	"github.com/opsdeck/opsdeck/internal/db/repositories"
	"github.com/opsdeck/opsdeck/internal/telemetry"
)

// AuthHandlers handles registration, login, token refresh, and logout.
type AuthHandlers struct {
	cfg         *config.Config
	userRepo    *repositories.UserRepository
	sessionRepo *repositories.SessionRepository
	cache       *cache.Client
}

// NewAuthHandlers creates a new AuthHandlers instance. cacheClient may be nil,
// in which case the refresh-token blacklist is skipped (revocation then relies
// on session deactivation alone).
func NewAuthHandlers(
	cfg *config.Config,
	userRepo *repositories.UserRepository,
	sessionRepo *repositories.SessionRepository,
	cacheClient *cache.Client,
) *AuthHandlers {
	return &AuthHandlers{
		cfg:         cfg,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		cache:       cacheClient,
	}
}

// RegisterRequest represents the request to create a user account.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest represents a username/password login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the refresh token for rotation and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// userResponse shapes a user for JSON output. The role comes from the profile
// row and may be null for users who have not been assigned one.
func userResponse(user *models.UserWithProfile) gin.H {
	return gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"role":     user.Role,
		"is_staff": user.IsStaff,
	}
}

// RegisterHandler creates a new user account with an empty profile.
// POST /auth/register
func (h *AuthHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.cfg.Auth.AllowRegistration {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Registration is disabled",
			})
			return
		}

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: username, email, and a password of at least 8 characters are required",
			})
			return
		}

		existing, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Username is already taken"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cfg.Auth.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		user := &models.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
			IsActive:     true,
		}
		if err := h.userRepo.CreateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user": userResponse(&models.UserWithProfile{User: *user}),
		})
	}
}

// LoginHandler verifies credentials and issues an access/refresh token pair,
// creating a session row that tracks the refresh token with the client's IP
// and user agent.
// POST /auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: username and password are required",
			})
			return
		}

		user, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		if user == nil || !user.IsActive ||
			bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			telemetry.AuthAttemptsTotal.WithLabelValues("password", "failure").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}

		access, refresh, refreshExpiresAt, err := auth.GenerateTokenPair(user.ID, user.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		session := &models.Session{
			UserID:       user.ID,
			RefreshToken: refresh,
			ExpiresAt:    refreshExpiresAt,
		}
		ip := c.ClientIP()
		if ip != "" {
			session.IPAddress = &ip
		}
		if ua := c.Request.UserAgent(); ua != "" {
			session.UserAgent = &ua
		}
		if err := h.sessionRepo.CreateSession(c.Request.Context(), session); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		telemetry.AuthAttemptsTotal.WithLabelValues("password", "success").Inc()
		c.JSON(http.StatusOK, gin.H{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "Bearer",
			"expires_in":    int(auth.AccessTokenTTL.Seconds()),
			"user":          userResponse(user),
		})
	}
}

// RefreshHandler rotates a valid refresh token into a fresh token pair. The
// presented token must verify, must not be blacklisted, and must belong to an
// active session. The old token is retired: its session is replaced and the
// token is blacklisted for the remainder of its lifetime.
// POST /auth/refresh
func (h *AuthHandlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
			return
		}

		claims, err := auth.ValidateRefreshToken(req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}

		if h.isBlacklisted(c, req.RefreshToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token has been revoked"})
			return
		}

		session, err := h.sessionRepo.GetActiveByRefreshToken(c.Request.Context(), req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
			return
		}
		if session == nil || session.ExpiresAt.Before(time.Now()) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session is no longer active"})
			return
		}

		access, refresh, refreshExpiresAt, err := auth.GenerateTokenPair(claims.UserID, claims.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
			return
		}

		newSession := &models.Session{
			UserID:       session.UserID,
			IPAddress:    session.IPAddress,
			UserAgent:    session.UserAgent,
			RefreshToken: refresh,
			ExpiresAt:    refreshExpiresAt,
		}
		if err := h.sessionRepo.CreateSession(c.Request.Context(), newSession); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
			return
		}

		// Retire the old token. Neither step can fail the response: the new
		// pair is already committed.
		if _, err := h.sessionRepo.DeactivateByRefreshToken(c.Request.Context(), session.UserID, req.RefreshToken); err != nil {
			slog.Error("failed to deactivate rotated session", "error", err)
		}
		h.blacklist(c, req.RefreshToken, claims)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "Bearer",
			"expires_in":    int(auth.AccessTokenTTL.Seconds()),
		})
	}
}

// LogoutHandler revokes a refresh token: its session is deactivated and the
// token is blacklisted until it would have expired anyway. A missing or
// invalid token is a 400 — there is nothing to log out of.
// POST /auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
			return
		}

		claims, err := auth.ValidateRefreshToken(req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refresh token"})
			return
		}

		if _, err := h.sessionRepo.DeactivateByRefreshToken(c.Request.Context(), claims.UserID, req.RefreshToken); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Logout failed"})
			return
		}
		h.blacklist(c, req.RefreshToken, claims)

		c.JSON(http.StatusOK, gin.H{"detail": "Logged out"})
	}
}

// isBlacklisted checks the revocation list. Redis being unreachable fails
// open: signature and session checks still stand between a revoked token and
// a new access token.
func (h *AuthHandlers) isBlacklisted(c *gin.Context, token string) bool {
	if h.cache == nil {
		return false
	}
	revoked, err := h.cache.IsRefreshTokenBlacklisted(c.Request.Context(), token)
	if err != nil {
		slog.Warn("refresh token blacklist unavailable, failing open", "error", err)
		return false
	}
	return revoked
}

// blacklist revokes a token for the remainder of its lifetime, best-effort.
func (h *AuthHandlers) blacklist(c *gin.Context, token string, claims *auth.Claims) {
	if h.cache == nil || claims.ExpiresAt == nil {
		return
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := h.cache.BlacklistRefreshToken(c.Request.Context(), token, ttl); err != nil {
		slog.Warn("failed to blacklist refresh token", "error", err)
	}
}
