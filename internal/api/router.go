// Package api wires together all HTTP routes for the OpsDeck backend.
//
// Middleware ordering (see internal/middleware):
//
//	Security → RequestID → Metrics → Identity → Audit → Throttle → Permission → Handler
//
// Security headers run first so every response carries them. Identity resolves
// the caller once; the audit middleware then captures sensitive-path requests
// (prefixes /tasks/, /metrics/, /admin/) before the throttle and permission
// gates can reject them, so denied requests are audited too.
//
// Route grouping philosophy:
//   - /auth/ endpoints are public: they exist to establish identity.
//   - /webhooks/ endpoints are public but throttled; deliveries carry their
//     own provenance headers.
//   - /tasks/ and /metrics/ endpoints are scope-gated for API-key callers
//     (admin users also pass).
//   - /admin/ endpoints require a JWT user: read-only for any role, writes
//     for admins and staff. The audit-log listing alone is scope-gated so a
//     key holding audit:read can export the trail.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/jmoiron/sqlx"

	"github.com/opsdeck/opsdeck/internal/api/handlers"
	"github.com/opsdeck/opsdeck/internal/audit"
	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/cache"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/db/repositories"
	"github.com/opsdeck/opsdeck/internal/jobs"
	"github.com/opsdeck/opsdeck/internal/middleware"
)

// BackgroundServices holds references to background jobs that must be stopped
// during graceful shutdown. The caller (cmd/server) is responsible for calling
// Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sessionCleanup *jobs.SessionCleanupJob
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.sessionCleanup != nil {
		bg.sessionCleanup.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. cacheClient may be nil
// (tests); throttling and the refresh-token blacklist are then disabled.
func NewRouter(cfg *config.Config, db *sqlx.DB, cacheClient *cache.Client) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	jobRunRepo := repositories.NewJobRunRepository(db)

	recorder := audit.NewRecorder(auditRepo)

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.IdentityMiddleware(userRepo, apiKeyRepo))
	if cfg.Audit.Enabled {
		router.Use(middleware.AuditMiddleware(recorder, cfg.Audit.MaxBodyBytes))
	}

	// Per-category throttles. Without Redis the categories run unthrottled —
	// the same fail-open stance the middleware takes when Redis errors.
	throttle := func(category string) gin.HandlerFunc {
		if cacheClient == nil || !cfg.Throttle.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		limiter := redis_rate.NewLimiter(cacheClient.Redis())
		return middleware.ThrottleMiddleware(limiter, category, cfg.Throttle.Rates[category], recorder)
	}

	// Handlers
	authHandlers := handlers.NewAuthHandlers(cfg, userRepo, sessionRepo, cacheClient)
	apiKeyHandlers := handlers.NewAPIKeyHandlers(apiKeyRepo, recorder)
	taskHandlers := handlers.NewTaskHandlers(jobRunRepo)
	metricsHandlers := handlers.NewMetricsHandlers(sessionRepo, auditRepo)
	auditLogHandlers := handlers.NewAuditLogHandlers(auditRepo)
	sessionHandlers := handlers.NewSessionHandlers(sessionRepo)
	webhookHandlers := handlers.NewWebhookHandlers()

	// Liveness
	router.GET("/healthz", healthzHandler(db, cacheClient))

	// Authentication endpoints (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandlers.RegisterHandler())
		authGroup.POST("/login", authHandlers.LoginHandler())
		authGroup.POST("/refresh", authHandlers.RefreshHandler())
		authGroup.POST("/logout", authHandlers.LogoutHandler())
	}

	// Task dashboard (scope-gated, throttled)
	router.GET("/tasks/dashboard",
		throttle(middleware.ThrottleCategoryDashboard),
		middleware.RequireScope(auth.ScopeTasksRead),
		taskHandlers.DashboardHandler())

	// Operational summary (scope-gated)
	router.GET("/metrics/summary",
		middleware.RequireScope(auth.ScopeMetricsRead),
		metricsHandlers.SummaryHandler())

	// Inbound webhooks (public, throttled)
	router.POST("/webhooks/github",
		throttle(middleware.ThrottleCategoryWebhook),
		webhookHandlers.GitHubHandler())

	// Admin endpoints
	adminGroup := router.Group("/admin")
	{
		apiKeysGroup := adminGroup.Group("/apikeys")
		apiKeysGroup.Use(middleware.AdminOrReadOnly())
		{
			apiKeysGroup.GET("", apiKeyHandlers.ListAPIKeysHandler())
			apiKeysGroup.POST("", apiKeyHandlers.CreateAPIKeyHandler())
			apiKeysGroup.POST("/:id/regenerate", apiKeyHandlers.RegenerateAPIKeyHandler())
			apiKeysGroup.DELETE("/:id", apiKeyHandlers.DeactivateAPIKeyHandler())
		}

		adminGroup.GET("/sessions",
			middleware.AdminOrReadOnly(),
			sessionHandlers.ListSessionsHandler())

		// Scope-gated rather than role-gated so a service key holding
		// audit:read can export the trail; admin users pass the scope gate.
		adminGroup.GET("/audit-logs",
			middleware.RequireScope(auth.ScopeAuditRead),
			auditLogHandlers.ListAuditLogsHandler())
	}

	// Background jobs
	sessionCleanup := jobs.NewSessionCleanupJob(sessionRepo, jobRunRepo, cfg.Jobs.SessionCleanupInterval)
	sessionCleanup.Start(context.Background())

	return router, &BackgroundServices{sessionCleanup: sessionCleanup}
}

// healthzHandler reports liveness including database and Redis connectivity.
func healthzHandler(db *sqlx.DB, cacheClient *cache.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"checks": checks,
			})
			return
		}
		checks["database"] = "healthy"

		if cacheClient != nil {
			if err := cacheClient.Redis().Ping(c.Request.Context()).Err(); err != nil {
				// Redis is advisory (throttle + blacklist fail open), so a
				// broken cache degrades rather than fails the liveness probe.
				checks["redis"] = "unhealthy"
			} else {
				checks["redis"] = "healthy"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LoggerMiddleware emits one structured slog record per request. The output
// format (json or text) follows the global handler configured by
// telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
