// Package telemetry provides application-level observability for OpsDeck.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<ODK_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped by a Prometheus server every 15–60 seconds.
// It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authentication outcome counters
//   - Audit pipeline write-failure counter
//   - Throttle violation counters
//   - Session cleanup job counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /admin/apikeys/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authentication metrics.
//
// AuthAttemptsTotal is a CounterVec with labels {method, outcome}. "method" is
// one of jwt, api_key, or password; "outcome" is success or failure. A rising
// failure rate on api_key is the primary signal of key scanning.
//
// Example PromQL queries:
//   - Failed logins per minute:  rate(auth_attempts_total{method="password",outcome="failure"}[1m]) * 60
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Total number of authentication attempts, by method and outcome.",
	},
	[]string{"method", "outcome"},
)

// Audit pipeline metrics.
//
// AuditWriteFailuresTotal counts audit rows that could not be persisted. Audit
// writes are best-effort and never fail the request they describe, so this
// counter is the only place a broken audit pipeline becomes visible.
//
// Example PromQL queries:
//   - Alert expression:  increase(audit_write_failures_total[10m]) > 0
var AuditWriteFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Total number of audit log entries that failed to persist.",
	},
)

// ThrottleViolationsTotal is a CounterVec with labels {category, auth_type}
// incremented once per 429 response. "category" is the throttled request class
// (dashboard, webhook); "auth_type" is api_key, user, or anon.
//
// Example PromQL queries:
//   - Violations by category:  sum by (category) (rate(throttle_violations_total[5m]))
var ThrottleViolationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "throttle_violations_total",
		Help: "Total number of rate-limited (429) requests, by category and caller auth type.",
	},
	[]string{"category", "auth_type"},
)

// Session cleanup job metrics.
//
// SessionsDeactivatedTotal counts sessions flipped to inactive by the
// background sweeper. SessionCleanupRunsTotal is labelled {status} with
// succeeded or failed, one increment per sweep.
//
// Example PromQL queries:
//   - Sweep failure alert:  increase(session_cleanup_runs_total{status="failed"}[1h]) > 2
var (
	SessionsDeactivatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_deactivated_total",
			Help: "Total number of expired sessions deactivated by the cleanup job.",
		},
	)

	SessionCleanupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cleanup_runs_total",
			Help: "Total number of session cleanup sweeps, by final status.",
		},
		[]string{"status"},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <ODK_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
