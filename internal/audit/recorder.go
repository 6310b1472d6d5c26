// recorder.go implements the best-effort audit writer. Every audit persistence
// path in the application goes through Recorder: failures are logged and
// discarded, never returned, so audit logging can never fail a request or
// change its outcome.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/opsdeck/opsdeck/internal/db/models"
	"github.com/opsdeck/opsdeck/internal/db/repositories"
	"github.com/opsdeck/opsdeck/internal/telemetry"
)

// Recorder wraps AuditRepository with swallow-and-log semantics.
type Recorder struct {
	repo    *repositories.AuditRepository
	timeout time.Duration
}

// NewRecorder creates a Recorder. A nil repository yields a no-op recorder,
// which keeps middleware wiring simple in tests.
func NewRecorder(repo *repositories.AuditRepository) *Recorder {
	return &Recorder{repo: repo, timeout: 5 * time.Second}
}

// Record writes an audit entry, discarding any failure.
func (r *Recorder) Record(ctx context.Context, entry *models.AuditLog) {
	if r == nil || r.repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.repo.CreateAuditLog(ctx, entry); err != nil {
		telemetry.AuditWriteFailuresTotal.Inc()
		slog.Error("audit: failed to create audit log", "endpoint", entry.Endpoint, "error", err)
	}
}

// SetResult patches the pending entry for a correlation ID with the response
// status, discarding any failure.
func (r *Recorder) SetResult(ctx context.Context, correlationID, status string, userID *string) {
	if r == nil || r.repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.repo.SetResult(ctx, correlationID, status, userID); err != nil {
		telemetry.AuditWriteFailuresTotal.Inc()
		slog.Error("audit: failed to update audit log", "correlation_id", correlationID, "error", err)
	}
}
