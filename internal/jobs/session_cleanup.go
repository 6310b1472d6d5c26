// Package jobs contains OpsDeck's background jobs. Each job is a ticker loop
// with Start(ctx)/Stop() lifecycle methods; outcomes are persisted as JobRun
// rows so the task dashboard can show recent executions.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/opsdeck/opsdeck/internal/db/models"
	"github.com/opsdeck/opsdeck/internal/db/repositories"
	"github.com/opsdeck/opsdeck/internal/safego"
	"github.com/opsdeck/opsdeck/internal/telemetry"
)

// SessionCleanupJobName identifies the sweep in job_runs rows.
const SessionCleanupJobName = "session_cleanup"

// SessionCleanupJob periodically deactivates login sessions whose expiry has
// passed. The sweep is one bulk UPDATE and is idempotent: re-running it (or
// running two overlapping sweeps) cannot deactivate a session twice, so no
// distributed lock is needed.
type SessionCleanupJob struct {
	sessionRepo *repositories.SessionRepository
	jobRunRepo  *repositories.JobRunRepository
	interval    time.Duration
	backoffBase time.Duration
	maxAttempts int
	stopChan    chan struct{}
}

// NewSessionCleanupJob creates a new SessionCleanupJob.
// interval controls how often the sweep runs (default 15 minutes).
func NewSessionCleanupJob(
	sessionRepo *repositories.SessionRepository,
	jobRunRepo *repositories.JobRunRepository,
	interval time.Duration,
) *SessionCleanupJob {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SessionCleanupJob{
		sessionRepo: sessionRepo,
		jobRunRepo:  jobRunRepo,
		interval:    interval,
		backoffBase: time.Second,
		maxAttempts: 5,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the background sweep loop. An initial sweep runs immediately,
// then the loop repeats on the configured interval until ctx is cancelled or
// Stop() is called.
func (j *SessionCleanupJob) Start(ctx context.Context) {
	safego.Go(func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		slog.Info("session cleanup job started", "interval", j.interval)

		j.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				j.runSweep(ctx)
			case <-j.stopChan:
				slog.Info("session cleanup job stopped")
				return
			case <-ctx.Done():
				slog.Info("session cleanup job context cancelled")
				return
			}
		}
	})
}

// Stop signals the background loop to exit.
func (j *SessionCleanupJob) Stop() {
	close(j.stopChan)
}

// runSweep performs one sweep, retrying transient failures with exponential
// backoff plus jitter. The outcome is recorded as a JobRun row either way.
func (j *SessionCleanupJob) runSweep(ctx context.Context) {
	started := time.Now()

	var lastErr error
	for attempt := 0; attempt < j.maxAttempts; attempt++ {
		if attempt > 0 {
			if !j.sleepBackoff(ctx, attempt) {
				return
			}
		}

		count, err := j.sessionRepo.DeactivateExpired(ctx, time.Now())
		if err != nil {
			lastErr = err
			slog.Warn("session cleanup sweep failed",
				"attempt", attempt+1, "max_attempts", j.maxAttempts, "error", err)
			continue
		}

		if count > 0 {
			slog.Info("session cleanup sweep completed", "deactivated", count)
		}
		telemetry.SessionsDeactivatedTotal.Add(float64(count))
		telemetry.SessionCleanupRunsTotal.WithLabelValues(models.JobRunSucceeded).Inc()

		detail := fmt.Sprintf("deactivated %d expired session(s)", count)
		j.recordRun(ctx, models.JobRunSucceeded, detail, started)
		return
	}

	telemetry.SessionCleanupRunsTotal.WithLabelValues(models.JobRunFailed).Inc()
	detail := fmt.Sprintf("all %d attempts failed: %v", j.maxAttempts, lastErr)
	slog.Error("session cleanup sweep exhausted retries", "error", lastErr)
	j.recordRun(ctx, models.JobRunFailed, detail, started)
}

// sleepBackoff waits base * 2^(attempt-1) plus up to 50% jitter. Returns false
// when the wait was interrupted by shutdown.
func (j *SessionCleanupJob) sleepBackoff(ctx context.Context, attempt int) bool {
	backoff := j.backoffBase << (attempt - 1)
	backoff += time.Duration(rand.Int63n(int64(backoff/2) + 1))

	select {
	case <-time.After(backoff):
		return true
	case <-j.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// recordRun persists the sweep outcome. Failures are logged and discarded; a
// broken job_runs table must not take the sweeper down with it.
func (j *SessionCleanupJob) recordRun(ctx context.Context, status, detail string, started time.Time) {
	finished := time.Now()
	run := &models.JobRun{
		JobName:    SessionCleanupJobName,
		Status:     status,
		Detail:     &detail,
		StartedAt:  started,
		FinishedAt: &finished,
	}
	if err := j.jobRunRepo.CreateJobRun(ctx, run); err != nil {
		slog.Error("failed to record session cleanup run", "error", err)
	}
}
