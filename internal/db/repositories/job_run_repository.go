// job_run_repository.go implements JobRunRepository, recording background job
// executions and serving the recent-run listing behind the task dashboard.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/opsdeck/opsdeck/internal/db/models"
)

// JobRunRepository handles job run database operations
type JobRunRepository struct {
	db *sqlx.DB
}

// NewJobRunRepository creates a new JobRunRepository
func NewJobRunRepository(db *sqlx.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

// CreateJobRun inserts a completed job run record
func (r *JobRunRepository) CreateJobRun(ctx context.Context, run *models.JobRun) error {
	run.ID = uuid.New().String()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
		INSERT INTO job_runs (id, job_name, status, detail, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.JobName,
		run.Status,
		run.Detail,
		run.StartedAt,
		run.FinishedAt,
	)

	return err
}

// ListRecent retrieves the most recent job runs, newest first
func (r *JobRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.JobRun, error) {
	query := `
		SELECT id, job_name, status, detail, started_at, finished_at
		FROM job_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	runs := make([]*models.JobRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, err
	}
	return runs, nil
}
