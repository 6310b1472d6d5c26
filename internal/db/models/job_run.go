package models

import "time"

// Job run status values.
const (
	JobRunSucceeded = "succeeded"
	JobRunFailed    = "failed"
)

// JobRun records one execution of a background job. The task dashboard reads
// the most recent rows.
type JobRun struct {
	ID         string     `db:"id" json:"id"`
	JobName    string     `db:"job_name" json:"job_name"`
	Status     string     `db:"status" json:"status"`
	Detail     *string    `db:"detail" json:"detail"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at"`
}
