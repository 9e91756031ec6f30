package storage

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"firmfeed/internal/models"
)

// JobRepository is the data access layer for jobs.
type JobRepository struct {
	db  *DB
	log *zap.SugaredLogger
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *DB, log *zap.SugaredLogger) *JobRepository {
	return &JobRepository{db: db, log: log}
}

const jobFields = `id, upload_id, status, retry_count, max_retries, success_count, failure_count, config, scheduled_at, started_at, completed_at`

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var config sql.NullString
	var started, completed sql.NullTime
	err := row.Scan(&j.ID, &j.UploadID, &j.Status, &j.RetryCount, &j.MaxRetries,
		&j.SuccessCount, &j.FailureCount, &config, &j.ScheduledAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	if config.Valid {
		j.Config = []byte(config.String)
	}
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// GetByID returns the job with the given id, or nil if it doesn't exist.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobFields+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// GetByUploadID returns the upload's job, or nil if it doesn't exist.
func (r *JobRepository) GetByUploadID(ctx context.Context, uploadID string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobFields+` FROM jobs WHERE upload_id = ?`, uploadID)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// CountActiveForSubmitter returns how many of the submitter's jobs are in
// started or processing state.
func (r *JobRepository) CountActiveForSubmitter(ctx context.Context, submitter string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM jobs j
		 JOIN uploads u ON u.id = j.upload_id
		 WHERE u.submitter = ? AND j.status IN (?, ?)`,
		submitter, models.JobStatusStarted, models.JobStatusProcessing).Scan(&n)
	return n, err
}

// MarkStarted moves the job to started. started_at keeps its first value so
// re-applying the update is safe.
func (r *JobRepository) MarkStarted(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ?`,
		models.JobStatusStarted, at, id)
	return err
}

// MarkProcessing moves the job to processing.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE id = ?`,
		models.JobStatusProcessing, id)
	return err
}

// Finalize sets a terminal status and the success/failure tallies.
// completed_at keeps its first value so re-applying the update is safe.
func (r *JobRepository) Finalize(ctx context.Context, id, status string, success, failure int, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, success_count = ?, failure_count = ?,
		        completed_at = COALESCE(completed_at, ?)
		 WHERE id = ?`,
		status, success, failure, at, id)
	return err
}

// IncrementRetry bumps the job's retry counter.
func (r *JobRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET retry_count = retry_count + 1 WHERE id = ?`, id)
	return err
}

// ListStale returns non-terminal jobs that started before the cutoff.
func (r *JobRepository) ListStale(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobFields+` FROM jobs
		 WHERE status IN (?, ?) AND started_at IS NOT NULL AND started_at < ?
		 ORDER BY started_at ASC`,
		models.JobStatusStarted, models.JobStatusProcessing, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}
