package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"firmfeed/internal/models"
)

// CreateSubmission persists an upload, its job and its records in a single
// transaction. The raw payload is stored alongside the canonical column list
// so the upload can be reprocessed losslessly.
func (db *DB) CreateSubmission(ctx context.Context, upload *models.Upload, payload []byte, job *models.Job, records []*models.Record) error {
	cols, err := json.Marshal(upload.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode column list: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO uploads (id, filename, submitter, payload, columns, status, error, row_count, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.ID, upload.Filename, upload.Submitter, payload, string(cols),
		upload.Status, upload.Error, upload.RowCount, upload.SubmittedAt)
	if err != nil {
		return err
	}

	var config any
	if len(job.Config) > 0 {
		config = string(job.Config)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, upload_id, status, retry_count, max_retries, config, scheduled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UploadID, job.Status, job.RetryCount, job.MaxRetries, config, job.ScheduledAt)
	if err != nil {
		return err
	}

	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}

	return tx.Commit()
}
