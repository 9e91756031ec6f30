package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"firmfeed/internal/models"
)

// UploadRepository is the data access layer for uploads.
type UploadRepository struct {
	db  *DB
	log *zap.SugaredLogger
}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository(db *DB, log *zap.SugaredLogger) *UploadRepository {
	return &UploadRepository{db: db, log: log}
}

const uploadFields = `id, filename, submitter, columns, status, error, row_count, submitted_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*models.Upload, error) {
	var u models.Upload
	var cols string
	var started, completed sql.NullTime
	err := row.Scan(&u.ID, &u.Filename, &u.Submitter, &cols, &u.Status, &u.Error,
		&u.RowCount, &u.SubmittedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	if cols != "" {
		if err := json.Unmarshal([]byte(cols), &u.Columns); err != nil {
			return nil, err
		}
	}
	if started.Valid {
		t := started.Time
		u.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		u.CompletedAt = &t
	}
	return &u, nil
}

// GetByID returns the upload with the given id, or nil if it doesn't exist.
func (r *UploadRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+uploadFields+` FROM uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetPayload returns the raw payload and canonical column list stored for an
// upload, for lossless reprocessing.
func (r *UploadRepository) GetPayload(ctx context.Context, id string) ([]byte, []string, error) {
	var payload []byte
	var cols string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload, columns FROM uploads WHERE id = ?`, id).Scan(&payload, &cols)
	if err != nil {
		return nil, nil, err
	}
	var columns []string
	if cols != "" {
		if err := json.Unmarshal([]byte(cols), &columns); err != nil {
			return nil, nil, err
		}
	}
	return payload, columns, nil
}

// ListPending returns pending uploads in submission order. An empty submitter
// returns pending uploads for all submitters.
func (r *UploadRepository) ListPending(ctx context.Context, submitter string) ([]models.Upload, error) {
	query := `SELECT ` + uploadFields + ` FROM uploads WHERE status = ?`
	args := []any{models.UploadStatusPending}
	if submitter != "" {
		query += ` AND submitter = ?`
		args = append(args, submitter)
	}
	query += ` ORDER BY submitted_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *u)
	}
	return uploads, rows.Err()
}

// PendingSubmitters returns the distinct submitters holding at least one
// pending upload, ordered by each submitter's earliest pending submission.
func (r *UploadRepository) PendingSubmitters(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT submitter
		 FROM uploads
		 WHERE status = ?
		 GROUP BY submitter
		 ORDER BY MIN(submitted_at) ASC, MIN(id) ASC`,
		models.UploadStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submitters []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		submitters = append(submitters, s)
	}
	return submitters, rows.Err()
}

// OldestPendingForSubmitter returns the submitter's single oldest pending
// upload, or nil if they have none. Ties are broken by ascending id.
func (r *UploadRepository) OldestPendingForSubmitter(ctx context.Context, submitter string) (*models.Upload, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+uploadFields+` FROM uploads
		 WHERE submitter = ? AND status = ?
		 ORDER BY submitted_at ASC, id ASC
		 LIMIT 1`,
		submitter, models.UploadStatusPending)
	u, err := scanUpload(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// MarkProcessing moves the upload to processing. started_at keeps its first
// value so re-applying the update is safe.
func (r *UploadRepository) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE uploads SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ?`,
		models.UploadStatusProcessing, at, id)
	return err
}

// Finalize sets a terminal status and error text. completed_at keeps its
// first value so re-applying the update is safe.
func (r *UploadRepository) Finalize(ctx context.Context, id, status, errMsg string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE uploads SET status = ?, error = ?, completed_at = COALESCE(completed_at, ?) WHERE id = ?`,
		status, errMsg, at, id)
	return err
}
