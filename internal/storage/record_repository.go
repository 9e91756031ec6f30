package storage

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"firmfeed/internal/models"
)

// RecordRepository is the data access layer for result records.
type RecordRepository struct {
	db  *DB
	log *zap.SugaredLogger
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *DB, log *zap.SugaredLogger) *RecordRepository {
	return &RecordRepository{db: db, log: log}
}

const recordFields = `id, upload_id, row_index, name, profile_url, website, company_size, industry, revenue, status, error, processed_at`

func scanRecord(row rowScanner) (*models.Record, error) {
	var rec models.Record
	var processed sql.NullTime
	err := row.Scan(&rec.ID, &rec.UploadID, &rec.RowIndex, &rec.Name, &rec.ProfileURL,
		&rec.Website, &rec.CompanySize, &rec.Industry, &rec.Revenue,
		&rec.Status, &rec.Error, &processed)
	if err != nil {
		return nil, err
	}
	if processed.Valid {
		t := processed.Time
		rec.ProcessedAt = &t
	}
	return &rec, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecords(ctx context.Context, q execer, records []*models.Record) error {
	for _, rec := range records {
		_, err := q.ExecContext(ctx,
			`INSERT INTO records (id, upload_id, row_index, name, profile_url, website,
			                      company_size, industry, revenue, status, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.UploadID, rec.RowIndex, rec.Name, rec.ProfileURL, rec.Website,
			rec.CompanySize, rec.Industry, rec.Revenue, rec.Status, rec.Error)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListByUpload returns the upload's records in row order.
func (r *RecordRepository) ListByUpload(ctx context.Context, uploadID string) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordFields+` FROM records WHERE upload_id = ? ORDER BY row_index ASC`,
		uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// MarkAllProcessing moves the upload's non-terminal records to processing.
// Terminal records are left alone so re-applying the update is safe.
func (r *RecordRepository) MarkAllProcessing(ctx context.Context, uploadID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET status = ? WHERE upload_id = ? AND status IN (?, ?)`,
		models.RecordStatusProcessing, uploadID,
		models.RecordStatusPending, models.RecordStatusProcessing)
	return err
}

// ApplyVerdict sets a record's terminal status, error text and any enrichment
// field values. Empty field values leave the stored value untouched;
// processed_at keeps its first value. Re-applying the same verdict yields the
// same persisted state.
func (r *RecordRepository) ApplyVerdict(ctx context.Context, id, status, errMsg string, f EnrichmentFields, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET
		   status = ?,
		   error = ?,
		   website      = CASE WHEN ? = '' THEN website      ELSE ? END,
		   company_size = CASE WHEN ? = '' THEN company_size ELSE ? END,
		   industry     = CASE WHEN ? = '' THEN industry     ELSE ? END,
		   revenue      = CASE WHEN ? = '' THEN revenue      ELSE ? END,
		   processed_at = COALESCE(processed_at, ?)
		 WHERE id = ?`,
		status, errMsg,
		f.Website, f.Website,
		f.CompanySize, f.CompanySize,
		f.Industry, f.Industry,
		f.Revenue, f.Revenue,
		at, id)
	return err
}

// EnrichmentFields carries the field values an enrichment verdict may set.
type EnrichmentFields struct {
	Website     string
	CompanySize string
	Industry    string
	Revenue     string
}

// FailAllPending marks the upload's remaining non-terminal records failed and
// returns how many rows were affected.
func (r *RecordRepository) FailAllPending(ctx context.Context, uploadID, errMsg string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET status = ?, error = ?, processed_at = COALESCE(processed_at, ?)
		 WHERE upload_id = ? AND status IN (?, ?)`,
		models.RecordStatusFailed, errMsg, at, uploadID,
		models.RecordStatusPending, models.RecordStatusProcessing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus returns the record counts per status for an upload.
func (r *RecordRepository) CountByStatus(ctx context.Context, uploadID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM records WHERE upload_id = ? GROUP BY status`,
		uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
