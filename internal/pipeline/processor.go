// Package pipeline coordinates an upload's path from submission to its
// terminal state: normalize, persist, enrich, finalize.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firmfeed/internal/enrich"
	"firmfeed/internal/lifecycle"
	"firmfeed/internal/models"
	"firmfeed/internal/normalize"
	"firmfeed/internal/storage"
)

// Synchronizer applies a lifecycle transition across all three entities.
type Synchronizer interface {
	Transition(ctx context.Context, jobID, state string, d lifecycle.Detail) error
}

// Processor handles submission and execution of uploads.
type Processor struct {
	db       *storage.DB
	uploads  *storage.UploadRepository
	jobs     *storage.JobRepository
	records  *storage.RecordRepository
	sync     Synchronizer
	enricher enrich.Enricher
	log      *zap.SugaredLogger

	maxRetries int
	retryDelay time.Duration
}

// NewProcessor creates a Processor. maxRetries bounds transition retries
// after a store failure; retryDelay is the pause between attempts.
func NewProcessor(db *storage.DB, uploads *storage.UploadRepository, jobs *storage.JobRepository,
	records *storage.RecordRepository, sync Synchronizer, enricher enrich.Enricher,
	log *zap.SugaredLogger, maxRetries int, retryDelay time.Duration) *Processor {
	if maxRetries < 1 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Processor{
		db:         db,
		uploads:    uploads,
		jobs:       jobs,
		records:    records,
		sync:       sync,
		enricher:   enricher,
		log:        log,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

type jobConfig struct {
	MaxRetries int `json:"max_retries"`
}

// Submit normalizes the payload and persists the upload, its job and its
// records in one transaction. A payload the normalizer cannot interpret
// fails here, synchronously, with a FormatError.
func (p *Processor) Submit(ctx context.Context, payload any, filename, submitter string) (string, error) {
	table, err := normalize.Normalize(payload)
	if err != nil {
		return "", err
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	upload := &models.Upload{
		ID:          uuid.NewString(),
		Filename:    filename,
		Submitter:   submitter,
		Columns:     table.Columns,
		Status:      models.UploadStatusPending,
		RowCount:    len(table.Rows),
		SubmittedAt: now,
	}

	config, _ := json.Marshal(jobConfig{MaxRetries: p.maxRetries})
	job := &models.Job{
		ID:          uuid.NewString(),
		UploadID:    upload.ID,
		Status:      models.JobStatusQueued,
		MaxRetries:  p.maxRetries,
		Config:      config,
		ScheduledAt: now,
	}

	records := make([]*models.Record, 0, len(table.Rows))
	for i, row := range table.Rows {
		records = append(records, &models.Record{
			ID:          uuid.NewString(),
			UploadID:    upload.ID,
			RowIndex:    i,
			Name:        row[normalize.ColName],
			ProfileURL:  row[normalize.ColProfileURL],
			Website:     row[normalize.ColWebsite],
			CompanySize: row[normalize.ColCompanySize],
			Industry:    row[normalize.ColIndustry],
			Revenue:     row[normalize.ColRevenue],
			Status:      models.RecordStatusPending,
		})
	}

	if err := p.db.CreateSubmission(ctx, upload, raw, job, records); err != nil {
		return "", fmt.Errorf("failed to persist submission: %w", err)
	}

	p.log.Infow("upload submitted",
		"upload_id", upload.ID,
		"submitter", submitter,
		"filename", filename,
		"row_count", upload.RowCount,
	)
	return upload.ID, nil
}

// ProcessUpload runs one upload to a terminal state: started, processing,
// enrich, finalize. It is the dispatch target for the scheduler loop.
func (p *Processor) ProcessUpload(ctx context.Context, upload models.Upload) error {
	if models.UploadTerminal(upload.Status) {
		return nil
	}
	job, err := p.jobs.GetByUploadID(ctx, upload.ID)
	if err != nil {
		return fmt.Errorf("%w: load job: %v", lifecycle.ErrStoreUnavailable, err)
	}
	if job == nil {
		return fmt.Errorf("upload %s has no job", upload.ID)
	}
	if models.JobTerminal(job.Status) {
		return nil
	}

	if err := p.sync.Transition(ctx, job.ID, models.JobStatusStarted, lifecycle.Detail{}); err != nil {
		// The job is still queued; the next tick picks it up again.
		return err
	}
	if err := p.sync.Transition(ctx, job.ID, models.JobStatusProcessing, lifecycle.Detail{}); err != nil {
		return err
	}

	records, err := p.records.ListByUpload(ctx, upload.ID)
	if err != nil {
		// Storage failed before any row was touched: total failure.
		return p.finalize(ctx, job.ID, models.JobStatusError, lifecycle.Detail{
			Error: "failed to load records: " + err.Error(),
		})
	}

	results, err := p.enricher.Enrich(ctx, records)
	if err != nil {
		p.log.Warnw("enrichment failed for all rows", "upload_id", upload.ID, "err", err)
		return p.finalize(ctx, job.ID, models.JobStatusError, lifecycle.Detail{
			Error: err.Error(),
		})
	}

	verdicts := buildVerdicts(records, results)
	return p.finalize(ctx, job.ID, models.JobStatusCompleted, lifecycle.Detail{Verdicts: verdicts})
}

// finalize applies a terminal transition, retrying on store unavailability.
// Only the transition is retried; the enrichment results are already in hand
// and are never recomputed.
func (p *Processor) finalize(ctx context.Context, jobID, state string, d lifecycle.Detail) error {
	var err error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			p.log.Warnw("retrying transition", "job_id", jobID, "state", state, "attempt", attempt)
			_ = p.jobs.IncrementRetry(ctx, jobID)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
		err = p.sync.Transition(ctx, jobID, state, d)
		if err == nil {
			return nil
		}
		if !errors.Is(err, lifecycle.ErrStoreUnavailable) {
			return err
		}
	}
	return err
}

// buildVerdicts pairs every record with its result. A record the service
// returned no verdict for counts as failed; the completed job's success and
// failure counts always add up to the upload's row count.
func buildVerdicts(records []models.Record, results []enrich.RowResult) []lifecycle.RowVerdict {
	byID := make(map[string]enrich.RowResult, len(results))
	for _, r := range results {
		byID[r.RecordID] = r
	}

	verdicts := make([]lifecycle.RowVerdict, 0, len(records))
	for _, rec := range records {
		r, ok := byID[rec.ID]
		if !ok {
			verdicts = append(verdicts, lifecycle.RowVerdict{
				RecordID: rec.ID,
				OK:       false,
				Error:    "no verdict returned by enrichment service",
			})
			continue
		}
		verdicts = append(verdicts, lifecycle.RowVerdict{
			RecordID: rec.ID,
			OK:       r.OK,
			Error:    r.Error,
			Fields: storage.EnrichmentFields{
				Website:     r.Website,
				CompanySize: r.CompanySize,
				Industry:    r.Industry,
				Revenue:     r.Revenue,
			},
		})
	}
	return verdicts
}

// encodePayload keeps the submitted payload byte-for-byte when it already is
// bytes or text, and falls back to JSON for structured payloads.
func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		return b, nil
	}
}
