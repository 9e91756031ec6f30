// Package lifecycle propagates a job's state transitions across the job, its
// upload and its records, in that fixed order. Every field update is written
// so that re-applying the same transition leaves identical persisted state,
// which makes retrying after a partial store failure safe.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"firmfeed/internal/models"
	"firmfeed/internal/storage"
)

// ErrStoreUnavailable signals that the store was unreachable mid-transition.
// The caller must retry the transition itself, never the enrichment work that
// already happened.
var ErrStoreUnavailable = errors.New("store unavailable")

// RowVerdict is the per-record outcome of an enrichment run.
type RowVerdict struct {
	RecordID string
	OK       bool
	Error    string
	Fields   storage.EnrichmentFields
}

// Detail carries transition payload: an error message for terminal failures
// and per-row verdicts for terminal states. At defaults to the current time
// and is only ever written through COALESCE, so a retried transition keeps
// the original timestamps.
type Detail struct {
	Error    string
	Verdicts []RowVerdict
	At       time.Time
}

// uploadStatusFor is the fixed, non-configurable job-to-upload mapping.
var uploadStatusFor = map[string]string{
	models.JobStatusQueued:     models.UploadStatusPending,
	models.JobStatusStarted:    models.UploadStatusProcessing,
	models.JobStatusProcessing: models.UploadStatusProcessing,
	models.JobStatusCompleted:  models.UploadStatusCompleted,
	models.JobStatusError:      models.UploadStatusFailed,
}

// validNext holds the legal forward transitions. Re-applying the current
// state is always allowed so a partially applied transition can be retried.
var validNext = map[string][]string{
	models.JobStatusQueued:     {models.JobStatusStarted, models.JobStatusError},
	models.JobStatusStarted:    {models.JobStatusProcessing, models.JobStatusError},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusError},
	models.JobStatusCompleted:  {},
	models.JobStatusError:      {},
}

func transitionAllowed(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Synchronizer applies lifecycle transitions to all three entities.
type Synchronizer struct {
	jobs    *storage.JobRepository
	uploads *storage.UploadRepository
	records *storage.RecordRepository
	log     *zap.SugaredLogger
}

// NewSynchronizer creates a new Synchronizer.
func NewSynchronizer(jobs *storage.JobRepository, uploads *storage.UploadRepository, records *storage.RecordRepository, log *zap.SugaredLogger) *Synchronizer {
	return &Synchronizer{jobs: jobs, uploads: uploads, records: records, log: log}
}

// Transition moves the job to state and synchronizes the upload and records.
// Update order is fixed: job, then upload, then records. Store errors come
// back wrapped in ErrStoreUnavailable.
func (s *Synchronizer) Transition(ctx context.Context, jobID, state string, d Detail) error {
	if _, ok := uploadStatusFor[state]; !ok {
		return fmt.Errorf("unknown job state %q", state)
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return storeErr("load job", err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if !transitionAllowed(job.Status, state) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, state, jobID)
	}

	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	success, failure := tally(d.Verdicts)

	// On a total pre-row failure there are no verdicts; every row the job
	// never touched counts as failed.
	var upload *models.Upload
	if state == models.JobStatusError && len(d.Verdicts) == 0 {
		upload, err = s.uploads.GetByID(ctx, job.UploadID)
		if err != nil {
			return storeErr("load upload", err)
		}
		if upload != nil {
			failure = upload.RowCount
		}
	}

	// 1) Job
	switch state {
	case models.JobStatusStarted:
		err = s.jobs.MarkStarted(ctx, jobID, at)
	case models.JobStatusProcessing:
		err = s.jobs.MarkProcessing(ctx, jobID)
	case models.JobStatusCompleted, models.JobStatusError:
		err = s.jobs.Finalize(ctx, jobID, state, success, failure, at)
	case models.JobStatusQueued:
		// queued is the initial state; nothing to write
	}
	if err != nil {
		return storeErr("update job", err)
	}

	// 2) Upload
	switch uploadStatusFor[state] {
	case models.UploadStatusProcessing:
		err = s.uploads.MarkProcessing(ctx, job.UploadID, at)
	case models.UploadStatusCompleted:
		err = s.uploads.Finalize(ctx, job.UploadID, models.UploadStatusCompleted, d.Error, at)
	case models.UploadStatusFailed:
		err = s.uploads.Finalize(ctx, job.UploadID, models.UploadStatusFailed, d.Error, at)
	}
	if err != nil {
		return storeErr("update upload", err)
	}

	// 3) Records
	switch state {
	case models.JobStatusProcessing:
		if err := s.records.MarkAllProcessing(ctx, job.UploadID); err != nil {
			return storeErr("update records", err)
		}
	case models.JobStatusCompleted, models.JobStatusError:
		for _, v := range d.Verdicts {
			status := models.RecordStatusCompleted
			if !v.OK {
				status = models.RecordStatusFailed
			}
			if err := s.records.ApplyVerdict(ctx, v.RecordID, status, v.Error, v.Fields, at); err != nil {
				return storeErr("update records", err)
			}
		}
		// Rows without a verdict must not outlive the job.
		if _, err := s.records.FailAllPending(ctx, job.UploadID, d.Error, at); err != nil {
			return storeErr("update records", err)
		}
	}

	s.log.Infow("job transition applied",
		"job_id", jobID,
		"from", job.Status,
		"to", state,
		"success_count", success,
		"failure_count", failure,
	)
	return nil
}

func tally(verdicts []RowVerdict) (success, failure int) {
	for _, v := range verdicts {
		if v.OK {
			success++
		} else {
			failure++
		}
	}
	return success, failure
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
