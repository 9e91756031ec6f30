// Package admission decides which pending uploads may run now. It is the
// single source of eligibility: every entry point (scheduler tick or manual
// runner) must go through NextEligibleBatch rather than re-deriving its own
// queue.
package admission

import (
	"context"

	"go.uber.org/zap"

	"firmfeed/internal/models"
	"firmfeed/internal/storage"
)

// Mode selects the admission policy.
type Mode string

const (
	// ModePerSubmitter admits at most one upload per submitter and skips
	// submitters that already have an active job.
	ModePerSubmitter Mode = "per_submitter"
	// ModeUnrestricted admits all pending uploads in global submission order.
	ModeUnrestricted Mode = "unrestricted"
)

// Controller selects eligible uploads from the store. All eligibility state
// lives in the store, so a restarted process picks up exactly where the
// previous one left off.
type Controller struct {
	uploads *storage.UploadRepository
	jobs    *storage.JobRepository
	log     *zap.SugaredLogger
}

// NewController creates a new Controller.
func NewController(uploads *storage.UploadRepository, jobs *storage.JobRepository, log *zap.SugaredLogger) *Controller {
	return &Controller{uploads: uploads, jobs: jobs, log: log}
}

// NextEligibleBatch returns the uploads that may be dispatched now.
//
// In per-submitter mode the batch holds at most one upload per submitter:
// submitters are visited in order of their earliest pending submission,
// submitters with a job in started or processing are skipped, and only each
// remaining submitter's oldest pending upload is selected. FIFO order holds
// within a submitter, not globally.
func (c *Controller) NextEligibleBatch(ctx context.Context, mode Mode) ([]models.Upload, error) {
	if mode == ModeUnrestricted {
		return c.uploads.ListPending(ctx, "")
	}

	submitters, err := c.uploads.PendingSubmitters(ctx)
	if err != nil {
		return nil, err
	}

	var batch []models.Upload
	for _, submitter := range submitters {
		active, err := c.jobs.CountActiveForSubmitter(ctx, submitter)
		if err != nil {
			return nil, err
		}
		if active > 0 {
			c.log.Debugw("submitter has an active job, skipping", "submitter", submitter, "active", active)
			continue
		}
		upload, err := c.uploads.OldestPendingForSubmitter(ctx, submitter)
		if err != nil {
			return nil, err
		}
		if upload != nil {
			batch = append(batch, *upload)
		}
	}
	return batch, nil
}
