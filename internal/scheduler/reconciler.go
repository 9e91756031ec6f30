package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"firmfeed/internal/lifecycle"
	"firmfeed/internal/models"
	"firmfeed/internal/storage"
)

// Synchronizer applies a lifecycle transition across all three entities.
type Synchronizer interface {
	Transition(ctx context.Context, jobID, state string, d lifecycle.Detail) error
}

// Reconciler relabels jobs that exceeded the time ceiling. The enrichment
// call cannot be safely preempted, so a stuck job is marked as an error
// rather than interrupted.
type Reconciler struct {
	jobs    *storage.JobRepository
	sync    Synchronizer
	ceiling time.Duration
	log     *zap.SugaredLogger
}

// NewReconciler creates a Reconciler with the given time ceiling.
func NewReconciler(jobs *storage.JobRepository, sync Synchronizer, ceiling time.Duration, log *zap.SugaredLogger) *Reconciler {
	if ceiling <= 0 {
		ceiling = 30 * time.Minute
	}
	return &Reconciler{jobs: jobs, sync: sync, ceiling: ceiling, log: log}
}

// Run marks every job that started before now minus the ceiling as an error.
func (r *Reconciler) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.ceiling)
	stale, err := r.jobs.ListStale(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, job := range stale {
		detail := lifecycle.Detail{
			Error: fmt.Sprintf("timeout: job exceeded the %s processing ceiling", r.ceiling),
		}
		if err := r.sync.Transition(ctx, job.ID, models.JobStatusError, detail); err != nil {
			r.log.Warnw("failed to time out stale job", "job_id", job.ID, "err", err)
			continue
		}
		r.log.Warnw("stale job timed out", "job_id", job.ID, "upload_id", job.UploadID, "ceiling", r.ceiling)
	}
	return nil
}
