// Package scheduler runs the timer-driven dispatch loop. Each tick asks the
// admission controller for the eligible batch and hands every candidate to
// the worker pool; the tick itself never waits for dispatched work.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"firmfeed/internal/admission"
	"firmfeed/internal/models"
)

// Runner executes one upload to a terminal state.
type Runner interface {
	ProcessUpload(ctx context.Context, upload models.Upload) error
}

// Stats is a snapshot of the loop's last activity, for observability.
type Stats struct {
	LastTick       time.Time `json:"last_tick"`
	LastDispatched int       `json:"last_dispatched"`
	SkippedTicks   int64     `json:"skipped_ticks"`
	LastError      string    `json:"last_error,omitempty"`
}

// Loop polls for eligible uploads and dispatches them. The busy flag
// serializes ticks within this process only; it is not a distributed lock.
// Multi-process deployments rely on the admission controller's per-submitter
// exclusivity check.
type Loop struct {
	controller *admission.Controller
	runner     Runner
	reconciler *Reconciler
	mode       admission.Mode
	interval   time.Duration
	log        *zap.SugaredLogger

	sem     *semaphore.Weighted
	busy    atomic.Bool
	skipped atomic.Int64

	baseCtx  context.Context
	stop     chan struct{}
	stopOnce sync.Once
	loopWG   sync.WaitGroup
	workWG   sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New creates a Loop. poolSize bounds how many uploads run concurrently; the
// reconciler may be nil.
func New(controller *admission.Controller, runner Runner, reconciler *Reconciler,
	mode admission.Mode, interval time.Duration, poolSize int64, log *zap.SugaredLogger) *Loop {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if poolSize < 1 {
		poolSize = 4
	}
	return &Loop{
		controller: controller,
		runner:     runner,
		reconciler: reconciler,
		mode:       mode,
		interval:   interval,
		log:        log,
		sem:        semaphore.NewWeighted(poolSize),
		stop:       make(chan struct{}),
	}
}

// Start begins ticking. Dispatched work inherits ctx, so callers normally
// pass a context that outlives individual requests.
func (l *Loop) Start(ctx context.Context) {
	l.baseCtx = ctx
	l.loopWG.Add(1)
	go l.run(ctx)
	l.log.Infow("scheduler started", "interval", l.interval, "mode", string(l.mode))
}

// Stop prevents future ticks. In-flight dispatches are not cancelled; they
// run to their own completion or error.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	l.loopWG.Wait()
	l.log.Infow("scheduler stopped")
}

// Drain waits for all dispatched work to finish. Intended for one-shot
// runners and tests, not for server shutdown.
func (l *Loop) Drain() {
	l.workWG.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.loopWG.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. If a previous tick is still dispatching,
// this one is skipped entirely. A tick with zero eligible candidates is a
// successful no-op.
func (l *Loop) Tick(ctx context.Context) {
	if !l.busy.CompareAndSwap(false, true) {
		l.skipped.Add(1)
		l.log.Debugw("previous tick still dispatching, skipping")
		return
	}
	defer l.busy.Store(false)

	if l.reconciler != nil {
		if err := l.reconciler.Run(ctx); err != nil {
			l.log.Warnw("stale job reconciliation failed", "err", err)
		}
	}

	batch, err := l.controller.NextEligibleBatch(ctx, l.mode)
	if err != nil {
		l.record(0, err)
		l.log.Errorw("failed to select eligible uploads", "err", err)
		return
	}

	for _, upload := range batch {
		l.dispatch(upload)
	}
	l.record(len(batch), nil)

	if len(batch) > 0 {
		l.log.Infow("tick dispatched uploads", "count", len(batch))
	}
}

func (l *Loop) dispatch(upload models.Upload) {
	ctx := l.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	l.workWG.Add(1)
	go func() {
		defer l.workWG.Done()
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer l.sem.Release(1)

		if err := l.runner.ProcessUpload(ctx, upload); err != nil {
			l.log.Errorw("upload processing failed",
				"upload_id", upload.ID,
				"submitter", upload.Submitter,
				"err", err,
			)
		}
	}()
}

func (l *Loop) record(dispatched int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.LastTick = time.Now().UTC()
	l.stats.LastDispatched = dispatched
	l.stats.SkippedTicks = l.skipped.Load()
	if err != nil {
		l.stats.LastError = err.Error()
	} else {
		l.stats.LastError = ""
	}
}

// Stats returns a snapshot of the loop's last activity.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.SkippedTicks = l.skipped.Load()
	return s
}
