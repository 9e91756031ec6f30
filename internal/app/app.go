// Package app builds the process context: configuration, logger, store,
// repositories, synchronizer, enricher, admission controller and scheduler
// loop, wired once at startup and torn down at shutdown. Nothing in the
// pipeline reaches for global state.
package app

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"firmfeed/internal/admission"
	"firmfeed/internal/config"
	"firmfeed/internal/enrich"
	"firmfeed/internal/lifecycle"
	"firmfeed/internal/logging"
	"firmfeed/internal/pipeline"
	"firmfeed/internal/scheduler"
	"firmfeed/internal/storage"
	"firmfeed/internal/webfetch"
)

// App holds every long-lived component of the process.
type App struct {
	Config *config.Config
	Log    *zap.SugaredLogger
	DB     *storage.DB

	Uploads *storage.UploadRepository
	Jobs    *storage.JobRepository
	Records *storage.RecordRepository

	Sync       *lifecycle.Synchronizer
	Enricher   enrich.Enricher
	Processor  *pipeline.Processor
	Controller *admission.Controller
	Loop       *scheduler.Loop
}

// New wires the application from configuration.
func New(cfg *config.Config) (*App, error) {
	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	uploads := storage.NewUploadRepository(db, log)
	jobs := storage.NewJobRepository(db, log)
	records := storage.NewRecordRepository(db, log)

	sync := lifecycle.NewSynchronizer(jobs, uploads, records, log)

	enricher, err := buildEnricher(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	proc := pipeline.NewProcessor(db, uploads, jobs, records, sync, enricher, log,
		cfg.Scheduler.MaxRetries, cfg.Scheduler.RetryDelay)

	controller := admission.NewController(uploads, jobs, log)
	reconciler := scheduler.NewReconciler(jobs, sync, cfg.Scheduler.JobTimeout, log)
	loop := scheduler.New(controller, proc, reconciler,
		admission.Mode(cfg.Scheduler.AdmissionMode),
		cfg.Scheduler.TickInterval, cfg.Scheduler.PoolSize, log)

	return &App{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Uploads:    uploads,
		Jobs:       jobs,
		Records:    records,
		Sync:       sync,
		Enricher:   enricher,
		Processor:  proc,
		Controller: controller,
		Loop:       loop,
	}, nil
}

func buildEnricher(cfg *config.Config) (enrich.Enricher, error) {
	switch cfg.Enrich.Adapter {
	case "webfetch":
		return enrich.NewWebFetchEnricher(&webfetch.Options{
			Stealth:     cfg.Enrich.Stealth,
			Proxy:       cfg.Enrich.Proxy,
			BrowserPath: cfg.Enrich.BrowserPath,
		}, cfg.Enrich.Timeout)
	case "remote", "":
		return enrich.NewRemoteEnricher(cfg.Enrich.Endpoint, cfg.Enrich.Timeout)
	default:
		return nil, fmt.Errorf("unknown enricher %q", cfg.Enrich.Adapter)
	}
}

// Close stops the scheduler and releases resources.
func (a *App) Close() {
	a.Loop.Stop()
	if closer, ok := a.Enricher.(io.Closer); ok {
		_ = closer.Close()
	}
	_ = a.DB.Close()
	_ = a.Log.Sync()
}
