package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"firmfeed/internal/models"
	"firmfeed/internal/storage"
)

type fixture struct {
	db      *storage.DB
	uploads *storage.UploadRepository
	jobs    *storage.JobRepository
	records *storage.RecordRepository
	sync    *Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop().Sugar()
	uploads := storage.NewUploadRepository(db, log)
	jobs := storage.NewJobRepository(db, log)
	records := storage.NewRecordRepository(db, log)
	return &fixture{
		db:      db,
		uploads: uploads,
		jobs:    jobs,
		records: records,
		sync:    NewSynchronizer(jobs, uploads, records, log),
	}
}

func (f *fixture) seed(t *testing.T, rows int) (*models.Upload, *models.Job, []*models.Record) {
	t.Helper()
	upload := &models.Upload{
		ID:          uuid.NewString(),
		Filename:    "list.csv",
		Submitter:   "alice",
		Columns:     []string{"name"},
		Status:      models.UploadStatusPending,
		RowCount:    rows,
		SubmittedAt: time.Now().UTC(),
	}
	job := &models.Job{
		ID:          uuid.NewString(),
		UploadID:    upload.ID,
		Status:      models.JobStatusQueued,
		MaxRetries:  3,
		ScheduledAt: upload.SubmittedAt,
	}
	records := make([]*models.Record, 0, rows)
	for i := 0; i < rows; i++ {
		records = append(records, &models.Record{
			ID:       uuid.NewString(),
			UploadID: upload.ID,
			RowIndex: i,
			Name:     "Company",
			Status:   models.RecordStatusPending,
		})
	}
	require.NoError(t, f.db.CreateSubmission(context.Background(), upload, []byte("name\nAcme\n"), job, records))
	return upload, job, records
}

func TestTransitionStartedAndProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	upload, job, _ := f.seed(t, 2)

	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusStarted, Detail{}))

	gotJob, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusStarted, gotJob.Status)
	assert.NotNil(t, gotJob.StartedAt)

	gotUpload, err := f.uploads.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusProcessing, gotUpload.Status)

	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusProcessing, Detail{}))

	recs, err := f.records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)
	for _, rec := range recs {
		assert.Equal(t, models.RecordStatusProcessing, rec.Status)
	}
}

func TestTransitionCompletedWithPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	upload, job, recs := f.seed(t, 3)

	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusStarted, Detail{}))
	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusProcessing, Detail{}))

	detail := Detail{Verdicts: []RowVerdict{
		{RecordID: recs[0].ID, OK: true, Fields: storage.EnrichmentFields{Industry: "Software"}},
		{RecordID: recs[1].ID, OK: false, Error: "profile page returned 404"},
		{RecordID: recs[2].ID, OK: true},
	}}
	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusCompleted, detail))

	gotJob, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, gotJob.Status)
	assert.Equal(t, 2, gotJob.SuccessCount)
	assert.Equal(t, 1, gotJob.FailureCount)
	assert.Equal(t, upload.RowCount, gotJob.SuccessCount+gotJob.FailureCount)

	// Row failures do not taint the upload: it completes, with counts visible.
	gotUpload, err := f.uploads.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusCompleted, gotUpload.Status)

	gotRecs, err := f.records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusCompleted, gotRecs[0].Status)
	assert.Equal(t, "Software", gotRecs[0].Industry)
	assert.Equal(t, models.RecordStatusFailed, gotRecs[1].Status)
	assert.Equal(t, "profile page returned 404", gotRecs[1].Error)
	assert.Equal(t, models.RecordStatusCompleted, gotRecs[2].Status)
}

func TestTransitionCompletedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	upload, job, recs := f.seed(t, 2)

	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusStarted, Detail{}))
	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusProcessing, Detail{}))

	detail := Detail{Verdicts: []RowVerdict{
		{RecordID: recs[0].ID, OK: true},
		{RecordID: recs[1].ID, OK: false, Error: "boom"},
	}}
	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusCompleted, detail))

	jobAfterFirst, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	uploadAfterFirst, err := f.uploads.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	recsAfterFirst, err := f.records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)

	// Applying the same terminal transition again must change nothing.
	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusCompleted, detail))

	jobAfterSecond, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	uploadAfterSecond, err := f.uploads.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	recsAfterSecond, err := f.records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)

	assert.Equal(t, jobAfterFirst, jobAfterSecond)
	assert.Equal(t, uploadAfterFirst, uploadAfterSecond)
	assert.Equal(t, recsAfterFirst, recsAfterSecond)
}

func TestTransitionTotalFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	upload, job, _ := f.seed(t, 3)

	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusStarted, Detail{}))
	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusError, Detail{
		Error: "enrichment service unreachable",
	}))

	gotJob, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, gotJob.Status)
	assert.Equal(t, 0, gotJob.SuccessCount)
	assert.Equal(t, 3, gotJob.FailureCount)

	gotUpload, err := f.uploads.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusFailed, gotUpload.Status)
	assert.Equal(t, "enrichment service unreachable", gotUpload.Error)

	// No record outlives the job's lifecycle.
	gotRecs, err := f.records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)
	for _, rec := range gotRecs {
		assert.Equal(t, models.RecordStatusFailed, rec.Status)
	}
}

func TestTransitionRejectsIllegalMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, job, recs := f.seed(t, 1)

	// queued cannot jump straight to processing or completed.
	require.Error(t, f.sync.Transition(ctx, job.ID, models.JobStatusProcessing, Detail{}))
	require.Error(t, f.sync.Transition(ctx, job.ID, models.JobStatusCompleted, Detail{}))

	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusStarted, Detail{}))
	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusProcessing, Detail{}))
	require.NoError(t, f.sync.Transition(ctx, job.ID, models.JobStatusCompleted, Detail{
		Verdicts: []RowVerdict{{RecordID: recs[0].ID, OK: true}},
	}))

	// Terminal states admit no re-entry into the live states.
	require.Error(t, f.sync.Transition(ctx, job.ID, models.JobStatusProcessing, Detail{}))
	require.Error(t, f.sync.Transition(ctx, job.ID, models.JobStatusError, Detail{}))
}

func TestTransitionUnknownJob(t *testing.T) {
	f := newFixture(t)
	err := f.sync.Transition(context.Background(), "missing", models.JobStatusStarted, Detail{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestTransitionStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, job, _ := f.seed(t, 1)

	require.NoError(t, f.db.Close())

	err := f.sync.Transition(ctx, job.ID, models.JobStatusStarted, Detail{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
