package storage

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
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newSubmission(submitter string, rows int, submittedAt time.Time) (*models.Upload, *models.Job, []*models.Record) {
	upload := &models.Upload{
		ID:          uuid.NewString(),
		Filename:    "companies.csv",
		Submitter:   submitter,
		Columns:     []string{"name", "profile_url", "website", "company_size", "industry", "revenue"},
		Status:      models.UploadStatusPending,
		RowCount:    rows,
		SubmittedAt: submittedAt,
	}
	job := &models.Job{
		ID:          uuid.NewString(),
		UploadID:    upload.ID,
		Status:      models.JobStatusQueued,
		MaxRetries:  3,
		ScheduledAt: submittedAt,
	}
	records := make([]*models.Record, 0, rows)
	for i := 0; i < rows; i++ {
		records = append(records, &models.Record{
			ID:       uuid.NewString(),
			UploadID: upload.ID,
			RowIndex: i,
			Name:     "Company",
			Website:  "https://example.com",
			Status:   models.RecordStatusPending,
		})
	}
	return upload, job, records
}

func TestCreateSubmissionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	uploads := NewUploadRepository(db, zap.NewNop().Sugar())
	jobs := NewJobRepository(db, zap.NewNop().Sugar())
	records := NewRecordRepository(db, zap.NewNop().Sugar())

	upload, job, recs := newSubmission("alice", 3, time.Now().UTC())
	require.NoError(t, db.CreateSubmission(ctx, upload, []byte("raw,payload\n1,2\n"), job, recs))

	got, err := uploads.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Submitter)
	assert.Equal(t, models.UploadStatusPending, got.Status)
	assert.Equal(t, 3, got.RowCount)
	assert.Equal(t, upload.Columns, got.Columns)
	assert.Nil(t, got.StartedAt)

	gotJob, err := jobs.GetByUploadID(ctx, upload.ID)
	require.NoError(t, err)
	require.NotNil(t, gotJob)
	assert.Equal(t, models.JobStatusQueued, gotJob.Status)
	assert.Equal(t, 3, gotJob.MaxRetries)

	gotRecs, err := records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)
	require.Len(t, gotRecs, 3)
	assert.Equal(t, 0, gotRecs[0].RowIndex)
	assert.Equal(t, models.RecordStatusPending, gotRecs[0].Status)

	payload, cols, err := uploads.GetPayload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw,payload\n1,2\n"), payload)
	assert.Equal(t, upload.Columns, cols)
}

func TestGetByIDMissing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	uploads := NewUploadRepository(db, zap.NewNop().Sugar())
	jobs := NewJobRepository(db, zap.NewNop().Sugar())

	u, err := uploads.GetByID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, u)

	j, err := jobs.GetByID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestTimestampsSurviveReapplication(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	uploads := NewUploadRepository(db, zap.NewNop().Sugar())
	jobs := NewJobRepository(db, zap.NewNop().Sugar())

	upload, job, recs := newSubmission("alice", 1, time.Now().UTC())
	require.NoError(t, db.CreateSubmission(ctx, upload, []byte("x,y\n1,2\n"), job, recs))

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	require.NoError(t, jobs.MarkStarted(ctx, job.ID, first))
	require.NoError(t, jobs.MarkStarted(ctx, job.ID, later))
	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(first))

	require.NoError(t, uploads.MarkProcessing(ctx, upload.ID, first))
	require.NoError(t, uploads.MarkProcessing(ctx, upload.ID, later))
	gotUpload, err := uploads.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	require.NotNil(t, gotUpload.StartedAt)
	assert.True(t, gotUpload.StartedAt.Equal(first))

	require.NoError(t, jobs.Finalize(ctx, job.ID, models.JobStatusCompleted, 1, 0, first))
	require.NoError(t, jobs.Finalize(ctx, job.ID, models.JobStatusCompleted, 1, 0, later))
	got, err = jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(first))
}

func TestApplyVerdictFieldSemantics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	records := NewRecordRepository(db, zap.NewNop().Sugar())

	upload, job, recs := newSubmission("alice", 1, time.Now().UTC())
	require.NoError(t, db.CreateSubmission(ctx, upload, []byte("x,y\n1,2\n"), job, recs))

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	fields := EnrichmentFields{Industry: "Software", CompanySize: "500"}
	require.NoError(t, records.ApplyVerdict(ctx, recs[0].ID, models.RecordStatusCompleted, "", fields, at))

	got, err := records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.RecordStatusCompleted, got[0].Status)
	assert.Equal(t, "Software", got[0].Industry)
	assert.Equal(t, "500", got[0].CompanySize)
	// An empty field value never clobbers what ingestion stored.
	assert.Equal(t, "https://example.com", got[0].Website)

	// Re-applying the same verdict leaves identical state.
	require.NoError(t, records.ApplyVerdict(ctx, recs[0].ID, models.RecordStatusCompleted, "", fields, at.Add(time.Hour)))
	again, err := records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestMarkAllProcessingSkipsTerminalRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	records := NewRecordRepository(db, zap.NewNop().Sugar())

	upload, job, recs := newSubmission("alice", 2, time.Now().UTC())
	require.NoError(t, db.CreateSubmission(ctx, upload, []byte("x,y\n1,2\n"), job, recs))

	at := time.Now().UTC()
	require.NoError(t, records.ApplyVerdict(ctx, recs[0].ID, models.RecordStatusCompleted, "", EnrichmentFields{}, at))
	require.NoError(t, records.MarkAllProcessing(ctx, upload.ID))

	got, err := records.ListByUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusCompleted, got[0].Status)
	assert.Equal(t, models.RecordStatusProcessing, got[1].Status)
}

func TestPendingSubmittersOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	uploads := NewUploadRepository(db, zap.NewNop().Sugar())

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, submitter := range []string{"carol", "alice", "bob"} {
		upload, job, recs := newSubmission(submitter, 1, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, db.CreateSubmission(ctx, upload, []byte("x,y\n1,2\n"), job, recs))
	}
	// A second, later upload must not move alice ahead of carol.
	upload, job, recs := newSubmission("alice", 1, base.Add(time.Hour))
	require.NoError(t, db.CreateSubmission(ctx, upload, []byte("x,y\n1,2\n"), job, recs))

	submitters, err := uploads.PendingSubmitters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "alice", "bob"}, submitters)
}

func TestListStale(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	jobs := NewJobRepository(db, zap.NewNop().Sugar())

	upload, job, recs := newSubmission("alice", 1, time.Now().UTC())
	require.NoError(t, db.CreateSubmission(ctx, upload, []byte("x,y\n1,2\n"), job, recs))

	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, jobs.MarkStarted(ctx, job.ID, old))

	stale, err := jobs.ListStale(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, job.ID, stale[0].ID)

	// Completed jobs are never stale.
	require.NoError(t, jobs.Finalize(ctx, job.ID, models.JobStatusCompleted, 1, 0, time.Now().UTC()))
	stale, err = jobs.ListStale(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}
