package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/errors"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobStore struct {
	updates []JobUpdate
	stored  map[string]int
	failAll bool
}

func (f *fakeJobStore) UpdateJobStatus(_ context.Context, u *JobUpdate) error {
	if f.failAll {
		return fmt.Errorf("connection refused")
	}
	f.updates = append(f.updates, *u)
	return nil
}

func (f *fakeJobStore) StoreResult(_ context.Context, jobID string, _ *types.DocumentResult, characters int) error {
	if f.failAll {
		return fmt.Errorf("connection refused")
	}
	if f.stored == nil {
		f.stored = map[string]int{}
	}
	f.stored[jobID] = characters
	return nil
}

type fakeIndexer struct {
	jobs []string
	err  error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, jobID string, _ *types.DocumentResult) (int, error) {
	f.jobs = append(f.jobs, jobID)
	return 1, f.err
}

func sampleDoc() *types.DocumentResult {
	return &types.DocumentResult{
		Pages: []types.PageResult{
			{PageNumber: 1, RecognizedText: "héllo world", ConfigUsed: types.OCRConfig{Name: "technical_doc", LanguageModel: "chi_sim+eng", PageSegMode: 6, DPI: 300}},
			{PageNumber: 2, Degraded: true, FailedStage: "rendering"},
		},
		CleanedText: "=== Page 1 ===\n\nhéllo world\n\n=== Page 2 ===",
		Metadata:    types.Metadata{TotalPages: 2, ProcessingTime: 1500 * time.Millisecond},
	}
}

func TestSaveResultStoresAndCompletes(t *testing.T) {
	jobs := &fakeJobStore{}
	indexer := &fakeIndexer{}
	sm := NewStorageManager(jobs, indexer, nil)

	require.NoError(t, sm.SaveResult(context.Background(), "job-1", sampleDoc(), "/out/job-1.md", "md"))

	assert.Equal(t, 11, jobs.stored["job-1"])
	require.Len(t, jobs.updates, 1)
	assert.Equal(t, StatusCompleted, jobs.updates[0].Status)
	assert.Equal(t, int64(1500), jobs.updates[0].ProcessingTimeMs)
	assert.Equal(t, "/out/job-1.md", jobs.updates[0].OutputPath)
	assert.Equal(t, []string{"job-1"}, indexer.jobs)
}

func TestIndexFailureDoesNotFailJob(t *testing.T) {
	sm := NewStorageManager(&fakeJobStore{}, &fakeIndexer{err: fmt.Errorf("qdrant down")}, nil)
	assert.NoError(t, sm.SaveResult(context.Background(), "job-2", sampleDoc(), "", "txt"))
}

func TestStorageFailuresAreCoded(t *testing.T) {
	sm := NewStorageManager(&fakeJobStore{failAll: true}, nil, nil)
	ctx := context.Background()

	err := sm.SaveResult(ctx, "job-3", sampleDoc(), "", "md")
	assert.Equal(t, errors.ErrorStorageFailed, errors.CodeOf(err))

	err = sm.MarkProcessing(ctx, "job-3", "a.pdf", 10, types.DefaultOptions())
	assert.Equal(t, errors.ErrorStorageFailed, errors.CodeOf(err))
}

func TestMarkFailedRecordsCode(t *testing.T) {
	jobs := &fakeJobStore{}
	sm := NewStorageManager(jobs, nil, nil)
	ctx := context.Background()

	require.NoError(t, sm.MarkFailed(ctx, "job-4", errors.NewDocumentFatalError("x.pdf", fmt.Errorf("bad xref"))))
	require.NoError(t, sm.MarkFailed(ctx, "job-5", fmt.Errorf("plain")))

	assert.Equal(t, "DOCUMENT_FATAL", jobs.updates[0].ErrorCode)
	assert.Equal(t, StatusFailed, jobs.updates[0].Status)
	assert.Equal(t, "UNKNOWN", jobs.updates[1].ErrorCode)
}

func TestDisabledPersistenceIsNoop(t *testing.T) {
	sm := NewStorageManager(nil, nil, nil)
	ctx := context.Background()

	assert.False(t, sm.Enabled())
	assert.NoError(t, sm.MarkProcessing(ctx, "j", "a.pdf", 1, types.DefaultOptions()))
	assert.NoError(t, sm.SaveResult(ctx, "j", sampleDoc(), "", "md"))
	assert.NoError(t, sm.MarkFailed(ctx, "j", fmt.Errorf("x")))
}

func TestPageRows(t *testing.T) {
	rows := pageRows(sampleDoc())
	require.Len(t, rows, 2)
	assert.Equal(t, "héllo world", rows[0].Text)
	assert.Equal(t, "chi_sim+eng", rows[0].LanguageModel)
	assert.Equal(t, 6, rows[0].PageSegMode)
	assert.True(t, rows[1].Degraded)
	assert.Equal(t, "rendering", rows[1].FailedStage)
	assert.Equal(t, []int64{2}, toInt64s(sampleDoc().DegradedPages()))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "ab c\nd\te", sanitizeText("a\x00b\x07c\nd\te"))
}

func TestPostgresRoundTrip(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pg, err := NewPostgresClient(ctx, url)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer pg.Close()
	require.NoError(t, pg.EnsureSchema(ctx))

	jobID := uuid.NewString()
	opts := types.DefaultOptions()
	require.NoError(t, pg.UpdateJobStatus(ctx, &JobUpdate{JobID: jobID, Filename: "scan.pdf", FileSize: 42, Status: StatusProcessing, Options: &opts}))
	require.NoError(t, pg.StoreResult(ctx, jobID, sampleDoc(), 11))
	require.NoError(t, pg.UpdateJobStatus(ctx, &JobUpdate{JobID: jobID, Status: StatusCompleted, OutputPath: "/out/x.md"}))

	job, err := pg.GetJobByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "scan.pdf", job.Filename)
	assert.Equal(t, int64(42), job.FileSize)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, []int{2}, job.DegradedPages)
	assert.Equal(t, 11, job.Characters)

	pages, err := pg.GetPageResults(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "héllo world", pages[0].RecognizedText)
	assert.True(t, pages[1].Degraded)
}
