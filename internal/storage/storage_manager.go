/**
 * Storage Manager for the Scan-OCR Worker
 *
 * Coordinates job bookkeeping in PostgreSQL and the optional page index in
 * Qdrant. Either side may be disabled; a disabled side is a no-op.
 */

package storage

import (
	"context"
	"regexp"
	"strings"

	"github.com/adverant/nexus/scanocr-worker/internal/errors"
	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

// JobStore persists jobs and their page results
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *JobUpdate) error
	StoreResult(ctx context.Context, jobID string, doc *types.DocumentResult, characters int) error
}

// DocumentIndexer makes recognized pages searchable
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, jobID string, doc *types.DocumentResult) (int, error)
}

// StorageManager coordinates PostgreSQL and the page index
type StorageManager struct {
	jobs    JobStore
	indexer DocumentIndexer
	logger  *logging.Logger
}

// NewStorageManager creates a storage manager. jobs and indexer may be nil.
func NewStorageManager(jobs JobStore, indexer DocumentIndexer, logger *logging.Logger) *StorageManager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StorageManager{jobs: jobs, indexer: indexer, logger: logger}
}

// Enabled reports whether job persistence is configured
func (sm *StorageManager) Enabled() bool {
	return sm.jobs != nil
}

// MarkProcessing records that a worker picked the job up
func (sm *StorageManager) MarkProcessing(ctx context.Context, jobID, filename string, size int64, opts types.Options) error {
	if sm.jobs == nil {
		return nil
	}
	err := sm.jobs.UpdateJobStatus(ctx, &JobUpdate{
		JobID:    jobID,
		Filename: filename,
		FileSize: size,
		Status:   StatusProcessing,
		Options:  &opts,
	})
	if err != nil {
		return errors.NewStorageFailedError(jobID, err)
	}
	return nil
}

// SaveResult stores the pages, marks the job completed and indexes the
// text. Index failures are logged and do not fail the job.
func (sm *StorageManager) SaveResult(ctx context.Context, jobID string, doc *types.DocumentResult, outputPath, format string) error {
	if sm.jobs != nil {
		if err := sm.jobs.StoreResult(ctx, jobID, doc, textproc.DocumentCharCount(doc)); err != nil {
			return errors.NewStorageFailedError(jobID, err)
		}
		err := sm.jobs.UpdateJobStatus(ctx, &JobUpdate{
			JobID:            jobID,
			Status:           StatusCompleted,
			ProcessingTimeMs: doc.Metadata.ProcessingTime.Milliseconds(),
			OutputPath:       outputPath,
			OutputFormat:     format,
		})
		if err != nil {
			return errors.NewStorageFailedError(jobID, err)
		}
	}

	if sm.indexer != nil {
		n, err := sm.indexer.IndexDocument(ctx, jobID, doc)
		if err != nil {
			sm.logger.Warn("Page indexing failed", "job_id", jobID, "error", err)
		} else {
			sm.logger.Debug("Pages indexed", "job_id", jobID, "points", n)
		}
	}
	return nil
}

// MarkFailed records a failed job with its error code
func (sm *StorageManager) MarkFailed(ctx context.Context, jobID string, cause error) error {
	if sm.jobs == nil {
		return nil
	}
	code := string(errors.CodeOf(cause))
	if code == "" {
		code = "UNKNOWN"
	}
	err := sm.jobs.UpdateJobStatus(ctx, &JobUpdate{
		JobID:        jobID,
		Status:       StatusFailed,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		return errors.NewStorageFailedError(jobID, err)
	}
	return nil
}

var controlChars = regexp.MustCompile("[\x01-\x08\x0b\x0c\x0e-\x1f]")

// sanitizeText removes NUL bytes, which PostgreSQL TEXT rejects, and
// replaces other control characters with a space
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return controlChars.ReplaceAllString(s, " ")
}
