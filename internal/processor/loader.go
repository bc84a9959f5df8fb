package processor

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"path"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

// LoadRequest describes where a job's PDF comes from. The first non-empty
// field of FileBuffer, FilePath and FileURL wins.
type LoadRequest struct {
	JobID      string
	Filename   string
	FileBuffer []byte
	FilePath   string
	FileURL    string
}

// Loader resolves a LoadRequest into a Source
type Loader struct {
	client      *http.Client
	maxFileSize int64
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	logger      *logging.Logger
}

// NewLoader creates a loader. maxFileSize of 0 disables the size limit
// beyond a 10GB safety cap.
func NewLoader(maxFileSize int64, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Loader{
		client:      &http.Client{Timeout: 10 * time.Minute},
		maxFileSize: maxFileSize,
		maxRetries:  5,
		backoff:     time.Second,
		maxBackoff:  32 * time.Second,
		logger:      logger,
	}
}

// Load loads file from buffer, path or URL
func (l *Loader) Load(ctx context.Context, req *LoadRequest) (types.Source, error) {
	if len(req.FileBuffer) > 0 {
		if l.maxFileSize > 0 && int64(len(req.FileBuffer)) > l.maxFileSize {
			return types.Source{}, fmt.Errorf("file size exceeds maximum: %d > %d bytes", len(req.FileBuffer), l.maxFileSize)
		}
		l.logger.Debug("Using file buffer", "job_id", req.JobID, "bytes", len(req.FileBuffer))
		return types.Source{Data: req.FileBuffer, Name: req.Filename}, nil
	}

	if req.FilePath != "" {
		return types.Source{Path: req.FilePath, Name: req.Filename}, nil
	}

	if req.FileURL != "" {
		data, err := l.download(ctx, req.JobID, req.FileURL)
		if err != nil {
			return types.Source{}, fmt.Errorf("failed to download file: %w", err)
		}
		name := req.Filename
		if name == "" {
			name = path.Base(req.FileURL)
		}
		return types.Source{Data: data, Name: name}, nil
	}

	return types.Source{}, fmt.Errorf("no file source provided (buffer, path or URL)")
}

// download fetches a URL with exponential backoff between attempts
func (l *Loader) download(ctx context.Context, jobID, fileURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		data, err := l.fetch(ctx, fileURL)
		if err == nil {
			l.logger.Info("Download successful", "job_id", jobID, "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		if _, tooLarge := err.(*sizeError); tooLarge {
			return nil, err
		}
		lastErr = err
		l.logger.Warn("Download attempt failed", "job_id", jobID, "attempt", attempt, "error", err)

		if attempt < l.maxRetries {
			wait := time.Duration(float64(l.backoff) * math.Pow(2, float64(attempt-1)))
			if wait > l.maxBackoff {
				wait = l.maxBackoff
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}
	}
	return nil, fmt.Errorf("failed to download file after %d attempts: %w", l.maxRetries, lastErr)
}

type sizeError struct {
	size, limit int64
}

func (e *sizeError) Error() string {
	return fmt.Sprintf("file size exceeds maximum: %d > %d bytes", e.size, e.limit)
}

func (l *Loader) fetch(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if l.maxFileSize > 0 && resp.ContentLength > l.maxFileSize {
		return nil, &sizeError{size: resp.ContentLength, limit: l.maxFileSize}
	}

	limit := l.maxFileSize
	if limit == 0 {
		limit = 10 * 1024 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &sizeError{size: int64(len(data)), limit: limit}
	}
	return data, nil
}
