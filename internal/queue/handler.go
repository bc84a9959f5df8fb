package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/errors"
	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/processor"
	"github.com/adverant/nexus/scanocr-worker/internal/progress"
	"github.com/adverant/nexus/scanocr-worker/internal/storage"
	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/hibiken/asynq"
)

const defaultProcessingTimeout = 30 * time.Minute

// HandlerConfig holds job handler configuration
type HandlerConfig struct {
	Converter         processor.Converter
	Loader            *processor.Loader
	Tracker           progress.Tracker
	Storage           *storage.StorageManager
	OutputDir         string
	OutputFormat      textproc.OutputFormat
	DefaultQuality    types.Quality
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// JobHandler runs one conversion job end to end: load, convert, write the
// output file, persist and report progress
type JobHandler struct {
	converter      processor.Converter
	loader         *processor.Loader
	tracker        progress.Tracker
	storage        *storage.StorageManager
	outputDir      string
	outputFormat   textproc.OutputFormat
	defaultQuality types.Quality
	timeout        time.Duration
	logger         *logging.Logger
}

// NewJobHandler creates a job handler
func NewJobHandler(cfg *HandlerConfig) (*JobHandler, error) {
	if cfg.Converter == nil {
		return nil, fmt.Errorf("Converter is required")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("OutputDir is required")
	}

	h := &JobHandler{
		converter:      cfg.Converter,
		loader:         cfg.Loader,
		tracker:        cfg.Tracker,
		storage:        cfg.Storage,
		outputDir:      cfg.OutputDir,
		outputFormat:   cfg.OutputFormat,
		defaultQuality: cfg.DefaultQuality,
		timeout:        cfg.ProcessingTimeout,
		logger:         cfg.Logger,
	}
	if h.loader == nil {
		h.loader = processor.NewLoader(0, cfg.Logger)
	}
	if h.tracker == nil {
		h.tracker = progress.NewMemoryTracker()
	}
	if h.storage == nil {
		h.storage = storage.NewStorageManager(nil, nil, cfg.Logger)
	}
	if h.outputFormat == "" {
		h.outputFormat = textproc.FormatMarkdown
	}
	if h.defaultQuality == "" {
		h.defaultQuality = types.QualityBalanced
	}
	if h.timeout <= 0 {
		h.timeout = defaultProcessingTimeout
	}
	if h.logger == nil {
		h.logger = logging.Nop()
	}
	return h, nil
}

// ProcessTask implements asynq.Handler. Malformed payloads and documents
// that can never convert are not retried.
func (h *JobHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var job JobData
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	_, err := h.Handle(ctx, &job)
	if err != nil && errors.IsDocumentFatal(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Handle converts one job and returns the path of the written output
func (h *JobHandler) Handle(ctx context.Context, job *JobData) (string, error) {
	startTime := time.Now()
	logger := h.logger.With("job_id", job.JobID)

	opts := h.options(job)
	format := h.outputFormat
	if job.OutputFormat != "" {
		f, err := textproc.ParseFormat(job.OutputFormat)
		if err != nil {
			return "", errors.NewDocumentFatalError(job.Filename, err).WithJob(job.JobID)
		}
		format = f
	}

	if err := h.tracker.Start(ctx, job.JobID); err != nil {
		logger.Warn("Failed to start progress tracking", "error", err)
	}

	src, err := h.loader.Load(ctx, &processor.LoadRequest{
		JobID:      job.JobID,
		Filename:   job.Filename,
		FileBuffer: job.FileBuffer,
		FilePath:   job.FilePath,
		FileURL:    job.FileURL,
	})
	if err != nil {
		return "", h.fail(ctx, job.JobID, fmt.Errorf("failed to load file: %w", err))
	}

	if err := h.storage.MarkProcessing(ctx, job.JobID, src.DisplayName(), int64(len(src.Data)), opts); err != nil {
		logger.Warn("Could not record processing status", "error", err)
	}

	logger.Info("Processing scan", "file", src.DisplayName(), "quality", opts.OCRQuality, "format", format, "timeout", h.timeout.String())

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	observer := processor.ObserverFunc(func(page, total int, stage processor.Stage) {
		if err := h.tracker.Update(ctx, job.JobID, processor.Percent(page, total, stage), string(stage), page, total); err != nil {
			logger.Debug("Progress update failed", "error", err)
		}
	})

	result, err := h.converter.ConvertDocument(processCtx, src, opts, observer)
	if err != nil {
		if stderrors.Is(processCtx.Err(), context.DeadlineExceeded) && errors.CodeOf(err) != errors.ErrorProcessingTimeout {
			err = errors.NewProcessingTimeoutError(job.JobID, h.timeout, err)
		}
		var pe *errors.ProcessingError
		if stderrors.As(err, &pe) && pe.JobID == "" {
			pe.JobID = job.JobID
		}
		logger.Warn("Conversion failed", "duration", time.Since(startTime).String(), "error", err)
		return "", h.fail(ctx, job.JobID, err)
	}

	outputPath, err := h.writeOutput(job.JobID, src, result, format)
	if err != nil {
		return "", h.fail(ctx, job.JobID, err)
	}

	if err := h.storage.SaveResult(ctx, job.JobID, result, outputPath, string(format)); err != nil {
		return "", h.fail(ctx, job.JobID, err)
	}

	if err := h.tracker.Complete(ctx, job.JobID); err != nil {
		logger.Warn("Failed to mark progress complete", "error", err)
	}

	logger.Info("Job completed",
		"output", outputPath,
		"pages", result.Metadata.TotalPages,
		"degraded_pages", len(result.Metadata.ConfigSummary.DegradedPages),
		"duration", time.Since(startTime).String())
	return outputPath, nil
}

func (h *JobHandler) options(job *JobData) types.Options {
	if job.Options != nil {
		opts := *job.Options
		if opts.OCRQuality == "" {
			opts.OCRQuality = h.defaultQuality
		}
		return opts
	}
	opts := types.DefaultOptions()
	opts.OCRQuality = h.defaultQuality
	return opts
}

// OutputPath is where a job's converted document is written
func OutputPath(dir, jobID string, src types.Source, format textproc.OutputFormat) string {
	return filepath.Join(dir, jobID+"_"+src.Stem()+format.Extension())
}

func (h *JobHandler) writeOutput(jobID string, src types.Source, result *types.DocumentResult, format textproc.OutputFormat) (string, error) {
	data, err := textproc.Render(result, format, textproc.DefaultMarkdownOptions())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(h.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := OutputPath(h.outputDir, jobID, src, format)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	return path, nil
}

// fail records the failure in the tracker and the job store and returns err
func (h *JobHandler) fail(ctx context.Context, jobID string, err error) error {
	if terr := h.tracker.Fail(ctx, jobID, err.Error()); terr != nil {
		h.logger.Warn("Failed to mark progress failed", "job_id", jobID, "error", terr)
	}
	if serr := h.storage.MarkFailed(ctx, jobID, err); serr != nil {
		h.logger.Warn("Failed to record job failure", "job_id", jobID, "error", serr)
	}
	return err
}
