package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the scan-OCR worker
 *
 * DocumentFatal aborts a conversion and is the only pipeline error that
 * reaches callers. PageDegraded is recorded per page and absorbed.
 * Classification fallbacks are decisions, not errors, and never appear here.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline errors
	ErrorDocumentFatal     ErrorCode = "DOCUMENT_FATAL"
	ErrorPageDegraded      ErrorCode = "PAGE_DEGRADED"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorCancelled         ErrorCode = "CANCELLED"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
	ErrorIndexFailed   ErrorCode = "INDEX_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewDocumentFatalError(source string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDocumentFatal,
		Message:   fmt.Sprintf("Cannot open document: %s", source),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source": source,
		},
		Cause: cause,
	}
}

func NewPageDegradedError(page int, stage string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPageDegraded,
		Message:   fmt.Sprintf("Page %d degraded at stage %s", page, stage),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page":  page,
			"stage": stage,
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(source string, mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file format: %s", mimeType),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source":    source,
			"mime_type": mimeType,
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewCancelledError(pagesDone, totalPages int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorCancelled,
		Message:   fmt.Sprintf("Conversion cancelled after %d of %d pages", pagesDone, totalPages),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"pages_done":  pagesDone,
			"total_pages": totalPages,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store conversion results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewIndexFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorIndexFailed,
		Message:   "Failed to index page text",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// WithJob stamps the job id on an error that was created below the queue layer
func (e *ProcessingError) WithJob(jobID string) *ProcessingError {
	e.JobID = jobID
	return e
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// CodeOf returns the code of the first ProcessingError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsDocumentFatal reports whether err aborted a whole conversion
func IsDocumentFatal(err error) bool {
	switch CodeOf(err) {
	case ErrorDocumentFatal, ErrorUnsupportedFormat:
		return true
	}
	return false
}
