/**
 * PostgreSQL Client for the Scan-OCR Worker
 *
 * Persists conversion jobs and their per-page recognition results.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/lib/pq"
)

// Schema creates the tables used by the worker
const Schema = `
CREATE SCHEMA IF NOT EXISTS scanocr;

CREATE TABLE IF NOT EXISTS scanocr.conversion_jobs (
	id                 UUID PRIMARY KEY,
	filename           TEXT NOT NULL DEFAULT 'document.pdf',
	file_size          BIGINT NOT NULL DEFAULT 0,
	status             TEXT NOT NULL,
	total_pages        INTEGER NOT NULL DEFAULT 0,
	degraded_pages     INTEGER[] NOT NULL DEFAULT '{}',
	characters         INTEGER NOT NULL DEFAULT 0,
	processing_time_ms BIGINT,
	output_path        TEXT,
	output_format      TEXT,
	error_code         TEXT,
	error_message      TEXT,
	options            JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS scanocr.page_results (
	job_id          UUID NOT NULL REFERENCES scanocr.conversion_jobs(id) ON DELETE CASCADE,
	page_number     INTEGER NOT NULL,
	recognized_text TEXT NOT NULL DEFAULT '',
	config_name     TEXT NOT NULL,
	language_model  TEXT NOT NULL,
	page_seg_mode   INTEGER NOT NULL,
	dpi             INTEGER NOT NULL,
	degraded        BOOLEAN NOT NULL DEFAULT FALSE,
	failed_stage    TEXT,
	PRIMARY KEY (job_id, page_number)
);
`

// Job statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update. Zero values leave the stored
// column unchanged.
type JobUpdate struct {
	JobID            string
	Filename         string
	FileSize         int64
	Status           string
	ProcessingTimeMs int64
	OutputPath       string
	OutputFormat     string
	ErrorCode        string
	ErrorMessage     string
	Options          *types.Options
}

// Job is a stored conversion job
type Job struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	FileSize         int64     `json:"fileSize"`
	Status           string    `json:"status"`
	TotalPages       int       `json:"totalPages"`
	DegradedPages    []int     `json:"degradedPages,omitempty"`
	Characters       int       `json:"characters"`
	ProcessingTimeMs int64     `json:"processingTimeMs,omitempty"`
	OutputPath       string    `json:"outputPath,omitempty"`
	OutputFormat     string    `json:"outputFormat,omitempty"`
	ErrorCode        string    `json:"errorCode,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(ctx context.Context, databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the scanocr schema and tables when missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job row
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	var optionsJSON []byte
	if update.Options != nil {
		var err error
		if optionsJSON, err = json.Marshal(update.Options); err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
	}

	// Creates the row when the API has not inserted it yet
	query := `
		INSERT INTO scanocr.conversion_jobs (
			id, filename, file_size, status, processing_time_ms,
			output_path, output_format, error_code, error_message, options,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'document.pdf'), $3, $4, NULLIF($5, 0),
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			COALESCE($10::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			filename = COALESCE(NULLIF($2, ''), scanocr.conversion_jobs.filename),
			file_size = COALESCE(NULLIF(EXCLUDED.file_size, 0), scanocr.conversion_jobs.file_size),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, scanocr.conversion_jobs.processing_time_ms),
			output_path = COALESCE(EXCLUDED.output_path, scanocr.conversion_jobs.output_path),
			output_format = COALESCE(EXCLUDED.output_format, scanocr.conversion_jobs.output_format),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			options = CASE WHEN $10::jsonb IS NULL THEN scanocr.conversion_jobs.options ELSE EXCLUDED.options END,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err := p.db.QueryRowContext(ctx, query,
		update.JobID,            // $1
		update.Filename,         // $2
		update.FileSize,         // $3
		update.Status,           // $4
		update.ProcessingTimeMs, // $5
		update.OutputPath,       // $6
		update.OutputFormat,     // $7
		update.ErrorCode,        // $8
		update.ErrorMessage,     // $9
		nullJSON(optionsJSON),   // $10
	).Scan(&returnedID)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w", update.JobID, update.Status, err)
	}
	return nil
}

// StoreResult writes the document summary and replaces the job's page rows
// in one transaction
func (p *PostgresClient) StoreResult(ctx context.Context, jobID string, doc *types.DocumentResult, characters int) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if doc == nil {
		return fmt.Errorf("document result is required")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE scanocr.conversion_jobs SET
			total_pages = $2,
			degraded_pages = $3,
			characters = $4,
			processing_time_ms = $5,
			updated_at = NOW()
		WHERE id = $1::uuid
	`, jobID, doc.Metadata.TotalPages, pq.Array(toInt64s(doc.DegradedPages())), characters, doc.Metadata.ProcessingTime.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to update job summary: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scanocr.page_results WHERE job_id = $1::uuid`, jobID); err != nil {
		return fmt.Errorf("failed to clear page results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scanocr.page_results (
			job_id, page_number, recognized_text, config_name, language_model,
			page_seg_mode, dpi, degraded, failed_stage
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range pageRows(doc) {
		if _, err := stmt.ExecContext(ctx, jobID, row.PageNumber, row.Text, row.ConfigName, row.LanguageModel,
			row.PageSegMode, row.DPI, row.Degraded, row.FailedStage); err != nil {
			return fmt.Errorf("failed to insert page %d: %w", row.PageNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, filename, file_size, status, total_pages, degraded_pages, characters,
			processing_time_ms, output_path, output_format, error_code, error_message,
			created_at, updated_at
		FROM scanocr.conversion_jobs
		WHERE id = $1::uuid
	`

	var job Job
	var degraded pq.Int64Array
	var processingTimeMs sql.NullInt64
	var outputPath, outputFormat, code, message sql.NullString
	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Filename, &job.FileSize, &job.Status, &job.TotalPages, &degraded, &job.Characters,
		&processingTimeMs, &outputPath, &outputFormat, &code, &message,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	for _, n := range degraded {
		job.DegradedPages = append(job.DegradedPages, int(n))
	}
	job.ProcessingTimeMs = processingTimeMs.Int64
	job.OutputPath = outputPath.String
	job.OutputFormat = outputFormat.String
	job.ErrorCode = code.String
	job.ErrorMessage = message.String
	return &job, nil
}

// GetPageResults returns the stored pages of a job in page order
func (p *PostgresClient) GetPageResults(ctx context.Context, jobID string) ([]types.PageResult, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT page_number, recognized_text, config_name, language_model, page_seg_mode, dpi,
			degraded, COALESCE(failed_stage, '')
		FROM scanocr.page_results
		WHERE job_id = $1::uuid
		ORDER BY page_number
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query page results: %w", err)
	}
	defer rows.Close()

	var pages []types.PageResult
	for rows.Next() {
		var pr types.PageResult
		if err := rows.Scan(&pr.PageNumber, &pr.RecognizedText, &pr.ConfigUsed.Name, &pr.ConfigUsed.LanguageModel,
			&pr.ConfigUsed.PageSegMode, &pr.ConfigUsed.DPI, &pr.Degraded, &pr.FailedStage); err != nil {
			return nil, fmt.Errorf("failed to scan page result: %w", err)
		}
		pages = append(pages, pr)
	}
	return pages, rows.Err()
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

type pageRow struct {
	PageNumber    int
	Text          string
	ConfigName    string
	LanguageModel string
	PageSegMode   int
	DPI           int
	Degraded      bool
	FailedStage   string
}

func pageRows(doc *types.DocumentResult) []pageRow {
	rows := make([]pageRow, 0, len(doc.Pages))
	for _, pr := range doc.Pages {
		rows = append(rows, pageRow{
			PageNumber:    pr.PageNumber,
			Text:          sanitizeText(pr.RecognizedText),
			ConfigName:    pr.ConfigUsed.Name,
			LanguageModel: pr.ConfigUsed.LanguageModel,
			PageSegMode:   pr.ConfigUsed.PageSegMode,
			DPI:           pr.ConfigUsed.DPI,
			Degraded:      pr.Degraded,
			FailedStage:   pr.FailedStage,
		})
	}
	return rows
}

func toInt64s(ns []int) []int64 {
	out := make([]int64, len(ns))
	for i, n := range ns {
		out[i] = int64(n)
	}
	return out
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
