package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adverant/nexus/scanocr-worker/internal/errors"
	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/google/uuid"
)

// pointNamespace scopes page point ids so re-indexing a job overwrites its points
var pointNamespace = uuid.MustParse("6f1c8f0e-6b52-4d0c-9a55-2a3d0c1f7b11")

// PageIndexer embeds the recognized pages of a document and stores them
type PageIndexer struct {
	embedder Embedder
	store    VectorStore
	logger   *logging.Logger
}

// NewPageIndexer creates a page indexer
func NewPageIndexer(embedder Embedder, store VectorStore, logger *logging.Logger) *PageIndexer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PageIndexer{embedder: embedder, store: store, logger: logger}
}

// PointID is the stable point id of one page of one job
func PointID(jobID string, page int) string {
	return uuid.NewSHA1(pointNamespace, []byte(jobID+"/"+strconv.Itoa(page))).String()
}

// IndexDocument stores one point per page with text. Empty and degraded
// pages are skipped. Returns the number of points written.
func (ix *PageIndexer) IndexDocument(ctx context.Context, jobID string, doc *types.DocumentResult) (int, error) {
	if doc == nil {
		return 0, fmt.Errorf("document is required")
	}

	sections := pageTexts(doc)
	if len(sections) == 0 {
		ix.logger.Info("No page text to index", "job_id", jobID)
		return 0, nil
	}

	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.Text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, errors.NewIndexFailedError(jobID, err)
	}
	if len(vectors) != len(sections) {
		return 0, errors.NewIndexFailedError(jobID, fmt.Errorf("got %d vectors for %d pages", len(vectors), len(sections)))
	}

	configs := make(map[int]types.OCRConfig, len(doc.Pages))
	for _, p := range doc.Pages {
		configs[p.PageNumber] = p.ConfigUsed
	}

	points := make([]Point, len(sections))
	for i, s := range sections {
		cfg := configs[s.Number]
		points[i] = Point{
			ID:     PointID(jobID, s.Number),
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"job_id":         jobID,
				"source_file":    doc.Metadata.SourceFile,
				"page":           s.Number,
				"config":         cfg.Name,
				"language_model": cfg.LanguageModel,
				"dpi":            cfg.DPI,
				"text":           s.Text,
			},
		}
	}

	if err := ix.store.DeleteJob(ctx, jobID); err != nil {
		ix.logger.Warn("Failed to clear previous points", "job_id", jobID, "error", err)
	}
	if err := ix.store.Upsert(ctx, points); err != nil {
		return 0, errors.NewIndexFailedError(jobID, err)
	}

	ix.logger.Info("Document indexed", "job_id", jobID, "points", len(points))
	return len(points), nil
}

// pageTexts pairs non-empty cleaned page text with its page number. Single
// page documents map to page 1.
func pageTexts(doc *types.DocumentResult) []textproc.PageSection {
	var out []textproc.PageSection
	for _, s := range textproc.Sections(doc) {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		if s.Number == 0 {
			s.Number = 1
		}
		out = append(out, s)
	}
	return out
}
