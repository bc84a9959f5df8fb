/**
 * Scan Processor
 *
 * Converts image-only PDFs page by page:
 * - render the page at the quality preset's scale factor
 * - enhance contrast, sharpness and noise
 * - take a cheap OCR sample and classify language and document type
 * - pick the recognition config and run the full OCR pass
 * - assemble and clean the document text
 *
 * Pages run strictly in order. A failing page degrades to empty text;
 * only an unreadable source aborts the conversion.
 */

package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/doctype"
	"github.com/adverant/nexus/scanocr-worker/internal/enhance"
	"github.com/adverant/nexus/scanocr-worker/internal/errors"
	"github.com/adverant/nexus/scanocr-worker/internal/langdetect"
	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/ocr"
	"github.com/adverant/nexus/scanocr-worker/internal/render"
	"github.com/adverant/nexus/scanocr-worker/internal/selector"
	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

// Converter is the conversion entry point used by the queue and the CLI
type Converter interface {
	ConvertDocument(ctx context.Context, src types.Source, opts types.Options, obs Observer) (*types.DocumentResult, error)
}

// ProcessorConfig holds processor configuration. Opener and Engine are
// required; classifiers default to the heuristic implementations built
// from Tuning.
type ProcessorConfig struct {
	Opener             render.Opener
	Engine             ocr.Engine
	Tuning             *tuning.Tuning
	Detector           langdetect.Detector
	LanguageClassifier langdetect.Classifier
	DocumentClassifier doctype.Classifier
	BatchSignal        doctype.BatchSignal
	Logger             *logging.Logger
}

// ScanProcessor handles scanned document conversion
type ScanProcessor struct {
	opener   render.Opener
	engine   ocr.Engine
	tuning   *tuning.Tuning
	enhancer *enhance.Enhancer
	sampler  *ocr.SampleExtractor
	language langdetect.Classifier
	doctype  doctype.Classifier
	logger   *logging.Logger
}

// NewScanProcessor creates a new scan processor
func NewScanProcessor(cfg *ProcessorConfig) (*ScanProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Opener == nil {
		return nil, fmt.Errorf("document opener is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("OCR engine is required")
	}

	t := cfg.Tuning
	if t == nil {
		t = tuning.Default()
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("processor")
	}

	language := cfg.LanguageClassifier
	if language == nil {
		language = langdetect.NewStatisticalClassifier(t.Language, cfg.Detector, logger)
	}

	docClassifier := cfg.DocumentClassifier
	if docClassifier == nil {
		heuristic, err := doctype.NewHeuristicClassifier(t, cfg.BatchSignal, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create document classifier: %w", err)
		}
		docClassifier = heuristic
	}

	return &ScanProcessor{
		opener:   cfg.Opener,
		engine:   cfg.Engine,
		tuning:   t,
		enhancer: enhance.NewEnhancer(t.Enhance, logger),
		sampler:  ocr.NewSampleExtractor(cfg.Engine, t.Sample, logger),
		language: language,
		doctype:  docClassifier,
		logger:   logger,
	}, nil
}

// run carries the per-conversion state
type run struct {
	opts        types.Options
	selector    *selector.Selector
	sampleModel string
	total       int
	obs         Observer
	logger      *logging.Logger
}

// ConvertDocument converts one PDF. It returns a DocumentFatal error when the
// source cannot be opened and a CANCELLED or PROCESSING_TIMEOUT error when ctx
// ends between pages; every other failure is absorbed into the result.
func (p *ScanProcessor) ConvertDocument(ctx context.Context, src types.Source, opts types.Options, obs Observer) (*types.DocumentResult, error) {
	startTime := time.Now()
	if obs == nil {
		obs = nopObserver{}
	}
	quality, err := types.ParseQuality(string(opts.OCRQuality))
	if err != nil {
		return nil, err
	}
	opts.OCRQuality = quality

	logger := p.logger.With("source", src.DisplayName())
	obs.OnStage(0, 0, StageIdle)

	doc, err := p.opener.Open(ctx, src)
	if err != nil {
		obs.OnStage(0, 0, StageAborted)
		var unsupported *render.UnsupportedFormatError
		if stderrors.As(err, &unsupported) {
			return nil, errors.NewUnsupportedFormatError(src.DisplayName(), unsupported.MIME)
		}
		return nil, errors.NewDocumentFatalError(src.DisplayName(), err)
	}
	defer doc.Close()

	total := doc.PageCount()
	if total <= 0 {
		obs.OnStage(0, 0, StageAborted)
		return nil, errors.NewDocumentFatalError(src.DisplayName(), fmt.Errorf("document has no pages"))
	}

	r := &run{
		opts:        opts,
		selector:    selector.ForQuality(p.tuning, quality),
		sampleModel: ocr.LanguageModelFor(opts.TargetLanguages, p.tuning.Sample.LanguageModel),
		total:       total,
		obs:         obs,
		logger:      logger,
	}
	logger.Info("Starting scan conversion",
		"pages", total,
		"quality", quality,
		"scale", r.selector.ScaleFactor(),
		"enhance", opts.EnhanceQuality,
		"language_detection", opts.LanguageDetection,
		"doctype_detection", opts.DocumentTypeDetection)

	pages := make([]types.PageResult, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			obs.OnStage(i+1, total, StageAborted)
			logger.Warn("Conversion stopped at page boundary", "pages_done", i, "error", err)
			if stderrors.Is(err, context.DeadlineExceeded) {
				return nil, errors.NewProcessingTimeoutError("", time.Since(startTime), err)
			}
			return nil, errors.NewCancelledError(i, total, err)
		}
		page := p.processPage(ctx, doc, i, r)
		obs.OnStage(i+1, total, StageAccumulating)
		pages = append(pages, page)
	}

	result := &types.DocumentResult{
		Pages: pages,
		CleanedText: textproc.Clean(pages, textproc.CleanOptions{
			PageMarkers:   total > 1,
			FixConfusions: opts.FixConfusions,
		}),
	}
	result.Metadata = types.Metadata{
		SourceFile:          src.DisplayName(),
		SourceSize:          sourceSize(src),
		TotalPages:          total,
		ProcessingTimestamp: startTime,
		ProcessingTime:      time.Since(startTime),
		ConfigSummary: types.ConfigSummary{
			EnhanceQuality:        opts.EnhanceQuality,
			LanguageDetection:     opts.LanguageDetection,
			DocumentTypeDetection: opts.DocumentTypeDetection,
			OCRQuality:            quality,
			TargetLanguages:       opts.TargetLanguages,
			FixConfusions:         opts.FixConfusions,
			ScaleFactor:           r.selector.ScaleFactor(),
			DegradedPages:         result.DegradedPages(),
		},
	}
	obs.OnStage(0, total, StageDone)

	logger.Info("Scan conversion complete",
		"pages", total,
		"degraded_pages", len(result.Metadata.ConfigSummary.DegradedPages),
		"chars", textproc.DocumentCharCount(result),
		"duration", result.Metadata.ProcessingTime.String())

	return result, nil
}

// processPage runs one page through the pipeline. It never fails: errors and
// panics produce an empty, degraded PageResult.
func (p *ScanProcessor) processPage(ctx context.Context, doc render.Document, index int, r *run) (result types.PageResult) {
	number := index + 1
	logger := r.logger.With("page", number)
	stage := StageRendering
	result = types.PageResult{PageNumber: number, ConfigUsed: r.selector.Default()}

	degrade := func(err error) types.PageResult {
		perr := errors.NewPageDegradedError(number, string(stage), err)
		logger.Warn("Page degraded", "stage", stage, "error", perr)
		return types.PageResult{
			PageNumber:  number,
			ConfigUsed:  result.ConfigUsed,
			Degraded:    true,
			FailedStage: string(stage),
		}
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = degrade(fmt.Errorf("panic: %v", rec))
		}
	}()

	enter := func(s Stage) {
		stage = s
		r.obs.OnStage(number, r.total, s)
	}

	enter(StageRendering)
	img, err := doc.RenderPage(ctx, index, r.selector.ScaleFactor())
	if err != nil {
		return degrade(err)
	}

	if r.opts.EnhanceQuality {
		enter(StageEnhancing)
		enhanced, reports := p.enhancer.Enhance(img.Bitmap)
		for _, rep := range reports {
			if rep.Err != nil {
				logger.Debug("Enhancement step skipped", "step", rep.Name, "error", rep.Err)
			}
		}
		if enhanced != nil {
			img = types.PageImage{Bitmap: enhanced, DPI: img.DPI}
		}
	}

	cfg := r.selector.Default()
	if r.opts.LanguageDetection && r.opts.DocumentTypeDetection {
		enter(StageSampling)
		sample := p.sampler.Extract(ctx, img, r.sampleModel)

		enter(StageClassifying)
		verdict := p.language.Classify(sample)
		dt := p.doctype.Classify(img.Bitmap, sample)

		cfg = r.selector.Select(verdict, dt)
		logger.Info("Page classified",
			"sample_chars", len([]rune(sample)),
			"language", verdict.Code,
			"confidence", verdict.Confidence,
			"document_type", dt,
			"config", cfg.Name)
	}
	enter(StageConfigSelected)
	result.ConfigUsed = cfg

	enter(StageRecognizing)
	text, err := p.engine.Recognize(ctx, img.Bitmap, cfg)
	if err != nil {
		return degrade(err)
	}

	result.RecognizedText = text
	logger.Debug("Page recognized", "config", cfg.Name, "dpi", cfg.DPI, "chars", len([]rune(text)))
	return result
}

func sourceSize(src types.Source) int64 {
	if src.Data != nil {
		return int64(len(src.Data))
	}
	if src.Path == "" {
		return 0
	}
	info, err := os.Stat(src.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}
