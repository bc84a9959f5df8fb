package processor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/adverant/nexus/scanocr-worker/internal/errors"
	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/render"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocument serves fixed bitmaps; pages listed in fail return a render error
type fakeDocument struct {
	pages  []image.Image
	fail   map[int]bool
	closed bool
}

func (d *fakeDocument) PageCount() int { return len(d.pages) }

func (d *fakeDocument) RenderPage(_ context.Context, index int, scale float64) (types.PageImage, error) {
	if d.fail[index] {
		return types.PageImage{}, &render.RenderFailure{Page: index + 1, Cause: fmt.Errorf("corrupt page stream")}
	}
	return types.PageImage{Bitmap: d.pages[index], DPI: render.BaseDPI * scale}, nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

type fakeOpener struct {
	doc *fakeDocument
	err error
}

func (o *fakeOpener) Open(context.Context, types.Source) (render.Document, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

// fakeEngine answers sample passes with sample and full passes with the
// next entry of pageTexts. Full-pass configs are recorded.
type fakeEngine struct {
	mu          sync.Mutex
	sample      string
	pageTexts   []string
	sampleCalls int
	configs     []types.OCRConfig
	onFullPass  func()
}

func (e *fakeEngine) Recognize(_ context.Context, _ image.Image, cfg types.OCRConfig) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.Name == "sample" {
		e.sampleCalls++
		return e.sample, nil
	}
	e.configs = append(e.configs, cfg)
	if e.onFullPass != nil {
		e.onFullPass()
	}
	i := len(e.configs) - 1
	if i < len(e.pageTexts) {
		return e.pageTexts[i], nil
	}
	return "", nil
}

type fakeDetector struct{ tag string }

func (d fakeDetector) Identify(string) (string, float64, error) { return d.tag, 0.95, nil }

func ruledGrid(size, n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	black := color.RGBA{A: 255}
	lo, hi := size/8, size-size/8
	step := (hi - lo) / (n - 1)
	for k := 0; k < n; k++ {
		pos := lo + k*step
		for t := 0; t < 3; t++ {
			for v := lo; v <= hi; v++ {
				img.Set(v, pos+t, black)
				img.Set(pos+t, v, black)
			}
		}
	}
	return img
}

func blank(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func newProcessor(t *testing.T, opener render.Opener, engine *fakeEngine, tn *tuning.Tuning, detector string) *ScanProcessor {
	t.Helper()
	p, err := NewScanProcessor(&ProcessorConfig{
		Opener:   opener,
		Engine:   engine,
		Tuning:   tn,
		Detector: fakeDetector{tag: detector},
		Logger:   logging.Nop(),
	})
	require.NoError(t, err)
	return p
}

func optionsWithoutEnhancement() types.Options {
	opts := types.DefaultOptions()
	opts.EnhanceQuality = false
	return opts
}

func TestTableScanSelectsRawLineConfig(t *testing.T) {
	doc := &fakeDocument{pages: []image.Image{ruledGrid(400, 6)}}
	engine := &fakeEngine{sample: strings.Repeat("表格数据", 15), pageTexts: []string{"项目  金额\n合计 100"}}
	p := newProcessor(t, &fakeOpener{doc: doc}, engine, nil, "zh")

	result, err := p.ConvertDocument(context.Background(), types.Source{Name: "table.pdf"}, optionsWithoutEnhancement(), nil)
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	cfg := result.Pages[0].ConfigUsed
	assert.Equal(t, "table_document", cfg.Name)
	assert.Equal(t, "chi_sim+eng", cfg.LanguageModel)
	assert.Equal(t, tuning.PSMRawLine, cfg.PageSegMode)
	assert.Equal(t, 300, cfg.DPI)

	assert.Equal(t, "项目 金额\n合计 100", result.CleanedText)
	assert.NotContains(t, result.CleanedText, "=== Page")
	assert.True(t, doc.closed)
}

func TestAcademicEnglishScanSelectsLatinConfig(t *testing.T) {
	tn := tuning.Default()
	tn.Language.MinTextLength = 40
	doc := &fakeDocument{pages: []image.Image{blank(200)}}
	engine := &fakeEngine{
		sample:    "Abstract\nIntroduction\n[1] Smith et al. (2023)",
		pageTexts: []string{"Abstract\n\nWe study scanned documents."},
	}
	p := newProcessor(t, &fakeOpener{doc: doc}, engine, tn, "en")

	result, err := p.ConvertDocument(context.Background(), types.Source{Name: "paper.pdf"}, optionsWithoutEnhancement(), nil)
	require.NoError(t, err)

	cfg := result.Pages[0].ConfigUsed
	assert.Equal(t, "eng", cfg.LanguageModel)
	assert.Equal(t, tuning.PSMSingleBlock, cfg.PageSegMode)
	assert.Equal(t, 400, cfg.DPI)
	assert.Equal(t, 2, engine.sampleCalls, "short sample is retried once")
}

func TestRenderFailureDegradesOnlyThatPage(t *testing.T) {
	doc := &fakeDocument{
		pages: []image.Image{blank(100), blank(100), blank(100)},
		fail:  map[int]bool{1: true},
	}
	engine := &fakeEngine{pageTexts: []string{"first page", "third page"}}
	p := newProcessor(t, &fakeOpener{doc: doc}, engine, nil, "en")

	result, err := p.ConvertDocument(context.Background(), types.Source{Name: "three.pdf"}, optionsWithoutEnhancement(), nil)
	require.NoError(t, err)

	require.Len(t, result.Pages, 3)
	for i, page := range result.Pages {
		assert.Equal(t, i+1, page.PageNumber)
	}
	assert.Equal(t, "first page", result.Pages[0].RecognizedText)
	assert.Equal(t, "", result.Pages[1].RecognizedText)
	assert.True(t, result.Pages[1].Degraded)
	assert.Equal(t, string(StageRendering), result.Pages[1].FailedStage)
	assert.Equal(t, "third page", result.Pages[2].RecognizedText)

	assert.Equal(t, 3, result.Metadata.TotalPages)
	assert.Equal(t, []int{2}, result.Metadata.ConfigSummary.DegradedPages)
	assert.Equal(t, "=== Page 1 ===\n\nfirst page\n\n=== Page 2 ===\n\n=== Page 3 ===\n\nthird page", result.CleanedText)
}

func TestRecognitionFailureDegradesPage(t *testing.T) {
	doc := &fakeDocument{pages: []image.Image{blank(100)}}
	engine := &failingEngine{}
	p, err := NewScanProcessor(&ProcessorConfig{Opener: &fakeOpener{doc: doc}, Engine: engine, Logger: logging.Nop()})
	require.NoError(t, err)

	result, err := p.ConvertDocument(context.Background(), types.Source{}, optionsWithoutEnhancement(), nil)
	require.NoError(t, err)
	assert.True(t, result.Pages[0].Degraded)
	assert.Equal(t, string(StageRecognizing), result.Pages[0].FailedStage)
	assert.Equal(t, "technical_doc", result.Pages[0].ConfigUsed.Name)
}

type failingEngine struct{}

func (failingEngine) Recognize(context.Context, image.Image, types.OCRConfig) (string, error) {
	return "", fmt.Errorf("tesseract crashed")
}

func TestOpenFailureIsFatal(t *testing.T) {
	engine := &fakeEngine{}

	p := newProcessor(t, &fakeOpener{err: fmt.Errorf("broken xref table")}, engine, nil, "en")
	_, err := p.ConvertDocument(context.Background(), types.Source{Name: "bad.pdf"}, types.DefaultOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorDocumentFatal, errors.CodeOf(err))
	assert.True(t, errors.IsDocumentFatal(err))

	p = newProcessor(t, &fakeOpener{err: &render.UnsupportedFormatError{MIME: "image/png"}}, engine, nil, "en")
	_, err = p.ConvertDocument(context.Background(), types.Source{Name: "photo.png"}, types.DefaultOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorUnsupportedFormat, errors.CodeOf(err))
	assert.True(t, errors.IsDocumentFatal(err))

	p = newProcessor(t, &fakeOpener{doc: &fakeDocument{}}, engine, nil, "en")
	_, err = p.ConvertDocument(context.Background(), types.Source{Name: "empty.pdf"}, types.DefaultOptions(), nil)
	assert.Equal(t, errors.ErrorDocumentFatal, errors.CodeOf(err))

	assert.Empty(t, engine.configs)
}

func TestCancellationStopsAtPageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc := &fakeDocument{pages: []image.Image{blank(100), blank(100), blank(100)}}
	engine := &fakeEngine{pageTexts: []string{"one", "two", "three"}, onFullPass: cancel}
	p := newProcessor(t, &fakeOpener{doc: doc}, engine, nil, "en")

	_, err := p.ConvertDocument(ctx, types.Source{}, optionsWithoutEnhancement(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCancelled, errors.CodeOf(err))
	assert.Len(t, engine.configs, 1)
	assert.True(t, doc.closed)
}

func TestDeadlineReportsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	doc := &fakeDocument{pages: []image.Image{blank(100)}}
	p := newProcessor(t, &fakeOpener{doc: doc}, &fakeEngine{}, nil, "en")

	_, err := p.ConvertDocument(ctx, types.Source{}, types.DefaultOptions(), nil)
	assert.Equal(t, errors.ErrorProcessingTimeout, errors.CodeOf(err))
}

func TestDisabledDetectionUsesDefaultConfig(t *testing.T) {
	for name, opts := range map[string]func(*types.Options){
		"language off": func(o *types.Options) { o.LanguageDetection = false },
		"doctype off":  func(o *types.Options) { o.DocumentTypeDetection = false },
	} {
		t.Run(name, func(t *testing.T) {
			doc := &fakeDocument{pages: []image.Image{ruledGrid(400, 6)}}
			engine := &fakeEngine{sample: "Abstract Introduction", pageTexts: []string{"text"}}
			p := newProcessor(t, &fakeOpener{doc: doc}, engine, nil, "en")

			o := optionsWithoutEnhancement()
			opts(&o)
			result, err := p.ConvertDocument(context.Background(), types.Source{}, o, nil)
			require.NoError(t, err)

			assert.Equal(t, 0, engine.sampleCalls)
			assert.Equal(t, "technical_doc", result.Pages[0].ConfigUsed.Name)
			assert.Equal(t, tuning.PSMSingleBlock, result.Pages[0].ConfigUsed.PageSegMode)
		})
	}
}

func TestQualityPresetDrivesScaleAndDPI(t *testing.T) {
	doc := &fakeDocument{pages: []image.Image{blank(100)}}
	engine := &fakeEngine{pageTexts: []string{"x"}}
	p := newProcessor(t, &fakeOpener{doc: doc}, engine, nil, "en")

	opts := optionsWithoutEnhancement()
	opts.LanguageDetection = false
	opts.OCRQuality = types.QualityFast
	result, err := p.ConvertDocument(context.Background(), types.Source{}, opts, nil)
	require.NoError(t, err)

	assert.Equal(t, 2.0, result.Metadata.ConfigSummary.ScaleFactor)
	assert.Equal(t, 200, result.Pages[0].ConfigUsed.DPI)

	opts.OCRQuality = "ultra"
	_, err = p.ConvertDocument(context.Background(), types.Source{}, opts, nil)
	assert.Error(t, err)
}

func TestObserverSeesEveryTransition(t *testing.T) {
	doc := &fakeDocument{pages: []image.Image{blank(64), blank(64)}, fail: map[int]bool{1: true}}
	engine := &fakeEngine{sample: strings.Repeat("中文", 30), pageTexts: []string{"ok"}}
	p := newProcessor(t, &fakeOpener{doc: doc}, engine, nil, "zh")

	var seen []string
	obs := ObserverFunc(func(page, total int, stage Stage) {
		seen = append(seen, fmt.Sprintf("%d/%d:%s", page, total, stage))
	})
	_, err := p.ConvertDocument(context.Background(), types.Source{}, types.DefaultOptions(), obs)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"0/0:idle",
		"1/2:rendering",
		"1/2:enhancing",
		"1/2:sampling",
		"1/2:classifying",
		"1/2:config_selected",
		"1/2:recognizing",
		"1/2:accumulating",
		"2/2:rendering",
		"2/2:accumulating",
		"0/2:done",
	}, seen)
	assert.True(t, StageDone.Terminal())
	assert.False(t, StageRecognizing.Terminal())
}

func TestMetadataDescribesRun(t *testing.T) {
	data := []byte("%PDF-1.4 fake")
	doc := &fakeDocument{pages: []image.Image{blank(64)}}
	p := newProcessor(t, &fakeOpener{doc: doc}, &fakeEngine{pageTexts: []string{"hello"}}, nil, "en")

	opts := optionsWithoutEnhancement()
	opts.TargetLanguages = []string{"en"}
	result, err := p.ConvertDocument(context.Background(), types.Source{Data: data, Name: "memo.pdf"}, opts, nil)
	require.NoError(t, err)

	meta := result.Metadata
	assert.Equal(t, "memo.pdf", meta.SourceFile)
	assert.Equal(t, int64(len(data)), meta.SourceSize)
	assert.Equal(t, 1, meta.TotalPages)
	assert.False(t, meta.ProcessingTimestamp.IsZero())
	assert.Equal(t, types.QualityBalanced, meta.ConfigSummary.OCRQuality)
	assert.Equal(t, []string{"en"}, meta.ConfigSummary.TargetLanguages)
	assert.Equal(t, opts.FixConfusions, meta.ConfigSummary.FixConfusions)
	assert.Empty(t, meta.ConfigSummary.DegradedPages)
}

func TestNewScanProcessorValidation(t *testing.T) {
	_, err := NewScanProcessor(nil)
	assert.Error(t, err)
	_, err = NewScanProcessor(&ProcessorConfig{Engine: &fakeEngine{}})
	assert.Error(t, err)
	_, err = NewScanProcessor(&ProcessorConfig{Opener: &fakeOpener{}})
	assert.Error(t, err)

	bad := tuning.Default()
	bad.Academic.CitationPatterns = []string{"("}
	_, err = NewScanProcessor(&ProcessorConfig{Opener: &fakeOpener{}, Engine: &fakeEngine{}, Tuning: bad})
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(1, 4, StageRendering))
	assert.Equal(t, 25.0, Percent(1, 4, StageAccumulating))
	assert.Equal(t, 60.0, Percent(3, 5, StageAccumulating))
	assert.InDelta(t, 10.0, Percent(1, 4, StageRecognizing), 1e-9)
	assert.Equal(t, 100.0, Percent(0, 4, StageDone))
	assert.Equal(t, 0.0, Percent(0, 0, StageIdle))
	assert.Equal(t, 0.0, Percent(2, 4, StageAborted))
}
