package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	cfg    types.OCRConfig
	bounds image.Rectangle
}

type scriptedEngine struct {
	byDPI map[int]string
	err   error
	panic bool
	calls []call
}

func (e *scriptedEngine) Recognize(_ context.Context, img image.Image, cfg types.OCRConfig) (string, error) {
	e.calls = append(e.calls, call{cfg: cfg, bounds: img.Bounds()})
	if e.panic {
		panic("engine crashed")
	}
	if e.err != nil {
		return "", e.err
	}
	return e.byDPI[cfg.DPI], nil
}

func page(w, h int, dpi float64) types.PageImage {
	return types.PageImage{Bitmap: image.NewGray(image.Rect(0, 0, w, h)), DPI: dpi}
}

func TestExtractSinglePass(t *testing.T) {
	long := strings.Repeat("scanned text ", 10)
	eng := &scriptedEngine{byDPI: map[int]string{150: long}}

	sample := NewSampleExtractor(eng, tuning.Default().Sample, nil).Extract(context.Background(), page(360, 360, 180), "")

	assert.Equal(t, strings.TrimSpace(long), sample)
	require.Len(t, eng.calls, 1)
	assert.Equal(t, "chi_sim+eng", eng.calls[0].cfg.LanguageModel)
	assert.Equal(t, tuning.PSMAutoOSD, eng.calls[0].cfg.PageSegMode)
	assert.Equal(t, image.Rect(0, 0, 300, 300), eng.calls[0].bounds, "180 DPI page is shrunk to 150 DPI")
}

func TestExtractRetriesShortSampleAtHigherDPI(t *testing.T) {
	eng := &scriptedEngine{byDPI: map[int]string{
		150: "too short",
		200: strings.Repeat("much longer sample ", 5),
	}}

	sample := NewSampleExtractor(eng, tuning.Default().Sample, nil).Extract(context.Background(), page(360, 360, 180), "eng")

	require.Len(t, eng.calls, 2)
	assert.Equal(t, 200, eng.calls[1].cfg.DPI)
	assert.Equal(t, "eng", eng.calls[1].cfg.LanguageModel)
	assert.Equal(t, image.Rect(0, 0, 360, 360), eng.calls[1].bounds, "never upscaled")
	assert.True(t, strings.HasPrefix(sample, "much longer sample"))
}

func TestExtractKeepsFirstPassWhenRetryIsShorter(t *testing.T) {
	eng := &scriptedEngine{byDPI: map[int]string{150: "short but real", 200: "x"}}

	sample := NewSampleExtractor(eng, tuning.Default().Sample, nil).Extract(context.Background(), page(10, 10, 0), "")

	assert.Equal(t, "short but real", sample)
}

func TestExtractNeverFails(t *testing.T) {
	ctx := context.Background()
	cfg := tuning.Default().Sample

	assert.Empty(t, NewSampleExtractor(&scriptedEngine{err: errors.New("no tessdata")}, cfg, nil).Extract(ctx, page(10, 10, 72), ""))
	assert.Empty(t, NewSampleExtractor(&scriptedEngine{panic: true}, cfg, nil).Extract(ctx, page(10, 10, 72), ""))
	assert.Empty(t, NewSampleExtractor(&scriptedEngine{}, cfg, nil).Extract(ctx, types.PageImage{}, ""))
}

func TestCleanSampleTruncatesAndFilters(t *testing.T) {
	raw := strings.Repeat("字", 290) + "@@##" + strings.Repeat("b", 20)

	out := CleanSample(raw, 300)

	assert.LessOrEqual(t, utf8.RuneCountInString(out), 300)
	assert.NotContains(t, out, "@")
	assert.NotContains(t, out, "#")
	assert.True(t, strings.HasSuffix(out, "bbbbbb"))
}

func TestCleanSampleKeepsCitationsAndNormalizes(t *testing.T) {
	out := CleanSample("  [1] Smith et al. (2023) ＡＢＣ ~ ok  ", 300)

	assert.Equal(t, "[1] Smith et al. (2023) ABC  ok", out)
}

func TestLanguageModelFor(t *testing.T) {
	assert.Equal(t, "chi_sim+eng", LanguageModelFor([]string{"zh", "en"}, "x"))
	assert.Equal(t, "jpn+kor", LanguageModelFor([]string{"JA", " ko", "ja", "fr"}, "x"))
	assert.Equal(t, "chi_sim+eng", LanguageModelFor(nil, "chi_sim+eng"))
}

func TestDownsample(t *testing.T) {
	p := types.PageImage{Bitmap: image.NewRGBA(image.Rect(0, 0, 400, 200)), DPI: 400}

	out := Downsample(p, 100)

	assert.Equal(t, image.Rect(0, 0, 100, 50), out.Bounds())
	assert.IsType(t, &image.RGBA{}, out)
	assert.Same(t, p.Bitmap, Downsample(p, 400))
}

func TestTesseractEngineRejectsInvalidInput(t *testing.T) {
	eng := NewTesseractEngine(TesseractConfig{}, nil)

	_, err := eng.Recognize(context.Background(), nil, types.OCRConfig{LanguageModel: "eng", DPI: 300})
	assert.Error(t, err)

	_, err = eng.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), types.OCRConfig{DPI: 300})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Recognize(ctx, image.NewGray(image.Rect(0, 0, 4, 4)), types.OCRConfig{LanguageModel: "eng", DPI: 300})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTesseractEngineBlankPage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping tesseract test in short mode")
	}
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	text, err := NewTesseractEngine(TesseractConfig{}, nil).Recognize(context.Background(), img,
		types.OCRConfig{Name: "blank", LanguageModel: "eng", PageSegMode: 6, DPI: 300})
	if err != nil {
		t.Skipf("tesseract language data not available: %v", err)
	}
	assert.Empty(t, strings.TrimSpace(text))
}
