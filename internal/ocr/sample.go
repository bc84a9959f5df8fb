package ocr

import (
	"context"
	"image"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"golang.org/x/image/draw"
	"golang.org/x/text/unicode/norm"
)

// sampleNoise matches everything outside CJK ideographs, word characters,
// whitespace and common punctuation
var sampleNoise = regexp.MustCompile(`[^\x{4e00}-\x{9fff}\p{L}\p{N}_\s.,!?;:()\[\]（），。]`)

var languagePacks = map[string]string{
	"zh": "chi_sim",
	"en": "eng",
	"ja": "jpn",
	"ko": "kor",
}

// LanguageModelFor builds the sample-pass model from target language codes.
// Unknown codes are ignored; an empty result means fallback.
func LanguageModelFor(targetLanguages []string, fallback string) string {
	var packs []string
	seen := map[string]bool{}
	for _, code := range targetLanguages {
		pack, ok := languagePacks[strings.ToLower(strings.TrimSpace(code))]
		if !ok || seen[pack] {
			continue
		}
		seen[pack] = true
		packs = append(packs, pack)
	}
	if len(packs) == 0 {
		return fallback
	}
	return strings.Join(packs, "+")
}

// SampleExtractor runs the cheap low-resolution pass that feeds classification
type SampleExtractor struct {
	engine Engine
	cfg    tuning.Sample
	logger *logging.Logger
}

// NewSampleExtractor creates an extractor over engine
func NewSampleExtractor(engine Engine, cfg tuning.Sample, logger *logging.Logger) *SampleExtractor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SampleExtractor{engine: engine, cfg: cfg, logger: logger}
}

// Extract returns a cleaned sample of at most MaxLength characters. A short
// first pass is retried once at RetryDPI and the longer text wins. Engine
// failures yield an empty sample.
func (s *SampleExtractor) Extract(ctx context.Context, page types.PageImage, languageModel string) string {
	if page.Bitmap == nil {
		return ""
	}
	if languageModel == "" {
		languageModel = s.cfg.LanguageModel
	}

	sample := s.pass(ctx, page, languageModel, s.cfg.DPI)
	if utf8.RuneCountInString(sample) < s.cfg.MinLength && ctx.Err() == nil {
		retry := s.pass(ctx, page, languageModel, s.cfg.RetryDPI)
		if utf8.RuneCountInString(retry) > utf8.RuneCountInString(sample) {
			sample = retry
		}
	}

	return CleanSample(sample, s.cfg.MaxLength)
}

func (s *SampleExtractor) pass(ctx context.Context, page types.PageImage, model string, dpi int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Sample OCR panicked", "dpi", dpi, "panic", r)
			text = ""
		}
	}()

	cfg := types.OCRConfig{
		Name:          "sample",
		LanguageModel: model,
		PageSegMode:   s.cfg.PageSegMode,
		DPI:           dpi,
	}
	out, err := s.engine.Recognize(ctx, Downsample(page, float64(dpi)), cfg)
	if err != nil {
		s.logger.Debug("Sample OCR failed", "dpi", dpi, "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// CleanSample normalizes to NFKC, truncates to maxLen runes and strips noise
func CleanSample(text string, maxLen int) string {
	text = norm.NFKC.String(strings.TrimSpace(text))
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		text = string([]rune(text)[:maxLen])
	}
	return sampleNoise.ReplaceAllString(text, "")
}

// Downsample shrinks the page bitmap to dpi when it was rendered at a
// higher resolution. Pages without a known DPI are returned as is.
func Downsample(page types.PageImage, dpi float64) image.Image {
	if page.DPI <= 0 || dpi <= 0 || dpi >= page.DPI {
		return page.Bitmap
	}
	b := page.Bitmap.Bounds()
	ratio := dpi / page.DPI
	w := int(math.Max(1, math.Round(float64(b.Dx())*ratio)))
	h := int(math.Max(1, math.Round(float64(b.Dy())*ratio)))

	var dst draw.Image
	if _, ok := page.Bitmap.(*image.Gray); ok {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), page.Bitmap, b, draw.Src, nil)
	return dst
}
