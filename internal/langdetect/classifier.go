/**
 * Language Classifier
 *
 * Decides the dominant language of an OCR text sample. Character-class
 * ratios settle clear cases immediately; everything else goes to a
 * statistical detector whose verdict is corrected for the Korean/Chinese
 * confusion typical of CJK scans.
 */

package langdetect

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

// Classifier returns the language verdict of a text sample. Implementations never fail.
type Classifier interface {
	Classify(sample string) types.LanguageVerdict
}

// Detector is a general statistical language identifier. It may fail on
// degenerate input.
type Detector interface {
	Identify(text string) (tag string, probability float64, err error)
}

// StatisticalClassifier combines character statistics with a Detector
type StatisticalClassifier struct {
	cfg      tuning.Language
	detector Detector
	logger   *logging.Logger
}

// NewStatisticalClassifier creates a classifier. A nil detector disables the
// statistical fallback, so inconclusive samples become unknown.
func NewStatisticalClassifier(cfg tuning.Language, detector Detector, logger *logging.Logger) *StatisticalClassifier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StatisticalClassifier{cfg: cfg, detector: detector, logger: logger}
}

// Classify implements Classifier
func (c *StatisticalClassifier) Classify(sample string) types.LanguageVerdict {
	if sample == "" || TrimmedLength(sample) < c.cfg.MinTextLength {
		return types.UnknownVerdict
	}

	stats := Stats(sample)
	cjk, latin := stats.CJKRatio(), stats.LatinRatio()

	if cjk > c.cfg.CJKShortCircuitRatio {
		return types.LanguageVerdict{Code: types.LanguageChinese, Confidence: c.cfg.ShortCircuitConfidence}
	}
	if latin > c.cfg.LatinShortCircuitRatio {
		return types.LanguageVerdict{Code: types.LanguageEnglish, Confidence: c.cfg.ShortCircuitConfidence}
	}

	if c.detector == nil {
		return types.UnknownVerdict
	}
	tag, prob, err := c.identify(sample)
	if err != nil {
		c.logger.Debug("Statistical language detection failed", "error", err)
		return types.UnknownVerdict
	}
	prob = clampUnit(prob)
	code := NormalizeTag(tag)

	if code == types.LanguageKorean && cjk > c.cfg.KoreanOverrideCJKRatio && prob < c.cfg.KoreanOverrideMaxConfidence {
		return types.LanguageVerdict{Code: types.LanguageChinese, Confidence: c.cfg.KoreanOverrideConfidence}
	}
	if code == types.LanguageChinese && prob < c.cfg.ChineseDowngradeConfidence && cjk < c.cfg.ChineseDowngradeCJKRatio {
		return types.LanguageVerdict{Code: types.LanguageUnknown, Confidence: prob}
	}
	return c.mixedOr(stats, types.LanguageVerdict{Code: code, Confidence: prob})
}

// mixedOr turns a detector zh or en verdict into mixed when both scripts reach
// MixedMinRatio. Zero disables it.
func (c *StatisticalClassifier) mixedOr(stats CharStats, v types.LanguageVerdict) types.LanguageVerdict {
	if c.cfg.MixedMinRatio <= 0 {
		return v
	}
	if v.Code != types.LanguageChinese && v.Code != types.LanguageEnglish {
		return v
	}
	if stats.CJKRatio() >= c.cfg.MixedMinRatio && stats.LatinRatio() >= c.cfg.MixedMinRatio {
		return types.LanguageVerdict{Code: types.LanguageMixed, Confidence: v.Confidence}
	}
	return v
}

func (c *StatisticalClassifier) identify(sample string) (tag string, prob float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			tag, prob, err = "", 0, fmt.Errorf("detector panic: %v", r)
		}
	}()
	return c.detector.Identify(sample)
}

// NormalizeTag maps a detector tag onto a LanguageCode. Regional and script
// variants of Chinese collapse to zh; languages the pipeline has no
// configuration for become unknown.
func NormalizeTag(tag string) types.LanguageCode {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.ReplaceAll(t, "_", "-")
	base := t
	if i := strings.IndexByte(t, '-'); i >= 0 {
		base = t[:i]
	}
	switch base {
	case "zh", "cmn", "yue", "wuu":
		return types.LanguageChinese
	case "en", "eng":
		return types.LanguageEnglish
	case "ja", "jpn":
		return types.LanguageJapanese
	case "ko", "kor":
		return types.LanguageKorean
	}
	return types.LanguageUnknown
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
