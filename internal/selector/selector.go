package selector

import (
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

// Selector maps a language verdict and document type to an OCR config.
// It is pure: the same inputs always yield the same config.
type Selector struct {
	rules  tuning.Selection
	preset tuning.QualityPreset
}

// New creates a selector from a rule table and a quality preset
func New(rules tuning.Selection, preset tuning.QualityPreset) *Selector {
	return &Selector{rules: rules, preset: preset}
}

// ForQuality builds the selector for one quality level of t
func ForQuality(t *tuning.Tuning, q types.Quality) *Selector {
	return New(t.Selection, t.Preset(q))
}

// Select returns the config for (verdict, dt). English uses the Latin row
// for every document type; any other language uses the CJK row of dt, and a
// missing row falls back to the default config.
func (s *Selector) Select(verdict types.LanguageVerdict, dt types.DocumentType) types.OCRConfig {
	if verdict.Code == types.LanguageEnglish && s.rules.Latin.Validate() == nil {
		return s.preset.Apply(s.rules.Latin)
	}
	if cfg, ok := s.rules.CJK[dt]; ok && cfg.Validate() == nil {
		return s.preset.Apply(cfg)
	}
	return s.Default()
}

// Default is the CJK technical config, used whenever detection is disabled
func (s *Selector) Default() types.OCRConfig {
	return s.preset.Apply(s.rules.Default)
}

// ScaleFactor is the render scale of the selector's quality preset
func (s *Selector) ScaleFactor() float64 {
	return s.preset.ScaleFactor
}
