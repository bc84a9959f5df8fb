/**
 * Heuristic tuning for the scan-OCR pipeline
 *
 * Every threshold, keyword list, pattern list, rule table and quality preset
 * used by the classifiers lives here. Components receive their section at
 * construction time; nothing reads process-wide globals.
 */

package tuning

import (
	"fmt"

	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

// Tesseract page segmentation modes used by the rule table
const (
	PSMAutoOSD     = 1
	PSMSingleBlock = 6
	PSMRawLine     = 13
)

// Tuning is the full heuristic configuration
type Tuning struct {
	Language    Language                        `yaml:"language"`
	Sample      Sample                          `yaml:"sample"`
	Table       Table                           `yaml:"table"`
	Academic    Academic                        `yaml:"academic"`
	ChineseOnly ChineseOnly                     `yaml:"chinese_only"`
	Enhance     Enhance                         `yaml:"enhance"`
	Selection   Selection                       `yaml:"selection"`
	Presets     map[types.Quality]QualityPreset `yaml:"presets"`
}

// Language holds the character-ratio thresholds of the language classifier
type Language struct {
	MinTextLength          int     `yaml:"min_text_length"`
	CJKShortCircuitRatio   float64 `yaml:"cjk_short_circuit_ratio"`
	LatinShortCircuitRatio float64 `yaml:"latin_short_circuit_ratio"`
	ShortCircuitConfidence float64 `yaml:"short_circuit_confidence"`

	KoreanOverrideCJKRatio      float64 `yaml:"korean_override_cjk_ratio"`
	KoreanOverrideMaxConfidence float64 `yaml:"korean_override_max_confidence"`
	KoreanOverrideConfidence    float64 `yaml:"korean_override_confidence"`

	ChineseDowngradeConfidence float64 `yaml:"chinese_downgrade_confidence"`
	ChineseDowngradeCJKRatio   float64 `yaml:"chinese_downgrade_cjk_ratio"`

	MixedMinRatio float64 `yaml:"mixed_min_ratio"`
}

// Sample configures the low-resolution sample pass
type Sample struct {
	LanguageModel string `yaml:"language_model"`
	PageSegMode   int    `yaml:"page_seg_mode"`
	DPI           int    `yaml:"dpi"`
	RetryDPI      int    `yaml:"retry_dpi"`
	MinLength     int    `yaml:"min_length"`
	MaxLength     int    `yaml:"max_length"`
}

// Table configures edge and line detection
type Table struct {
	CannyLow        float64 `yaml:"canny_low"`
	CannyHigh       float64 `yaml:"canny_high"`
	HoughThreshold  int     `yaml:"hough_threshold"`
	MinLineLength   int     `yaml:"min_line_length"`
	MaxLineGap      int     `yaml:"max_line_gap"`
	AngleTolerance  float64 `yaml:"angle_tolerance"`
	HorizontalRatio float64 `yaml:"horizontal_ratio"`
	VerticalRatio   float64 `yaml:"vertical_ratio"`
	MinLines        int     `yaml:"min_lines"`
	Seed            int64   `yaml:"seed"`
}

// Academic configures keyword and pattern scoring
type Academic struct {
	Keywords         []string `yaml:"keywords"`
	CitationPatterns []string `yaml:"citation_patterns"`
	SectionPatterns  []string `yaml:"section_patterns"`
	MathPatterns     []string `yaml:"math_patterns"`
	KeywordWeight    float64  `yaml:"keyword_weight"`
	CitationWeight   float64  `yaml:"citation_weight"`
	SectionWeight    float64  `yaml:"section_weight"`
	MathWeight       float64  `yaml:"math_weight"`
	Threshold        float64  `yaml:"threshold"`
}

// ChineseOnly configures the pure-Chinese check
type ChineseOnly struct {
	ChineseRatio float64 `yaml:"chinese_ratio"`
	LatinRatio   float64 `yaml:"latin_ratio"`
	MinChars     int     `yaml:"min_chars"`
}

// Enhance toggles and parameterizes the enhancement steps
type Enhance struct {
	Grayscale     bool    `yaml:"grayscale"`
	CLAHE         bool    `yaml:"clahe"`
	Sharpen       bool    `yaml:"sharpen"`
	Denoise       bool    `yaml:"denoise"`
	ClipLimit     float64 `yaml:"clip_limit"`
	TileGridX     int     `yaml:"tile_grid_x"`
	TileGridY     int     `yaml:"tile_grid_y"`
	BilateralD    int     `yaml:"bilateral_d"`
	SigmaColor    float64 `yaml:"sigma_color"`
	SigmaSpace    float64 `yaml:"sigma_space"`
	SharpenKernel []int   `yaml:"sharpen_kernel,flow"`
	DefaultScale  float64 `yaml:"default_scale"`
}

// Selection is the rule table of the configuration selector.
// CJK rows are keyed by document type; Latin is used for every English page.
type Selection struct {
	CJK     map[types.DocumentType]types.OCRConfig `yaml:"cjk"`
	Latin   types.OCRConfig                        `yaml:"latin"`
	Default types.OCRConfig                        `yaml:"default"`
}

// QualityPreset biases render scale and recognition DPI
type QualityPreset struct {
	ScaleFactor float64 `yaml:"scale_factor"`
	MinDPI      int     `yaml:"min_dpi"`
	MaxDPI      int     `yaml:"max_dpi"`
}

// Apply clamps a config's DPI into the preset bounds
func (p QualityPreset) Apply(cfg types.OCRConfig) types.OCRConfig {
	if p.MinDPI > 0 && cfg.DPI < p.MinDPI {
		cfg.DPI = p.MinDPI
	}
	if p.MaxDPI > 0 && cfg.DPI > p.MaxDPI {
		cfg.DPI = p.MaxDPI
	}
	return cfg
}

// Preset returns the preset for a quality level, falling back to balanced
func (t *Tuning) Preset(q types.Quality) QualityPreset {
	if p, ok := t.Presets[q]; ok {
		return p
	}
	if p, ok := t.Presets[types.QualityBalanced]; ok {
		return p
	}
	return QualityPreset{ScaleFactor: t.Enhance.DefaultScale}
}

// Validate checks the tuning for values the pipeline cannot run with
func (t *Tuning) Validate() error {
	if t.Language.MinTextLength < 0 {
		return fmt.Errorf("language.min_text_length must not be negative")
	}
	if t.Sample.DPI <= 0 || t.Sample.RetryDPI <= 0 {
		return fmt.Errorf("sample dpi values must be positive")
	}
	if t.Sample.MaxLength <= 0 {
		return fmt.Errorf("sample.max_length must be positive")
	}
	if t.Sample.LanguageModel == "" {
		return fmt.Errorf("sample.language_model is required")
	}
	if t.Table.MinLineLength <= 0 || t.Table.HoughThreshold <= 0 {
		return fmt.Errorf("table line detection parameters must be positive")
	}
	if t.Enhance.TileGridX <= 0 || t.Enhance.TileGridY <= 0 {
		return fmt.Errorf("enhance tile grid must be positive")
	}
	if len(t.Enhance.SharpenKernel) != 9 {
		return fmt.Errorf("enhance.sharpen_kernel must have 9 entries, got %d", len(t.Enhance.SharpenKernel))
	}
	if err := t.Selection.Latin.Validate(); err != nil {
		return fmt.Errorf("selection.latin: %w", err)
	}
	if err := t.Selection.Default.Validate(); err != nil {
		return fmt.Errorf("selection.default: %w", err)
	}
	for dt, cfg := range t.Selection.CJK {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("selection.cjk.%s: %w", dt, err)
		}
	}
	for q, p := range t.Presets {
		if p.ScaleFactor <= 0 {
			return fmt.Errorf("presets.%s.scale_factor must be positive", q)
		}
		if p.MinDPI > 0 && p.MaxDPI > 0 && p.MinDPI > p.MaxDPI {
			return fmt.Errorf("presets.%s: min_dpi %d exceeds max_dpi %d", q, p.MinDPI, p.MaxDPI)
		}
	}
	return nil
}
