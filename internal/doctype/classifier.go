/**
 * Document-Type Classifier
 *
 * Tags a page as table, academic, chinese_only, batch or technical.
 * Checks run in that priority order and the first match wins. Table
 * detection looks at ruled lines in the bitmap; the remaining checks score
 * the text sample.
 */

package doctype

import (
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/adverant/nexus/scanocr-worker/internal/langdetect"
	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

// Classifier returns the structural category of a page. Implementations never fail.
type Classifier interface {
	Classify(img image.Image, sample string) types.DocumentType
}

// BatchSignal reports whether the page belongs to a throughput-oriented batch run
type BatchSignal interface {
	IsBatch() bool
}

// BatchFunc adapts a function to BatchSignal
type BatchFunc func() bool

// IsBatch implements BatchSignal
func (f BatchFunc) IsBatch() bool { return f() }

// LineStats summarizes the detected segments of a page
type LineStats struct {
	Total      int
	Horizontal int
	Vertical   int
}

// HorizontalRatio is the share of horizontal segments
func (s LineStats) HorizontalRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Horizontal) / float64(s.Total)
}

// VerticalRatio is the share of vertical segments
func (s LineStats) VerticalRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Vertical) / float64(s.Total)
}

// AcademicScore breaks the academic score into its weighted components
type AcademicScore struct {
	Keywords  int
	Citations int
	Sections  int
	Math      int
	Total     float64
}

// HeuristicClassifier implements Classifier with line geometry and text scoring
type HeuristicClassifier struct {
	table    tuning.Table
	academic tuning.Academic
	chinese  tuning.ChineseOnly
	lines    *LineDetector
	batch    BatchSignal
	logger   *logging.Logger

	citation []*regexp.Regexp
	section  []*regexp.Regexp
	math     []*regexp.Regexp
}

// NewHeuristicClassifier compiles the pattern lists of t. batch may be nil.
func NewHeuristicClassifier(t *tuning.Tuning, batch BatchSignal, logger *logging.Logger) (*HeuristicClassifier, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &HeuristicClassifier{
		table:    t.Table,
		academic: t.Academic,
		chinese:  t.ChineseOnly,
		lines:    NewLineDetector(t.Table),
		batch:    batch,
		logger:   logger,
	}

	var err error
	if c.citation, err = compileAll("citation", t.Academic.CitationPatterns); err != nil {
		return nil, err
	}
	if c.section, err = compileAll("section", t.Academic.SectionPatterns); err != nil {
		return nil, err
	}
	if c.math, err = compileAll("math", t.Academic.MathPatterns); err != nil {
		return nil, err
	}
	return c, nil
}

func compileAll(kind string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", kind, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Classify implements Classifier
func (c *HeuristicClassifier) Classify(img image.Image, sample string) (dt types.DocumentType) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Document type detection failed, using technical", "panic", r)
			dt = types.DocumentTechnical
		}
	}()

	if img != nil && c.IsTable(c.LineStats(img)) {
		return types.DocumentTable
	}
	if c.IsAcademic(c.Score(sample)) {
		return types.DocumentAcademic
	}
	if c.IsChineseOnly(sample) {
		return types.DocumentChineseOnly
	}
	if c.batch != nil && c.batch.IsBatch() {
		return types.DocumentBatch
	}
	return types.DocumentTechnical
}

// LineStats detects segments and buckets them by orientation
func (c *HeuristicClassifier) LineStats(img image.Image) LineStats {
	segments := c.lines.Detect(img)
	stats := LineStats{Total: len(segments)}
	tol := c.table.AngleTolerance
	for _, s := range segments {
		a := s.Angle()
		switch {
		case a < tol || a > 180-tol:
			stats.Horizontal++
		case a > 90-tol && a < 90+tol:
			stats.Vertical++
		}
	}
	return stats
}

// IsTable applies the ratio and count thresholds
func (c *HeuristicClassifier) IsTable(s LineStats) bool {
	if s.Total == 0 {
		return false
	}
	table := s.HorizontalRatio() > c.table.HorizontalRatio &&
		s.VerticalRatio() > c.table.VerticalRatio &&
		s.Total >= c.table.MinLines
	c.logger.Debug("Table detection",
		"horizontal_ratio", s.HorizontalRatio(),
		"vertical_ratio", s.VerticalRatio(),
		"total_lines", s.Total,
		"table", table)
	return table
}

// Score computes the weighted academic score of a sample. Keywords count
// once each, case-insensitively; patterns count every match.
func (c *HeuristicClassifier) Score(sample string) AcademicScore {
	var s AcademicScore
	if sample == "" {
		return s
	}
	lower := strings.ToLower(sample)
	for _, kw := range c.academic.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			s.Keywords++
		}
	}
	s.Citations = countMatches(c.citation, sample)
	s.Sections = countMatches(c.section, sample)
	s.Math = countMatches(c.math, sample)

	s.Total = float64(s.Keywords)*c.academic.KeywordWeight +
		float64(s.Citations)*c.academic.CitationWeight +
		float64(s.Sections)*c.academic.SectionWeight +
		float64(s.Math)*c.academic.MathWeight
	return s
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range patterns {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}

// IsAcademic compares a score with the threshold
func (c *HeuristicClassifier) IsAcademic(s AcademicScore) bool {
	academic := s.Total >= c.academic.Threshold
	if s.Total > 0 {
		c.logger.Debug("Academic detection",
			"keywords", s.Keywords,
			"citations", s.Citations,
			"sections", s.Sections,
			"math", s.Math,
			"score", s.Total,
			"academic", academic)
	}
	return academic
}

// IsChineseOnly checks CJK and Latin ratios over the trimmed sample
func (c *HeuristicClassifier) IsChineseOnly(sample string) bool {
	total := langdetect.TrimmedLength(sample)
	if total == 0 {
		return false
	}
	stats := langdetect.Stats(sample)
	cjk := float64(stats.CJK) / float64(total)
	latin := float64(stats.Latin) / float64(total)
	return cjk >= c.chinese.ChineseRatio &&
		latin <= c.chinese.LatinRatio &&
		stats.CJK >= c.chinese.MinChars
}

// Features returns the full analysis of a page for logging and debugging
func (c *HeuristicClassifier) Features(img image.Image, sample string) map[string]interface{} {
	var lines LineStats
	if img != nil {
		lines = c.LineStats(img)
	}
	score := c.Score(sample)
	stats := langdetect.Stats(sample)
	return map[string]interface{}{
		"document_type":    c.Classify(img, sample),
		"has_table":        c.IsTable(lines),
		"has_academic":     c.IsAcademic(score),
		"is_pure_chinese":  c.IsChineseOnly(sample),
		"is_batch":         c.batch != nil && c.batch.IsBatch(),
		"line_count":       lines.Total,
		"horizontal_ratio": lines.HorizontalRatio(),
		"vertical_ratio":   lines.VerticalRatio(),
		"academic_score":   score.Total,
		"text_length":      stats.Total,
		"chinese_ratio":    stats.CJKRatio(),
		"english_ratio":    stats.LatinRatio(),
	}
}
