/**
 * Shared data model for the scan-OCR pipeline
 *
 * Page images, classification verdicts, recognition configs and the
 * per-page / per-document results handed back to callers.
 */

package types

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// PageImage is one rasterized page. Owned by the processor for the
// lifetime of a single page.
type PageImage struct {
	Bitmap image.Image
	DPI    float64
}

// Width returns the bitmap width in pixels
func (p PageImage) Width() int {
	if p.Bitmap == nil {
		return 0
	}
	return p.Bitmap.Bounds().Dx()
}

// Height returns the bitmap height in pixels
func (p PageImage) Height() int {
	if p.Bitmap == nil {
		return 0
	}
	return p.Bitmap.Bounds().Dy()
}

// LanguageCode is the dominant language of a text sample
type LanguageCode string

const (
	LanguageChinese  LanguageCode = "zh"
	LanguageEnglish  LanguageCode = "en"
	LanguageJapanese LanguageCode = "ja"
	LanguageKorean   LanguageCode = "ko"
	LanguageMixed    LanguageCode = "mixed"
	LanguageUnknown  LanguageCode = "unknown"
)

// AllLanguages lists every code a classifier may return
var AllLanguages = []LanguageCode{
	LanguageChinese, LanguageEnglish, LanguageJapanese,
	LanguageKorean, LanguageMixed, LanguageUnknown,
}

// LanguageVerdict is a classification with a confidence in [0,1]
type LanguageVerdict struct {
	Code       LanguageCode
	Confidence float64
}

// UnknownVerdict is returned whenever a sample is inconclusive
var UnknownVerdict = LanguageVerdict{Code: LanguageUnknown, Confidence: 0}

func (v LanguageVerdict) String() string {
	return fmt.Sprintf("%s(%.2f)", v.Code, v.Confidence)
}

// DocumentType is the structural category of a page
type DocumentType string

const (
	DocumentTable       DocumentType = "table"
	DocumentAcademic    DocumentType = "academic"
	DocumentChineseOnly DocumentType = "chinese_only"
	DocumentBatch       DocumentType = "batch"
	DocumentTechnical   DocumentType = "technical"
)

// AllDocumentTypes lists the tags in classifier priority order
var AllDocumentTypes = []DocumentType{
	DocumentTable, DocumentAcademic, DocumentChineseOnly, DocumentBatch, DocumentTechnical,
}

// OCRConfig is one concrete recognition configuration
type OCRConfig struct {
	Name          string `json:"name" yaml:"name"`
	LanguageModel string `json:"languageModel" yaml:"language_model"`
	PageSegMode   int    `json:"pageSegMode" yaml:"page_seg_mode"`
	DPI           int    `json:"dpi" yaml:"dpi"`
	Description   string `json:"description,omitempty" yaml:"description"`
}

// Validate checks the config invariants
func (c OCRConfig) Validate() error {
	if strings.TrimSpace(c.LanguageModel) == "" {
		return fmt.Errorf("ocr config %q: language model is required", c.Name)
	}
	if c.DPI <= 0 {
		return fmt.Errorf("ocr config %q: dpi must be positive, got %d", c.Name, c.DPI)
	}
	if c.PageSegMode < 0 || c.PageSegMode > 13 {
		return fmt.Errorf("ocr config %q: page segmentation mode out of range: %d", c.Name, c.PageSegMode)
	}
	return nil
}

// Languages splits a "+"-joined model into its language packs
func (c OCRConfig) Languages() []string {
	parts := strings.Split(c.LanguageModel, "+")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}

// PageResult is the recognized text of one page. Never mutated after
// it is appended to a DocumentResult.
type PageResult struct {
	PageNumber     int       `json:"pageNumber"`
	RecognizedText string    `json:"recognizedText"`
	ConfigUsed     OCRConfig `json:"configUsed"`
	Degraded       bool      `json:"degraded,omitempty"`
	FailedStage    string    `json:"failedStage,omitempty"`
}

// ConfigSummary records the options a conversion ran with
type ConfigSummary struct {
	EnhanceQuality        bool     `json:"enhanceQuality"`
	LanguageDetection     bool     `json:"languageDetection"`
	DocumentTypeDetection bool     `json:"documentTypeDetection"`
	OCRQuality            Quality  `json:"ocrQuality"`
	TargetLanguages       []string `json:"targetLanguages,omitempty"`
	FixConfusions         bool     `json:"fixConfusions"`
	ScaleFactor           float64  `json:"scaleFactor"`
	DegradedPages         []int    `json:"degradedPages,omitempty"`
}

// Metadata describes one conversion run
type Metadata struct {
	SourceFile          string        `json:"sourceFile"`
	SourceSize          int64         `json:"sourceSize"`
	TotalPages          int           `json:"totalPages"`
	ProcessingTimestamp time.Time     `json:"processingTimestamp"`
	ProcessingTime      time.Duration `json:"processingTime"`
	ConfigSummary       ConfigSummary `json:"configSummary"`
}

// DocumentResult is the assembled output of a conversion run
type DocumentResult struct {
	Pages       []PageResult `json:"pages"`
	CleanedText string       `json:"cleanedText"`
	Metadata    Metadata     `json:"metadata"`
}

// DegradedPages returns the page numbers that produced no text because of a failure
func (d *DocumentResult) DegradedPages() []int {
	var pages []int
	for _, p := range d.Pages {
		if p.Degraded {
			pages = append(pages, p.PageNumber)
		}
	}
	return pages
}
