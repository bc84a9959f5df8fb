package types

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Quality biases render scale and recognition DPI
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityAccurate Quality = "accurate"
)

// ParseQuality accepts fast, balanced or accurate (case-insensitive).
// An empty string means balanced.
func ParseQuality(s string) (Quality, error) {
	switch Quality(strings.ToLower(strings.TrimSpace(s))) {
	case "", QualityBalanced:
		return QualityBalanced, nil
	case QualityFast:
		return QualityFast, nil
	case QualityAccurate:
		return QualityAccurate, nil
	}
	return "", fmt.Errorf("unknown ocr quality %q (want fast, balanced or accurate)", s)
}

// Options are the per-conversion switches
type Options struct {
	EnhanceQuality        bool     `json:"enhanceQuality"`
	LanguageDetection     bool     `json:"languageDetection"`
	DocumentTypeDetection bool     `json:"documentTypeDetection"`
	OCRQuality            Quality  `json:"ocrQuality"`
	TargetLanguages       []string `json:"targetLanguages,omitempty"`
	FixConfusions         bool     `json:"fixConfusions"`
}

// DefaultOptions enables every detection stage at balanced quality
func DefaultOptions() Options {
	return Options{
		EnhanceQuality:        true,
		LanguageDetection:     true,
		DocumentTypeDetection: true,
		OCRQuality:            QualityBalanced,
		TargetLanguages:       []string{"zh", "en"},
		FixConfusions:         true,
	}
}

// UnmarshalJSON decodes over DefaultOptions, so switches missing from the
// payload stay enabled. A missing ocrQuality stays empty for the caller's default.
func (o *Options) UnmarshalJSON(data []byte) error {
	type plain Options
	opts := plain(DefaultOptions())
	opts.OCRQuality = ""
	if err := json.Unmarshal(data, &opts); err != nil {
		return err
	}
	*o = Options(opts)
	return nil
}

// Source is a PDF given either by path or by content
type Source struct {
	Path string
	Data []byte
	Name string
}

// DisplayName is the file name used in metadata and titles
func (s Source) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Path != "" {
		return filepath.Base(s.Path)
	}
	return "document.pdf"
}

// Stem is the display name without its extension
func (s Source) Stem() string {
	name := s.DisplayName()
	return strings.TrimSuffix(name, filepath.Ext(name))
}
