package langdetect

import (
	"fmt"

	"github.com/abadojack/whatlanggo"
)

// WhatlangDetector identifies languages with whatlanggo trigram models
type WhatlangDetector struct{}

// NewWhatlangDetector creates the default statistical detector
func NewWhatlangDetector() *WhatlangDetector {
	return &WhatlangDetector{}
}

// Identify returns the ISO 639-1 tag of the detected language
func (d *WhatlangDetector) Identify(text string) (string, float64, error) {
	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return "", 0, fmt.Errorf("language could not be determined")
	}
	tag := info.Lang.Iso6391()
	if tag == "" {
		return "", 0, fmt.Errorf("detected language %d has no two-letter code", int(info.Lang))
	}
	return tag, info.Confidence, nil
}
