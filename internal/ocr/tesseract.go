/**
 * Tesseract OCR engine
 *
 * Runs libtesseract through gosseract. A fresh client is created for every
 * call, so one engine may be shared by concurrent conversions.
 */

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/otiai10/gosseract/v2"
)

// Engine recognizes the text of one page image with a given configuration
type Engine interface {
	Recognize(ctx context.Context, img image.Image, cfg types.OCRConfig) (string, error)
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	// TessdataPrefix overrides the directory holding the traineddata files
	TessdataPrefix string
}

// TesseractEngine handles OCR using Tesseract
type TesseractEngine struct {
	tessdataPrefix string
	logger         *logging.Logger
}

// NewTesseractEngine creates a new Tesseract engine
func NewTesseractEngine(cfg TesseractConfig, logger *logging.Logger) *TesseractEngine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TesseractEngine{tessdataPrefix: cfg.TessdataPrefix, logger: logger}
}

// Recognize performs OCR with the model, segmentation mode and DPI of cfg
func (t *TesseractEngine) Recognize(ctx context.Context, img image.Image, cfg types.OCRConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if img == nil {
		return "", fmt.Errorf("no image to recognize")
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	startTime := time.Now()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode page image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(cfg.Languages()...); err != nil {
		return "", fmt.Errorf("failed to set language %q: %w", cfg.LanguageModel, err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode %d: %w", cfg.PageSegMode, err)
	}
	if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(cfg.DPI)); err != nil {
		return "", fmt.Errorf("failed to set dpi %d: %w", cfg.DPI, err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	t.logger.Debug("Tesseract recognition complete",
		"config", cfg.Name,
		"language_model", cfg.LanguageModel,
		"psm", cfg.PageSegMode,
		"dpi", cfg.DPI,
		"chars", len([]rune(text)),
		"duration", time.Since(startTime).String())

	return text, nil
}
