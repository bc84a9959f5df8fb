package processor

import (
	"github.com/adverant/nexus/scanocr-worker/internal/langdetect"
	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/ocr"
	"github.com/adverant/nexus/scanocr-worker/internal/render"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
)

// NewTesseractProcessor wires the production pipeline: MuPDF rendering,
// Tesseract recognition and whatlanggo language identification.
func NewTesseractProcessor(t *tuning.Tuning, tessdataPrefix string, logger *logging.Logger) (*ScanProcessor, error) {
	return NewScanProcessor(&ProcessorConfig{
		Opener:   render.NewFitzOpener(),
		Engine:   ocr.NewTesseractEngine(ocr.TesseractConfig{TessdataPrefix: tessdataPrefix}, logger),
		Tuning:   t,
		Detector: langdetect.NewWhatlangDetector(),
		Logger:   logger,
	})
}
