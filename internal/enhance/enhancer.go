/**
 * Image Enhancer
 *
 * Grayscale, local contrast (CLAHE), sharpening and edge-preserving
 * denoising applied to a rendered page before recognition. Every step is
 * optional. A failing step is skipped and the last good image flows on.
 */

package enhance

import (
	"fmt"
	"image"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"golang.org/x/image/draw"
)

// StepReport records the outcome of one enhancement step
type StepReport struct {
	Name    string
	Applied bool
	Err     error
}

type step struct {
	name    string
	enabled bool
	apply   func(*image.Gray) (*image.Gray, error)
}

// Enhancer runs the configured steps in order
type Enhancer struct {
	cfg    tuning.Enhance
	logger *logging.Logger
}

// NewEnhancer creates an enhancer for the given settings
func NewEnhancer(cfg tuning.Enhance, logger *logging.Logger) *Enhancer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Enhancer{cfg: cfg, logger: logger}
}

// Enhance returns the enhanced image and one report per enabled step.
// The output always has the same width and height as the input.
func (e *Enhancer) Enhance(img image.Image) (image.Image, []StepReport) {
	var reports []StepReport
	if img == nil {
		return nil, reports
	}

	current := img
	if e.cfg.Grayscale {
		gray, err := runStep(func() (*image.Gray, error) { return Grayscale(img), nil })
		reports = append(reports, StepReport{Name: "grayscale", Applied: err == nil, Err: err})
		if err == nil {
			current = gray
		}
	}

	steps := []step{
		{"clahe", e.cfg.CLAHE, func(g *image.Gray) (*image.Gray, error) {
			return CLAHE(g, e.cfg.ClipLimit, e.cfg.TileGridX, e.cfg.TileGridY)
		}},
		{"sharpen", e.cfg.Sharpen, func(g *image.Gray) (*image.Gray, error) {
			return Convolve3x3(g, e.cfg.SharpenKernel)
		}},
		{"denoise", e.cfg.Denoise, func(g *image.Gray) (*image.Gray, error) {
			return Bilateral(g, e.cfg.BilateralD, e.cfg.SigmaColor, e.cfg.SigmaSpace)
		}},
	}

	for _, s := range steps {
		if !s.enabled {
			continue
		}
		gray, ok := current.(*image.Gray)
		if !ok {
			err := fmt.Errorf("%s requires a grayscale image, got %T", s.name, current)
			reports = append(reports, StepReport{Name: s.name, Err: err})
			e.logger.Warn("Enhancement step skipped", "step", s.name, "error", err)
			continue
		}
		out, err := runStep(func() (*image.Gray, error) { return s.apply(gray) })
		if err != nil {
			reports = append(reports, StepReport{Name: s.name, Err: err})
			e.logger.Warn("Enhancement step failed, passing image through", "step", s.name, "error", err)
			continue
		}
		reports = append(reports, StepReport{Name: s.name, Applied: true})
		current = out
	}

	return current, reports
}

// runStep turns a panicking step into an error
func runStep(fn func() (*image.Gray, error)) (out *image.Gray, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = fn()
	if err == nil && out == nil {
		err = fmt.Errorf("step produced no image")
	}
	return out, err
}

// Grayscale converts any image to an 8-bit gray image anchored at the origin
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
