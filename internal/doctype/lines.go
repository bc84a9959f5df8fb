package doctype

import (
	"image"
	"math"
	"math/rand"

	"github.com/adverant/nexus/scanocr-worker/internal/enhance"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
)

// Segment is a detected line segment in pixel coordinates
type Segment struct {
	X1, Y1, X2, Y2 int
}

// Angle returns the unsigned segment angle in degrees, in [0,180]
func (s Segment) Angle() float64 {
	return math.Abs(math.Atan2(float64(s.Y2-s.Y1), float64(s.X2-s.X1)) * 180 / math.Pi)
}

// Length returns the Euclidean segment length
func (s Segment) Length() float64 {
	return math.Hypot(float64(s.X2-s.X1), float64(s.Y2-s.Y1))
}

// EdgeMap is a binary edge image
type EdgeMap struct {
	Width, Height int
	Pix           []bool
}

// At reports whether (x,y) is an edge pixel
func (e *EdgeMap) At(x, y int) bool {
	return e.Pix[y*e.Width+x]
}

// Count returns the number of edge pixels
func (e *EdgeMap) Count() int {
	n := 0
	for _, v := range e.Pix {
		if v {
			n++
		}
	}
	return n
}

// LineDetector finds straight segments on a page bitmap
type LineDetector struct {
	cfg tuning.Table
}

// NewLineDetector creates a detector with the given thresholds
func NewLineDetector(cfg tuning.Table) *LineDetector {
	return &LineDetector{cfg: cfg}
}

// Detect runs edge detection followed by the probabilistic Hough transform.
// The result is deterministic for a given image and seed.
func (d *LineDetector) Detect(img image.Image) []Segment {
	gray, ok := img.(*image.Gray)
	if !ok || gray.Rect.Min != (image.Point{}) {
		gray = enhance.Grayscale(img)
	}
	edges := Canny(gray, d.cfg.CannyLow, d.cfg.CannyHigh)
	return HoughLinesP(edges, d.cfg.HoughThreshold, d.cfg.MinLineLength, d.cfg.MaxLineGap, d.cfg.Seed)
}

// Canny computes a thin edge map using 3x3 Sobel gradients (L1 magnitude),
// non-maximum suppression and hysteresis between low and high.
func Canny(src *image.Gray, low, high float64) *EdgeMap {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	edges := &EdgeMap{Width: w, Height: h, Pix: make([]bool, w*h)}
	if w < 3 || h < 3 {
		return edges
	}

	px := func(x, y int) int { return int(src.Pix[y*src.Stride+x]) }

	mag := make([]int, w*h)
	gxs := make([]int, w*h)
	gys := make([]int, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1)
			gy := px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1)
			i := y*w + x
			gxs[i], gys[i] = gx, gy
			mag[i] = iabs(gx) + iabs(gy)
		}
	}

	const (
		weak   = 1
		strong = 2
	)
	state := make([]uint8, w*h)
	var stack []int

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if float64(m) <= low {
				continue
			}
			ax, ay := iabs(gxs[i]), iabs(gys[i])
			var prev, next int
			switch {
			case ay*1000 <= ax*414:
				prev, next = mag[i-1], mag[i+1]
			case ay*1000 >= ax*2414:
				prev, next = mag[i-w], mag[i+w]
			case (gxs[i] > 0) == (gys[i] > 0):
				prev, next = mag[i-w-1], mag[i+w+1]
			default:
				prev, next = mag[i-w+1], mag[i+w-1]
			}
			if !(m > prev && m >= next) {
				continue
			}
			if float64(m) > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		edges.Pix[i] = true
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}
	return edges
}

// HoughLinesP is the progressive probabilistic Hough transform with a 1 pixel
// rho step and a 1 degree theta step. Edge points are visited in a shuffled
// order seeded by seed, so the output is reproducible.
func HoughLinesP(edges *EdgeMap, threshold, minLineLength, maxLineGap int, seed int64) []Segment {
	w, h := edges.Width, edges.Height
	if w == 0 || h == 0 {
		return nil
	}

	const numAngle = 180
	numRho := 2*(w+h) + 1
	rhoOffset := (numRho - 1) / 2

	var cosT, sinT [numAngle]float64
	for n := 0; n < numAngle; n++ {
		theta := float64(n) * math.Pi / numAngle
		cosT[n], sinT[n] = math.Cos(theta), math.Sin(theta)
	}

	accum := make([]int32, numAngle*numRho)
	mask := make([]bool, len(edges.Pix))
	copy(mask, edges.Pix)
	voted := make([]bool, len(edges.Pix))

	points := make([]image.Point, 0, edges.Count())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if edges.Pix[y*w+x] {
				points = append(points, image.Point{X: x, Y: y})
			}
		}
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })

	unvote := func(x, y int) {
		for n := 0; n < numAngle; n++ {
			r := int(math.Round(float64(x)*cosT[n]+float64(y)*sinT[n])) + rhoOffset
			accum[n*numRho+r]--
		}
	}

	var segments []Segment
	for _, pt := range points {
		if !mask[pt.Y*w+pt.X] {
			continue
		}

		voted[pt.Y*w+pt.X] = true
		maxVal, maxN := int32(threshold-1), -1
		for n := 0; n < numAngle; n++ {
			r := int(math.Round(float64(pt.X)*cosT[n]+float64(pt.Y)*sinT[n])) + rhoOffset
			idx := n*numRho + r
			accum[idx]++
			if accum[idx] > maxVal {
				maxVal, maxN = accum[idx], n
			}
		}
		if maxN < 0 {
			continue
		}

		// walk along the line, perpendicular to the (cos, sin) normal
		a, b := -sinT[maxN], cosT[maxN]
		var dx0, dy0 float64
		if math.Abs(a) > math.Abs(b) {
			dx0, dy0 = math.Copysign(1, a), b/math.Abs(a)
		} else {
			dx0, dy0 = a/math.Abs(b), math.Copysign(1, b)
		}

		var ends [2]image.Point
		for k := 0; k < 2; k++ {
			dx, dy := dx0, dy0
			if k == 1 {
				dx, dy = -dx, -dy
			}
			gap := 0
			for fx, fy := float64(pt.X), float64(pt.Y); ; fx, fy = fx+dx, fy+dy {
				x, y := int(math.Round(fx)), int(math.Round(fy))
				if x < 0 || y < 0 || x >= w || y >= h {
					break
				}
				if mask[y*w+x] {
					gap = 0
					ends[k] = image.Point{X: x, Y: y}
				} else if gap++; gap > maxLineGap {
					break
				}
			}
		}

		good := iabs(ends[1].X-ends[0].X) >= minLineLength || iabs(ends[1].Y-ends[0].Y) >= minLineLength

		for k := 0; k < 2; k++ {
			dx, dy := dx0, dy0
			if k == 1 {
				dx, dy = -dx, -dy
			}
			for fx, fy := float64(pt.X), float64(pt.Y); ; fx, fy = fx+dx, fy+dy {
				x, y := int(math.Round(fx)), int(math.Round(fy))
				i := y*w + x
				if mask[i] {
					if good && voted[i] {
						unvote(x, y)
					}
					mask[i] = false
				}
				if x == ends[k].X && y == ends[k].Y {
					break
				}
			}
		}

		if good {
			segments = append(segments, Segment{X1: ends[0].X, Y1: ends[0].Y, X2: ends[1].X, Y2: ends[1].Y})
		}
	}
	return segments
}

func iabs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
