package enhance

import (
	"fmt"
	"image"
	"math"
)

// CLAHE applies contrast-limited adaptive histogram equalization over a
// gridX x gridY tile grid. clipLimit is relative to the uniform bin height.
func CLAHE(src *image.Gray, clipLimit float64, gridX, gridY int) (*image.Gray, error) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if gridX <= 0 || gridY <= 0 {
		return nil, fmt.Errorf("invalid tile grid %dx%d", gridX, gridY)
	}
	if w < gridX || h < gridY {
		return nil, fmt.Errorf("image %dx%d smaller than tile grid %dx%d", w, h, gridX, gridY)
	}

	luts := make([][256]uint8, gridX*gridY)
	for ty := 0; ty < gridY; ty++ {
		for tx := 0; tx < gridX; tx++ {
			x0, x1 := tx*w/gridX, (tx+1)*w/gridX
			y0, y1 := ty*h/gridY, (ty+1)*h/gridY
			luts[ty*gridX+tx] = tileLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	tileW := float64(w) / float64(gridX)
	tileH := float64(h) / float64(gridY)
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		ty1, ty2, ay := neighbours(float64(y), tileH, gridY)
		for x := 0; x < w; x++ {
			tx1, tx2, ax := neighbours(float64(x), tileW, gridX)
			v := src.Pix[y*src.Stride+x]

			top := (1-ax)*float64(luts[ty1*gridX+tx1][v]) + ax*float64(luts[ty1*gridX+tx2][v])
			bottom := (1-ax)*float64(luts[ty2*gridX+tx1][v]) + ax*float64(luts[ty2*gridX+tx2][v])
			dst.Pix[y*dst.Stride+x] = clamp8((1-ay)*top + ay*bottom)
		}
	}
	return dst, nil
}

// neighbours returns the two tile indices whose centres bracket pos and the
// interpolation weight of the second one.
func neighbours(pos, tileSize float64, n int) (int, int, float64) {
	f := (pos+0.5)/tileSize - 0.5
	if f <= 0 {
		return 0, 0, 0
	}
	i := int(math.Floor(f))
	if i >= n-1 {
		return n - 1, n - 1, 0
	}
	return i, i + 1, f - float64(i)
}

func tileLUT(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		row := src.Pix[y*src.Stride:]
		for x := x0; x < x1; x++ {
			hist[row[x]]++
		}
	}

	area := (x1 - x0) * (y1 - y0)
	if clipLimit > 0 {
		limit := int(clipLimit * float64(area) / 256)
		if limit < 1 {
			limit = 1
		}
		excess := 0
		for i := range hist {
			if hist[i] > limit {
				excess += hist[i] - limit
				hist[i] = limit
			}
		}
		batch := excess / 256
		residual := excess - batch*256
		for i := range hist {
			hist[i] += batch
		}
		if residual > 0 {
			stride := 256 / residual
			if stride < 1 {
				stride = 1
			}
			for i := 0; i < 256 && residual > 0; i += stride {
				hist[i]++
				residual--
			}
		}
	}

	var lut [256]uint8
	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = clamp8(float64(sum) * scale)
	}
	return lut
}

// Convolve3x3 applies a 3x3 kernel (row-major) with replicated borders
func Convolve3x3(src *image.Gray, kernel []int) (*image.Gray, error) {
	if len(kernel) != 9 {
		return nil, fmt.Errorf("kernel must have 9 entries, got %d", len(kernel))
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += kernel[k] * int(pixel(src, x+dx, y+dy))
					k++
				}
			}
			dst.Pix[y*dst.Stride+x] = clamp8(float64(sum))
		}
	}
	return dst, nil
}

// Bilateral smooths flat regions while keeping edges. d is the neighbourhood
// diameter; sigmaColor and sigmaSpace weight intensity and distance.
func Bilateral(src *image.Gray, d int, sigmaColor, sigmaSpace float64) (*image.Gray, error) {
	if d <= 0 {
		return nil, fmt.Errorf("bilateral diameter must be positive, got %d", d)
	}
	if sigmaColor <= 0 || sigmaSpace <= 0 {
		return nil, fmt.Errorf("bilateral sigmas must be positive")
	}
	radius := d / 2
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	var colorWeight [256]float64
	for i := range colorWeight {
		colorWeight[i] = math.Exp(-float64(i*i) / (2 * sigmaColor * sigmaColor))
	}

	type offset struct {
		dx, dy int
		w      float64
	}
	var offsets []offset
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r2 := dx*dx + dy*dy
			if r2 > radius*radius {
				continue
			}
			offsets = append(offsets, offset{dx, dy, math.Exp(-float64(r2) / (2 * sigmaSpace * sigmaSpace))})
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := int(pixel(src, x, y))
			var sum, norm float64
			for _, o := range offsets {
				v := int(pixel(src, x+o.dx, y+o.dy))
				diff := v - center
				if diff < 0 {
					diff = -diff
				}
				wt := o.w * colorWeight[diff]
				sum += wt * float64(v)
				norm += wt
			}
			dst.Pix[y*dst.Stride+x] = clamp8(sum / norm)
		}
	}
	return dst, nil
}

// pixel reads (x,y) relative to the image origin with replicated borders
func pixel(img *image.Gray, x, y int) uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if x < 0 {
		x = 0
	} else if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= h {
		y = h - 1
	}
	return img.Pix[y*img.Stride+x]
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
