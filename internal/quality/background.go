package quality

import (
	"errors"
	"math"

	"nebulapilot/internal/fits"
)

// background is a coarse spatial background model: a mesh of sigma-clipped
// cell estimates interpolated bilinearly across the frame.
type background struct {
	nx, ny     int
	cellW      int
	cellH      int
	back       []float64 // nx*ny cell background levels
	globalBack float64
	globalRMS  float64
}

func estimateBackground(img *fits.Image) (*background, error) {
	w, h := img.Width, img.Height
	if w < 8 || h < 8 {
		return nil, errors.New("image too small")
	}

	nx := (w + backBoxSize - 1) / backBoxSize
	ny := (h + backBoxSize - 1) / backBoxSize

	b := &background{
		nx:    nx,
		ny:    ny,
		cellW: backBoxSize,
		cellH: backBoxSize,
		back:  make([]float64, nx*ny),
	}

	var sumBack, sumRMS float64
	for cy := 0; cy < ny; cy++ {
		for cx := 0; cx < nx; cx++ {
			x0, y0 := cx*backBoxSize, cy*backBoxSize
			x1, y1 := min(x0+backBoxSize, w), min(y0+backBoxSize, h)
			cell := make([]float64, 0, (x1-x0)*(y1-y0))
			for y := y0; y < y1; y++ {
				cell = append(cell, img.Pix[y*w+x0:y*w+x1]...)
			}
			mean, sigma := clippedStats(cell)
			b.back[cy*nx+cx] = mean
			sumBack += mean
			sumRMS += sigma
		}
	}
	cells := float64(nx * ny)
	b.globalBack = sumBack / cells
	b.globalRMS = sumRMS / cells

	if b.globalRMS <= 0 {
		return nil, errors.New("flat image, no pixel variance")
	}
	return b, nil
}

// modelAt interpolates the cell mesh at pixel (x, y).
func (b *background) modelAt(x, y int) float64 {
	// Position in cell-center coordinates.
	fx := (float64(x)+0.5)/float64(b.cellW) - 0.5
	fy := (float64(y)+0.5)/float64(b.cellH) - 0.5

	cx0 := int(math.Floor(fx))
	cy0 := int(math.Floor(fy))
	tx := fx - float64(cx0)
	ty := fy - float64(cy0)

	cx0 = clamp(cx0, 0, b.nx-1)
	cy0 = clamp(cy0, 0, b.ny-1)
	cx1 := clamp(cx0+1, 0, b.nx-1)
	cy1 := clamp(cy0+1, 0, b.ny-1)

	v00 := b.back[cy0*b.nx+cx0]
	v10 := b.back[cy0*b.nx+cx1]
	v01 := b.back[cy1*b.nx+cx0]
	v11 := b.back[cy1*b.nx+cx1]

	top := v00*(1-tx) + v10*tx
	bot := v01*(1-tx) + v11*tx
	return top*(1-ty) + bot*ty
}

// clippedStats iteratively rejects outliers beyond 3 sigma and returns the
// mean and standard deviation of what survives, so stars do not drag the
// cell estimate upward.
func clippedStats(vals []float64) (mean, sigma float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	work := append([]float64(nil), vals...)
	for iter := 0; iter < 3; iter++ {
		mean, sigma = meanStddev(work)
		if sigma == 0 {
			return mean, 0
		}
		kept := work[:0]
		lo, hi := mean-3*sigma, mean+3*sigma
		for _, v := range work {
			if v >= lo && v <= hi {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(work) || len(kept) == 0 {
			break
		}
		work = kept
	}
	return meanStddev(work)
}

func meanStddev(vals []float64) (mean, sigma float64) {
	n := float64(len(vals))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / n
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
