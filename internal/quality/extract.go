package quality

import "math"

// source is one detected star candidate. a and b are the RMS semi-axis
// lengths (Gaussian sigma) of the intensity-weighted light distribution.
type source struct {
	area int
	a, b float64
}

// extractSources finds connected regions of background-subtracted pixels
// above threshold with at least minArea members (8-connectivity), and
// measures each region's second moments.
func extractSources(sub []float64, w, h int, threshold float64, minArea int) []source {
	if threshold <= 0 {
		return nil
	}
	visited := make([]bool, len(sub))
	var sources []source
	stack := make([]int, 0, 256)

	for start := range sub {
		if visited[start] || sub[start] < threshold {
			continue
		}
		// Flood-fill this region.
		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true
		var members []int
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, idx)

			x, y := idx%w, idx/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if !visited[nidx] && sub[nidx] >= threshold {
						visited[nidx] = true
						stack = append(stack, nidx)
					}
				}
			}
		}
		if len(members) < minArea {
			continue
		}
		if s, ok := measureMoments(sub, w, members); ok {
			sources = append(sources, s)
		}
	}
	return sources
}

// measureMoments computes the intensity-weighted covariance of a region and
// converts its eigenvalues into semi-axis sigmas.
func measureMoments(sub []float64, w int, members []int) (source, bool) {
	var flux, mx, my float64
	for _, idx := range members {
		v := sub[idx]
		x, y := float64(idx%w), float64(idx/w)
		flux += v
		mx += v * x
		my += v * y
	}
	if flux <= 0 {
		return source{}, false
	}
	mx /= flux
	my /= flux

	var cxx, cyy, cxy float64
	for _, idx := range members {
		v := sub[idx]
		dx := float64(idx%w) - mx
		dy := float64(idx/w) - my
		cxx += v * dx * dx
		cyy += v * dy * dy
		cxy += v * dx * dy
	}
	cxx /= flux
	cyy /= flux
	cxy /= flux

	// Eigenvalues of the 2x2 covariance matrix.
	tr := (cxx + cyy) / 2
	det := math.Sqrt((cxx-cyy)*(cxx-cyy)/4 + cxy*cxy)
	l1 := tr + det
	l2 := tr - det
	if l1 <= 0 || l2 <= 0 {
		return source{}, false
	}
	return source{
		area: len(members),
		a:    math.Sqrt(l1),
		b:    math.Sqrt(l2),
	}, true
}
