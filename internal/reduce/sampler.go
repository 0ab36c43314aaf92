package reduce

import "image"

// Sampler chooses the pixels of a region that are classified to decide
// whether the region is uniform. Every returned point must lie inside r.
type Sampler interface {
	Points(r Rect) []image.Point
}

// Corners samples the four corner pixels of a region. Degenerate regions
// (one pixel wide or tall) yield only the distinct corners.
type Corners struct{}

func (Corners) Points(r Rect) []image.Point {
	x0, y0 := r.X, r.Y
	x1, y1 := r.X+r.Width-1, r.Y+r.Height-1
	pts := make([]image.Point, 0, 4)
	pts = append(pts, image.Pt(x0, y0))
	if x1 != x0 {
		pts = append(pts, image.Pt(x1, y0))
	}
	if y1 != y0 {
		pts = append(pts, image.Pt(x0, y1))
		if x1 != x0 {
			pts = append(pts, image.Pt(x1, y1))
		}
	}
	return pts
}

// Grid samples a lattice with at most MaxCell pixels between neighbouring
// samples, always including the first and last row and column. Interior
// lattice lines lie on multiples of MaxCell in raster coordinates, so the
// sub-regions of a split share most of their samples with the parent. It
// catches features narrower than the region that Corners would miss. Regions
// no larger than one cell in both directions are sampled at their corners.
// MaxCell < 1 is treated as 1.
type Grid struct {
	MaxCell int
}

func (g Grid) Points(r Rect) []image.Point {
	step := g.MaxCell
	if step < 1 {
		step = 1
	}
	if r.Width <= step && r.Height <= step {
		return Corners{}.Points(r)
	}
	xs := axis(r.X, r.Width, step)
	ys := axis(r.Y, r.Height, step)
	pts := make([]image.Point, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			pts = append(pts, image.Pt(x, y))
		}
	}
	return pts
}

// axis returns start, the multiples of step strictly between start and the
// last pixel, and the last pixel.
func axis(start, size, step int) []int {
	last := start + size - 1
	out := []int{start}
	v := start - start%step + step
	if start < 0 && start%step != 0 {
		v -= step
	}
	for ; v < last; v += step {
		out = append(out, v)
	}
	if last != start {
		out = append(out, last)
	}
	return out
}
