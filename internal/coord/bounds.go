package coord

import (
	"fmt"
	"math"
)

// Bounds is a request extent in the projected units of SRS.
// MinX > MaxX denotes a window that crosses the antimeridian.
type Bounds struct {
	SRS  string
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// SizeX returns the projected width. It is negative for antimeridian windows.
func (b Bounds) SizeX() float64 { return b.MaxX - b.MinX }

// SizeY returns the projected height.
func (b Bounds) SizeY() float64 { return b.MaxY - b.MinY }

// Validate checks that the bounds describe a non-degenerate, finite area.
func (b Bounds) Validate() error {
	for _, v := range [...]float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %v", ErrZeroExtent, b)
		}
	}
	if b.MinX == b.MaxX || b.MinY >= b.MaxY {
		return fmt.Errorf("%w: %v", ErrZeroExtent, b)
	}
	return nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("%s[%g,%g,%g,%g]", b.SRS, b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Target is the pixel size of the raster being rendered.
type Target struct {
	Width  int
	Height int
}

// Validate checks that both dimensions are positive.
func (t Target) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidTarget, t.Width, t.Height)
	}
	return nil
}
