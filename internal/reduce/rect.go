package reduce

import (
	"fmt"
	"image"
)

// Rect is a pixel rectangle with its origin at the top-left corner.
type Rect struct {
	X, Y          int
	Width, Height int
}

// FromImage converts an image.Rectangle.
func FromImage(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Image returns the rectangle as an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Area returns Width*Height, or 0 for empty rectangles.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Leaf reports whether r is a single pixel.
func (r Rect) Leaf() bool { return r.Width == 1 && r.Height == 1 }

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// quarter splits r into top-left, top-right, bottom-left, bottom-right.
// The first half of each dimension gets the smaller share of odd sizes.
func (r Rect) quarter() []Rect {
	w0, h0 := r.Width/2, r.Height/2
	w1, h1 := r.Width-w0, r.Height-h0
	return []Rect{
		{r.X, r.Y, w0, h0},
		{r.X + w0, r.Y, w1, h0},
		{r.X, r.Y + h0, w0, h1},
		{r.X + w0, r.Y + h0, w1, h1},
	}
}

// halveX splits r into a left and a right half.
func (r Rect) halveX() []Rect {
	w0 := r.Width / 2
	return []Rect{
		{r.X, r.Y, w0, r.Height},
		{r.X + w0, r.Y, r.Width - w0, r.Height},
	}
}

// halveY splits r into a top and a bottom half.
func (r Rect) halveY() []Rect {
	h0 := r.Height / 2
	return []Rect{
		{r.X, r.Y, r.Width, h0},
		{r.X, r.Y + h0, r.Width, r.Height - h0},
	}
}
