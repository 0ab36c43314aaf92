package layers

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/fogleman/gg"

	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/geo"
)

// DefaultMarkerSize is the diameter in pixels of the sub-solar marker.
const DefaultMarkerSize = 30

// DefaultShades returns the fill colour per twilight class. Daylight is not
// painted.
func DefaultShades() map[Twilight]color.Color {
	return map[Twilight]color.Color{
		Night:        color.Black,
		Astronomical: color.RGBA{50, 50, 50, 255},
		Nautical:     color.RGBA{100, 100, 100, 255},
		Civil:        color.RGBA{150, 150, 150, 255},
	}
}

// Darkness shades the night side of the earth by twilight class and marks
// the sub-solar point.
type Darkness struct {
	Common

	// Now returns the time to render for. Defaults to time.Now.
	Now func() time.Time

	Shades      map[Twilight]color.Color // defaults to DefaultShades
	MarkerSize  int                      // 0 means DefaultMarkerSize, negative hides the marker
	MarkerColor color.Color              // defaults to yellow
}

// Paint renders the layer. It has the compose.LayerFunc signature.
func (d *Darkness) Paint(ctx context.Context, dst *image.RGBA, proj *coord.Projection) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	sub := SubSolarPoint(now().UTC())
	shades := d.Shades
	if shades == nil {
		shades = DefaultShades()
	}

	err := fillRegions(ctx, d.Common, "darkness", dst, proj,
		func(p geo.Position) Twilight { return TwilightAt(sub, p) },
		func(t Twilight) color.Color { return shades[t] })
	if err != nil {
		return err
	}
	d.drawMarker(dst, proj, sub)
	return nil
}

func (d *Darkness) drawMarker(dst *image.RGBA, proj *coord.Projection, sub geo.Position) {
	size := d.MarkerSize
	if size == 0 {
		size = DefaultMarkerSize
	}
	if size < 0 {
		return
	}
	col := d.MarkerColor
	if col == nil {
		col = color.RGBA{255, 255, 0, 255}
	}
	x, y := proj.ToPixel(sub.Lat(), sub.Lon())
	dc := gg.NewContextForRGBA(dst)
	dc.DrawCircle(x, y, float64(size)/2)
	dc.SetColor(col)
	dc.Fill()
}
