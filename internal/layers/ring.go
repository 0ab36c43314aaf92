package layers

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/paulmach/orb"

	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/geo"
)

// DefaultRingPoints is the number of vertices of a range ring outline.
const DefaultRingPoints = 180

// RangeRing marks the area within RadiusKm of Center.
type RangeRing struct {
	Common

	Center    geo.Position
	RadiusKm  float64
	Fill      color.Color
	Outline   color.Color
	LineWidth float64
	Points    int
}

// Paint renders the layer. It has the compose.LayerFunc signature.
func (r *RangeRing) Paint(ctx context.Context, dst *image.RGBA, proj *coord.Projection) error {
	if !(r.RadiusKm > 0) {
		return fmt.Errorf("range ring radius %v km must be positive", r.RadiusKm)
	}
	n := r.Points
	if n <= 0 {
		n = DefaultRingPoints
	}
	circle := Circle(r.Center, r.RadiusKm, n)
	if r.Fill != nil {
		common := r.Common
		common.Reduce = featureOptions(common.Reduce, proj, circleBound(circle))
		err := fillRegions(ctx, common, "range_ring", dst, proj,
			func(p geo.Position) bool { return p.DistanceKm(r.Center) <= r.RadiusKm },
			func(inside bool) color.Color {
				if inside {
					return r.Fill
				}
				return nil
			})
		if err != nil {
			return err
		}
	}
	if r.Outline != nil {
		width := r.LineWidth
		if width <= 0 {
			width = 1
		}
		paths := ScreenPaths(proj, circle, DefaultMaxGapPixels)
		strokePaths(dst, paths, r.Outline, width)
	}
	return ctx.Err()
}

func circleBound(ps []geo.Position) orb.Bound {
	mp := make(orb.MultiPoint, len(ps))
	for i, p := range ps {
		mp[i] = p.Point()
	}
	return mp.Bound()
}
