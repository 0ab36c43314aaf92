// Package layers provides the overlay layers that ship with the renderer:
// day/night twilight shading, geofence polygons and range rings. Each layer
// classifies positions with a pure function and fills uniform pixel regions
// found by the reducer, then draws vector decorations with gg.
package layers

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"golang.org/x/image/draw"

	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/geo"
	"github.com/pspoerri/wmsoverlay/internal/metrics"
	"github.com/pspoerri/wmsoverlay/internal/reduce"
)

// Common holds settings shared by all layers.
type Common struct {
	Reduce  reduce.Options
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c Common) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// fillRegions runs the reducer over the whole of dst and fills every region
// for which shade returns a non-nil colour.
func fillRegions[T comparable](ctx context.Context, c Common, name string, dst *image.RGBA, proj *coord.Projection,
	classify func(geo.Position) T, shade func(T) color.Color) error {
	opts := c.Reduce
	if opts.Logger == nil {
		opts.Logger = c.logger().With("layer", name)
	}
	render := func(r reduce.Rect, v T) {
		if col := shade(v); col != nil {
			draw.Draw(dst, r.Image(), image.NewUniform(col), image.Point{}, draw.Src)
		}
	}
	st, err := reduce.RegionContext(ctx, proj, reduce.FromImage(dst.Bounds()), classify, render, opts)
	c.Metrics.ObserveReduce(name, st.Regions, st.Classifications, st.Failed)
	c.logger().Debug("layer reduced", "layer", name, "regions", st.Regions,
		"classifications", st.Classifications, "failed", st.Failed)
	return err
}

// strokePaths draws pixel polylines onto dst.
func strokePaths(dst *image.RGBA, paths []orb.LineString, col color.Color, width float64) {
	if col == nil || len(paths) == 0 {
		return
	}
	dc := gg.NewContextForRGBA(dst)
	dc.SetColor(col)
	dc.SetLineWidth(width)
	for _, ls := range paths {
		dc.MoveTo(ls[0].X(), ls[0].Y())
		for _, p := range ls[1:] {
			dc.LineTo(p.X(), p.Y())
		}
		dc.Stroke()
	}
}

// maxGridCell caps the spacing of feature samplers so that large features
// still get a reasonably dense first look.
const maxGridCell = 64

// featureOptions returns reduce options whose sampler is fine enough to hit a
// feature with the given geographic bound at least once per axis. Corner
// sampling alone misses features that lie strictly inside a region. An
// explicitly configured sampler is kept.
func featureOptions(opts reduce.Options, proj *coord.Projection, b orb.Bound) reduce.Options {
	if opts.Sampler != nil {
		return opts
	}
	x0, y0 := proj.ToPixel(b.Min.Lat(), b.Min.Lon())
	x1, y1 := proj.ToPixel(b.Max.Lat(), b.Max.Lon())
	extent := math.Min(math.Abs(x1-x0), math.Abs(y1-y0))
	cell := int(extent / 3)
	cell = max(1, min(cell, maxGridCell))
	opts.Sampler = reduce.Grid{MaxCell: cell}
	return opts
}
