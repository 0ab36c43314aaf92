// Package reduce renders per-pixel classifications over a raster region by
// recursive subdivision. A region whose samples all classify alike is handed
// to the renderer in one call; otherwise it is split and each part is reduced
// on its own, down to single pixels.
//
// Sampling is a heuristic: a feature strictly inside a region that touches
// none of the sampled pixels is not seen. Use a denser Sampler (Grid) when
// features can be smaller than the regions being tested.
package reduce

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/pspoerri/wmsoverlay/internal/geo"
)

// Locator maps pixel coordinates to a geographic position.
// *coord.Projection satisfies it.
type Locator interface {
	ToGeo(x, y float64) geo.Position
}

// SplitPolicy selects how a non-uniform region is subdivided.
type SplitPolicy int

const (
	// SplitAdaptive halves a region across its longer side when the samples
	// vary only along that side, and quarters it otherwise. Straight
	// boundaries parallel to an axis produce fewer regions than with
	// SplitQuarter.
	SplitAdaptive SplitPolicy = iota
	// SplitQuarter always quarters, halving only when one side is a single pixel.
	SplitQuarter
)

func (s SplitPolicy) String() string {
	switch s {
	case SplitAdaptive:
		return "adaptive"
	case SplitQuarter:
		return "quarter"
	default:
		return fmt.Sprintf("SplitPolicy(%d)", int(s))
	}
}

// ParseSplitPolicy parses "adaptive" or "quarter".
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch s {
	case "", "adaptive":
		return SplitAdaptive, nil
	case "quarter":
		return SplitQuarter, nil
	default:
		return 0, fmt.Errorf("unknown split policy %q", s)
	}
}

// Options configures Region. The zero value samples corners and splits adaptively.
type Options struct {
	Sampler Sampler
	Split   SplitPolicy
	Logger  *slog.Logger
}

// Stats summarises one Region call.
type Stats struct {
	Regions         int // render calls
	Classifications int
	Failed          int // regions abandoned after a ClassificationError
}

// ClassificationError records a classify function that panicked while a
// region was being sampled.
type ClassificationError struct {
	Region Rect
	At     image.Point
	Value  any
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classifying pixel %v of region %v: %v", e.At, e.Region, e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *ClassificationError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

type reducer[T comparable] struct {
	ctx      context.Context
	loc      Locator
	classify func(geo.Position) T
	render   func(Rect, T)
	sampler  Sampler
	split    SplitPolicy
	log      *slog.Logger
	stats    Stats
	seen     map[image.Point]T // classified pixels
}

// Region classifies region and calls render once per uniform sub-region. The
// rendered rectangles partition region exactly, in a deterministic order, and
// the number of calls is between 1 and Width*Height for non-empty regions.
//
// Every pixel is classified at most once, so Stats.Classifications never
// exceeds the region's area. classify must be pure. If it panics, the region being sampled is logged,
// counted in Stats.Failed and left unrendered.
func Region[T comparable](loc Locator, region Rect, classify func(geo.Position) T, render func(Rect, T), opts Options) Stats {
	st, _ := RegionContext(context.Background(), loc, region, classify, render, opts)
	return st
}

// RegionContext is Region with cancellation. Once ctx is done no further
// regions are sampled or rendered and ctx.Err() is returned; regions already
// rendered stay rendered.
func RegionContext[T comparable](ctx context.Context, loc Locator, region Rect, classify func(geo.Position) T, render func(Rect, T), opts Options) (Stats, error) {
	r := &reducer[T]{
		ctx:      ctx,
		loc:      loc,
		classify: classify,
		render:   render,
		sampler:  opts.Sampler,
		split:    opts.Split,
		log:      opts.Logger,
		seen:     make(map[image.Point]T),
	}
	if r.sampler == nil {
		r.sampler = Corners{}
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if !region.Empty() {
		r.reduce(region)
	}
	return r.stats, ctx.Err()
}

func (r *reducer[T]) reduce(rect Rect) {
	if r.ctx.Err() != nil {
		return
	}
	if rect.Leaf() {
		v, err := r.classifyAt(rect, image.Pt(rect.X, rect.Y))
		if err != nil {
			r.fail(err)
			return
		}
		r.emit(rect, v)
		return
	}

	pts := r.sampler.Points(rect)
	if len(pts) == 0 {
		pts = Corners{}.Points(rect)
	}
	vals, err := r.sample(rect, pts)
	if err != nil {
		r.fail(err)
		return
	}
	if uniform(vals) {
		r.emit(rect, vals[0])
		return
	}

	for _, sub := range r.subdivide(rect, pts, vals) {
		r.reduce(sub)
	}
}

func (r *reducer[T]) sample(rect Rect, pts []image.Point) ([]T, error) {
	vals := make([]T, 0, len(pts))
	for _, p := range pts {
		v, err := r.classifyAt(rect, p)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (r *reducer[T]) classifyAt(rect Rect, p image.Point) (v T, err error) {
	if v, ok := r.seen[p]; ok {
		return v, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = &ClassificationError{Region: rect, At: p, Value: rec}
		}
	}()
	r.stats.Classifications++
	v = r.classify(r.loc.ToGeo(float64(p.X)+0.5, float64(p.Y)+0.5))
	r.seen[p] = v
	return v, nil
}

func (r *reducer[T]) emit(rect Rect, v T) {
	r.stats.Regions++
	r.render(rect, v)
}

func (r *reducer[T]) fail(err error) {
	r.stats.Failed++
	r.log.Warn("region left unpainted", "error", err)
}

func (r *reducer[T]) subdivide(rect Rect, pts []image.Point, vals []T) []Rect {
	if r.split == SplitAdaptive {
		// Halving keeps the samples' other axis, so it is only done along the
		// longer side. Wide strips with few sampled columns would miss
		// features between them.
		if rect.Width > 1 && rect.Width >= rect.Height && uniformAlong(pts, vals, func(p image.Point) int { return p.X }) {
			return rect.halveX()
		}
		if rect.Height > 1 && rect.Height >= rect.Width && uniformAlong(pts, vals, func(p image.Point) int { return p.Y }) {
			return rect.halveY()
		}
	}
	switch {
	case rect.Width > 1 && rect.Height > 1:
		return rect.quarter()
	case rect.Width > 1:
		return rect.halveX()
	default:
		return rect.halveY()
	}
}

func uniform[T comparable](vals []T) bool {
	for _, v := range vals[1:] {
		if v != vals[0] {
			return false
		}
	}
	return true
}

// uniformAlong reports whether samples sharing the same key (a column or a
// row) all classify alike.
func uniformAlong[T comparable](pts []image.Point, vals []T, key func(image.Point) int) bool {
	seen := make(map[int]T, len(pts))
	for i, p := range pts {
		k := key(p)
		if v, ok := seen[k]; ok && v != vals[i] {
			return false
		}
		seen[k] = vals[i]
	}
	return true
}
