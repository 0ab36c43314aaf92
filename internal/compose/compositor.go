// Package compose runs layer paint jobs on a bounded worker pool and stacks
// their rasters onto one canvas in the order the layers were requested.
//
// Every job paints into its own raster, so jobs never share a drawing
// surface. The caller's goroutine is the only writer of the canvas and
// draws finished layers strictly in submission order, which makes the
// result independent of which worker finishes first.
package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/image/draw"

	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/metrics"
)

// DefaultWorkers is the pool size used when Config.Workers is not positive.
const DefaultWorkers = 30

const tracerName = "github.com/pspoerri/wmsoverlay/internal/compose"

// PaintFunc paints a layer into dst, a transparent raster of canvas size
// owned by the call.
type PaintFunc func(ctx context.Context, dst *image.RGBA) error

// Job is one layer to render.
type Job struct {
	Layer string
	Paint PaintFunc
}

// Config holds compositor configuration.
type Config struct {
	Workers int

	// LayerTimeout bounds each layer, measured from submission. Zero means
	// no limit beyond the context passed to Compose.
	LayerTimeout time.Duration

	// Background fills the canvas before any layer is drawn. Nil leaves it
	// transparent.
	Background color.Color

	// Drawer stacks a layer raster onto the canvas. Defaults to draw.Over.
	Drawer draw.Drawer

	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	TracerProvider trace.TracerProvider
}

// Compositor owns the worker pool. It is safe for concurrent use; jobs from
// concurrent Compose calls share the pool.
type Compositor struct {
	cfg    Config
	log    *slog.Logger
	tracer trace.Tracer

	tasks chan *task
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type task struct {
	ctx    context.Context
	cancel context.CancelFunc
	job    Job
	size   image.Point
	result chan layerResult // buffered, receives exactly one value
}

type layerResult struct {
	img *image.RGBA
	err error
	dur time.Duration
}

// New starts the worker pool.
func New(cfg Config) *Compositor {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Drawer == nil {
		cfg.Drawer = draw.Over
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	c := &Compositor{
		cfg:    cfg,
		log:    log,
		tracer: tp.Tracer(tracerName),
		tasks:  make(chan *task, cfg.Workers*2),
	}
	for w := 0; w < cfg.Workers; w++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Close stops the workers after queued jobs finish. It is idempotent.
func (c *Compositor) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.tasks)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// ComposeLayers renders the named layers from reg for proj. Unknown names are
// logged and skipped.
func (c *Compositor) ComposeLayers(ctx context.Context, proj *coord.Projection, names []string, reg *Registry) (*image.RGBA, error) {
	jobs, unknown := reg.Jobs(proj, names)
	for _, name := range unknown {
		c.log.Warn("unknown layer skipped", "layer", name)
		c.cfg.Metrics.ObserveLayer(name, metrics.OutcomeUnknown, 0)
	}
	t := proj.Target()
	return c.Compose(ctx, image.Pt(t.Width, t.Height), jobs)
}

// Compose paints jobs in parallel and draws them onto a new size.X×size.Y
// canvas in slice order. A failing layer is logged and left out; only a
// failure while drawing onto the canvas itself is returned as an error.
func (c *Compositor) Compose(ctx context.Context, size image.Point, jobs []Job) (canvas *image.RGBA, err error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("canvas size %v: %w", size, coord.ErrInvalidTarget)
	}
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "compose", trace.WithAttributes(
		attribute.Int("layers", len(jobs)),
		attribute.Int("width", size.X),
		attribute.Int("height", size.Y),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if !errors.Is(err, ErrClosed) {
			c.cfg.Metrics.ObserveComposite(err, time.Since(start))
		}
	}()

	tasks, err := c.submit(ctx, size, jobs)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, t := range tasks {
			t.cancel()
		}
	}()

	canvas = image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	if c.cfg.Background != nil {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(c.cfg.Background), image.Point{}, draw.Src)
	}

	var skipped int
	for _, t := range tasks {
		res := wait(t)
		t.cancel()
		if res.err != nil {
			skipped++
			c.skip(t.job.Layer, res)
			continue
		}
		c.cfg.Metrics.ObserveLayer(t.job.Layer, metrics.OutcomeOK, res.dur)
		if err := c.draw(canvas, t.job.Layer, res.img); err != nil {
			return nil, err
		}
		putRaster(res.img)
	}
	span.SetAttributes(attribute.Int("skipped", skipped))
	c.log.Debug("composite finished", "layers", len(jobs), "skipped", skipped, "duration", time.Since(start))
	return canvas, nil
}

// submit queues one task per job. If ctx ends while the queue is full, the
// remaining jobs are failed without running.
func (c *Compositor) submit(ctx context.Context, size image.Point, jobs []Job) ([]*task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	tasks := make([]*task, len(jobs))
	for i, job := range jobs {
		t := &task{job: job, size: size, result: make(chan layerResult, 1)}
		if c.cfg.LayerTimeout > 0 {
			t.ctx, t.cancel = context.WithTimeout(ctx, c.cfg.LayerTimeout)
		} else {
			t.ctx, t.cancel = context.WithCancel(ctx)
		}
		tasks[i] = t

		select {
		case c.tasks <- t:
		case <-t.ctx.Done():
			t.result <- layerResult{err: t.ctx.Err()}
		}
	}
	return tasks, nil
}

// wait blocks for t's result, giving up when t's context ends. A result that
// is already available wins over an expired context.
func wait(t *task) layerResult {
	select {
	case res := <-t.result:
		return res
	case <-t.ctx.Done():
		select {
		case res := <-t.result:
			return res
		default:
			return layerResult{err: t.ctx.Err()}
		}
	}
}

func (c *Compositor) skip(layer string, res layerResult) {
	outcome := metrics.OutcomeFailed
	if errors.Is(res.err, context.DeadlineExceeded) {
		outcome = metrics.OutcomeTimeout
	}
	c.cfg.Metrics.ObserveLayer(layer, outcome, res.dur)

	err := &LayerError{Layer: layer, Err: res.err}
	attrs := []any{"layer", layer, "error", err, "outcome", outcome}
	var pe *panicError
	if errors.As(res.err, &pe) {
		attrs = append(attrs, "stack", string(pe.stack))
	}
	c.log.Warn("layer skipped", attrs...)
}

func (c *Compositor) draw(canvas *image.RGBA, layer string, img *image.RGBA) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CanvasError{Layer: layer, Err: &panicError{value: r, stack: debug.Stack()}}
		}
	}()
	c.cfg.Drawer.Draw(canvas, canvas.Bounds(), img, image.Point{})
	return nil
}

func (c *Compositor) worker() {
	defer c.wg.Done()
	for t := range c.tasks {
		t.result <- c.run(t)
	}
}

// run paints one layer. Panics are recovered into the result.
func (c *Compositor) run(t *task) (res layerResult) {
	start := time.Now()
	ctx, span := c.tracer.Start(t.ctx, "layer", trace.WithAttributes(attribute.String("layer", t.job.Layer)))
	c.cfg.Metrics.WorkerStarted()
	defer func() {
		c.cfg.Metrics.WorkerDone()
		res.dur = time.Since(start)
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		}
		span.End()
	}()

	if err := t.ctx.Err(); err != nil {
		return layerResult{err: err}
	}

	img := getRaster(t.size.X, t.size.Y)
	defer func() {
		if r := recover(); r != nil {
			putRaster(img)
			res = layerResult{err: &panicError{value: r, stack: debug.Stack()}}
		}
	}()

	if err := t.job.Paint(ctx, img); err != nil {
		putRaster(img)
		return layerResult{err: err}
	}
	if err := t.ctx.Err(); err != nil {
		putRaster(img)
		return layerResult{err: err}
	}
	return layerResult{img: img}
}
