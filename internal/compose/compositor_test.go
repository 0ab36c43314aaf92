package compose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/image/draw"

	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/metrics"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestCompositor(t *testing.T, cfg Config) *Compositor {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quiet
	}
	c := New(cfg)
	t.Cleanup(c.Close)
	return c
}

// fill returns a job that paints r with col after an optional delay.
func fill(name string, r image.Rectangle, col color.Color, delay time.Duration) Job {
	return Job{Layer: name, Paint: func(ctx context.Context, dst *image.RGBA) error {
		if delay > 0 {
			time.Sleep(delay)
		}
		draw.Draw(dst, r, image.NewUniform(col), image.Point{}, draw.Src)
		return nil
	}}
}

func TestCompose_StackingOrder(t *testing.T) {
	c := newTestCompositor(t, Config{Workers: 4})
	full := image.Rect(0, 0, 8, 8)
	red := color.RGBA{255, 0, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}

	// The first layer finishes last; it must still be drawn first.
	jobs := []Job{
		fill("red", full, red, 30*time.Millisecond),
		fill("blue", image.Rect(0, 0, 4, 8), blue, 0),
	}
	img, err := c.Compose(context.Background(), image.Pt(8, 8), jobs)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(1, 1); got != blue {
		t.Errorf("pixel (1,1) = %v, want %v", got, blue)
	}
	if got := img.RGBAAt(6, 1); got != red {
		t.Errorf("pixel (6,1) = %v, want %v", got, red)
	}
}

func TestCompose_DeterministicUnderJitter(t *testing.T) {
	c := newTestCompositor(t, Config{Workers: 8})
	rng := rand.New(rand.NewSource(1))
	cols := []color.NRGBA{
		{255, 0, 0, 128},
		{0, 255, 0, 100},
		{0, 0, 255, 200},
		{255, 255, 0, 60},
		{0, 255, 255, 255},
	}
	rects := []image.Rectangle{
		image.Rect(0, 0, 20, 20),
		image.Rect(5, 5, 30, 25),
		image.Rect(10, 0, 32, 15),
		image.Rect(0, 10, 16, 32),
		image.Rect(12, 12, 18, 18),
	}

	var want []byte
	for run := 0; run < 8; run++ {
		jobs := make([]Job, len(cols))
		for i := range cols {
			delay := time.Duration(rng.Intn(15)) * time.Millisecond
			jobs[i] = fill(string(rune('a'+i)), rects[i], cols[i], delay)
		}
		img, err := c.Compose(context.Background(), image.Pt(32, 32), jobs)
		if err != nil {
			t.Fatal(err)
		}
		if want == nil {
			want = bytes.Clone(img.Pix)
			continue
		}
		if !bytes.Equal(img.Pix, want) {
			t.Fatalf("run %d: composite differs from run 0", run)
		}
	}
}

func TestCompose_FailedLayersSkipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := newTestCompositor(t, Config{Workers: 2, Metrics: m})
	green := color.RGBA{0, 255, 0, 255}

	jobs := []Job{
		fill("base", image.Rect(0, 0, 4, 4), green, 0),
		{Layer: "broken", Paint: func(context.Context, *image.RGBA) error {
			return errors.New("no data")
		}},
		{Layer: "panics", Paint: func(_ context.Context, dst *image.RGBA) error {
			draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
			panic("bad layer")
		}},
	}
	img, err := c.Compose(context.Background(), image.Pt(4, 4), jobs)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got := img.RGBAAt(x, y); got != green {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, green)
			}
		}
	}
	tests := []struct {
		layer, outcome string
		want           float64
	}{
		{"base", metrics.OutcomeOK, 1},
		{"broken", metrics.OutcomeFailed, 1},
		{"panics", metrics.OutcomeFailed, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.LayersTotal.WithLabelValues(tt.layer, tt.outcome)); got != tt.want {
			t.Errorf("layers_total{%s,%s} = %v, want %v", tt.layer, tt.outcome, got, tt.want)
		}
	}
}

func TestCompose_LayerTimeout(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := newTestCompositor(t, Config{Workers: 3, LayerTimeout: 20 * time.Millisecond, Metrics: m})
	blue := color.RGBA{0, 0, 255, 255}

	jobs := []Job{
		{Layer: "slow", Paint: func(ctx context.Context, dst *image.RGBA) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		}},
		{Layer: "stubborn", Paint: func(ctx context.Context, dst *image.RGBA) error {
			time.Sleep(60 * time.Millisecond)
			draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
			return nil
		}},
		fill("fast", image.Rect(0, 0, 2, 2), blue, 0),
	}
	start := time.Now()
	img, err := c.Compose(context.Background(), image.Pt(2, 2), jobs)
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("Compose took %v despite layer timeout", d)
	}
	if got := img.RGBAAt(0, 0); got != blue {
		t.Errorf("pixel (0,0) = %v, want %v", got, blue)
	}
	for _, layer := range []string{"slow", "stubborn"} {
		if got := testutil.ToFloat64(m.LayersTotal.WithLabelValues(layer, metrics.OutcomeTimeout)); got != 1 {
			t.Errorf("layers_total{%s,timeout} = %v, want 1", layer, got)
		}
	}
}

func TestCompose_CancelledContext(t *testing.T) {
	c := newTestCompositor(t, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	img, err := c.Compose(ctx, image.Pt(2, 2), []Job{{Layer: "x", Paint: func(context.Context, *image.RGBA) error {
		ran.Store(true)
		return nil
	}}})
	if err != nil {
		t.Fatal(err)
	}
	if ran.Load() {
		t.Error("job ran with a cancelled context")
	}
	for _, v := range img.Pix {
		if v != 0 {
			t.Fatal("cancelled composite is not transparent")
		}
	}
}

type panicDrawer struct{}

func (panicDrawer) Draw(draw.Image, image.Rectangle, image.Image, image.Point) {
	panic("canvas corrupted")
}

func TestCompose_CanvasError(t *testing.T) {
	c := newTestCompositor(t, Config{Workers: 2, Drawer: panicDrawer{}})
	_, err := c.Compose(context.Background(), image.Pt(2, 2), []Job{fill("a", image.Rect(0, 0, 1, 1), color.White, 0)})
	var ce *CanvasError
	if !errors.As(err, &ce) {
		t.Fatalf("Compose error = %v, want *CanvasError", err)
	}
	if ce.Layer != "a" {
		t.Errorf("CanvasError.Layer = %q, want a", ce.Layer)
	}
}

func TestCompose_Background(t *testing.T) {
	c := newTestCompositor(t, Config{Workers: 1, Background: color.White})
	img, err := c.Compose(context.Background(), image.Pt(3, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := color.RGBA{255, 255, 255, 255}
	if got := img.RGBAAt(2, 1); got != want {
		t.Errorf("background pixel = %v, want %v", got, want)
	}
}

func TestCompose_InvalidSize(t *testing.T) {
	c := newTestCompositor(t, Config{Workers: 1})
	if _, err := c.Compose(context.Background(), image.Pt(0, 5), nil); !errors.Is(err, coord.ErrInvalidTarget) {
		t.Errorf("Compose(0x5) error = %v, want ErrInvalidTarget", err)
	}
}

func TestCompose_Closed(t *testing.T) {
	c := New(Config{Workers: 2, Logger: quiet})
	c.Close()
	c.Close()
	if _, err := c.Compose(context.Background(), image.Pt(2, 2), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Compose after Close = %v, want ErrClosed", err)
	}
}

func TestCompose_BoundedWorkers(t *testing.T) {
	const workers = 3
	c := newTestCompositor(t, Config{Workers: workers})
	var running, peak atomic.Int32
	job := Job{Layer: "busy", Paint: func(context.Context, *image.RGBA) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	}}
	jobs := make([]Job, 12)
	for i := range jobs {
		jobs[i] = job
	}
	if _, err := c.Compose(context.Background(), image.Pt(1, 1), jobs); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p > workers {
		t.Errorf("peak concurrency = %d, want <= %d", p, workers)
	}
}

func TestCompose_ConcurrentCalls(t *testing.T) {
	c := newTestCompositor(t, Config{Workers: 4})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			col := color.RGBA{uint8(i * 30), 0, 0, 255}
			img, err := c.Compose(context.Background(), image.Pt(4, 4), []Job{
				fill("bg", image.Rect(0, 0, 4, 4), col, time.Duration(i)*time.Millisecond),
			})
			if err != nil {
				t.Errorf("Compose: %v", err)
				return
			}
			if got := img.RGBAAt(3, 3); got != col {
				t.Errorf("call %d: pixel = %v, want %v", i, got, col)
			}
		}(i)
	}
	wg.Wait()
}

func TestCompose_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	c := newTestCompositor(t, Config{Workers: 2, TracerProvider: tp})

	jobs := []Job{
		fill("ok", image.Rect(0, 0, 1, 1), color.White, 0),
		{Layer: "fails", Paint: func(context.Context, *image.RGBA) error { return errors.New("x") }},
	}
	if _, err := c.Compose(context.Background(), image.Pt(2, 2), jobs); err != nil {
		t.Fatal(err)
	}

	spans := rec.Ended()
	var compose sdktrace.ReadOnlySpan
	layers := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		switch s.Name() {
		case "compose":
			compose = s
		case "layer":
			for _, kv := range s.Attributes() {
				if kv.Key == "layer" {
					layers[kv.Value.AsString()] = s
				}
			}
		}
	}
	if compose == nil {
		t.Fatal("no compose span recorded")
	}
	if len(layers) != 2 {
		t.Fatalf("recorded %d layer spans, want 2", len(layers))
	}
	for name, s := range layers {
		if s.Parent().SpanID() != compose.SpanContext().SpanID() {
			t.Errorf("layer %q span is not a child of compose", name)
		}
	}
	if got := layers["fails"].Status().Code; got != codes.Error {
		t.Errorf("failing layer span status = %v, want Error", got)
	}
	if got := layers["ok"].Status().Code; got == codes.Error {
		t.Errorf("ok layer span status = %v", got)
	}
}

func TestRasterPool(t *testing.T) {
	img := getRaster(3, 2)
	img.Pix[0] = 99
	putRaster(img)
	again := getRaster(3, 2)
	if again.Rect != image.Rect(0, 0, 3, 2) {
		t.Fatalf("getRaster rect = %v", again.Rect)
	}
	for _, v := range again.Pix {
		if v != 0 {
			t.Fatal("pooled raster was not cleared")
		}
	}
	putRaster(nil)
}
