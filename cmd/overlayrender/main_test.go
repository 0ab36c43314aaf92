package main

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pspoerri/wmsoverlay/internal/compose"
	"github.com/pspoerri/wmsoverlay/internal/config"
	"github.com/pspoerri/wmsoverlay/internal/layers"
	"github.com/pspoerri/wmsoverlay/internal/logging"
	"github.com/pspoerri/wmsoverlay/internal/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Render.Width = 64
	cfg.Render.Height = 32
	cfg.Darkness.Time = "2024-06-20T12:00:00Z"
	cfg.Compositor.Workers = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestBuildRegistry(t *testing.T) {
	reg, err := buildRegistry(testConfig(t), layers.Common{Logger: logging.Nop()})
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	want := []string{"darkness", "geofence", "range_ring"}
	if got := reg.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestBuildRegistry_GeoJSONFile(t *testing.T) {
	cfg := testConfig(t)

	cfg.Geofence.File = filepath.Join(t.TempDir(), "missing.geojson")
	if _, err := buildRegistry(cfg, layers.Common{}); err == nil {
		t.Error("expected error for missing geofence file")
	}

	path := filepath.Join(t.TempDir(), "area.geojson")
	doc := `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Geofence.File = path
	if _, err := buildRegistry(cfg, layers.Common{}); err != nil {
		t.Errorf("buildRegistry with %s: %v", path, err)
	}
}

func TestRender_Darkness(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Layers = "darkness"
	cfg.Darkness.MarkerSize = -1

	m := metrics.New(prometheus.NewRegistry())
	reg, err := buildRegistry(cfg, layers.Common{Metrics: m, Logger: logging.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	comp := compose.New(compose.Config{Workers: 2, Metrics: m, Logger: logging.Nop()})
	defer comp.Close()

	img, err := render(context.Background(), cfg, reg, comp)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Fatalf("bounds = %v, want 64x32", b)
	}
	// Southern winter, far from the sub-solar point near (23.4, 0).
	if got := img.RGBAAt(63, 26); got != (color.RGBA{A: 255}) {
		t.Errorf("pixel (63,26) = %v, want opaque black", got)
	}
	// Northern summer close to the sub-solar point is daylight.
	if got := img.RGBAAt(34, 8); got.A != 0 {
		t.Errorf("pixel (34,8) = %v, want transparent", got)
	}
}

func TestDarknessLayer_MarkerSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Layers = "darkness"
	comp := compose.New(compose.Config{Workers: 1, Logger: logging.Nop()})
	defer comp.Close()

	// The sub-solar point at 2024-06-20 12:00 UTC is near pixel (32,11).
	tests := []struct {
		size       int
		wantMarker bool
	}{
		{0, true}, // default size
		{8, true},
		{-1, false},
	}
	for _, tt := range tests {
		cfg.Darkness.MarkerSize = tt.size
		d, err := darknessLayer(cfg, layers.Common{Logger: logging.Nop()})
		if err != nil {
			t.Fatalf("darknessLayer: %v", err)
		}
		if d.MarkerSize != tt.size {
			t.Errorf("marker_size %d: layer MarkerSize = %d", tt.size, d.MarkerSize)
		}
		reg := compose.NewRegistry()
		reg.MustRegister("darkness", d.Paint)
		img, err := render(context.Background(), cfg, reg, comp)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		got := img.RGBAAt(32, 11)
		if marked := got.R > 200 && got.G > 200 && got.B < 50; marked != tt.wantMarker {
			t.Errorf("marker_size %d: pixel (32,11) = %v, marker drawn = %v, want %v", tt.size, got, marked, tt.wantMarker)
		}
	}
}

func TestRender_InvalidBounds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.BBox = "0,0,0,0"
	comp := compose.New(compose.Config{Workers: 1, Logger: logging.Nop()})
	defer comp.Close()
	if _, err := render(context.Background(), cfg, compose.NewRegistry(), comp); err == nil {
		t.Error("expected error for zero-extent bounds")
	}
}

func TestWriteMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	m.ObserveLayer("darkness", metrics.OutcomeOK, 0)

	mfs, err := promReg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := writeMetrics(&buf, mfs); err != nil {
		t.Fatalf("writeMetrics: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `overlay_compositor_layers_total{layer="darkness",outcome="ok"} 1`) {
		t.Errorf("metrics output missing layer counter:\n%s", out)
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.in); got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
