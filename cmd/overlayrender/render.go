package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/paulmach/orb"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/pspoerri/wmsoverlay/internal/compose"
	"github.com/pspoerri/wmsoverlay/internal/config"
	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/geo"
	"github.com/pspoerri/wmsoverlay/internal/layers"
)

// buildRegistry registers the darkness, geofence and range_ring layers as
// configured.
func buildRegistry(cfg *config.Config, common layers.Common) (*compose.Registry, error) {
	reg := compose.NewRegistry()

	darkness, err := darknessLayer(cfg, common)
	if err != nil {
		return nil, err
	}
	reg.MustRegister("darkness", darkness.Paint)

	area := orb.MultiPolygon{layers.CanberraBox()}
	if cfg.Geofence.File != "" {
		if area, err = loadArea(cfg.Geofence.File); err != nil {
			return nil, err
		}
	}
	fence := &layers.Geofence{Common: common, Name: "geofence", Area: area}
	if fence.Fill, err = config.ParseColor(cfg.Geofence.Fill); err != nil {
		return nil, fmt.Errorf("geofence fill: %w", err)
	}
	if fence.Outline, err = config.ParseColor(cfg.Geofence.Outline); err != nil {
		return nil, fmt.Errorf("geofence outline: %w", err)
	}
	reg.MustRegister("geofence", fence.Paint)

	ring := &layers.RangeRing{
		Common:   common,
		Center:   geo.New(cfg.RangeRing.Lat, cfg.RangeRing.Lon),
		RadiusKm: cfg.RangeRing.RadiusKm,
	}
	if ring.Fill, err = config.ParseColor(cfg.RangeRing.Fill); err != nil {
		return nil, fmt.Errorf("range ring fill: %w", err)
	}
	if ring.Outline, err = config.ParseColor(cfg.RangeRing.Outline); err != nil {
		return nil, fmt.Errorf("range ring outline: %w", err)
	}
	reg.MustRegister("range_ring", ring.Paint)

	return reg, nil
}

// darknessLayer configures the darkness layer. The marker size follows the
// layer's convention: 0 is the default size, negative hides the marker.
func darknessLayer(cfg *config.Config, common layers.Common) (*layers.Darkness, error) {
	at, err := cfg.DarknessTime()
	if err != nil {
		return nil, fmt.Errorf("darkness time: %w", err)
	}
	d := &layers.Darkness{Common: common, MarkerSize: cfg.Darkness.MarkerSize}
	if !at.IsZero() {
		d.Now = func() time.Time { return at }
	}
	return d, nil
}

func loadArea(path string) (orb.MultiPolygon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geofence: %w", err)
	}
	defer f.Close()
	area, err := layers.LoadGeoJSON(f)
	if err != nil {
		return nil, fmt.Errorf("geofence %s: %w", path, err)
	}
	return area, nil
}

// render builds the projection for the configured request and composites
// the configured layers.
func render(ctx context.Context, cfg *config.Config, reg *compose.Registry, comp *compose.Compositor) (*image.RGBA, error) {
	bounds, err := cfg.Bounds()
	if err != nil {
		return nil, err
	}
	proj, err := coord.New(bounds, cfg.Target())
	if err != nil {
		return nil, err
	}
	return comp.ComposeLayers(ctx, proj, cfg.LayerNames(), reg)
}

// writeMetrics writes metric families in the Prometheus text format.
func writeMetrics(w io.Writer, mfs []*dto.MetricFamily) error {
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
