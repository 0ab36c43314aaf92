// Package config loads renderer settings from defaults, an optional YAML
// file and OVERLAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pspoerri/wmsoverlay/internal/coord"
	"github.com/pspoerri/wmsoverlay/internal/encode"
	"github.com/pspoerri/wmsoverlay/internal/reduce"
)

// Config holds all renderer configuration.
type Config struct {
	Render     RenderConfig     `mapstructure:"render"`
	Compositor CompositorConfig `mapstructure:"compositor"`
	Reducer    ReducerConfig    `mapstructure:"reducer"`
	Darkness   DarknessConfig   `mapstructure:"darkness"`
	Geofence   GeofenceConfig   `mapstructure:"geofence"`
	RangeRing  RangeRingConfig  `mapstructure:"range_ring"`
	Log        LogConfig        `mapstructure:"log"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type RenderConfig struct {
	CRS        string `mapstructure:"crs"`
	BBox       string `mapstructure:"bbox"` // minx,miny,maxx,maxy in CRS units
	Tile       string `mapstructure:"tile"` // z/x/y, overrides crs and bbox
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	Layers     string `mapstructure:"layers"` // comma separated, bottom first
	Format     string `mapstructure:"format"`
	Quality    int    `mapstructure:"quality"`
	Background string `mapstructure:"background"` // #rrggbb[aa], empty for transparent
}

type CompositorConfig struct {
	Workers      int           `mapstructure:"workers"`
	LayerTimeout time.Duration `mapstructure:"layer_timeout"`
}

type ReducerConfig struct {
	Sampler  string `mapstructure:"sampler"` // corners or grid
	GridCell int    `mapstructure:"grid_cell"`
	Split    string `mapstructure:"split"` // adaptive or quarter
}

type DarknessConfig struct {
	Time string `mapstructure:"time"` // RFC 3339, empty for now
	// Sub-solar marker diameter in pixels; 0 for the default, negative hides it.
	MarkerSize int `mapstructure:"marker_size"`
}

type GeofenceConfig struct {
	File    string `mapstructure:"file"` // GeoJSON; empty for the Canberra box
	Fill    string `mapstructure:"fill"`
	Outline string `mapstructure:"outline"`
}

type RangeRingConfig struct {
	Lat      float64 `mapstructure:"lat"`
	Lon      float64 `mapstructure:"lon"`
	RadiusKm float64 `mapstructure:"radius_km"`
	Fill     string  `mapstructure:"fill"`
	Outline  string  `mapstructure:"outline"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
}

type MetricsConfig struct {
	Dump bool `mapstructure:"dump"`
}

// Load reads configuration. If path is empty, overlay.yaml is looked up in
// the working directory and ./configs and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("overlay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	// Environment variables: OVERLAY_RENDER_WIDTH → render.width
	v.SetEnvPrefix("OVERLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("render.crs", coord.EPSG4326)
	v.SetDefault("render.bbox", "-180,-90,180,90")
	v.SetDefault("render.tile", "")
	v.SetDefault("render.width", 1024)
	v.SetDefault("render.height", 512)
	v.SetDefault("render.layers", "darkness")
	v.SetDefault("render.format", "png")
	v.SetDefault("render.quality", 85)
	v.SetDefault("render.background", "")
	v.SetDefault("compositor.workers", 30)
	v.SetDefault("compositor.layer_timeout", 30*time.Second)
	v.SetDefault("reducer.sampler", "corners")
	v.SetDefault("reducer.grid_cell", 16)
	v.SetDefault("reducer.split", "adaptive")
	v.SetDefault("darkness.time", "")
	v.SetDefault("darkness.marker_size", 30)
	v.SetDefault("geofence.file", "")
	v.SetDefault("geofence.fill", "#ffffff")
	v.SetDefault("geofence.outline", "#0000ff")
	v.SetDefault("range_ring.lat", -35.3075)
	v.SetDefault("range_ring.lon", 149.1244)
	v.SetDefault("range_ring.radius_km", 500.0)
	v.SetDefault("range_ring.fill", "#ff000040")
	v.SetDefault("range_ring.outline", "#ff0000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "overlayrender")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("metrics.dump", false)
}

// Validate checks that the configuration fields are present and sane.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if c.Render.Width <= 0 || c.Render.Width > MaxDimension {
		add("render.width must be 1-%d, got %d", MaxDimension, c.Render.Width)
	}
	if c.Render.Height <= 0 || c.Render.Height > MaxDimension {
		add("render.height must be 1-%d, got %d", MaxDimension, c.Render.Height)
	}
	if _, err := c.Bounds(); err != nil {
		add("render bounds: %v", err)
	}
	if len(c.LayerNames()) == 0 {
		add("render.layers is required")
	}
	if _, err := encode.NewEncoder(c.Render.Format, c.Render.Quality); err != nil {
		add("render.format: %v", err)
	}
	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		add("render.quality must be 1-100, got %d", c.Render.Quality)
	}
	if _, err := ParseColor(c.Render.Background); err != nil {
		add("render.background: %v", err)
	}
	if c.Compositor.Workers <= 0 {
		add("compositor.workers must be positive, got %d", c.Compositor.Workers)
	}
	if c.Compositor.LayerTimeout < 0 {
		add("compositor.layer_timeout must not be negative")
	}
	if _, err := c.ReducerOptions(); err != nil {
		add("reducer: %v", err)
	}
	if _, err := c.DarknessTime(); err != nil {
		add("darkness.time: %v", err)
	}
	for _, f := range []struct{ key, value string }{
		{"geofence.fill", c.Geofence.Fill},
		{"geofence.outline", c.Geofence.Outline},
		{"range_ring.fill", c.RangeRing.Fill},
		{"range_ring.outline", c.RangeRing.Outline},
	} {
		if _, err := ParseColor(f.value); err != nil {
			add("%s: %v", f.key, err)
		}
	}
	if c.RangeRing.Lat < -90 || c.RangeRing.Lat > 90 {
		add("range_ring.lat must be within [-90, 90], got %v", c.RangeRing.Lat)
	}
	if !(c.RangeRing.RadiusKm > 0) {
		add("range_ring.radius_km must be positive, got %v", c.RangeRing.RadiusKm)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		add("telemetry.endpoint is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MaxDimension bounds the rendered width and height.
const MaxDimension = 8192

// LayerNames splits render.layers, dropping empty entries.
func (c *Config) LayerNames() []string {
	var names []string
	for _, n := range strings.Split(c.Render.Layers, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Bounds returns the request bounds from render.tile or render.crs and
// render.bbox.
func (c *Config) Bounds() (coord.Bounds, error) {
	if c.Render.Tile != "" {
		z, x, y, err := ParseTile(c.Render.Tile)
		if err != nil {
			return coord.Bounds{}, err
		}
		return coord.TileBounds(z, x, y), nil
	}
	return ParseBBox(c.Render.CRS, c.Render.BBox)
}

// Target returns the pixel size.
func (c *Config) Target() coord.Target {
	return coord.Target{Width: c.Render.Width, Height: c.Render.Height}
}

// ReducerOptions builds the sampler and split policy.
func (c *Config) ReducerOptions() (reduce.Options, error) {
	var opts reduce.Options
	switch strings.ToLower(c.Reducer.Sampler) {
	case "", "corners":
	case "grid":
		if c.Reducer.GridCell < 1 {
			return opts, fmt.Errorf("grid_cell must be positive, got %d", c.Reducer.GridCell)
		}
		opts.Sampler = reduce.Grid{MaxCell: c.Reducer.GridCell}
	default:
		return opts, fmt.Errorf("unknown sampler %q (supported: corners, grid)", c.Reducer.Sampler)
	}
	split, err := reduce.ParseSplitPolicy(strings.ToLower(c.Reducer.Split))
	if err != nil {
		return opts, err
	}
	opts.Split = split
	return opts, nil
}

// DarknessTime returns the configured render time, or the zero time when
// the layer should use the current time.
func (c *Config) DarknessTime() (time.Time, error) {
	if c.Darkness.Time == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, c.Darkness.Time)
}

// ParseBBox parses "minx,miny,maxx,maxy" in the units of crs.
func ParseBBox(crs, bbox string) (coord.Bounds, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return coord.Bounds{}, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", bbox)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return coord.Bounds{}, fmt.Errorf("bbox %q: %w", bbox, err)
		}
		v[i] = f
	}
	code, err := coord.NormalizeCode(crs)
	if err != nil {
		return coord.Bounds{}, err
	}
	b := coord.Bounds{SRS: code, MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if err := b.Validate(); err != nil {
		return coord.Bounds{}, err
	}
	return b, nil
}

// ParseTile parses a "z/x/y" web map tile address.
func ParseTile(s string) (z, x, y int, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("tile %q: want z/x/y", s)
	}
	var v [3]int
	for i, p := range parts {
		if v[i], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return 0, 0, 0, fmt.Errorf("tile %q: %w", s, err)
		}
	}
	z, x, y = v[0], v[1], v[2]
	if z < 0 || z > 30 {
		return 0, 0, 0, fmt.Errorf("tile %q: zoom must be 0-30", s)
	}
	if n := 1 << z; x < 0 || x >= n || y < 0 || y >= n {
		return 0, 0, 0, fmt.Errorf("tile %q: x and y must be 0-%d at zoom %d", s, n-1, z)
	}
	return z, x, y, nil
}

// ParseColor parses "#rgb", "#rrggbb" or "#rrggbbaa" (leading # optional).
// An empty string yields a nil colour.
func ParseColor(s string) (color.Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return nil, nil
	}
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) == 6 {
		s += "ff"
	}
	if len(s) != 8 {
		return nil, fmt.Errorf("colour %q: want #rrggbb or #rrggbbaa", s)
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}
