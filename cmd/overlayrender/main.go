package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pspoerri/wmsoverlay/internal/compose"
	"github.com/pspoerri/wmsoverlay/internal/config"
	"github.com/pspoerri/wmsoverlay/internal/encode"
	"github.com/pspoerri/wmsoverlay/internal/layers"
	"github.com/pspoerri/wmsoverlay/internal/logging"
	"github.com/pspoerri/wmsoverlay/internal/metrics"
	"github.com/pspoerri/wmsoverlay/internal/telemetry"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  string
		crs         string
		bbox        string
		tileAddr    string
		width       int
		height      int
		layerList   string
		format      string
		quality     int
		renderTime  string
		workers     int
		timeout     time.Duration
		verbose     bool
		dumpMetrics bool
		showVersion bool
		cpuProfile  string
		memProfile  string
	)

	flag.StringVar(&configPath, "config", "", "Config file (default: overlay.yaml in . or ./configs, if present)")
	flag.StringVar(&crs, "crs", "", "Request CRS, e.g. EPSG:4326 or EPSG:3857")
	flag.StringVar(&bbox, "bbox", "", "Request bounds minx,miny,maxx,maxy in CRS units (minx > maxx crosses the antimeridian)")
	flag.StringVar(&tileAddr, "tile", "", "Render web map tile z/x/y in EPSG:3857 instead of -crs/-bbox")
	flag.IntVar(&width, "width", 0, "Output width in pixels")
	flag.IntVar(&height, "height", 0, "Output height in pixels")
	flag.StringVar(&layerList, "layers", "", "Comma-separated layers, bottom first: darkness, geofence, range_ring")
	flag.StringVar(&format, "format", "", "Output encoding: png, jpeg, webp (default: from output extension)")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP quality 1-100 (100 = lossless WebP)")
	flag.StringVar(&renderTime, "time", "", "Render the darkness layer for this RFC 3339 time (default: now)")
	flag.IntVar(&workers, "workers", 0, "Number of layer workers")
	flag.DurationVar(&timeout, "layer-timeout", 0, "Per-layer time limit (0 = none)")
	flag.BoolVar(&verbose, "verbose", false, "Debug logging")
	flag.BoolVar(&dumpMetrics, "metrics", false, "Print collected metrics in Prometheus text format")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	flag.StringVar(&memProfile, "memprofile", "", "Write memory profile to file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: overlayrender [flags] <output.png|.jpg|.webp>\n\n")
		fmt.Fprintf(os.Stderr, "Render overlay layers for a map request into an image.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("overlayrender %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
		os.Exit(1)
	}
	outputPath := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	// Flags given on the command line win over the config file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "crs":
			cfg.Render.CRS = crs
			cfg.Render.Tile = ""
		case "bbox":
			cfg.Render.BBox = bbox
			cfg.Render.Tile = ""
		case "tile":
			cfg.Render.Tile = tileAddr
		case "width":
			cfg.Render.Width = width
		case "height":
			cfg.Render.Height = height
		case "layers":
			cfg.Render.Layers = layerList
		case "format":
			cfg.Render.Format = format
		case "quality":
			cfg.Render.Quality = quality
		case "time":
			cfg.Darkness.Time = renderTime
		case "workers":
			cfg.Compositor.Workers = workers
		case "layer-timeout":
			cfg.Compositor.LayerTimeout = timeout
		case "metrics":
			cfg.Metrics.Dump = dumpMetrics
		}
	})
	if format == "" {
		if f, ok := encode.FormatForPath(outputPath); ok {
			cfg.Render.Format = f
		}
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	// CPU profiling.
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatalf("Creating CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Starting CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	// Memory profile (written at exit).
	if memProfile != "" {
		defer func() {
			f, err := os.Create(memProfile)
			if err != nil {
				log.Fatalf("Creating memory profile: %v", err)
			}
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Fatalf("Writing memory profile: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
		if err != nil {
			log.Fatalf("Telemetry: %v", err)
		}
		defer shutdown()
	}

	enc, err := encode.NewEncoder(cfg.Render.Format, cfg.Render.Quality)
	if err != nil {
		log.Fatalf("Encoder: %v", err)
	}
	if jpg, ok := enc.(*encode.JPEGEncoder); ok {
		if bg, _ := config.ParseColor(cfg.Render.Background); bg != nil {
			jpg.Background = bg
		}
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	reduceOpts, err := cfg.ReducerOptions()
	if err != nil {
		log.Fatalf("Reducer: %v", err)
	}
	reduceOpts.Logger = logger
	layerReg, err := buildRegistry(cfg, layers.Common{Reduce: reduceOpts, Metrics: m, Logger: logger})
	if err != nil {
		log.Fatalf("Layers: %v", err)
	}

	background, _ := config.ParseColor(cfg.Render.Background)
	comp := compose.New(compose.Config{
		Workers:      cfg.Compositor.Workers,
		LayerTimeout: cfg.Compositor.LayerTimeout,
		Background:   background,
		Logger:       logger,
		Metrics:      m,
	})
	defer comp.Close()

	// Print settings summary.
	bounds, _ := cfg.Bounds()
	fmt.Printf("overlayrender %s (commit %s, built %s)\n", version, commit, buildDate)
	fmt.Printf("  %-14s %v\n", "Bounds:", bounds)
	fmt.Printf("  %-14s %dx%d\n", "Size:", cfg.Render.Width, cfg.Render.Height)
	fmt.Printf("  %-14s %v\n", "Layers:", cfg.LayerNames())
	switch enc.Format() {
	case "jpeg", "webp":
		fmt.Printf("  %-14s %s (quality: %d)\n", "Format:", enc.Format(), cfg.Render.Quality)
	default:
		fmt.Printf("  %-14s %s\n", "Format:", enc.Format())
	}
	fmt.Printf("  %-14s %d\n", "Workers:", cfg.Compositor.Workers)
	fmt.Printf("  %-14s %s\n", "Output:", outputPath)

	start := time.Now()
	img, err := render(ctx, cfg, layerReg, comp)
	if err != nil {
		log.Fatalf("Rendering: %v", err)
	}
	data, err := enc.Encode(img)
	if err != nil {
		log.Fatalf("Encoding: %v", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		log.Fatalf("Writing %s: %v", outputPath, err)
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	fmt.Printf("Done: %d layer(s), %s, %v → %s\n", len(cfg.LayerNames()), humanSize(int64(len(data))), elapsed, outputPath)

	if cfg.Metrics.Dump {
		mfs, err := promReg.Gather()
		if err != nil {
			log.Fatalf("Gathering metrics: %v", err)
		}
		if err := writeMetrics(os.Stdout, mfs); err != nil {
			log.Fatalf("Writing metrics: %v", err)
		}
	}
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
