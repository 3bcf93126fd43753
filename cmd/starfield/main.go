// Command starfield runs the full source-extraction pipeline over one
// image: load, background estimation, detection, deblending, photometry,
// and catalog/rendering output.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/starfield-go/starfield/internal/catalog"
	"github.com/starfield-go/starfield/internal/fits"
	"github.com/starfield-go/starfield/internal/grid"
	"github.com/starfield-go/starfield/internal/render"
	"github.com/starfield-go/starfield/internal/segment"
	"github.com/starfield-go/starfield/internal/wcs"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file")
		threshold  = flag.Float64("threshold", 0, "absolute detection threshold (overrides config)")
		sigma      = flag.Float64("sigma", 0, "detection threshold in noise sigmas (overrides config)")
		csvOut     = flag.String("csv", "", "catalog CSV output path")
		dbOut      = flag.String("db", "", "catalog SQLite archive path")
		overlay    = flag.String("overlay", "", "annotated overlay image output path")
		heatmap    = flag.String("heatmap", "", "false-color heatmap output path")
		noDeblend  = flag.Bool("no-deblend", false, "skip deblending")
		verbose    = flag.Bool("v", false, "debug logging")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("starfield %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		return
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: starfield [options] <image>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	input := flag.Arg(0)

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("bad config")
		}
	}
	// Flags override the config file.
	if *threshold != 0 {
		cfg.Threshold = *threshold
		cfg.Sigma = 0
	}
	if *sigma != 0 {
		cfg.Sigma = *sigma
	}
	if *csvOut != "" {
		cfg.CatalogCSV = *csvOut
	}
	if *dbOut != "" {
		cfg.CatalogDB = *dbOut
	}
	if *overlay != "" {
		cfg.OverlayPath = *overlay
	}
	if *heatmap != "" {
		cfg.HeatmapPath = *heatmap
	}
	if *noDeblend {
		cfg.Deblend = false
	}

	if err := run(input, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("pipeline failed")
	}
}

func run(input string, cfg pipelineConfig, log zerolog.Logger) error {
	data, frame, err := loadInput(input, cfg)
	if err != nil {
		return err
	}
	log.Info().
		Str("input", input).
		Int("width", data.Width()).
		Int("height", data.Height()).
		Bool("has_wcs", frame != nil).
		Msg("loaded image")

	threshold := cfg.Threshold
	if cfg.Sigma > 0 {
		noise := data.EstimateNoise(3.0, 0, 10)
		threshold = noise.Background + cfg.Sigma*noise.Sigma
		log.Info().
			Float64("background", noise.Background).
			Float64("noise", noise.Sigma).
			Float64("threshold", threshold).
			Int("iterations", noise.Iterations).
			Msg("estimated background")
	}

	var kernel *grid.Kernel
	if cfg.SmoothFWHM > 0 {
		kernel, err = grid.GaussianKernel(cfg.SmoothFWHM)
		if err != nil {
			return err
		}
	}

	m, err := segment.Detect(data, segment.UniformThreshold(threshold),
		cfg.MinPixels, segment.Connectivity(cfg.Connectivity), kernel)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	log.Info().Int("n_sources", m.NLabels()).Msg("detected sources")

	if cfg.Deblend && m.NLabels() > 0 {
		out, err := segment.Deblend(data, m, segment.DeblendOptions{
			NLevels:      cfg.NLevels,
			Contrast:     cfg.Contrast,
			MinPixels:    cfg.DeblendMinPixels,
			Connectivity: segment.Connectivity(cfg.Connectivity),
		})
		if err != nil {
			var dErr *segment.DeblendError
			if !errors.As(err, &dErr) {
				return fmt.Errorf("deblending failed: %w", err)
			}
			for _, se := range dErr.Segments {
				log.Warn().Int("label", se.Label).Err(se.Err).Msg("segment not deblended")
			}
		}
		log.Info().Int("n_sources", out.NLabels()).Msg("deblended sources")
		m = out
	}

	cat, err := segment.MeasureProperties(data, m, nil, frame)
	if err != nil {
		return fmt.Errorf("measurement failed: %w", err)
	}

	if cfg.CatalogCSV != "" {
		if err := catalog.WriteCSVFile(cfg.CatalogCSV, cat); err != nil {
			return err
		}
		log.Info().Str("path", cfg.CatalogCSV).Msg("wrote catalog CSV")
	}
	if cfg.CatalogDB != "" {
		store, err := catalog.OpenStore(cfg.CatalogDB)
		if err != nil {
			return err
		}
		defer store.Close()
		runID, err := store.SaveRun(input, threshold, cfg.MinPixels, cat)
		if err != nil {
			return err
		}
		log.Info().Str("path", cfg.CatalogDB).Int64("run", runID).Msg("archived catalog")
	}
	if cfg.OverlayPath != "" {
		err := render.SaveOverlay(cfg.OverlayPath, data, cat, render.OverlayOptions{
			Scale:      cfg.OverlayScale,
			DrawLabels: cfg.DrawLabels,
		})
		if err != nil {
			return err
		}
		log.Info().Str("path", cfg.OverlayPath).Msg("wrote overlay")
	}
	if cfg.HeatmapPath != "" {
		err := render.SaveHeatmap(cfg.HeatmapPath, data, render.HeatmapOptions{
			Title: filepath.Base(input),
		})
		if err != nil {
			return err
		}
		log.Info().Str("path", cfg.HeatmapPath).Msg("wrote heatmap")
	}

	// Default to CSV on stdout when no output was requested.
	if cfg.CatalogCSV == "" && cfg.CatalogDB == "" && cfg.OverlayPath == "" && cfg.HeatmapPath == "" {
		return catalog.WriteCSV(os.Stdout, cat)
	}
	return nil
}

// loadInput reads the image as FITS (with its WCS, if present) or as a
// raster image converted to luminance.
func loadInput(path string, cfg pipelineConfig) (*grid.Grid, *wcs.Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		img, err := fits.Open(path)
		if err != nil {
			return nil, nil, err
		}
		frame, err := img.Frame()
		if err != nil {
			frame = nil // no usable WCS; pixel-space results only
		}
		return img.Data, frame, nil
	default:
		g, err := grid.LoadImage(path, grid.LoadOptions{
			MedianFilter: cfg.MedianFilter,
			SmoothRadius: cfg.SmoothRadius,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil
	}
}
