package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// pipelineConfig holds the full reduction pipeline settings. Values not
// present in the config file keep their defaults, and command-line flags
// override both.
type pipelineConfig struct {
	// Preprocessing
	MedianFilter bool
	SmoothRadius float64

	// Detection
	Threshold    float64 // absolute; ignored when Sigma > 0
	Sigma        float64 // threshold as background + Sigma*noise
	MinPixels    int
	Connectivity int
	SmoothFWHM   float64 // detection-image smoothing kernel

	// Deblending
	Deblend          bool
	NLevels          int
	Contrast         float64
	DeblendMinPixels int

	// Output
	CatalogCSV   string
	CatalogDB    string
	OverlayPath  string
	HeatmapPath  string
	OverlayScale float64
	DrawLabels   bool
}

func defaultConfig() pipelineConfig {
	return pipelineConfig{
		Sigma:        3.0,
		MinPixels:    5,
		Connectivity: 8,
		Deblend:      true,
		NLevels:      32,
		Contrast:     0.001,
		OverlayScale: 1.0,
	}
}

// starfield.toml key mapping to pipeline settings.
type fileConfig struct {
	MedianFilter bool    `toml:"median_filter"`
	SmoothRadius float64 `toml:"smooth_radius"`

	Threshold    float64 `toml:"threshold"`
	Sigma        float64 `toml:"sigma"`
	MinPixels    int     `toml:"min_pixels"`
	Connectivity int     `toml:"connectivity"`
	SmoothFWHM   float64 `toml:"smooth_fwhm"`

	Deblend          bool    `toml:"deblend"`
	NLevels          int     `toml:"nlevels"`
	Contrast         float64 `toml:"contrast"`
	DeblendMinPixels int     `toml:"deblend_min_pixels"`

	CatalogCSV   string  `toml:"catalog_csv"`
	CatalogDB    string  `toml:"catalog_db"`
	OverlayPath  string  `toml:"overlay"`
	HeatmapPath  string  `toml:"heatmap"`
	OverlayScale float64 `toml:"overlay_scale"`
	DrawLabels   bool    `toml:"draw_labels"`
}

// loadConfig overlays a TOML file onto the defaults. Only keys actually
// present in the file override, so a sparse config stays sparse.
func loadConfig(path string) (pipelineConfig, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return pipelineConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("median_filter") {
		cfg.MedianFilter = raw.MedianFilter
	}
	if meta.IsDefined("smooth_radius") {
		cfg.SmoothRadius = raw.SmoothRadius
	}
	if meta.IsDefined("threshold") {
		cfg.Threshold = raw.Threshold
		cfg.Sigma = 0 // explicit threshold wins over the sigma default
	}
	if meta.IsDefined("sigma") {
		cfg.Sigma = raw.Sigma
	}
	if meta.IsDefined("min_pixels") {
		cfg.MinPixels = raw.MinPixels
	}
	if meta.IsDefined("connectivity") {
		cfg.Connectivity = raw.Connectivity
	}
	if meta.IsDefined("smooth_fwhm") {
		cfg.SmoothFWHM = raw.SmoothFWHM
	}
	if meta.IsDefined("deblend") {
		cfg.Deblend = raw.Deblend
	}
	if meta.IsDefined("nlevels") {
		cfg.NLevels = raw.NLevels
	}
	if meta.IsDefined("contrast") {
		cfg.Contrast = raw.Contrast
	}
	if meta.IsDefined("deblend_min_pixels") {
		cfg.DeblendMinPixels = raw.DeblendMinPixels
	}
	if meta.IsDefined("catalog_csv") {
		cfg.CatalogCSV = strings.TrimSpace(raw.CatalogCSV)
	}
	if meta.IsDefined("catalog_db") {
		cfg.CatalogDB = strings.TrimSpace(raw.CatalogDB)
	}
	if meta.IsDefined("overlay") {
		cfg.OverlayPath = strings.TrimSpace(raw.OverlayPath)
	}
	if meta.IsDefined("heatmap") {
		cfg.HeatmapPath = strings.TrimSpace(raw.HeatmapPath)
	}
	if meta.IsDefined("overlay_scale") {
		cfg.OverlayScale = raw.OverlayScale
	}
	if meta.IsDefined("draw_labels") {
		cfg.DrawLabels = raw.DrawLabels
	}

	if err := cfg.validate(); err != nil {
		return pipelineConfig{}, err
	}
	return cfg, nil
}

func (c pipelineConfig) validate() error {
	if c.Connectivity != 4 && c.Connectivity != 8 {
		return fmt.Errorf("load config: connectivity must be 4 or 8, got %d", c.Connectivity)
	}
	if c.MinPixels < 1 {
		return fmt.Errorf("load config: min_pixels must be >= 1, got %d", c.MinPixels)
	}
	if c.Sigma <= 0 && c.Threshold == 0 {
		return fmt.Errorf("load config: either sigma or threshold must be set")
	}
	return nil
}
