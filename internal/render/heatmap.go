// Package render produces diagnostic images from intensity grids and
// catalogs: false-color heatmaps for inspecting backgrounds and detection
// thresholds, and annotated overlays marking measured sources.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	// Liberation fonts register automatically on import.
	_ "gonum.org/v1/plot/font/liberation"

	"github.com/starfield-go/starfield/internal/grid"
)

// gridXYZ adapts a grid to the plotter's data interface. Grid rows grow
// downward while plot Y grows upward, so rows are flipped.
type gridXYZ struct {
	g *grid.Grid
}

func (d gridXYZ) Dims() (int, int)   { return d.g.Width(), d.g.Height() }
func (d gridXYZ) X(c int) float64    { return float64(c) }
func (d gridXYZ) Y(r int) float64    { return float64(r) }
func (d gridXYZ) Z(c, r int) float64 { return d.g.At(c, d.g.Height()-1-r) }

// thermalPalette blends dark blue through magenta to yellow, which keeps
// faint structure visible against the background.
type thermalPalette struct {
	colors []color.Color
}

func newThermalPalette(n int) thermalPalette {
	start, _ := colorful.Hex("#10104a")
	mid, _ := colorful.Hex("#c02080")
	end, _ := colorful.Hex("#ffe060")

	colors := make([]color.Color, n)
	for i := range colors {
		t := float64(i) / float64(n-1)
		if t < 0.5 {
			colors[i] = start.BlendLuv(mid, t*2).Clamped()
		} else {
			colors[i] = mid.BlendLuv(end, (t-0.5)*2).Clamped()
		}
	}
	return thermalPalette{colors: colors}
}

func (p thermalPalette) Colors() []color.Color { return p.colors }

// HeatmapOptions tunes Heatmap. The zero value renders a 800x800-pixel
// plot with a 256-step palette.
type HeatmapOptions struct {
	Title  string
	Width  int // output width in pixels
	Height int // output height in pixels
	Steps  int // palette resolution
}

// Heatmap renders a false-color view of the grid.
func Heatmap(g *grid.Grid, opts HeatmapOptions) (image.Image, error) {
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	if opts.Steps <= 1 {
		opts.Steps = 256
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "x (pixel)"
	p.Y.Label.Text = "y (pixel)"

	hm := plotter.NewHeatMap(gridXYZ{g: g}, newThermalPalette(opts.Steps))
	if hm.Min == hm.Max {
		// A flat grid has no dynamic range; widen it so the plotter does
		// not divide by zero.
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	// Map the requested pixel size to vg units via DPI.
	const dpi = 96
	width := vg.Length(opts.Width) * vg.Inch / dpi
	height := vg.Length(opts.Height) * vg.Inch / dpi

	c := vgimg.New(width, height)
	dc := draw.New(c)
	p.Draw(dc)
	return c.Image(), nil
}

// SaveHeatmap renders the grid and writes it as PNG.
func SaveHeatmap(path string, g *grid.Grid, opts HeatmapOptions) error {
	img, err := Heatmap(g, opts)
	if err != nil {
		return err
	}
	if err := savePNG(path, img); err != nil {
		return fmt.Errorf("failed to save heatmap: %w", err)
	}
	return nil
}
