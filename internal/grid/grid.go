package grid

import (
	"fmt"
	"image"
	"math"
)

// Grid is a dense 2-D array of float64 samples stored row-major.
//
// The zero value is not usable; construct grids with New, FromImage, or
// FromFloat32. Width and Height are fixed at construction.
type Grid struct {
	width  int
	height int
	values []float64
}

// New creates a Grid of the given dimensions with all samples set to zero.
func New(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%d", width, height)
	}
	return &Grid{
		width:  width,
		height: height,
		values: make([]float64, width*height),
	}, nil
}

// MustNew is New for dimensions known to be valid; it panics otherwise.
// Intended for tests and fixed-size internal buffers.
func MustNew(width, height int) *Grid {
	g, err := New(width, height)
	if err != nil {
		panic(err)
	}
	return g
}

// FromImage converts a decoded image to a luminance grid.
//
// RGB is collapsed to luminance using ITU-R BT.601 weights
// (0.299*R + 0.587*G + 0.114*B), matching the grayscale conversion used
// by the detection pipeline. Samples are scaled to [0, 1].
func FromImage(img image.Image) *Grid {
	bounds := img.Bounds()
	g := &Grid{
		width:  bounds.Dx(),
		height: bounds.Dy(),
		values: make([]float64, bounds.Dx()*bounds.Dy()),
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gg, b, _ := img.At(x, y).RGBA()
			g.values[i] = (0.299*float64(r) + 0.587*float64(gg) + 0.114*float64(b)) / 65535.0
			i++
		}
	}
	return g
}

// FromFloat32 wraps raw float32 samples (e.g. a decoded FITS data unit)
// in a Grid. The slice must hold exactly width*height samples in row-major
// order.
func FromFloat32(data []float32, width, height int) (*Grid, error) {
	if len(data) != width*height {
		return nil, fmt.Errorf("data length %d does not match %dx%d grid", len(data), width, height)
	}
	g, err := New(width, height)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		g.values[i] = float64(v)
	}
	return g, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// Len returns the total number of samples (Width * Height).
func (g *Grid) Len() int { return len(g.values) }

// At returns the sample at (x, y). Coordinates are 0-based and must be
// in bounds; out-of-range access panics like a slice index would.
func (g *Grid) At(x, y int) float64 { return g.values[y*g.width+x] }

// Set stores v at (x, y).
func (g *Grid) Set(x, y int, v float64) { g.values[y*g.width+x] = v }

// AtIndex returns the sample at flat row-major index i.
func (g *Grid) AtIndex(i int) float64 { return g.values[i] }

// SetIndex stores v at flat row-major index i.
func (g *Grid) SetIndex(i int, v float64) { g.values[i] = v }

// InBounds reports whether (x, y) addresses a valid sample.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// Clone returns an independent copy of the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{width: g.width, height: g.height, values: make([]float64, len(g.values))}
	copy(out.values, g.values)
	return out
}

// Fill sets every sample to v and returns the grid for chaining.
func (g *Grid) Fill(v float64) *Grid {
	for i := range g.values {
		g.values[i] = v
	}
	return g
}

// SetRect fills the rectangle [x0,x1) x [y0,y1) with v, clipped to the grid.
func (g *Grid) SetRect(x0, y0, x1, y1 int, v float64) {
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > g.width {
		x1 = g.width
	}
	if y1 > g.height {
		y1 = g.height
	}
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			g.values[y*g.width+x] = v
		}
	}
}

// MinMax returns the smallest and largest finite samples in the grid.
// NaN and Inf samples are skipped; if no finite sample exists both
// results are NaN.
func (g *Grid) MinMax() (min, max float64) {
	min, max = math.NaN(), math.NaN()
	for _, v := range g.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.IsNaN(min) || v < min {
			min = v
		}
		if math.IsNaN(max) || v > max {
			max = v
		}
	}
	return min, max
}

// SameShape reports whether two grids have identical dimensions.
func (g *Grid) SameShape(other *Grid) bool {
	return other != nil && g.width == other.width && g.height == other.height
}
