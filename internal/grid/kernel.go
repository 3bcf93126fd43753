package grid

import (
	"fmt"
	"math"
)

// Kernel is a square convolution kernel with odd side length 2*Radius+1.
// Weights are stored row-major and normalized to sum to 1 by the
// constructors in this package.
type Kernel struct {
	Radius  int
	Weights []float64
}

// fwhmToSigma converts a full-width-at-half-maximum to a Gaussian sigma.
const fwhmToSigma = 1.0 / 2.3548200450309493 // 2*sqrt(2*ln 2)

// GaussianKernel builds a normalized 2-D Gaussian kernel for the given
// FWHM in pixels. The kernel is truncated at 2*sigma on each side (radius
// at least 1), which keeps better than 95% of the Gaussian volume while
// staying small enough for direct convolution.
func GaussianKernel(fwhm float64) (*Kernel, error) {
	if fwhm <= 0 || math.IsNaN(fwhm) {
		return nil, fmt.Errorf("invalid kernel FWHM %v", fwhm)
	}
	sigma := fwhm * fwhmToSigma
	radius := int(math.Ceil(2 * sigma))
	if radius < 1 {
		radius = 1
	}

	side := 2*radius + 1
	k := &Kernel{Radius: radius, Weights: make([]float64, side*side)}
	sum := 0.0
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			w := math.Exp(-float64(dx*dx+dy*dy) / (2 * sigma * sigma))
			k.Weights[(dy+radius)*side+(dx+radius)] = w
			sum += w
		}
	}
	for i := range k.Weights {
		k.Weights[i] /= sum
	}
	return k, nil
}

// Convolve returns a new grid holding the direct convolution of g with k.
// Samples beyond the grid edge are clamped to the nearest edge sample, so
// the local mean is preserved at the borders.
func (g *Grid) Convolve(k *Kernel) *Grid {
	out := &Grid{width: g.width, height: g.height, values: make([]float64, len(g.values))}
	side := 2*k.Radius + 1

	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			acc := 0.0
			for dy := -k.Radius; dy <= k.Radius; dy++ {
				sy := y + dy
				if sy < 0 {
					sy = 0
				} else if sy >= g.height {
					sy = g.height - 1
				}
				for dx := -k.Radius; dx <= k.Radius; dx++ {
					sx := x + dx
					if sx < 0 {
						sx = 0
					} else if sx >= g.width {
						sx = g.width - 1
					}
					acc += g.values[sy*g.width+sx] * k.Weights[(dy+k.Radius)*side+(dx+k.Radius)]
				}
			}
			out.values[y*g.width+x] = acc
		}
	}
	return out
}
