package segment

import (
	"fmt"

	"github.com/starfield-go/starfield/internal/grid"
)

// Threshold is a detection threshold: either a single scalar broadcast
// over the whole grid or a per-pixel threshold map (e.g. background plus
// a multiple of the local noise).
type Threshold struct {
	scalar float64
	perPix *grid.Grid
}

// UniformThreshold broadcasts one value over every pixel.
func UniformThreshold(v float64) Threshold { return Threshold{scalar: v} }

// MapThreshold uses a per-pixel threshold grid.
func MapThreshold(g *grid.Grid) Threshold { return Threshold{perPix: g} }

func (t Threshold) at(g *grid.Grid, i int) float64 {
	if t.perPix != nil {
		return t.perPix.AtIndex(i)
	}
	return t.scalar
}

// Detect thresholds data into a segmentation map.
//
// When kernel is non-nil the threshold comparison runs against a smoothed
// copy of data (the detection image); the returned map still refers to
// the original pixel grid. Pixels with value >= threshold are grouped
// into connected components under the given connectivity; components
// smaller than minPixels are discarded. Labels are assigned contiguously
// from 1 in row-major first-pixel-encountered order.
//
// Finding nothing is not an error: the result is a valid all-zero map.
func Detect(data *grid.Grid, threshold Threshold, minPixels int, conn Connectivity, kernel *grid.Kernel) (*Map, error) {
	if minPixels < 1 {
		return nil, fmt.Errorf("minPixels must be >= 1, got %d", minPixels)
	}
	if !conn.valid() {
		return nil, fmt.Errorf("connectivity must be 4 or 8, got %d", int(conn))
	}
	if threshold.perPix != nil && !data.SameShape(threshold.perPix) {
		return nil, fmt.Errorf("threshold map %dx%d does not match data %dx%d",
			threshold.perPix.Width(), threshold.perPix.Height(), data.Width(), data.Height())
	}

	det := data
	if kernel != nil {
		det = data.Convolve(kernel)
	}

	width, height := data.Width(), data.Height()
	m, err := NewMap(width, height)
	if err != nil {
		return nil, err
	}

	above := make([]bool, width*height)
	for i := range above {
		above[i] = det.AtIndex(i) >= threshold.at(det, i)
	}

	// Flood each component when its first pixel is met in row-major scan
	// order; provisional labels are therefore already in first-pixel
	// order, and the size filter below renumbers without reordering.
	provisional := make([]int32, width*height)
	var sizes []int
	next := int32(0)
	offs := conn.offsets()
	stack := make([]int, 0, 256)

	for start := 0; start < len(above); start++ {
		if !above[start] || provisional[start] != 0 {
			continue
		}
		next++
		size := 0
		stack = append(stack[:0], start)
		provisional[start] = next
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			x, y := i%width, i/width
			for _, o := range offs {
				nx, ny := x+o[0], y+o[1]
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				ni := ny*width + nx
				if above[ni] && provisional[ni] == 0 {
					provisional[ni] = next
					stack = append(stack, ni)
				}
			}
		}
		sizes = append(sizes, size)
	}

	// Renumber, dropping undersized components.
	remap := make([]int32, next+1)
	kept := int32(0)
	for l := int32(1); l <= next; l++ {
		if sizes[l-1] >= minPixels {
			kept++
			remap[l] = kept
		}
	}
	for i, l := range provisional {
		if l != 0 {
			m.labels[i] = remap[l]
		}
	}
	m.nlabels = int(kept)
	return m, nil
}
