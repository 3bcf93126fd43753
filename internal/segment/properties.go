package segment

import (
	"errors"
	"fmt"
	"math"

	"github.com/starfield-go/starfield/internal/grid"
	"github.com/starfield-go/starfield/internal/wcs"
)

// SourceProperties holds the measured quantities of one source. Records
// are created once after detection/deblending and never mutated.
type SourceProperties struct {
	// Label of the source's segment.
	Label int `json:"label"`

	// PixelCount is the number of pixels in the segment.
	PixelCount int `json:"pixel_count"`

	// CentroidX, CentroidY are the intensity-weighted first moments in
	// 0-based pixel coordinates. When the segment's net flux is not
	// positive the unweighted pixel mean is used instead.
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`

	// Flux is the sum of data values over the segment.
	Flux float64 `json:"flux"`

	// FluxErr is the propagated flux uncertainty (root sum of squares of
	// the per-pixel errors). Valid only when an error grid was supplied.
	FluxErr      float64 `json:"flux_err,omitempty"`
	FluxErrValid bool    `json:"flux_err_valid"`

	// Peak is the maximum data value in the segment and PeakX/PeakY its
	// 0-based position (lowest row-major pixel on plateaus).
	Peak  float64 `json:"peak"`
	PeakX int     `json:"peak_x"`
	PeakY int     `json:"peak_y"`

	// BBox bounds the segment.
	BBox Box `json:"bbox"`

	// Sky is the centroid's sky position, computed when a coordinate
	// frame was supplied and the projection was defined at the centroid.
	Sky      wcs.Sky `json:"sky,omitempty"`
	SkyValid bool    `json:"sky_valid"`
}

// Catalog maps labels to source properties, ordered by ascending label.
type Catalog struct {
	Sources []*SourceProperties `json:"sources"`
}

// Len returns the number of sources.
func (c *Catalog) Len() int { return len(c.Sources) }

// Get returns the properties for a label, or nil if absent.
func (c *Catalog) Get(label int) *SourceProperties {
	// Sources are ordered by label starting at 1 with no gaps, so the
	// lookup is a direct index; fall back to a scan for safety.
	if i := label - 1; i >= 0 && i < len(c.Sources) && c.Sources[i].Label == label {
		return c.Sources[i]
	}
	for _, s := range c.Sources {
		if s.Label == label {
			return s
		}
	}
	return nil
}

// MeasureProperties computes per-source photometric and morphological
// properties for every label in m.
//
// errGrid, when non-nil, must match data's shape and supplies per-pixel
// uncertainties for flux error propagation. frame, when non-nil, attaches
// a sky position to each source by transforming its centroid; a
// projection failure at one centroid leaves that source's SkyValid false
// and does not affect the others.
//
// The segmentation map is never mutated.
func MeasureProperties(data *grid.Grid, m *Map, errGrid *grid.Grid, frame *wcs.Frame) (*Catalog, error) {
	if data.Width() != m.Width() || data.Height() != m.Height() {
		return nil, fmt.Errorf("data shape %dx%d does not match map %dx%d",
			data.Width(), data.Height(), m.Width(), m.Height())
	}
	if errGrid != nil && !data.SameShape(errGrid) {
		return nil, fmt.Errorf("error grid shape %dx%d does not match data %dx%d",
			errGrid.Width(), errGrid.Height(), data.Width(), data.Height())
	}

	n := m.NLabels()
	catalog := &Catalog{Sources: make([]*SourceProperties, n)}
	if n == 0 {
		return catalog, nil
	}

	type accum struct {
		count   int
		sumX    float64
		sumY    float64
		sumWX   float64
		sumWY   float64
		flux    float64
		varSum  float64
		peak    float64
		peakIdx int
		bbox    Box
	}
	accums := make([]accum, n+1)
	for label := 1; label <= n; label++ {
		accums[label] = accum{peak: math.Inf(-1), peakIdx: -1, bbox: Box{MinX: m.Width(), MinY: m.Height()}}
	}

	width := m.Width()
	for i := 0; i < m.Width()*m.Height(); i++ {
		label := m.LabelAtIndex(i)
		if label == 0 {
			continue
		}
		a := &accums[label]
		x, y := i%width, i/width
		v := data.AtIndex(i)

		a.count++
		a.sumX += float64(x)
		a.sumY += float64(y)
		a.sumWX += v * float64(x)
		a.sumWY += v * float64(y)
		a.flux += v
		if errGrid != nil {
			e := errGrid.AtIndex(i)
			a.varSum += e * e
		}
		if v > a.peak {
			a.peak = v
			a.peakIdx = i
		}
		a.bbox.grow(x, y)
	}

	for label := 1; label <= n; label++ {
		a := &accums[label]
		if a.count == 0 {
			return nil, fmt.Errorf("label %d has no pixels; map labels are malformed", label)
		}

		s := &SourceProperties{
			Label:      label,
			PixelCount: a.count,
			Flux:       a.flux,
			Peak:       a.peak,
			PeakX:      a.peakIdx % width,
			PeakY:      a.peakIdx / width,
			BBox:       a.bbox,
		}
		if a.flux > 0 {
			s.CentroidX = a.sumWX / a.flux
			s.CentroidY = a.sumWY / a.flux
		} else {
			s.CentroidX = a.sumX / float64(a.count)
			s.CentroidY = a.sumY / float64(a.count)
		}
		if errGrid != nil {
			s.FluxErr = math.Sqrt(a.varSum)
			s.FluxErrValid = true
		}
		catalog.Sources[label-1] = s
	}

	if frame != nil {
		pixels := make([]wcs.Pixel, n)
		for i, s := range catalog.Sources {
			pixels[i] = wcs.Pixel{X: s.CentroidX, Y: s.CentroidY}
		}
		skies, err := frame.PixelToSky(pixels, wcs.Origin0)
		// Per-position failures leave SkyValid false; anything else is
		// unexpected and aborts.
		if err != nil {
			var batch *wcs.BatchError
			if !errors.As(err, &batch) {
				return nil, fmt.Errorf("failed to compute sky positions: %w", err)
			}
		}
		for i, s := range catalog.Sources {
			if !math.IsNaN(skies[i].RA) && !math.IsNaN(skies[i].Dec) {
				s.Sky = skies[i]
				s.SkyValid = true
			}
		}
	}
	return catalog, nil
}
