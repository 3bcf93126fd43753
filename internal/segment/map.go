package segment

import (
	"fmt"
	"math"
	"sync"

	"github.com/starfield-go/starfield/internal/grid"
)

// Connectivity selects which pixels count as neighbors during component
// labeling and watershed flooding.
type Connectivity int

const (
	// Connect4 treats only the four edge-sharing pixels as neighbors.
	Connect4 Connectivity = 4

	// Connect8 additionally includes the four diagonal pixels. This is
	// the default and the common astronomical convention.
	Connect8 Connectivity = 8
)

var offsets4 = [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
var offsets8 = [][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}

func (c Connectivity) offsets() [][2]int {
	if c == Connect4 {
		return offsets4
	}
	return offsets8
}

func (c Connectivity) valid() bool { return c == Connect4 || c == Connect8 }

// Map is a segmentation map: a grid of non-negative integer labels with
// the same shape as the intensity grid it was derived from. Label 0 is
// background; positive labels are contiguous from 1.
type Map struct {
	width   int
	height  int
	labels  []int32
	nlabels int
}

// NewMap creates an all-background map of the given shape.
func NewMap(width, height int) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid map dimensions %dx%d", width, height)
	}
	return &Map{width: width, height: height, labels: make([]int32, width*height)}, nil
}

// Width returns the number of columns.
func (m *Map) Width() int { return m.width }

// Height returns the number of rows.
func (m *Map) Height() int { return m.height }

// NLabels returns the number of labeled segments; labels run 1..NLabels.
func (m *Map) NLabels() int { return m.nlabels }

// Label returns the label at (x, y).
func (m *Map) Label(x, y int) int { return int(m.labels[y*m.width+x]) }

// LabelAtIndex returns the label at flat row-major index i.
func (m *Map) LabelAtIndex(i int) int { return int(m.labels[i]) }

// IsEmpty reports whether the map contains no labeled pixels.
func (m *Map) IsEmpty() bool { return m.nlabels == 0 }

// Clone returns an independent copy of the map.
func (m *Map) Clone() *Map {
	out := &Map{width: m.width, height: m.height, labels: make([]int32, len(m.labels)), nlabels: m.nlabels}
	copy(out.labels, m.labels)
	return out
}

// Box is a pixel-coordinate bounding box: Min inclusive, Max exclusive.
type Box struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() int { return b.MaxX - b.MinX }

// Height returns the vertical extent of the box.
func (b Box) Height() int { return b.MaxY - b.MinY }

// grow expands the box to include (x, y).
func (b *Box) grow(x, y int) {
	if x < b.MinX {
		b.MinX = x
	}
	if y < b.MinY {
		b.MinY = y
	}
	if x+1 > b.MaxX {
		b.MaxX = x + 1
	}
	if y+1 > b.MaxY {
		b.MaxY = y + 1
	}
}

// Segment is a read-only view over one label of a Map.
type Segment struct {
	// Label identifies the segment within its map.
	Label int

	// BBox bounds the segment's pixels.
	BBox Box

	// PixelCount is the number of pixels carrying the label.
	PixelCount int

	m *Map

	cutoutOnce sync.Once
	cutout     *grid.Grid
}

// Segment returns a view over one label. The view borrows the map; it
// must not outlive it.
func (m *Map) Segment(label int) (*Segment, error) {
	if label < 1 || label > m.nlabels {
		return nil, fmt.Errorf("label %d out of range 1..%d", label, m.nlabels)
	}
	s := &Segment{Label: label, m: m, BBox: Box{MinX: m.width, MinY: m.height}}
	for i, l := range m.labels {
		if int(l) != label {
			continue
		}
		s.PixelCount++
		s.BBox.grow(i%m.width, i/m.width)
	}
	if s.PixelCount == 0 {
		return nil, fmt.Errorf("label %d has no pixels; map labels are malformed", label)
	}
	return s, nil
}

// Segments returns views over every label in ascending order.
func (m *Map) Segments() ([]*Segment, error) {
	out := make([]*Segment, 0, m.nlabels)
	for label := 1; label <= m.nlabels; label++ {
		s, err := m.Segment(label)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Cutout returns the segment's bounding-box region of data with pixels
// outside the segment's mask set to NaN. The cutout is computed lazily on
// first use and cached; data must have the map's shape.
func (s *Segment) Cutout(data *grid.Grid) (*grid.Grid, error) {
	if data.Width() != s.m.width || data.Height() != s.m.height {
		return nil, fmt.Errorf("data shape %dx%d does not match map %dx%d",
			data.Width(), data.Height(), s.m.width, s.m.height)
	}
	s.cutoutOnce.Do(func() {
		c := grid.MustNew(s.BBox.Width(), s.BBox.Height()).Fill(math.NaN())
		for y := s.BBox.MinY; y < s.BBox.MaxY; y++ {
			for x := s.BBox.MinX; x < s.BBox.MaxX; x++ {
				if s.m.Label(x, y) == s.Label {
					c.Set(x-s.BBox.MinX, y-s.BBox.MinY, data.At(x, y))
				}
			}
		}
		s.cutout = c
	})
	return s.cutout, nil
}
