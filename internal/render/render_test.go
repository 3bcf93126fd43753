package render

import (
	"path/filepath"
	"testing"

	"github.com/starfield-go/starfield/internal/grid"
	"github.com/starfield-go/starfield/internal/segment"
)

func sourceGrid() *grid.Grid {
	g := grid.MustNew(32, 32).Fill(5)
	g.SetRect(10, 10, 13, 13, 50)
	g.Set(11, 11, 100)
	return g
}

func sourceCatalog() *segment.Catalog {
	return &segment.Catalog{Sources: []*segment.SourceProperties{{
		Label: 1, PixelCount: 9,
		CentroidX: 11, CentroidY: 11,
		Flux: 450, Peak: 100, PeakX: 11, PeakY: 11,
		BBox: segment.Box{MinX: 10, MinY: 10, MaxX: 13, MaxY: 13},
	}}}
}

func TestHeatmapDimensions(t *testing.T) {
	img, err := Heatmap(sourceGrid(), HeatmapOptions{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("Heatmap failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 400 || b.Dy() != 300 {
		t.Errorf("image size: got %dx%d, want 400x300", b.Dx(), b.Dy())
	}
}

func TestHeatmapFlatGrid(t *testing.T) {
	// A constant grid has zero dynamic range; rendering must not panic
	// or divide by zero.
	g := grid.MustNew(8, 8).Fill(7)
	if _, err := Heatmap(g, HeatmapOptions{Width: 100, Height: 100}); err != nil {
		t.Fatalf("Heatmap failed on flat grid: %v", err)
	}
}

func TestThermalPalette(t *testing.T) {
	p := newThermalPalette(256)
	if len(p.Colors()) != 256 {
		t.Fatalf("palette size: got %d, want 256", len(p.Colors()))
	}
}

func TestOverlayNativeScale(t *testing.T) {
	img, err := Overlay(sourceGrid(), sourceCatalog(), OverlayOptions{})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 32 || b.Dy() != 32 {
		t.Errorf("image size: got %dx%d, want 32x32", b.Dx(), b.Dy())
	}
}

func TestOverlayScaled(t *testing.T) {
	img, err := Overlay(sourceGrid(), sourceCatalog(), OverlayOptions{Scale: 4, DrawLabels: true})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 128 || b.Dy() != 128 {
		t.Errorf("image size: got %dx%d, want 128x128", b.Dx(), b.Dy())
	}
}

func TestOverlayMarksSource(t *testing.T) {
	img, err := Overlay(sourceGrid(), sourceCatalog(), OverlayOptions{MarkRadius: 5})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	// The marker ring is colored; somewhere near the centroid a pixel
	// must have unequal RGB channels, which pure grayscale never has.
	found := false
	for y := 4; y < 20 && !found; y++ {
		for x := 4; x < 20; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r != g || g != b {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("no colored marker pixels found near the source")
	}
}

func TestStretchToGrayMonotonic(t *testing.T) {
	g := grid.MustNew(3, 1)
	g.Set(0, 0, 0)
	g.Set(1, 0, 50)
	g.Set(2, 0, 100)

	img := stretchToGray(g)
	v := func(x int) uint8 { return img.Pix[img.PixOffset(x, 0)] }
	if v(0) != 0 || v(2) != 255 {
		t.Errorf("stretch endpoints: got %d and %d, want 0 and 255", v(0), v(2))
	}
	if !(v(0) < v(1) && v(1) < v(2)) {
		t.Errorf("stretch not monotonic: %d, %d, %d", v(0), v(1), v(2))
	}
	// asinh compresses the top end: the midpoint lands above linear gray.
	if v(1) <= 128 {
		t.Errorf("midpoint %d should exceed linear midpoint under asinh stretch", v(1))
	}
}

func TestSaveOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.png")
	err := SaveOverlay(path, sourceGrid(), sourceCatalog(), OverlayOptions{})
	if err != nil {
		t.Fatalf("SaveOverlay failed: %v", err)
	}
}
