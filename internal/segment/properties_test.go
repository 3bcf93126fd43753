package segment

import (
	"math"
	"testing"

	"github.com/starfield-go/starfield/internal/grid"
	"github.com/starfield-go/starfield/internal/wcs"
)

func measureBlock(t *testing.T, errGrid *grid.Grid, frame *wcs.Frame) *Catalog {
	t.Helper()
	g := blockGrid()
	m := detectBlend(t, g)
	cat, err := MeasureProperties(g, m, errGrid, frame)
	if err != nil {
		t.Fatalf("MeasureProperties failed: %v", err)
	}
	return cat
}

func TestMeasureSingleBlock(t *testing.T) {
	cat := measureBlock(t, nil, nil)
	if cat.Len() != 1 {
		t.Fatalf("catalog size: got %d, want 1", cat.Len())
	}
	s := cat.Get(1)
	if s == nil {
		t.Fatal("label 1 missing from catalog")
	}

	if s.PixelCount != 9 {
		t.Errorf("PixelCount: got %d, want 9", s.PixelCount)
	}
	if s.CentroidX != 3.0 || s.CentroidY != 3.0 {
		t.Errorf("centroid: got (%g, %g), want (3, 3)", s.CentroidX, s.CentroidY)
	}
	if s.Flux != 90 {
		t.Errorf("Flux: got %g, want 90", s.Flux)
	}
	if s.Peak != 10 {
		t.Errorf("Peak: got %g, want 10", s.Peak)
	}
	// On a flat plateau the peak position is the lowest row-major pixel.
	if s.PeakX != 2 || s.PeakY != 2 {
		t.Errorf("peak position: got (%d, %d), want (2, 2)", s.PeakX, s.PeakY)
	}
	want := Box{MinX: 2, MinY: 2, MaxX: 5, MaxY: 5}
	if s.BBox != want {
		t.Errorf("BBox: got %+v, want %+v", s.BBox, want)
	}
	if s.FluxErrValid {
		t.Error("FluxErrValid set without an error grid")
	}
	if s.SkyValid {
		t.Error("SkyValid set without a coordinate frame")
	}
}

func TestMeasureFluxError(t *testing.T) {
	errGrid := grid.MustNew(10, 10).Fill(2)
	cat := measureBlock(t, errGrid, nil)
	s := cat.Get(1)

	if !s.FluxErrValid {
		t.Fatal("FluxErrValid not set")
	}
	// Root sum of squares over 9 pixels of sigma 2: sqrt(9*4) = 6.
	if math.Abs(s.FluxErr-6) > 1e-12 {
		t.Errorf("FluxErr: got %g, want 6", s.FluxErr)
	}
}

func TestMeasureWeightedCentroid(t *testing.T) {
	g := grid.MustNew(5, 1)
	g.Set(1, 0, 10)
	g.Set(2, 0, 30)
	m := detectBlend(t, g)

	cat, err := MeasureProperties(g, m, nil, nil)
	if err != nil {
		t.Fatalf("MeasureProperties failed: %v", err)
	}
	s := cat.Get(1)
	// (1*10 + 2*30) / 40 = 1.75
	if math.Abs(s.CentroidX-1.75) > 1e-12 {
		t.Errorf("CentroidX: got %g, want 1.75", s.CentroidX)
	}
	if s.CentroidY != 0 {
		t.Errorf("CentroidY: got %g, want 0", s.CentroidY)
	}
}

func TestMeasureCentroidFallbackNonPositiveFlux(t *testing.T) {
	// A segment with net negative flux cannot be intensity-weighted; the
	// centroid falls back to the unweighted pixel mean. Such maps arise
	// from externally supplied segmentations, so build one directly.
	g := grid.MustNew(4, 1)
	g.Set(1, 0, -5)
	g.Set(2, 0, -5)
	m, err := NewMap(4, 1)
	if err != nil {
		t.Fatalf("NewMap failed: %v", err)
	}
	m.labels[1] = 1
	m.labels[2] = 1
	m.nlabels = 1

	cat, err := MeasureProperties(g, m, nil, nil)
	if err != nil {
		t.Fatalf("MeasureProperties failed: %v", err)
	}
	s := cat.Get(1)
	if s.CentroidX != 1.5 {
		t.Errorf("CentroidX: got %g, want 1.5", s.CentroidX)
	}
	if s.Flux != -10 {
		t.Errorf("Flux: got %g, want -10", s.Flux)
	}
}

func TestMeasureAttachesSkyPositions(t *testing.T) {
	// Reference pixel at the block centroid so the expected sky position
	// is exactly the reference sky position.
	frame, err := wcs.NewFrame(
		wcs.Pixel{X: 3, Y: 3}, wcs.Origin0,
		wcs.Sky{RA: 150, Dec: 30},
		wcs.CD{-2.7e-4, 0, 0, 2.7e-4},
		wcs.ProjectionTangent, nil,
	)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}

	cat := measureBlock(t, nil, frame)
	s := cat.Get(1)
	if !s.SkyValid {
		t.Fatal("SkyValid not set")
	}
	if math.Abs(s.Sky.RA-150) > 1e-9 || math.Abs(s.Sky.Dec-30) > 1e-9 {
		t.Errorf("sky position: got (%g, %g), want (150, 30)", s.Sky.RA, s.Sky.Dec)
	}
}

func TestMeasureTwoSourcesAfterDeblend(t *testing.T) {
	g := blendGrid()
	m := detectBlend(t, g)
	out, err := Deblend(g, m, DeblendOptions{})
	if err != nil {
		t.Fatalf("Deblend failed: %v", err)
	}

	cat, err := MeasureProperties(g, out, nil, nil)
	if err != nil {
		t.Fatalf("MeasureProperties failed: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("catalog size: got %d, want 2", cat.Len())
	}
	a, b := cat.Get(1), cat.Get(2)
	if a.Peak != 100 || b.Peak != 100 {
		t.Errorf("peaks: got %g and %g, want 100 and 100", a.Peak, b.Peak)
	}
	if a.PeakX != 4 || a.PeakY != 4 || b.PeakX != 12 || b.PeakY != 4 {
		t.Errorf("peak positions: got (%d,%d) and (%d,%d)",
			a.PeakX, a.PeakY, b.PeakX, b.PeakY)
	}
	// The children partition the parent: fluxes add up to the blend total.
	if total := a.Flux + b.Flux; total != 1100 {
		t.Errorf("total flux: got %g, want 1100", total)
	}
}

func TestMeasureShapeMismatch(t *testing.T) {
	g := grid.MustNew(5, 5)
	m, _ := NewMap(4, 4)
	if _, err := MeasureProperties(g, m, nil, nil); err == nil {
		t.Error("expected shape mismatch error")
	}

	m2, _ := NewMap(5, 5)
	bad := grid.MustNew(3, 3)
	if _, err := MeasureProperties(g, m2, bad, nil); err == nil {
		t.Error("expected error grid shape mismatch error")
	}
}

func TestMeasureEmptyMap(t *testing.T) {
	g := grid.MustNew(5, 5)
	m, _ := NewMap(5, 5)
	cat, err := MeasureProperties(g, m, nil, nil)
	if err != nil {
		t.Fatalf("MeasureProperties failed: %v", err)
	}
	if cat.Len() != 0 {
		t.Errorf("catalog size: got %d, want 0", cat.Len())
	}
	if cat.Get(1) != nil {
		t.Error("Get on empty catalog should return nil")
	}
}

func TestSegmentCutout(t *testing.T) {
	g := blockGrid()
	m := detectBlend(t, g)
	seg, err := m.Segment(1)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	cut, err := seg.Cutout(g)
	if err != nil {
		t.Fatalf("Cutout failed: %v", err)
	}
	if cut.Width() != 3 || cut.Height() != 3 {
		t.Fatalf("cutout shape: got %dx%d, want 3x3", cut.Width(), cut.Height())
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if cut.At(x, y) != 10 {
				t.Errorf("cutout (%d,%d): got %g, want 10", x, y, cut.At(x, y))
			}
		}
	}

	// Cached: a second call returns the same grid.
	again, err := seg.Cutout(g)
	if err != nil {
		t.Fatalf("Cutout failed: %v", err)
	}
	if again != cut {
		t.Error("cutout not cached across calls")
	}
}

func TestSegmentCutoutMasksOutsidePixels(t *testing.T) {
	// An L-shaped segment: pixels inside the bounding box but outside the
	// mask come back NaN.
	g := grid.MustNew(6, 6)
	g.Set(1, 1, 10)
	g.Set(1, 2, 10)
	g.Set(2, 2, 10)
	m := detectBlend(t, g)

	seg, err := m.Segment(1)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	cut, err := seg.Cutout(g)
	if err != nil {
		t.Fatalf("Cutout failed: %v", err)
	}
	if !math.IsNaN(cut.At(1, 0)) {
		t.Errorf("unmasked pixel outside segment: got %g, want NaN", cut.At(1, 0))
	}
	if cut.At(0, 0) != 10 || cut.At(0, 1) != 10 || cut.At(1, 1) != 10 {
		t.Error("segment pixels missing from cutout")
	}
}
