package wcs

import (
	"errors"
	"math"
	"testing"
)

const roundTripTol = 1e-5 // pixels; looser than the 1e-6 convergence tolerance

func almostEqualPixel(a, b Pixel, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol
}

func TestPixelToSkyAtReferencePixel(t *testing.T) {
	// Identity scale (1 degree/pixel), reference pixel (0,0) at sky (0,0).
	f, err := NewFrame(Pixel{}, Origin0, Sky{}, CD{1, 0, 0, 1}, ProjectionTangent, nil)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}

	skies, err := f.PixelToSky([]Pixel{{X: 0, Y: 0}}, Origin0)
	if err != nil {
		t.Fatalf("PixelToSky failed: %v", err)
	}
	if skies[0].RA != 0 || skies[0].Dec != 0 {
		t.Errorf("sky at reference pixel: got (%v, %v), want (0, 0) exactly", skies[0].RA, skies[0].Dec)
	}
}

func TestOriginConventions(t *testing.T) {
	f := testFrame(t, nil)

	// Pixel (100,100) under Origin0 is the same physical position as
	// (101,101) under Origin1: both are the reference pixel.
	s0, err := f.PixelToSky([]Pixel{{X: 100, Y: 100}}, Origin0)
	if err != nil {
		t.Fatalf("PixelToSky origin 0 failed: %v", err)
	}
	s1, err := f.PixelToSky([]Pixel{{X: 101, Y: 101}}, Origin1)
	if err != nil {
		t.Fatalf("PixelToSky origin 1 failed: %v", err)
	}
	if s0[0] != s1[0] {
		t.Errorf("origin conventions disagree: %v vs %v", s0[0], s1[0])
	}
	if math.Abs(s0[0].RA-150) > 1e-12 || math.Abs(s0[0].Dec-30) > 1e-12 {
		t.Errorf("reference pixel sky: got %v, want (150, 30)", s0[0])
	}
}

func TestRoundTripNoDistortion(t *testing.T) {
	f := testFrame(t, nil)

	pixels := []Pixel{
		{X: 100, Y: 100},
		{X: 0, Y: 0},
		{X: 199.5, Y: 13.25},
		{X: 42.1, Y: 177.7},
	}

	skies, err := f.PixelToSky(pixels, Origin0)
	if err != nil {
		t.Fatalf("PixelToSky failed: %v", err)
	}
	back, err := f.SkyToPixel(skies, Origin0, nil)
	if err != nil {
		t.Fatalf("SkyToPixel failed: %v", err)
	}
	for i := range pixels {
		if !almostEqualPixel(pixels[i], back[i], roundTripTol) {
			t.Errorf("round trip %d: %v -> %v -> %v", i, pixels[i], skies[i], back[i])
		}
	}
}

func TestRoundTripIterativeSIP(t *testing.T) {
	// Forward-only SIP distortion: the inverse must be found iteratively.
	dist := &Distortion{
		Convention: ConventionSIP,
		A:          Poly{{I: 2, J: 0}: 1.1e-5, {I: 0, J: 2}: -3.0e-6, {I: 1, J: 1}: 2.0e-6},
		B:          Poly{{I: 2, J: 0}: -4.0e-6, {I: 0, J: 2}: 8.0e-6},
	}
	f := testFrame(t, dist)

	pixels := []Pixel{
		{X: 100, Y: 100},
		{X: 150.3, Y: 80.7},
		{X: 10, Y: 190},
		{X: 185.5, Y: 185.5},
	}

	skies, err := f.PixelToSky(pixels, Origin0)
	if err != nil {
		t.Fatalf("PixelToSky failed: %v", err)
	}
	back, err := f.SkyToPixel(skies, Origin0, nil)
	if err != nil {
		t.Fatalf("SkyToPixel failed: %v", err)
	}
	for i := range pixels {
		if !almostEqualPixel(pixels[i], back[i], roundTripTol) {
			t.Errorf("round trip %d: %v -> %v", i, pixels[i], back[i])
		}
	}
}

func TestRoundTripClosedFormInverse(t *testing.T) {
	// A pure shear has an exact polynomial inverse: forward adds c*v to u,
	// the inverse subtracts it. The closed-form path must round-trip to
	// machine precision without iterating.
	const c = 1e-3
	dist := &Distortion{
		Convention: ConventionSIP,
		A:          Poly{{I: 0, J: 1}: c},
		B:          Poly{},
		AP:         Poly{{I: 0, J: 1}: -c},
		BP:         Poly{},
	}
	f := testFrame(t, dist)

	pixels := []Pixel{{X: 100, Y: 100}, {X: 30.25, Y: 160.75}, {X: 180, Y: 20}}

	skies, err := f.PixelToSky(pixels, Origin0)
	if err != nil {
		t.Fatalf("PixelToSky failed: %v", err)
	}
	back, err := f.SkyToPixel(skies, Origin0, nil)
	if err != nil {
		t.Fatalf("SkyToPixel failed: %v", err)
	}
	for i := range pixels {
		if !almostEqualPixel(pixels[i], back[i], 1e-9) {
			t.Errorf("closed-form round trip %d: %v -> %v", i, pixels[i], back[i])
		}
	}
}

func TestClosedFormMatchesIterative(t *testing.T) {
	const c = 1e-3
	forwardOnly := &Distortion{
		Convention: ConventionSIP,
		A:          Poly{{I: 0, J: 1}: c},
		B:          Poly{},
	}
	withInverse := &Distortion{
		Convention: ConventionSIP,
		A:          Poly{{I: 0, J: 1}: c},
		B:          Poly{},
		AP:         Poly{{I: 0, J: 1}: -c},
		BP:         Poly{},
	}

	fIter := testFrame(t, forwardOnly)
	fClosed := testFrame(t, withInverse)

	skies := []Sky{{RA: 150.004, Dec: 29.996}, {RA: 149.99, Dec: 30.01}}

	pIter, err := fIter.SkyToPixel(skies, Origin0, nil)
	if err != nil {
		t.Fatalf("iterative SkyToPixel failed: %v", err)
	}
	pClosed, err := fClosed.SkyToPixel(skies, Origin0, nil)
	if err != nil {
		t.Fatalf("closed-form SkyToPixel failed: %v", err)
	}
	for i := range skies {
		if !almostEqualPixel(pIter[i], pClosed[i], roundTripTol) {
			t.Errorf("paths disagree at %d: iterative %v, closed-form %v", i, pIter[i], pClosed[i])
		}
	}
}

func TestRoundTripTPV(t *testing.T) {
	// TPV-style distortion acts on intermediate world coordinates.
	dist := &Distortion{
		Convention: ConventionTPV,
		A:          Poly{{I: 2, J: 0}: 5e-3, {I: 0, J: 1}: 1e-3},
		B:          Poly{{I: 0, J: 2}: -3e-3},
	}
	f := testFrame(t, dist)

	pixels := []Pixel{{X: 100, Y: 100}, {X: 140, Y: 60}, {X: 55.5, Y: 120.25}}

	skies, err := f.PixelToSky(pixels, Origin0)
	if err != nil {
		t.Fatalf("PixelToSky failed: %v", err)
	}
	back, err := f.SkyToPixel(skies, Origin0, nil)
	if err != nil {
		t.Fatalf("SkyToPixel failed: %v", err)
	}
	for i := range pixels {
		if !almostEqualPixel(pixels[i], back[i], roundTripTol) {
			t.Errorf("TPV round trip %d: %v -> %v", i, pixels[i], back[i])
		}
	}
}

func TestProjectionSingularityPartialBatch(t *testing.T) {
	f := testFrame(t, nil)

	// The antipode of the tangent point is undefined under TAN; the
	// other positions in the batch must still compute.
	skies := []Sky{
		{RA: 150.0, Dec: 30.0},
		{RA: 330.0, Dec: -30.0}, // antipodal point
		{RA: 150.01, Dec: 29.99},
	}

	pixels, err := f.SkyToPixel(skies, Origin0, nil)
	if err == nil {
		t.Fatal("expected a batch error")
	}
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("error type: got %T, want *BatchError", err)
	}
	if len(batch.Positions) != 1 || batch.Positions[0].Index != 1 {
		t.Fatalf("failed positions: got %+v, want index 1 only", batch.Positions)
	}
	if !errors.Is(err, ErrProjectionSingularity) {
		t.Error("errors.Is should match ErrProjectionSingularity")
	}

	if !math.IsNaN(pixels[1].X) || !math.IsNaN(pixels[1].Y) {
		t.Errorf("failed entry should be NaN: got %v", pixels[1])
	}
	if math.IsNaN(pixels[0].X) || math.IsNaN(pixels[2].X) {
		t.Error("successful entries should still compute")
	}
	if !almostEqualPixel(pixels[0], Pixel{X: 100, Y: 100}, roundTripTol) {
		t.Errorf("reference sky should map to reference pixel: got %v", pixels[0])
	}
}

func TestInverseDidNotConverge(t *testing.T) {
	// A violently non-linear forward polynomial makes the fixed-point
	// iteration diverge for positions far from the reference pixel.
	dist := &Distortion{
		Convention: ConventionSIP,
		A:          Poly{{I: 2, J: 0}: 1.0},
		B:          Poly{},
	}
	f, err := NewFrame(Pixel{}, Origin0, Sky{}, CD{1e-3, 0, 0, 1e-3}, ProjectionLinear, dist)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}

	// Forward image of pixel (10, 0): u' = 10 + 100 = 110 -> 0.11 deg.
	skies := []Sky{{RA: 0.11, Dec: 0}}
	pixels, err := f.SkyToPixel(skies, Origin0, nil)
	if err == nil {
		t.Fatal("expected non-convergence")
	}
	if !errors.Is(err, ErrInverseDidNotConverge) {
		t.Errorf("errors.Is should match ErrInverseDidNotConverge, got %v", err)
	}
	if !math.IsNaN(pixels[0].X) {
		t.Errorf("failed entry should be NaN: got %v", pixels[0])
	}
}

func TestInverseOptionsLooserTolerance(t *testing.T) {
	dist := &Distortion{
		Convention: ConventionSIP,
		A:          Poly{{I: 2, J: 0}: 1.1e-5},
		B:          Poly{{I: 0, J: 2}: 8.0e-6},
	}
	f := testFrame(t, dist)

	skies, err := f.PixelToSky([]Pixel{{X: 170, Y: 25}}, Origin0)
	if err != nil {
		t.Fatalf("PixelToSky failed: %v", err)
	}

	// A cap of 1 iteration with the default tight tolerance fails...
	_, err = f.SkyToPixel(skies, Origin0, &InverseOptions{MaxIterations: 1})
	if !errors.Is(err, ErrInverseDidNotConverge) {
		t.Errorf("expected non-convergence with a 1-iteration cap, got %v", err)
	}

	// ...while a loose tolerance succeeds immediately.
	_, err = f.SkyToPixel(skies, Origin0, &InverseOptions{MaxIterations: 1, Tolerance: 10})
	if err != nil {
		t.Errorf("loose tolerance should converge in one pass: %v", err)
	}
}

func TestRAWrapsAtZero(t *testing.T) {
	f, err := NewFrame(Pixel{X: 0, Y: 0}, Origin0, Sky{RA: 0, Dec: 0}, CD{1e-3, 0, 0, 1e-3}, ProjectionTangent, nil)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}

	skies, err := f.PixelToSky([]Pixel{{X: -10, Y: 0}}, Origin0)
	if err != nil {
		t.Fatalf("PixelToSky failed: %v", err)
	}
	if skies[0].RA < 359 || skies[0].RA >= 360 {
		t.Errorf("RA should wrap into [0, 360): got %v", skies[0].RA)
	}
}
