package wcs

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sentinel error kinds. Batch transforms wrap these per position; frame
// construction returns ErrInvalidFrame directly.
var (
	// ErrInvalidFrame indicates a frame whose linear matrix is singular
	// (or otherwise unusable). Fatal: no transform can run against it.
	ErrInvalidFrame = errors.New("invalid coordinate frame")

	// ErrProjectionSingularity indicates a position where the declared
	// projection is undefined, e.g. at or behind the tangent-plane horizon.
	ErrProjectionSingularity = errors.New("projection undefined at position")

	// ErrInverseDidNotConverge indicates the iterative sky-to-pixel
	// inverse failed to reach the requested tolerance within the
	// iteration cap.
	ErrInverseDidNotConverge = errors.New("iterative inverse did not converge")
)

// Origin selects the pixel indexing convention for positions passed to
// and returned from transforms.
type Origin int

const (
	// Origin0 is 0-based indexing: the center of the first pixel is (0, 0).
	Origin0 Origin = 0

	// Origin1 is 1-based (FITS) indexing: the center of the first pixel
	// is (1, 1).
	Origin1 Origin = 1
)

// Pixel is a position on the image grid. Its indexing convention is
// carried by the Origin argument of the transform that produced or
// consumes it.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sky is a celestial position in degrees.
type Sky struct {
	RA  float64 `json:"ra_deg"`
	Dec float64 `json:"dec_deg"`
}

// Projection enumerates the supported spherical projections.
type Projection int

const (
	// ProjectionTangent is the gnomonic (tangent-plane, FITS "TAN")
	// projection about the reference sky position.
	ProjectionTangent Projection = iota

	// ProjectionLinear treats intermediate coordinates as direct angular
	// offsets from the reference sky position, with no spherical
	// correction. Only appropriate for small fields near the equator or
	// for synthetic data.
	ProjectionLinear
)

func (p Projection) String() string {
	switch p {
	case ProjectionTangent:
		return "TAN"
	case ProjectionLinear:
		return "LINEAR"
	default:
		return fmt.Sprintf("Projection(%d)", int(p))
	}
}

// CD is the 2x2 linear transform matrix in degrees per pixel, row-major:
//
//	[ CD1_1  CD1_2 ]
//	[ CD2_1  CD2_2 ]
type CD [4]float64

// Frame is an immutable description of one image's pixel-to-sky mapping.
//
// Construct frames with NewFrame or FromHeader. The reference pixel is
// stored 0-based internally regardless of the origin it was supplied in.
type Frame struct {
	refPixel   Pixel // 0-based
	refSky     Sky
	cd         CD
	cdInv      CD
	projection Projection
	distortion *Distortion
}

// NewFrame builds and validates a coordinate frame.
//
// refPixel is interpreted in the given origin convention. cd must be
// invertible; a singular (or numerically near-singular) matrix returns
// ErrInvalidFrame. dist may be nil for a purely linear frame; when
// non-nil it is copied, so the caller's Distortion may be reused.
func NewFrame(refPixel Pixel, origin Origin, refSky Sky, cd CD, projection Projection, dist *Distortion) (*Frame, error) {
	if projection != ProjectionTangent && projection != ProjectionLinear {
		return nil, fmt.Errorf("%w: unsupported projection %d", ErrInvalidFrame, int(projection))
	}

	m := mat.NewDense(2, 2, []float64{cd[0], cd[1], cd[2], cd[3]})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: linear matrix not invertible: %v", ErrInvalidFrame, err)
	}

	f := &Frame{
		refPixel:   Pixel{X: refPixel.X - float64(origin), Y: refPixel.Y - float64(origin)},
		refSky:     refSky,
		cd:         cd,
		cdInv:      CD{inv.At(0, 0), inv.At(0, 1), inv.At(1, 0), inv.At(1, 1)},
		projection: projection,
	}
	if dist != nil {
		d := dist.clone()
		f.distortion = &d
	}
	return f, nil
}

// RefPixel returns the reference pixel in the requested origin convention.
func (f *Frame) RefPixel(origin Origin) Pixel {
	return Pixel{X: f.refPixel.X + float64(origin), Y: f.refPixel.Y + float64(origin)}
}

// RefSky returns the sky position at the reference pixel.
func (f *Frame) RefSky() Sky { return f.refSky }

// Matrix returns the linear transform matrix.
func (f *Frame) Matrix() CD { return f.cd }

// Projection returns the declared spherical projection.
func (f *Frame) Projection() Projection { return f.projection }

// HasDistortion reports whether the frame carries a distortion model.
func (f *Frame) HasDistortion() bool { return f.distortion != nil }

// Distortion returns a copy of the frame's distortion model, or nil.
func (f *Frame) Distortion() *Distortion {
	if f.distortion == nil {
		return nil
	}
	d := f.distortion.clone()
	return &d
}

// StripDistortion returns a frame identical to f but with the distortion
// model removed, exposing the undistorted core transform. Stripping a
// frame that has no distortion returns an equal frame, so the operation
// is idempotent.
func (f *Frame) StripDistortion() *Frame {
	out := *f
	out.distortion = nil
	return &out
}

// apply multiplies the CD matrix by (u, v).
func (m CD) apply(u, v float64) (float64, float64) {
	return m[0]*u + m[1]*v, m[2]*u + m[3]*v
}
