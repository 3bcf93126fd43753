package wcs

import (
	"fmt"
	"math"
	"strings"
)

// InverseOptions tunes the iterative sky-to-pixel inverse used when a
// frame's distortion model has no closed-form inverse. The zero value
// selects the defaults; pass nil to SkyToPixel for the same effect.
type InverseOptions struct {
	// Tolerance is the convergence threshold on the per-position residual
	// in pixels. Default 1e-6.
	Tolerance float64

	// MaxIterations caps the refinement loop. Default 20. The cap bounds
	// worst-case latency, so no external cancellation is needed.
	MaxIterations int
}

const (
	defaultTolerance     = 1e-6
	defaultMaxIterations = 20
)

func (o *InverseOptions) tolerance() float64 {
	if o == nil || o.Tolerance <= 0 {
		return defaultTolerance
	}
	return o.Tolerance
}

func (o *InverseOptions) maxIterations() int {
	if o == nil || o.MaxIterations <= 0 {
		return defaultMaxIterations
	}
	return o.MaxIterations
}

// PositionError records the failure of one position within a batch.
type PositionError struct {
	Index int
	Err   error
}

func (e PositionError) Error() string {
	return fmt.Sprintf("position %d: %v", e.Index, e.Err)
}

func (e PositionError) Unwrap() error { return e.Err }

// BatchError aggregates per-position failures from a batch transform.
// Positions that failed are returned as NaN in the result slice; all
// other positions hold valid results. errors.Is matches the underlying
// sentinel kinds.
type BatchError struct {
	Positions []PositionError
}

func (e *BatchError) Error() string {
	if len(e.Positions) == 1 {
		return e.Positions[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of batch failed: ", len(e.Positions))
	for i, pe := range e.Positions {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(pe.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Positions))
	for i, pe := range e.Positions {
		errs[i] = pe
	}
	return errs
}

// or returns nil when the batch had no failures.
func (e *BatchError) or() error {
	if len(e.Positions) == 0 {
		return nil
	}
	return e
}

var nanPixel = Pixel{X: math.NaN(), Y: math.NaN()}
var nanSky = Sky{RA: math.NaN(), Dec: math.NaN()}

// PixelToSky converts pixel positions (in the given origin convention) to
// sky positions.
//
// Failed positions are returned as NaN and reported through a *BatchError;
// the rest of the batch still computes.
func (f *Frame) PixelToSky(positions []Pixel, origin Origin) ([]Sky, error) {
	out := make([]Sky, len(positions))
	batch := &BatchError{}

	for i, p := range positions {
		u := p.X - float64(origin) - f.refPixel.X
		v := p.Y - float64(origin) - f.refPixel.Y
		xi, eta := f.offsetToIntermediate(u, v)
		s, ok := f.deproject(xi, eta)
		if !ok {
			out[i] = nanSky
			batch.Positions = append(batch.Positions, PositionError{Index: i, Err: ErrProjectionSingularity})
			continue
		}
		out[i] = s
	}
	return out, batch.or()
}

// SkyToPixel converts sky positions to pixel positions in the given
// origin convention.
//
// When the frame's distortion model carries explicit inverse coefficients
// the inverse is evaluated in a single closed-form pass. Otherwise the
// inverse is found iteratively per position: the distortion-free solution
// seeds a fixed-point refinement whose residual is measured in pixel
// units through the inverse linear matrix. opts may be nil for defaults.
//
// Failed positions (projection singularities, non-convergence) are
// returned as NaN and reported through a *BatchError.
func (f *Frame) SkyToPixel(positions []Sky, origin Origin, opts *InverseOptions) ([]Pixel, error) {
	out := make([]Pixel, len(positions))
	batch := &BatchError{}

	for i, s := range positions {
		xi, eta, ok := f.project(s)
		if !ok {
			out[i] = nanPixel
			batch.Positions = append(batch.Positions, PositionError{Index: i, Err: ErrProjectionSingularity})
			continue
		}

		u, v, err := f.intermediateToOffset(xi, eta, opts)
		if err != nil {
			out[i] = nanPixel
			batch.Positions = append(batch.Positions, PositionError{Index: i, Err: err})
			continue
		}
		out[i] = Pixel{
			X: u + f.refPixel.X + float64(origin),
			Y: v + f.refPixel.Y + float64(origin),
		}
	}
	return out, batch.or()
}

// intermediateToOffset inverts the linear-plus-distortion core: it finds
// the pixel offset (u, v) from the reference pixel whose forward image is
// the intermediate coordinate (xi, eta).
func (f *Frame) intermediateToOffset(xi, eta float64, opts *InverseOptions) (float64, float64, error) {
	d := f.distortion

	// Undistorted frame: one matrix multiply.
	if d == nil {
		u, v := f.cdInv.apply(xi, eta)
		return u, v, nil
	}

	// Closed-form path: explicit inverse coefficients.
	if d.HasInverse() {
		switch d.Convention {
		case ConventionTPV:
			x, y := d.inverse(xi, eta)
			u, v := f.cdInv.apply(x, y)
			return u, v, nil
		default: // ConventionSIP
			bigU, bigV := f.cdInv.apply(xi, eta)
			u, v := d.inverse(bigU, bigV)
			return u, v, nil
		}
	}

	// Iterative path: seed with the distortion-free inverse, refine by
	// subtracting the forward residual expressed in pixel units.
	tol := opts.tolerance()
	maxIter := opts.maxIterations()

	u, v := f.cdInv.apply(xi, eta)
	for iter := 0; iter < maxIter; iter++ {
		fx, fy := f.offsetToIntermediate(u, v)
		ru, rv := f.cdInv.apply(fx-xi, fy-eta)
		u -= ru
		v -= rv
		if math.Max(math.Abs(ru), math.Abs(rv)) < tol {
			return u, v, nil
		}
	}
	return 0, 0, ErrInverseDidNotConverge
}

// offsetToIntermediate is the forward core transform on pixel offsets
// (the reference pixel already subtracted).
func (f *Frame) offsetToIntermediate(u, v float64) (float64, float64) {
	if f.distortion != nil && f.distortion.Convention == ConventionSIP {
		u, v = f.distortion.forward(u, v)
	}
	xi, eta := f.cd.apply(u, v)
	if f.distortion != nil && f.distortion.Convention == ConventionTPV {
		xi, eta = f.distortion.forward(xi, eta)
	}
	return xi, eta
}
