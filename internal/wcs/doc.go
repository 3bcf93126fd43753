// Package wcs implements world-coordinate-system transforms between pixel
// positions on an image grid and celestial (RA/Dec) positions on the sky.
//
// A Frame describes the mapping for one image: a reference pixel, the sky
// position at that pixel, a 2x2 linear matrix (scale, rotation, skew, in
// degrees per pixel), a spherical projection, and an optional polynomial
// distortion model. Frames are immutable; every transform is a pure
// function over the frame and its input positions, so a single Frame may
// be shared freely between goroutines.
//
// # Transform Pipeline
//
// Pixel to sky runs:
//
//	pixel -> subtract reference pixel and origin offset
//	      -> forward distortion (SIP: before the matrix, TPV: after)
//	      -> 2x2 linear matrix -> intermediate coordinates (degrees)
//	      -> spherical deprojection about the reference sky position
//
// Sky to pixel inverts each step. The projection and the linear matrix
// invert in closed form. The distortion polynomial inverts in closed form
// only when the frame carries explicit inverse coefficients; otherwise the
// inverse is found iteratively, seeded by the distortion-free solution and
// refined until the residual (measured in pixels) drops below a tolerance.
//
// # Batch Semantics
//
// Transforms operate on slices of positions. Per-position failures
// (projection singularities, non-convergence) do not abort the batch:
// affected entries are returned as NaN and the accumulated failures are
// reported in a *BatchError. errors.Is answers against the sentinel kinds
// (ErrProjectionSingularity, ErrInverseDidNotConverge).
//
// # Conventions
//
// Sky coordinates are degrees. Pixel positions may be 0-based or 1-based;
// every public transform takes an explicit Origin. Internally everything
// is 0-based.
package wcs
