// Package grid provides the 2-D float64 intensity grid shared by the
// coordinate-transform and source-detection packages.
//
// A Grid is a dense row-major array of float64 samples. It is the common
// currency of the library: FITS images, decoded PNG/JPEG frames, and
// synthetic test data are all converted into a Grid before any analysis
// runs on them.
//
// # Coordinate System
//
// All pixel coordinates are 0-based:
//   - X: horizontal position (0 = leftmost column)
//   - Y: vertical position (0 = topmost row)
//
// Callers that need 1-based (FITS-style) indexing convert at the WCS layer,
// not here.
//
// # Statistics
//
// The package includes robust background and noise estimation using
// iterative kappa-sigma clipping. Astronomical frames are dominated by
// background pixels, so a clipped mean/standard deviation is a good
// estimator of the sky level and its noise even in crowded fields.
//
// # Smoothing
//
// Gaussian kernels (parameterized by FWHM) and direct convolution are
// provided for building detection images. Convolution clamps at the grid
// edges rather than wrapping or zero-padding, so border sources are not
// artificially dimmed by out-of-frame zeros.
package grid
