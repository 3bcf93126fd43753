package grid

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// LoadOptions controls preprocessing applied when converting a decoded
// image into a grid.
type LoadOptions struct {
	// MedianFilter applies a 3x3 median filter before conversion. This
	// suppresses isolated hot pixels, which otherwise survive thresholding
	// as spurious single-pixel detections.
	MedianFilter bool

	// SmoothRadius, when > 0, applies a Gaussian blur of the given radius
	// (in pixels) before conversion.
	SmoothRadius float64
}

// LoadImage opens a PNG, JPEG, GIF, TIFF, or BMP file and converts it to
// a luminance grid, applying the requested preprocessing.
//
// FITS files are not handled here; use the fits package, which also
// yields the header needed to build a coordinate frame.
func LoadImage(path string, opts LoadOptions) (*Grid, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return Prepare(img, opts), nil
}

// Prepare converts a decoded image to a luminance grid after applying
// the preprocessing selected in opts.
func Prepare(img image.Image, opts LoadOptions) *Grid {
	if opts.MedianFilter {
		img = effect.Median(img, 1)
	}
	if opts.SmoothRadius > 0 {
		img = blur.Gaussian(img, opts.SmoothRadius)
	}
	return FromImage(img)
}
