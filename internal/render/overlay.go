package render

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/starfield-go/starfield/internal/grid"
	"github.com/starfield-go/starfield/internal/segment"
)

// OverlayOptions tunes Overlay. The zero value draws labeled circles on
// an asinh-stretched background at native resolution.
type OverlayOptions struct {
	// Scale multiplies the output size; values <= 0 mean 1 (native).
	Scale float64

	// MarkRadius is the marker radius in input pixels. Values <= 0
	// derive it from each source's bounding box.
	MarkRadius float64

	// DrawLabels annotates each marker with its catalog label.
	DrawLabels bool
}

// Overlay renders the grid as a stretched grayscale background with one
// colored circle per catalog source at its centroid.
func Overlay(g *grid.Grid, cat *segment.Catalog, opts OverlayOptions) (image.Image, error) {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}

	bg := stretchToGray(g)
	if opts.Scale != 1 {
		w := int(math.Round(float64(g.Width()) * opts.Scale))
		h := int(math.Round(float64(g.Height()) * opts.Scale))
		bg = imaging.Resize(bg, w, h, imaging.NearestNeighbor)
	}

	dc := gg.NewContextForImage(bg)
	dc.SetLineWidth(math.Max(1, opts.Scale))

	for i, s := range cat.Sources {
		// Walk the hue wheel so neighboring labels get distinct colors.
		hue := math.Mod(float64(i)*137.5, 360)
		dc.SetColor(colorful.Hsv(hue, 0.9, 1.0))

		r := opts.MarkRadius
		if r <= 0 {
			r = math.Max(3, float64(s.BBox.Width()+s.BBox.Height())/3)
		}
		cx := (s.CentroidX + 0.5) * opts.Scale
		cy := (s.CentroidY + 0.5) * opts.Scale
		dc.DrawCircle(cx, cy, r*opts.Scale)
		dc.Stroke()

		if opts.DrawLabels {
			dc.DrawString(fmt.Sprintf("%d", s.Label), cx+r*opts.Scale+2, cy)
		}
	}
	return dc.Image(), nil
}

// SaveOverlay renders the overlay and writes it in the format implied by
// the file extension.
func SaveOverlay(path string, g *grid.Grid, cat *segment.Catalog, opts OverlayOptions) error {
	img, err := Overlay(g, cat, opts)
	if err != nil {
		return err
	}
	if err := savePNG(path, img); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

// stretchToGray maps the grid onto 8-bit grayscale with an asinh stretch,
// which compresses bright cores while keeping faint wings visible.
func stretchToGray(g *grid.Grid) *image.NRGBA {
	min, max := g.MinMax()
	span := max - min
	if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		span = 1
	}
	norm := math.Asinh(10)

	img := image.NewNRGBA(image.Rect(0, 0, g.Width(), g.Height()))
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			v := g.At(x, y)
			if math.IsNaN(v) {
				v = min
			}
			t := math.Asinh(10*(v-min)/span) / norm
			p := uint8(math.Round(255 * math.Min(1, math.Max(0, t))))
			off := img.PixOffset(x, y)
			img.Pix[off] = p
			img.Pix[off+1] = p
			img.Pix[off+2] = p
			img.Pix[off+3] = 255
		}
	}
	return img
}

func savePNG(path string, img image.Image) error {
	return imaging.Save(img, path)
}
