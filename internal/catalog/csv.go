// Package catalog persists measured source catalogs: CSV for interchange
// with external tooling and SQLite for queryable archives of repeated
// runs over the same field.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/starfield-go/starfield/internal/segment"
)

var csvHeader = []string{
	"label", "pixel_count",
	"centroid_x", "centroid_y",
	"flux", "flux_err",
	"peak", "peak_x", "peak_y",
	"bbox_min_x", "bbox_min_y", "bbox_max_x", "bbox_max_y",
	"ra", "dec",
}

// WriteCSV writes the catalog to w, one row per source in label order.
// Optional columns (flux_err, ra, dec) are empty when not measured.
func WriteCSV(w io.Writer, cat *segment.Catalog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, s := range cat.Sources {
		row := []string{
			strconv.Itoa(s.Label),
			strconv.Itoa(s.PixelCount),
			formatFloat(s.CentroidX),
			formatFloat(s.CentroidY),
			formatFloat(s.Flux),
			"",
			formatFloat(s.Peak),
			strconv.Itoa(s.PeakX),
			strconv.Itoa(s.PeakY),
			strconv.Itoa(s.BBox.MinX),
			strconv.Itoa(s.BBox.MinY),
			strconv.Itoa(s.BBox.MaxX),
			strconv.Itoa(s.BBox.MaxY),
			"",
			"",
		}
		if s.FluxErrValid {
			row[5] = formatFloat(s.FluxErr)
		}
		if s.SkyValid {
			row[13] = formatFloat(s.Sky.RA)
			row[14] = formatFloat(s.Sky.Dec)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write source %d: %w", s.Label, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the catalog to a file, creating or truncating it.
func WriteCSVFile(path string, cat *segment.Catalog) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create catalog file: %w", err)
	}
	if err := WriteCSV(f, cat); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
