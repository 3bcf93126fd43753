package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// pathProperty is the schema fragment shared by every tool that operates
// on a loaded field.
func pathProperty(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": desc,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Field Information
		{
			Name:        "field_load",
			Description: "Load a FITS or raster image file and return its dimensions, value range, and whether it carries a WCS header. Loaded fields are cached for subsequent operations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file (.fits/.fit/.fts decode as FITS, anything else as a raster image)"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "field_stats",
			Description: "Compute global statistics and a kappa-sigma-clipped background/noise estimate for a loaded field.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Path of a loaded field"),
					"kappa": map[string]interface{}{
						"type":        "number",
						"description": "Clipping threshold in standard deviations. Default 3.0",
						"default":     3.0,
					},
					"max_iterations": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum clipping iterations. Default 10",
						"default":     10,
					},
				},
				"required": []string{"path"},
			},
		},

		// Source Extraction
		{
			Name:        "detect_sources",
			Description: "Threshold the field into a segmentation map of connected sources. Either an absolute threshold or a sigma multiple of the estimated background noise.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Path of a loaded field"),
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Absolute detection threshold in data units",
					},
					"sigma": map[string]interface{}{
						"type":        "number",
						"description": "Detection threshold as a multiple of the background noise (overrides threshold when set)",
					},
					"min_pixels": map[string]interface{}{
						"type":        "integer",
						"description": "Minimum pixels per source. Default 5",
						"default":     5,
					},
					"connectivity": map[string]interface{}{
						"type":        "integer",
						"enum":        []int{4, 8},
						"description": "Pixel connectivity. Default 8",
						"default":     8,
					},
					"smooth_fwhm": map[string]interface{}{
						"type":        "number",
						"description": "Optional Gaussian smoothing FWHM (pixels) applied to the detection image only",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "deblend_sources",
			Description: "Split blended segments of the current detection map into separate sources using multi-level thresholding and watershed assignment. Segments that cannot be deblended pass through unchanged and are listed in failed_labels.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Path of a field with a detection map"),
					"nlevels": map[string]interface{}{
						"type":        "integer",
						"description": "Number of exponentially spaced analysis levels. Default 32",
						"default":     32,
					},
					"contrast": map[string]interface{}{
						"type":        "number",
						"description": "Minimum flux fraction a child must carry; 1.0 disables splitting. Default 0.001",
						"default":     0.001,
					},
					"min_pixels": map[string]interface{}{
						"type":        "integer",
						"description": "Minimum pixels per candidate child. Default 1",
						"default":     1,
					},
					"connectivity": map[string]interface{}{
						"type":        "integer",
						"enum":        []int{4, 8},
						"description": "Pixel connectivity. Default 8",
						"default":     8,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "measure_sources",
			Description: "Measure centroid, flux, peak, and bounding box for every source in the current segmentation map. Sky positions are attached when the field has a WCS header.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Path of a field with a detection map"),
				},
				"required": []string{"path"},
			},
		},

		// Coordinate Transforms
		{
			Name:        "pixel_to_sky",
			Description: "Convert pixel positions to sky coordinates (RA/Dec, degrees) using the field's WCS or an inline FITS-style header. Failed positions return per-entry errors.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty("Path of a loaded field with a WCS header"),
					"header": map[string]interface{}{"type": "object", "description": "Inline FITS-style header keywords (alternative to path)"},
					"positions": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
						"description": "Pixel positions as [x, y] pairs",
					},
					"origin": map[string]interface{}{
						"type":        "integer",
						"enum":        []int{0, 1},
						"description": "Pixel origin convention. Default 0",
						"default":     0,
					},
					"ignore_distortion": map[string]interface{}{
						"type":        "boolean",
						"description": "Apply only the linear WCS terms",
					},
				},
				"required": []string{"positions"},
			},
		},
		{
			Name:        "sky_to_pixel",
			Description: "Convert sky coordinates (RA/Dec, degrees) to pixel positions. Uses the closed-form inverse when the distortion model has explicit inverse coefficients, otherwise an iterative inverse.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty("Path of a loaded field with a WCS header"),
					"header": map[string]interface{}{"type": "object", "description": "Inline FITS-style header keywords (alternative to path)"},
					"positions": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
						"description": "Sky positions as [ra, dec] pairs in degrees",
					},
					"origin": map[string]interface{}{
						"type":        "integer",
						"enum":        []int{0, 1},
						"description": "Pixel origin convention. Default 0",
						"default":     0,
					},
					"tolerance": map[string]interface{}{
						"type":        "number",
						"description": "Iterative inverse convergence tolerance in pixels. Default 1e-6",
					},
					"max_iterations": map[string]interface{}{
						"type":        "integer",
						"description": "Iterative inverse iteration cap. Default 20",
					},
					"ignore_distortion": map[string]interface{}{
						"type":        "boolean",
						"description": "Apply only the linear WCS terms",
					},
				},
				"required": []string{"positions"},
			},
		},
		{
			Name:        "strip_distortion",
			Description: "Remove the distortion model from a loaded field's WCS, leaving the linear terms. Subsequent transforms on this field use the linear solution only.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Path of a loaded field with a WCS header"),
				},
				"required": []string{"path"},
			},
		},

		// Output
		{
			Name:        "export_catalog",
			Description: "Write the measured catalog to disk as CSV or append it as a run to a SQLite archive.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty("Path of a field with a measured catalog"),
					"output": pathProperty("Destination file path"),
					"format": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"csv", "sqlite"},
						"description": "Output format. Default csv",
						"default":     "csv",
					},
				},
				"required": []string{"path", "output"},
			},
		},
		{
			Name:        "render_overlay",
			Description: "Render the field as a stretched grayscale image with one colored marker per measured source and write it to disk.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty("Path of a field with a measured catalog"),
					"output": pathProperty("Destination image path (format from extension)"),
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Output scale factor. Default 1.0",
						"default":     1.0,
					},
					"draw_labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Annotate markers with catalog labels",
					},
				},
				"required": []string{"path", "output"},
			},
		},
		{
			Name:        "render_heatmap",
			Description: "Render a false-color heatmap of the field and write it to disk as PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty("Path of a loaded field"),
					"output": pathProperty("Destination PNG path"),
					"title":  map[string]interface{}{"type": "string", "description": "Plot title"},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Output width in pixels. Default 800",
						"default":     800,
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Output height in pixels. Default 800",
						"default":     800,
					},
				},
				"required": []string{"path", "output"},
			},
		},
	}
}
