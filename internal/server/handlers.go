package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starfield-go/starfield/internal/catalog"
	"github.com/starfield-go/starfield/internal/grid"
	"github.com/starfield-go/starfield/internal/render"
	"github.com/starfield-go/starfield/internal/segment"
	"github.com/starfield-go/starfield/internal/wcs"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "field_load", "detect_sources").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Warn().Str("tool", params.Name).Err(err).Msg("tool call failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads the field from cache as needed
//  4. Calls into the grid/segment/wcs packages
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Field Information
	case "field_load":
		return s.handleFieldLoad(args)
	case "field_stats":
		return s.handleFieldStats(args)

	// Source Extraction
	case "detect_sources":
		return s.handleDetectSources(args)
	case "deblend_sources":
		return s.handleDeblendSources(args)
	case "measure_sources":
		return s.handleMeasureSources(args)

	// Coordinate Transforms
	case "pixel_to_sky":
		return s.handlePixelToSky(args)
	case "sky_to_pixel":
		return s.handleSkyToPixel(args)
	case "strip_distortion":
		return s.handleStripDistortion(args)

	// Output
	case "export_catalog":
		return s.handleExportCatalog(args)
	case "render_overlay":
		return s.handleRenderOverlay(args)
	case "render_heatmap":
		return s.handleRenderHeatmap(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Field Information Handlers ===

type fieldLoadArgs struct {
	Path string `json:"path"`
}

type fieldLoadResult struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	HasWCS bool    `json:"has_wcs"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func (s *Server) handleFieldLoad(args json.RawMessage) (interface{}, error) {
	var a fieldLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	min, max := field.Data.MinMax()
	return &fieldLoadResult{
		Width:  field.Data.Width(),
		Height: field.Data.Height(),
		HasWCS: field.Frame != nil,
		Min:    min,
		Max:    max,
	}, nil
}

type fieldStatsArgs struct {
	Path          string  `json:"path"`
	Kappa         float64 `json:"kappa"`
	MaxIterations int     `json:"max_iterations"`
}

type fieldStatsResult struct {
	Stats      *grid.Stats         `json:"stats"`
	Background *grid.NoiseEstimate `json:"background"`
}

func (s *Server) handleFieldStats(args json.RawMessage) (interface{}, error) {
	var a fieldStatsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Kappa == 0 {
		a.Kappa = 3.0
	}
	if a.MaxIterations == 0 {
		a.MaxIterations = 10
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return &fieldStatsResult{
		Stats:      field.Data.Stats(),
		Background: field.Data.EstimateNoise(a.Kappa, 0, a.MaxIterations),
	}, nil
}

// === Source Extraction Handlers ===

type detectSourcesArgs struct {
	Path         string  `json:"path"`
	Threshold    float64 `json:"threshold"`
	Sigma        float64 `json:"sigma"`
	MinPixels    int     `json:"min_pixels"`
	Connectivity int     `json:"connectivity"`
	SmoothFWHM   float64 `json:"smooth_fwhm"`
}

type detectSourcesResult struct {
	NSources  int     `json:"n_sources"`
	Threshold float64 `json:"threshold"`
}

func (s *Server) handleDetectSources(args json.RawMessage) (interface{}, error) {
	var a detectSourcesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.MinPixels == 0 {
		a.MinPixels = 5
	}
	if a.Connectivity == 0 {
		a.Connectivity = 8
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	threshold := a.Threshold
	if a.Sigma > 0 {
		// Threshold relative to the estimated background.
		noise := field.Data.EstimateNoise(3.0, 0, 10)
		threshold = noise.Background + a.Sigma*noise.Sigma
	}

	var kernel *grid.Kernel
	if a.SmoothFWHM > 0 {
		kernel, err = grid.GaussianKernel(a.SmoothFWHM)
		if err != nil {
			return nil, err
		}
	}

	m, err := segment.Detect(field.Data, segment.UniformThreshold(threshold),
		a.MinPixels, segment.Connectivity(a.Connectivity), kernel)
	if err != nil {
		return nil, err
	}

	field.mu.Lock()
	field.Map = m
	field.Catalog = nil // stale after re-detection
	field.Threshold = threshold
	field.MinPixels = a.MinPixels
	field.mu.Unlock()

	return &detectSourcesResult{NSources: m.NLabels(), Threshold: threshold}, nil
}

type deblendSourcesArgs struct {
	Path         string  `json:"path"`
	NLevels      int     `json:"nlevels"`
	Contrast     float64 `json:"contrast"`
	MinPixels    int     `json:"min_pixels"`
	Connectivity int     `json:"connectivity"`
}

type deblendSourcesResult struct {
	NSources     int   `json:"n_sources"`
	FailedLabels []int `json:"failed_labels,omitempty"`
}

func (s *Server) handleDeblendSources(args json.RawMessage) (interface{}, error) {
	var a deblendSourcesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	field.mu.Lock()
	defer field.mu.Unlock()
	if field.Map == nil {
		return nil, fmt.Errorf("no detection map for %s: run detect_sources first", a.Path)
	}

	out, err := segment.Deblend(field.Data, field.Map, segment.DeblendOptions{
		NLevels:      a.NLevels,
		Contrast:     a.Contrast,
		MinPixels:    a.MinPixels,
		Connectivity: segment.Connectivity(a.Connectivity),
	})

	// Per-segment failures are partial results, not tool errors: the
	// failed segments pass through undeblended.
	result := &deblendSourcesResult{}
	if err != nil {
		var dErr *segment.DeblendError
		if !errors.As(err, &dErr) {
			return nil, err
		}
		for _, se := range dErr.Segments {
			result.FailedLabels = append(result.FailedLabels, se.Label)
		}
	}

	field.Map = out
	field.Catalog = nil
	result.NSources = out.NLabels()
	return result, nil
}

type measureSourcesArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleMeasureSources(args json.RawMessage) (interface{}, error) {
	var a measureSourcesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	field.mu.Lock()
	defer field.mu.Unlock()
	if field.Map == nil {
		return nil, fmt.Errorf("no detection map for %s: run detect_sources first", a.Path)
	}

	cat, err := segment.MeasureProperties(field.Data, field.Map, nil, field.Frame)
	if err != nil {
		return nil, err
	}
	field.Catalog = cat
	return cat, nil
}

// === Coordinate Transform Handlers ===

type transformArgs struct {
	Path             string            `json:"path"`
	Header           map[string]string `json:"header"`
	Positions        [][]float64       `json:"positions"`
	Origin           int               `json:"origin"`
	IgnoreDistortion bool              `json:"ignore_distortion"`
	Tolerance        float64           `json:"tolerance"`
	MaxIterations    int               `json:"max_iterations"`
}

// frameFor resolves the coordinate frame for a transform call: an inline
// header takes precedence, otherwise the cached field's frame is used.
func (s *Server) frameFor(a *transformArgs) (*wcs.Frame, error) {
	var frame *wcs.Frame
	switch {
	case a.Header != nil:
		f, err := wcs.FromHeader(a.Header)
		if err != nil {
			return nil, err
		}
		frame = f
	case a.Path != "":
		field, err := s.cache.Load(a.Path)
		if err != nil {
			return nil, err
		}
		if field.Frame == nil {
			return nil, fmt.Errorf("%s carries no WCS header", a.Path)
		}
		frame = field.Frame
	default:
		return nil, fmt.Errorf("either path or header is required")
	}

	if a.IgnoreDistortion {
		frame = frame.StripDistortion()
	}
	return frame, nil
}

func originOf(a *transformArgs) (wcs.Origin, error) {
	switch a.Origin {
	case 0:
		return wcs.Origin0, nil
	case 1:
		return wcs.Origin1, nil
	default:
		return 0, fmt.Errorf("origin must be 0 or 1, got %d", a.Origin)
	}
}

type skyResult struct {
	RA    *float64 `json:"ra"`
	Dec   *float64 `json:"dec"`
	Error string   `json:"error,omitempty"`
}

type pixelResult struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Error string   `json:"error,omitempty"`
}

func (s *Server) handlePixelToSky(args json.RawMessage) (interface{}, error) {
	var a transformArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.frameFor(&a)
	if err != nil {
		return nil, err
	}
	origin, err := originOf(&a)
	if err != nil {
		return nil, err
	}

	pixels := make([]wcs.Pixel, len(a.Positions))
	for i, p := range a.Positions {
		if len(p) != 2 {
			return nil, fmt.Errorf("position %d: want [x, y], got %d values", i, len(p))
		}
		pixels[i] = wcs.Pixel{X: p[0], Y: p[1]}
	}

	skies, err := frame.PixelToSky(pixels, origin)
	failures, err := batchFailures(err)
	if err != nil {
		return nil, err
	}

	results := make([]skyResult, len(skies))
	for i, sky := range skies {
		if msg, failed := failures[i]; failed {
			results[i] = skyResult{Error: msg}
			continue
		}
		ra, dec := sky.RA, sky.Dec
		results[i] = skyResult{RA: &ra, Dec: &dec}
	}
	return map[string]interface{}{"results": results}, nil
}

func (s *Server) handleSkyToPixel(args json.RawMessage) (interface{}, error) {
	var a transformArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.frameFor(&a)
	if err != nil {
		return nil, err
	}
	origin, err := originOf(&a)
	if err != nil {
		return nil, err
	}

	skies := make([]wcs.Sky, len(a.Positions))
	for i, p := range a.Positions {
		if len(p) != 2 {
			return nil, fmt.Errorf("position %d: want [ra, dec], got %d values", i, len(p))
		}
		skies[i] = wcs.Sky{RA: p[0], Dec: p[1]}
	}

	var opts *wcs.InverseOptions
	if a.Tolerance > 0 || a.MaxIterations > 0 {
		opts = &wcs.InverseOptions{Tolerance: a.Tolerance, MaxIterations: a.MaxIterations}
	}

	pixels, err := frame.SkyToPixel(skies, origin, opts)
	failures, err := batchFailures(err)
	if err != nil {
		return nil, err
	}

	results := make([]pixelResult, len(pixels))
	for i, px := range pixels {
		if msg, failed := failures[i]; failed {
			results[i] = pixelResult{Error: msg}
			continue
		}
		x, y := px.X, px.Y
		results[i] = pixelResult{X: &x, Y: &y}
	}
	return map[string]interface{}{"results": results}, nil
}

// batchFailures converts a *wcs.BatchError into a per-index message map.
// Any other non-nil error passes through.
func batchFailures(err error) (map[int]string, error) {
	if err == nil {
		return nil, nil
	}
	var batch *wcs.BatchError
	if !errors.As(err, &batch) {
		return nil, err
	}
	failures := make(map[int]string, len(batch.Positions))
	for _, pe := range batch.Positions {
		failures[pe.Index] = pe.Err.Error()
	}
	return failures, nil
}

type stripDistortionArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleStripDistortion(args json.RawMessage) (interface{}, error) {
	var a stripDistortionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	field.mu.Lock()
	defer field.mu.Unlock()
	if field.Frame == nil {
		return nil, fmt.Errorf("%s carries no WCS header", a.Path)
	}
	had := field.Frame.HasDistortion()
	field.Frame = field.Frame.StripDistortion()
	return map[string]interface{}{"had_distortion": had}, nil
}

// === Output Handlers ===

type exportCatalogArgs struct {
	Path   string `json:"path"`
	Output string `json:"output"`
	Format string `json:"format"`
}

func (s *Server) handleExportCatalog(args json.RawMessage) (interface{}, error) {
	var a exportCatalogArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Format == "" {
		a.Format = "csv"
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	field.mu.Lock()
	cat := field.Catalog
	threshold := field.Threshold
	minPixels := field.MinPixels
	field.mu.Unlock()
	if cat == nil {
		return nil, fmt.Errorf("no catalog for %s: run measure_sources first", a.Path)
	}

	switch a.Format {
	case "csv":
		if err := catalog.WriteCSVFile(a.Output, cat); err != nil {
			return nil, err
		}
	case "sqlite":
		store, err := catalog.OpenStore(a.Output)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if _, err := store.SaveRun(a.Path, threshold, minPixels, cat); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q (want csv or sqlite)", a.Format)
	}

	return map[string]interface{}{
		"output":    a.Output,
		"format":    a.Format,
		"n_sources": cat.Len(),
	}, nil
}

type renderOverlayArgs struct {
	Path       string  `json:"path"`
	Output     string  `json:"output"`
	Scale      float64 `json:"scale"`
	DrawLabels bool    `json:"draw_labels"`
}

func (s *Server) handleRenderOverlay(args json.RawMessage) (interface{}, error) {
	var a renderOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	field.mu.Lock()
	cat := field.Catalog
	field.mu.Unlock()
	if cat == nil {
		return nil, fmt.Errorf("no catalog for %s: run measure_sources first", a.Path)
	}

	err = render.SaveOverlay(a.Output, field.Data, cat, render.OverlayOptions{
		Scale:      a.Scale,
		DrawLabels: a.DrawLabels,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"output": a.Output}, nil
}

type renderHeatmapArgs struct {
	Path   string `json:"path"`
	Output string `json:"output"`
	Title  string `json:"title"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (s *Server) handleRenderHeatmap(args json.RawMessage) (interface{}, error) {
	var a renderHeatmapArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	field, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	err = render.SaveHeatmap(a.Output, field.Data, render.HeatmapOptions{
		Title:  a.Title,
		Width:  a.Width,
		Height: a.Height,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"output": a.Output}, nil
}
