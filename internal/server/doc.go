// Package server implements the MCP (Model Context Protocol) server for
// astronomical source extraction and coordinate transforms.
//
// This package provides a JSON-RPC 2.0 server that exposes the detection,
// deblending, photometry, and WCS capabilities of the library through the
// MCP protocol, so MCP-compatible clients can analyze survey imagery
// interactively.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Field Information:
//   - field_load: Load a FITS or raster image and get metadata
//   - field_stats: Global statistics and background/noise estimate
//
// Source Extraction:
//   - detect_sources: Threshold into a segmentation map
//   - deblend_sources: Split blended segments into separate sources
//   - measure_sources: Per-source centroid, flux, peak, bounding box
//
// Coordinate Transforms:
//   - pixel_to_sky: Pixel positions to RA/Dec
//   - sky_to_pixel: RA/Dec to pixel positions
//   - strip_distortion: Drop the distortion model, keep the linear WCS
//
// Output:
//   - export_catalog: Write the catalog as CSV or to a SQLite archive
//   - render_overlay: Annotated source-marker image
//   - render_heatmap: False-color field rendering
//
// # Field Caching
//
// The server maintains an in-memory cache of loaded fields keyed by path.
// A cached field also carries the analysis state produced by tool calls
// (detection map, measured catalog), so detect_sources, deblend_sources,
// and measure_sources chain naturally across requests. The cache persists
// for the lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// Partial failures are results, not errors: deblend_sources reports
// undeblendable segments in failed_labels, and the transform tools return
// per-position error entries while the rest of the batch computes.
//
// # Usage
//
// The server is typically started by an MCP client:
//
//	srv := server.New(logger)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
