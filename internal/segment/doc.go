// Package segment implements source detection, deblending, and photometry
// over 2-D intensity grids.
//
// Detection thresholds a grid (optionally smoothed with a convolution
// kernel) and groups the surviving pixels into connected components,
// producing a Map of integer labels: 0 is background, positive labels
// identify sources. Deblending then splits blended components into
// distinct sources using multi-level thresholding and watershed flooding.
// Finally, MeasureProperties derives a catalog of per-source photometric
// and morphological quantities, optionally attaching sky positions
// through a wcs.Frame.
//
// # Determinism
//
// All label assignment is deterministic: components are labeled in
// row-major first-pixel-encountered order, plateaus collapse to their
// lowest row-major pixel, and watershed flooding breaks intensity ties by
// pixel index. Deblending distributes per-segment work across a worker
// pool, but the merged result is relabeled by first pixel in row-major
// order, so output is independent of worker scheduling.
//
// # Edge Policy
//
// Pixels exactly at the threshold are included (>=, not >). The default
// connectivity is 8-connected, the common astronomical convention.
//
// # Failure Semantics
//
// An empty detection is a valid all-zero Map, not an error. Deblending
// failures are per-segment: a degenerate segment (peak at or below its
// floor) is reported through a *DeblendError and passed through
// unchanged while every other segment is still processed.
package segment
