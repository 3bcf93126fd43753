package grid

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the sample distribution of a grid.
type Stats struct {
	// Min is the smallest finite sample.
	Min float64 `json:"min"`

	// Max is the largest finite sample.
	Max float64 `json:"max"`

	// Mean is the arithmetic mean of all finite samples.
	Mean float64 `json:"mean"`

	// Median is the 50th percentile of all finite samples.
	Median float64 `json:"median"`

	// StdDev is the sample standard deviation.
	StdDev float64 `json:"std_dev"`
}

// Stats computes summary statistics over all finite samples.
func (g *Grid) Stats() *Stats {
	vals := make([]float64, 0, len(g.values))
	for _, v := range g.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		nan := math.NaN()
		return &Stats{Min: nan, Max: nan, Mean: nan, Median: nan, StdDev: nan}
	}
	sort.Float64s(vals)

	mean, std := stat.MeanStdDev(vals, nil)
	if math.IsNaN(std) { // single sample
		std = 0
	}
	return &Stats{
		Min:    vals[0],
		Max:    vals[len(vals)-1],
		Mean:   mean,
		Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
		StdDev: std,
	}
}

// NoiseEstimate is the result of iterative kappa-sigma clipping.
//
// Background is the clipped mean (an estimate of the sky level) and Sigma
// the clipped standard deviation (an estimate of the per-pixel noise).
type NoiseEstimate struct {
	Background float64 `json:"background"`
	Sigma      float64 `json:"sigma"`
	Iterations int     `json:"iterations"`
}

// EstimateNoise estimates the background level and noise of a grid by
// iterative kappa-sigma clipping.
//
// Each iteration computes the mean and standard deviation of the surviving
// samples, then discards samples more than kappa standard deviations from
// the mean. Iteration stops when the relative change in sigma drops below
// tol or after maxIterations passes. Bright sources occupy a small fraction
// of a typical frame, so the clipped statistics converge to the sky
// distribution within a few passes.
//
// Typical parameters: kappa=3, tol=1e-5, maxIterations=5.
func (g *Grid) EstimateNoise(kappa, tol float64, maxIterations int) *NoiseEstimate {
	vals := make([]float64, 0, len(g.values))
	for _, v := range g.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		vals = append(vals, v)
	}
	est := &NoiseEstimate{Background: math.NaN(), Sigma: math.NaN()}
	if len(vals) == 0 {
		return est
	}

	mean, sigma := stat.MeanStdDev(vals, nil)
	if math.IsNaN(sigma) {
		sigma = 0
	}
	est.Background, est.Sigma = mean, sigma

	for iter := 0; iter < maxIterations; iter++ {
		lo := mean - kappa*sigma
		hi := mean + kappa*sigma
		kept := vals[:0]
		for _, v := range vals {
			if v >= lo && v <= hi {
				kept = append(kept, v)
			}
		}
		if len(kept) < 2 {
			break
		}
		vals = kept

		newMean, newSigma := stat.MeanStdDev(vals, nil)
		est.Iterations = iter + 1
		est.Background, est.Sigma = newMean, newSigma

		if sigma == 0 || math.Abs(newSigma-sigma)/sigma < tol {
			mean, sigma = newMean, newSigma
			break
		}
		mean, sigma = newMean, newSigma
	}
	return est
}
