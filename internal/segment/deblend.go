package segment

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/starfield-go/starfield/internal/grid"
)

// ErrDeblendFailed marks a degenerate segment whose peak value is at or
// below its threshold floor, leaving no room for multi-level analysis.
var ErrDeblendFailed = errors.New("segment cannot be deblended")

// SegmentError records a per-segment deblending failure. The segment is
// passed through to the output unchanged.
type SegmentError struct {
	Label int
	Err   error
}

func (e SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Label, e.Err)
}

func (e SegmentError) Unwrap() error { return e.Err }

// DeblendError aggregates per-segment failures. Partial success is the
// norm: every segment not listed here was deblended normally.
type DeblendError struct {
	Segments []SegmentError
}

func (e *DeblendError) Error() string {
	if len(e.Segments) == 1 {
		return e.Segments[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d segments failed: ", len(e.Segments))
	for i, se := range e.Segments {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(se.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *DeblendError) Unwrap() []error {
	errs := make([]error, len(e.Segments))
	for i, se := range e.Segments {
		errs[i] = se
	}
	return errs
}

// DeblendOptions tunes Deblend. The zero value of optional fields selects
// the documented defaults.
type DeblendOptions struct {
	// MinPixels is the smallest footprint a candidate child may have at
	// its separation level. Default 1.
	MinPixels int

	// NLevels is the number of exponentially spaced thresholds placed
	// between each segment's floor and peak. Default 32.
	NLevels int

	// Contrast is the minimum fraction of the parent segment's total
	// flux a candidate child must carry to survive as a separate source.
	// Negative disables the filter; 1.0 merges everything back (no
	// segment is ever split). Default 0.001.
	Contrast float64

	// Connectivity used for per-level component labeling and watershed
	// flooding. Default Connect8.
	Connectivity Connectivity

	// Kernel, when non-nil, smooths data before level analysis and
	// flooding, matching a kernel passed to Detect.
	Kernel *grid.Kernel

	// Workers bounds the per-segment worker pool. Default NumCPU.
	Workers int
}

func (o DeblendOptions) withDefaults() DeblendOptions {
	if o.MinPixels < 1 {
		o.MinPixels = 1
	}
	if o.NLevels < 1 {
		o.NLevels = 32
	}
	if o.Contrast == 0 {
		o.Contrast = 0.001
	}
	if !o.Connectivity.valid() {
		o.Connectivity = Connect8
	}
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// Deblend splits blended segments of m into distinct sources.
//
// For each segment, NLevels exponentially spaced thresholds are placed
// between the segment's minimum surviving value (floor) and its peak. At
// each level, connected-component labeling runs restricted to the
// segment's footprint; the level that separates the footprint into the
// most candidates defines the candidate children. Candidates carrying
// less than Contrast of the segment's total flux merge back into their
// parent. If at least two candidates survive, watershed flooding seeded
// at their peaks assigns every footprint pixel to exactly one child.
//
// Segments whose peak is at or below their floor fail with a per-segment
// ErrDeblendFailed, reported through a *DeblendError; they pass through
// unchanged and all other segments still process. Per-segment work runs
// concurrently, but the output is relabeled contiguously from 1 by first
// pixel in row-major order, so results are deterministic.
//
// m is never mutated.
func Deblend(data *grid.Grid, m *Map, opts DeblendOptions) (*Map, error) {
	if data.Width() != m.width || data.Height() != m.height {
		return nil, fmt.Errorf("data shape %dx%d does not match map %dx%d",
			data.Width(), data.Height(), m.width, m.height)
	}
	o := opts.withDefaults()
	if m.nlabels == 0 {
		return m.Clone(), nil
	}

	det := data
	if o.Kernel != nil {
		det = data.Convolve(o.Kernel)
	}

	// Footprints of every segment, gathered in one scan.
	footprints := make([][]int, m.nlabels+1)
	for i, l := range m.labels {
		if l != 0 {
			footprints[l] = append(footprints[l], i)
		}
	}

	type result struct {
		children [][]int // footprint partition; nil means unchanged
		err      error
	}
	results := make([]result, m.nlabels+1)

	var wg sync.WaitGroup
	work := make(chan int)
	for w := 0; w < o.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for label := range work {
				children, err := deblendSegment(det, m, footprints[label], o)
				results[label] = result{children: children, err: err}
			}
		}()
	}
	for label := 1; label <= m.nlabels; label++ {
		work <- label
	}
	close(work)
	wg.Wait()

	// Merge: collect every output region, then relabel by first pixel in
	// row-major order regardless of which worker produced it.
	var regions [][]int
	dErr := &DeblendError{}
	for label := 1; label <= m.nlabels; label++ {
		r := results[label]
		if r.err != nil {
			dErr.Segments = append(dErr.Segments, SegmentError{Label: label, Err: r.err})
		}
		if r.children == nil {
			regions = append(regions, footprints[label])
			continue
		}
		regions = append(regions, r.children...)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i][0] < regions[j][0] })

	out, err := NewMap(m.width, m.height)
	if err != nil {
		return nil, err
	}
	for newLabel, region := range regions {
		for _, i := range region {
			out.labels[i] = int32(newLabel + 1)
		}
	}
	out.nlabels = len(regions)

	if len(dErr.Segments) > 0 {
		return out, dErr
	}
	return out, nil
}

// deblendSegment analyzes one footprint. It returns the child partition
// (each child a sorted slice of flat indices), nil when the segment stays
// whole, or an error for a degenerate segment.
//
// Within each region the indices stay sorted because the footprint is
// gathered in scan order and the watershed assigns pixels without
// reordering region membership lists before the final sort.
func deblendSegment(det *grid.Grid, m *Map, footprint []int, o DeblendOptions) ([][]int, error) {
	vmin, vmax := math.Inf(1), math.Inf(-1)
	for _, i := range footprint {
		v := det.AtIndex(i)
		if v < vmin {
			vmin = v
		}
		if v > vmax {
			vmax = v
		}
	}
	if vmax <= vmin {
		return nil, ErrDeblendFailed
	}

	levels := exponentialLevels(vmin, vmax, o.NLevels)

	totalFlux := 0.0
	for _, i := range footprint {
		totalFlux += det.AtIndex(i)
	}

	// Find the level that separates the footprint into the most
	// candidates; on ties prefer the lowest level, whose candidate
	// footprints are the most inclusive and give the most stable
	// contrast measurement.
	var best [][]int
	for _, level := range levels {
		comps := componentsAbove(det, m, footprint, level, o)
		if len(comps) > len(best) {
			best = comps
		}
	}
	if len(best) < 2 {
		return nil, nil
	}

	// Contrast filter: children below the flux fraction merge back.
	var seeds []int
	for _, comp := range best {
		flux := 0.0
		for _, i := range comp {
			flux += det.AtIndex(i)
		}
		if totalFlux > 0 && flux < o.Contrast*totalFlux {
			continue
		}
		seeds = append(seeds, peakIndex(det, comp))
	}
	if len(seeds) < 2 {
		return nil, nil
	}

	return watershed(det, m, footprint, seeds, o.Connectivity), nil
}

// exponentialLevels returns n thresholds exponentially spaced strictly
// between vmin and vmax. Non-positive floors are handled by shifting the
// range up before taking ratios.
func exponentialLevels(vmin, vmax float64, n int) []float64 {
	shift := 0.0
	if vmin <= 0 {
		shift = -vmin + 1
	}
	lo, hi := vmin+shift, vmax+shift
	ratio := hi / lo

	levels := make([]float64, n)
	for k := 1; k <= n; k++ {
		levels[k-1] = lo*math.Pow(ratio, float64(k)/float64(n+1)) - shift
	}
	return levels
}

// componentsAbove labels the connected components of footprint pixels
// with det >= level, discarding components smaller than MinPixels.
// Component pixel lists come back sorted by flat index.
func componentsAbove(det *grid.Grid, m *Map, footprint []int, level float64, o DeblendOptions) [][]int {
	width, height := m.width, m.height
	inSet := make(map[int]bool, len(footprint))
	for _, i := range footprint {
		if det.AtIndex(i) >= level {
			inSet[i] = true
		}
	}

	seen := make(map[int]bool, len(inSet))
	offs := o.Connectivity.offsets()
	var comps [][]int
	var stack []int

	for _, start := range footprint { // scan order keeps output deterministic
		if !inSet[start] || seen[start] {
			continue
		}
		var comp []int
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, i)
			x, y := i%width, i/width
			for _, off := range offs {
				nx, ny := x+off[0], y+off[1]
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				ni := ny*width + nx
				if inSet[ni] && !seen[ni] {
					seen[ni] = true
					stack = append(stack, ni)
				}
			}
		}
		if len(comp) >= o.MinPixels {
			sort.Ints(comp)
			comps = append(comps, comp)
		}
	}
	return comps
}

// peakIndex returns the flat index of the component's maximum. Plateaus
// collapse to the lowest row-major index, so a flat-topped peak spawns a
// single representative seed.
func peakIndex(det *grid.Grid, comp []int) int {
	best := comp[0]
	bestV := det.AtIndex(best)
	for _, i := range comp[1:] {
		if v := det.AtIndex(i); v > bestV {
			best, bestV = i, v
		}
	}
	return best
}

// floodItem orders the watershed heap by descending intensity with flat
// index as the tie-break.
type floodItem struct {
	index int
	value float64
}

type floodHeap []floodItem

func (h floodHeap) Len() int { return len(h) }
func (h floodHeap) Less(a, b int) bool {
	if h[a].value != h[b].value {
		return h[a].value > h[b].value
	}
	return h[a].index < h[b].index
}
func (h floodHeap) Swap(a, b int)       { h[a], h[b] = h[b], h[a] }
func (h *floodHeap) Push(x interface{}) { *h = append(*h, x.(floodItem)) }
func (h *floodHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// watershed partitions the footprint among the seeds by flooding in
// order of descending intensity. Every footprint pixel ends up in
// exactly one child.
func watershed(det *grid.Grid, m *Map, footprint []int, seeds []int, conn Connectivity) [][]int {
	width, height := m.width, m.height
	inFootprint := make(map[int]bool, len(footprint))
	for _, i := range footprint {
		inFootprint[i] = true
	}

	assigned := make(map[int]int, len(footprint)) // flat index -> child id
	h := &floodHeap{}
	for child, s := range seeds {
		assigned[s] = child
		heap.Push(h, floodItem{index: s, value: det.AtIndex(s)})
	}

	offs := conn.offsets()
	for h.Len() > 0 {
		item := heap.Pop(h).(floodItem)
		child := assigned[item.index]
		x, y := item.index%width, item.index/width
		for _, off := range offs {
			nx, ny := x+off[0], y+off[1]
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			ni := ny*width + nx
			if !inFootprint[ni] {
				continue
			}
			if _, ok := assigned[ni]; ok {
				continue
			}
			assigned[ni] = child
			heap.Push(h, floodItem{index: ni, value: det.AtIndex(ni)})
		}
	}

	children := make([][]int, len(seeds))
	for _, i := range footprint { // scan order: children stay sorted
		child, ok := assigned[i]
		if !ok {
			// Reachable only when flooding uses a stricter connectivity
			// than the one the footprint was built with; such orphans
			// join the first child rather than vanish.
			child = 0
		}
		children[child] = append(children[child], i)
	}
	return children
}
