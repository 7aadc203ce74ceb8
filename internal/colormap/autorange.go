package colormap

import (
	"math"

	"github.com/hamgrid/groundscope/internal/spectrum"
)

const (
	// For 20 samples the 5th percentile is the first sample and the
	// 95th the 19th, so anything less is not worth estimating from.
	minimumSampleCount = 20

	minimumSpanDb = 30 // never squeeze the range below this
	marginPercent = 10 // headroom added on both sides

	percentileLow = 5 // low/high percentile cut, symmetric
)

// Stats summarizes the observed power distribution alongside an
// auto-scale result.
type Stats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Result is the outcome of one auto-scale pass.
type Result struct {
	Range spectrum.DynamicRange `json:"range"`
	Stats Stats                 `json:"stats"`
}

// histogram tracks power values in 1 dB bins. Counts are scaled down by
// half when a counter saturates so long sessions keep a recent-weighted
// distribution.
type histogram struct {
	bins       map[int]uint32
	totalCount uint64
	minBin     int
	maxBin     int
}

func newHistogram() *histogram {
	return &histogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

func (h *histogram) update(power float64) {
	bin := int(math.Floor(power))

	if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++

	if bin < h.minBin {
		h.minBin = bin
	}
	if bin > h.maxBin {
		h.maxBin = bin
	}
}

func (h *histogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}

		if bin < h.minBin {
			h.minBin = bin
		}
		if bin > h.maxBin {
			h.maxBin = bin
		}
	}
	h.totalCount /= 2
}

func (h *histogram) clear() {
	h.bins = make(map[int]uint32)
	h.totalCount = 0
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32
}

// percentileBounds computes the range between the low and high
// percentiles, widened to minimumSpanDb and padded by marginPercent.
func (h *histogram) percentileBounds(fallback spectrum.DynamicRange) (spectrum.DynamicRange, Stats, bool) {
	if h.totalCount < minimumSampleCount {
		return fallback, Stats{}, false
	}

	target := h.totalCount * percentileLow / 100
	if target == 0 {
		target = 1
	}

	var count uint64
	low, high := h.minBin, h.maxBin

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target {
			low = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target {
			high = bin
			break
		}
	}

	var sumProduct float64
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		sumProduct += float64(bin) * float64(h.bins[bin])
	}
	mean := sumProduct / float64(h.totalCount)

	if high-low < minimumSpanDb {
		center := (high + low) / 2
		low = center - minimumSpanDb/2
		high = center + minimumSpanDb/2
	}

	margin := (high - low) * marginPercent / 100
	rng := spectrum.DynamicRange{
		Min: float64(low - margin),
		Max: float64(high + margin),
	}
	stats := Stats{
		Min:  float64(h.minBin),
		Max:  float64(h.maxBin),
		Mean: mean,
	}
	return rng, stats, true
}

// AutoRange derives a dynamic range from observed power levels using
// percentile bounds with exponential smoothing. Alpha in (0,1] controls
// how fast the smoothed range follows the distribution; higher is faster.
type AutoRange struct {
	hist    *histogram
	alpha   float64
	current spectrum.DynamicRange
	stats   Stats
}

// NewAutoRange creates a tracker seeded with the given range.
func NewAutoRange(alpha float64, seed spectrum.DynamicRange) *AutoRange {
	return &AutoRange{
		hist:    newHistogram(),
		alpha:   alpha,
		current: seed,
	}
}

// SetAlpha changes the smoothing factor; used by auto-scale presets.
func (a *AutoRange) SetAlpha(alpha float64) {
	if alpha > 0 && alpha <= 1 {
		a.alpha = alpha
	}
}

// Observe feeds one frame of power samples into the histogram.
func (a *AutoRange) Observe(samples []float64) {
	for _, s := range samples {
		a.hist.update(s)
	}
}

// Update recomputes the percentile bounds, applies smoothing and returns
// the current result. The second return is false until enough samples
// have been observed.
func (a *AutoRange) Update() (Result, bool) {
	rng, stats, ok := a.hist.percentileBounds(a.current)
	if !ok {
		return Result{Range: a.current, Stats: a.stats}, false
	}

	a.current.Min = a.current.Min*(1-a.alpha) + rng.Min*a.alpha
	a.current.Max = a.current.Max*(1-a.alpha) + rng.Max*a.alpha
	a.stats = stats

	return Result{Range: a.current, Stats: a.stats}, true
}

// Current returns the smoothed range without recomputing.
func (a *AutoRange) Current() spectrum.DynamicRange {
	return a.current
}

// Reset clears the histogram and reseeds the range.
func (a *AutoRange) Reset(seed spectrum.DynamicRange) {
	a.hist.clear()
	a.current = seed
	a.stats = Stats{}
}
