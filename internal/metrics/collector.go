// Package metrics aggregates pipeline throughput numbers and exports
// them to observability consumers.
package metrics

import (
	"sync"
	"time"

	"github.com/hamgrid/groundscope/internal/render"
	"github.com/hamgrid/groundscope/internal/spectrum"
)

// Status is one observable snapshot of the pipeline.
type Status struct {
	FramesPerSec   float64   `json:"framesPerSec"`
	SamplesPerSec  float64   `json:"samplesPerSec"`
	RenderedPerSec float64   `json:"renderedPerSec"`
	TotalFrames    uint64    `json:"totalFrames"`
	ElapsedSec     float64   `json:"elapsedSec"`
	Overflow       bool      `json:"overflow"`
	RangeMinDb     float64   `json:"rangeMinDb"`
	RangeMaxDb     float64   `json:"rangeMaxDb"`
	UpdatedAt      time.Time `json:"updatedAt"`

	// Playback is present only while frames come from a recording.
	Playback *spectrum.PlaybackInfo `json:"playback,omitempty"`
}

// Collector accumulates the latest pipeline numbers from the engine's
// event stream and the rate governor. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	status Status
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// ObserveMetrics folds in a periodic engine metrics event.
func (c *Collector) ObserveMetrics(ev render.MetricsEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.FramesPerSec = ev.FramesPerSec
	c.status.SamplesPerSec = ev.SamplesPerSec
	c.status.RenderedPerSec = ev.RenderedPerSec
	c.status.TotalFrames = ev.TotalFrames
	c.status.ElapsedSec = ev.Elapsed.Seconds()
	c.status.UpdatedAt = time.Now()
}

// SetOverflow records the governor's edge-triggered overflow state.
func (c *Collector) SetOverflow(overflow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.Overflow = overflow
	c.status.UpdatedAt = time.Now()
}

// SetRange records the active dynamic range, manual or auto-scaled.
func (c *Collector) SetRange(rng spectrum.DynamicRange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.RangeMinDb = rng.Min
	c.status.RangeMaxDb = rng.Max
	c.status.UpdatedAt = time.Now()
}

// SetPlayback records the playback timing of the latest frame. Live
// frames carry none and clear it.
func (c *Collector) SetPlayback(info *spectrum.PlaybackInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if info == nil {
		c.status.Playback = nil
		return
	}
	p := *info
	c.status.Playback = &p
	c.status.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the current status.
func (c *Collector) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.status
	if s.Playback != nil {
		p := *s.Playback
		s.Playback = &p
	}
	return s
}
