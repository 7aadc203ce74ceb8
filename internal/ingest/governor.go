// Package ingest receives FFT frames from the transport layer and
// enforces a maximum acceptance rate before handing them to the
// rendering engine. Delivery is push-based and unbounded; backpressure
// is implemented purely by dropping, nothing is signaled upstream.
package ingest

import (
	"time"
)

const (
	// DefaultCeiling is the maximum accepted frame rate per second.
	DefaultCeiling = 60

	// windowLength is the rolling measurement window.
	windowLength = time.Second
)

// Decision is the outcome of offering one frame to the governor.
type Decision struct {
	Accepted        bool // frame should be forwarded to the renderer
	OverflowChanged bool // overflow state flipped on this frame (edge-triggered)
	Overflow        bool // overflow state after this frame
}

// RateGovernor measures arrival rate over a rolling one-second window and
// rejects frames that would exceed the configured ceiling. Rejected
// frames leave no trace: their timestamps are evicted from the window
// since they were never processed, so the displayed spectrum remains a
// strict time-ordered subsequence of the input.
//
// RateGovernor is not safe for concurrent use; the transport goroutine
// owns it.
type RateGovernor struct {
	ceiling     int
	minInterval time.Duration

	window       []time.Time
	lastAccepted time.Time
	overflow     bool
}

// NewRateGovernor creates a governor with the given ceiling in frames per
// second. Non-positive ceilings fall back to DefaultCeiling.
func NewRateGovernor(ceiling int) *RateGovernor {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &RateGovernor{
		ceiling:     ceiling,
		minInterval: windowLength / time.Duration(ceiling),
	}
}

// Accept decides whether a frame arriving at t may be processed.
func (g *RateGovernor) Accept(t time.Time) Decision {
	g.window = append(g.window, t)
	g.evict(t)

	wasOverflow := g.overflow

	if len(g.window) > g.ceiling {
		g.overflow = true
	} else {
		g.overflow = false
	}

	accepted := true
	if g.overflow && !g.lastAccepted.IsZero() && t.Sub(g.lastAccepted) < g.minInterval {
		accepted = false
		// The rejected arrival never happened as far as the window is
		// concerned.
		g.remove(t)
	}

	if accepted {
		g.lastAccepted = t
	}

	return Decision{
		Accepted:        accepted,
		OverflowChanged: g.overflow != wasOverflow,
		Overflow:        g.overflow,
	}
}

// InOverflow reports the current overflow state.
func (g *RateGovernor) InOverflow() bool {
	return g.overflow
}

// WindowCount returns the number of arrivals currently inside the window.
func (g *RateGovernor) WindowCount() int {
	return len(g.window)
}

// evict drops all entries older than now-windowLength.
func (g *RateGovernor) evict(now time.Time) {
	cutoff := now.Add(-windowLength)
	i := 0
	for i < len(g.window) && !g.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.window = g.window[i:]
	}
}

// remove deletes the most recent occurrence of t from the window.
func (g *RateGovernor) remove(t time.Time) {
	for i := len(g.window) - 1; i >= 0; i-- {
		if g.window[i].Equal(t) {
			g.window = append(g.window[:i], g.window[i+1:]...)
			return
		}
	}
}
