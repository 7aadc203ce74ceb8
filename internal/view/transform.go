// Package view tracks the zoom factor and pan offset along the frequency
// axis and converts between frequency, full-resolution pixel and visible
// viewport pixel coordinates. The transform applies immediately; durable
// persistence is debounced (see Persister).
package view

import (
	"math"
	"sync"
)

const (
	// MinZoom is the unzoomed scale; panning is impossible here.
	MinZoom = 1.0

	// MaxZoom bounds the zoom factor along the frequency axis.
	MaxZoom = 16.0
)

// State is the persistable transform state.
// Invariant: Scale >= 1, Offset <= 0, and Offset == 0 when Scale == 1.
type State struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Transform holds the current zoom/pan state for one viewport.
// It is safe for concurrent use: gestures arrive from the UI boundary
// while the compositor reads the state.
type Transform struct {
	mu sync.Mutex

	scale  float64
	offset float64

	viewportWidth float64

	onChange func(State)
}

// NewTransform creates an unzoomed transform for a viewport of the given
// width in pixels.
func NewTransform(viewportWidth float64) *Transform {
	return &Transform{
		scale:         MinZoom,
		viewportWidth: viewportWidth,
	}
}

// OnChange registers a callback invoked after every settled state change.
// The persistence debouncer hooks in here.
func (t *Transform) OnChange(fn func(State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// State returns the current {scale, offset} pair.
func (t *Transform) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{Scale: t.scale, Offset: t.offset}
}

// ViewportWidth returns the visible width in pixels.
func (t *Transform) ViewportWidth() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewportWidth
}

// SetViewportWidth updates the visible width, re-clamping the offset so
// the viewport never exceeds content bounds.
func (t *Transform) SetViewportWidth(w float64) {
	if w <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewportWidth = w
	t.offset = t.clampOffset(t.offset, t.scale)
	t.notify()
}

// Zoom changes the scale by delta, keeping the frequency under pixelFocus
// stationary on screen. A delta that clamps to the current scale is a
// no-op.
func (t *Transform) Zoom(delta, pixelFocus float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	newScale := math.Max(MinZoom, math.Min(t.scale+delta, MaxZoom))
	if newScale == t.scale {
		return
	}

	if newScale == MinZoom {
		t.scale = MinZoom
		t.offset = 0
		t.notify()
		return
	}

	// Focus-preserving: the content ratio under the focus pixel stays put.
	ratio := (pixelFocus - t.offset) / (t.viewportWidth * t.scale)
	newOffset := pixelFocus - ratio*t.viewportWidth*newScale

	t.scale = newScale
	t.offset = t.clampOffset(newOffset, newScale)
	t.notify()
}

// Pan shifts the view by deltaPixels. No-op when unzoomed.
func (t *Transform) Pan(deltaPixels float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.scale <= MinZoom {
		return
	}
	t.offset = t.clampOffset(t.offset+deltaPixels, t.scale)
	t.notify()
}

// Reset returns to the unzoomed state.
func (t *Transform) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scale = MinZoom
	t.offset = 0
	t.notify()
}

// Restore applies persisted state, clamping it back into bounds in case
// the viewport size changed since it was saved.
func (t *Transform) Restore(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.scale = math.Max(MinZoom, math.Min(s.Scale, MaxZoom))
	if t.scale == MinZoom {
		t.offset = 0
	} else {
		t.offset = t.clampOffset(s.Offset, t.scale)
	}
	t.notify()
}

// ContentToVisible maps an unzoomed viewport pixel to its on-screen
// position under the current transform.
func (t *Transform) ContentToVisible(x float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return x*t.scale + t.offset
}

// VisibleToContent maps an on-screen pixel back to the unzoomed viewport
// pixel it shows.
func (t *Transform) VisibleToContent(x float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return (x - t.offset) / t.scale
}

// VisibleFraction returns the content interval [start, end) in [0,1]
// currently shown by the viewport.
func (t *Transform) VisibleFraction() (float64, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := -t.offset / (t.viewportWidth * t.scale)
	return start, start + 1/t.scale
}

// FrequencyAt maps an on-screen pixel to a frequency, given the full
// span covered by the content.
func (t *Transform) FrequencyAt(x, freqStart, freqEnd float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	content := (x - t.offset) / t.scale
	return freqStart + (content/t.viewportWidth)*(freqEnd-freqStart)
}

// PixelOf maps a frequency to its on-screen pixel position, given the
// full span covered by the content. The result may lie outside the
// viewport when the frequency is panned out of view.
func (t *Transform) PixelOf(freq, freqStart, freqEnd float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	content := (freq - freqStart) / (freqEnd - freqStart) * t.viewportWidth
	return content*t.scale + t.offset
}

// clampOffset bounds the offset to [W - W*scale, 0]. Callers hold the lock.
func (t *Transform) clampOffset(offset, scale float64) float64 {
	low := t.viewportWidth - t.viewportWidth*scale
	return math.Max(low, math.Min(offset, 0))
}

// notify fires the change callback. Callers hold the lock.
func (t *Transform) notify() {
	if t.onChange != nil {
		t.onChange(State{Scale: t.scale, Offset: t.offset})
	}
}
