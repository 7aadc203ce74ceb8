// Package overlay renders the interactive chrome drawn above the
// waterfall: band plan regions, bookmarks, the frequency scale and VFO
// markers. Overlays are drawn at viewport resolution and redrawn
// whenever the view transform changes, unlike the data-resolution
// surfaces owned by the rendering engine.
package overlay

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// Span is the frequency interval visible in the viewport, in Hz.
type Span struct {
	Low  float64
	High float64
}

// Width returns the span width in Hz.
func (s Span) Width() float64 { return s.High - s.Low }

// PixelOf maps a frequency onto a viewport x coordinate.
func (s Span) PixelOf(freq float64, viewportWidth int) int {
	if s.Width() <= 0 {
		return 0
	}
	return int((freq - s.Low) / s.Width() * float64(viewportWidth))
}

// Contains reports whether freq falls inside the span.
func (s Span) Contains(freq float64) bool {
	return freq >= s.Low && freq <= s.High
}

// Layer draws one overlay onto a viewport-resolution raster.
type Layer interface {
	Name() string
	Draw(img *image.RGBA, span Span) error
}

// Manager holds the overlay layers in compose order and tracks which
// are enabled.
type Manager struct {
	mu      sync.Mutex
	layers  []Layer
	enabled map[string]bool
	logger  *slog.Logger
}

// NewManager creates a manager with all given layers enabled, kept in
// the given compose order (first drawn first).
func NewManager(logger *slog.Logger, layers ...Layer) *Manager {
	enabled := make(map[string]bool, len(layers))
	for _, l := range layers {
		enabled[l.Name()] = true
	}
	return &Manager{
		layers:  layers,
		enabled: enabled,
		logger:  logger.With(slog.String("component", "overlay")),
	}
}

// Toggle flips a layer on or off and returns its new state.
func (m *Manager) Toggle(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.enabled[name]; !ok {
		return false, fmt.Errorf("unknown overlay: %s", name)
	}
	m.enabled[name] = !m.enabled[name]
	m.logger.Info("overlay toggled",
		slog.String("layer", name),
		slog.Bool("enabled", m.enabled[name]))
	return m.enabled[name], nil
}

// Enabled reports whether the named layer is currently drawn.
func (m *Manager) Enabled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[name]
}

// Names lists the layers in compose order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.layers))
	for i, l := range m.layers {
		names[i] = l.Name()
	}
	return names
}

// Render draws all enabled layers onto img for the given visible span.
// A failing layer is logged and skipped; one bad overlay must not take
// out the rest of the chrome.
func (m *Manager) Render(img *image.RGBA, span Span) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.layers {
		if !m.enabled[l.Name()] {
			continue
		}
		if err := l.Draw(img, span); err != nil {
			m.logger.Warn("overlay draw failed",
				slog.String("layer", l.Name()),
				slog.String("error", err.Error()))
		}
	}
}
