package view

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"
)

const tolerance = 1e-9

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestZoomInverseRoundTrip(t *testing.T) {
	tr := NewTransform(800)
	tr.Zoom(1.5, 200) // establish a non-trivial state
	before := tr.State()

	tr.Zoom(0.75, 300)
	tr.Zoom(-0.75, 300)

	after := tr.State()
	if math.Abs(after.Scale-before.Scale) > tolerance {
		t.Errorf("scale did not round-trip: %v -> %v", before.Scale, after.Scale)
	}
	if math.Abs(after.Offset-before.Offset) > tolerance {
		t.Errorf("offset did not round-trip: %v -> %v", before.Offset, after.Offset)
	}
}

func TestZoomFocusPreserving(t *testing.T) {
	tr := NewTransform(800)

	// The content point under the focus pixel must stay under it.
	focus := 250.0
	before := tr.VisibleToContent(focus)
	tr.Zoom(1.0, focus)
	after := tr.VisibleToContent(focus)

	if math.Abs(before-after) > tolerance {
		t.Errorf("focus content moved: %v -> %v", before, after)
	}
}

func TestOffsetZeroAtScaleOne(t *testing.T) {
	tr := NewTransform(800)

	for _, delta := range []float64{-100, 50, -9999, 1} {
		tr.Pan(delta)
		if s := tr.State(); s.Offset != 0 {
			t.Fatalf("pan at scale 1 moved offset to %v", s.Offset)
		}
	}

	// Zooming out past the minimum also forces offset back to zero.
	tr.Zoom(2, 400)
	tr.Pan(-300)
	tr.Zoom(-5, 100)
	if s := tr.State(); s.Scale != MinZoom || s.Offset != 0 {
		t.Errorf("expected reset to {1, 0}, got %+v", s)
	}
}

func TestPanClamping(t *testing.T) {
	tr := NewTransform(800)
	tr.Zoom(1, 0) // scale 2, offset stays 0 when focused at the left edge

	tr.Pan(100) // cannot pan right past the start
	if s := tr.State(); s.Offset != 0 {
		t.Errorf("expected offset clamp at 0, got %v", s.Offset)
	}

	tr.Pan(-10000) // cannot pan left past the end
	want := 800 - 800*2.0
	if s := tr.State(); s.Offset != want {
		t.Errorf("expected offset clamp at %v, got %v", want, s.Offset)
	}
}

func TestZoomNoOpAtBounds(t *testing.T) {
	tr := NewTransform(800)

	var changes int
	tr.OnChange(func(State) { changes++ })

	tr.Zoom(-1, 400) // already at min zoom
	if changes != 0 {
		t.Error("zoom below minimum must be a no-op")
	}

	tr.Zoom(100, 400) // clamps to max
	tr.Zoom(1, 400)   // already at max
	if changes != 1 {
		t.Errorf("expected exactly one change, got %d", changes)
	}
	if s := tr.State(); s.Scale != MaxZoom {
		t.Errorf("expected scale %v, got %v", MaxZoom, s.Scale)
	}
}

func TestVisibleFraction(t *testing.T) {
	tr := NewTransform(800)
	tr.Restore(State{Scale: 2, Offset: -400})

	start, end := tr.VisibleFraction()
	if math.Abs(start-0.25) > tolerance || math.Abs(end-0.75) > tolerance {
		t.Errorf("expected middle half [0.25, 0.75], got [%v, %v]", start, end)
	}
}

func TestFrequencyMapping(t *testing.T) {
	tr := NewTransform(800)
	tr.Restore(State{Scale: 2, Offset: -400})

	// Viewport shows the middle half of 100-200 MHz: 125-175 MHz.
	f0, f1 := 100e6, 200e6
	if got := tr.FrequencyAt(0, f0, f1); math.Abs(got-125e6) > 1 {
		t.Errorf("left edge: expected 125 MHz, got %v", got)
	}
	if got := tr.FrequencyAt(800, f0, f1); math.Abs(got-175e6) > 1 {
		t.Errorf("right edge: expected 175 MHz, got %v", got)
	}

	// PixelOf is the inverse of FrequencyAt.
	if got := tr.PixelOf(150e6, f0, f1); math.Abs(got-400) > tolerance {
		t.Errorf("expected 150 MHz at center pixel 400, got %v", got)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	tr := NewTransform(800)
	tr.Zoom(2.5, 123)
	tr.Pan(-37)
	saved := tr.State()

	restored := NewTransform(800)
	restored.Restore(saved)

	got := restored.State()
	if got.Scale != saved.Scale || got.Offset != saved.Offset {
		t.Errorf("restore mismatch: saved %+v, got %+v", saved, got)
	}
}

func TestRestoreClampsStaleState(t *testing.T) {
	tr := NewTransform(800)
	tr.Restore(State{Scale: 0.2, Offset: -100}) // below min zoom
	if s := tr.State(); s.Scale != MinZoom || s.Offset != 0 {
		t.Errorf("expected clamp to {1, 0}, got %+v", s)
	}

	tr.Restore(State{Scale: 2, Offset: -99999})
	if s := tr.State(); s.Offset != 800-800*2.0 {
		t.Errorf("expected offset clamped to content bounds, got %v", s.Offset)
	}
}

type fakeSaver struct {
	mu     sync.Mutex
	states []State
}

func (f *fakeSaver) SaveViewState(s State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
	return nil
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func TestPersisterDebounce(t *testing.T) {
	saver := &fakeSaver{}
	p := NewPersister(saver, 30*time.Millisecond, testLogger())

	// A burst of changes collapses into one write.
	for i := 0; i < 10; i++ {
		p.Changed(State{Scale: 1 + float64(i)*0.1})
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(time.Second)
	for saver.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if got := saver.count(); got != 1 {
		t.Errorf("expected 1 debounced write, got %d", got)
	}

	saver.mu.Lock()
	last := saver.states[len(saver.states)-1]
	saver.mu.Unlock()
	if math.Abs(last.Scale-1.9) > tolerance {
		t.Errorf("expected latest state persisted, got %+v", last)
	}
}

func TestPersisterCloseFlushes(t *testing.T) {
	saver := &fakeSaver{}
	p := NewPersister(saver, time.Hour, testLogger())

	p.Changed(State{Scale: 3})
	p.Close()

	if got := saver.count(); got != 1 {
		t.Errorf("expected flush on close, got %d writes", got)
	}
}

func TestGestures(t *testing.T) {
	tr := NewTransform(800)
	g := NewGestures(tr)

	// Wheel without modifier is not consumed.
	if g.Wheel(WheelEvent{X: 400, DeltaY: -100}) {
		t.Error("wheel without modifier must not be consumed")
	}
	if tr.State().Scale != MinZoom {
		t.Error("unconsumed wheel must not zoom")
	}

	// Wheel with modifier zooms about the cursor.
	if !g.Wheel(WheelEvent{X: 400, DeltaY: -100, Modifier: true}) {
		t.Error("wheel with modifier must be consumed")
	}
	if tr.State().Scale <= MinZoom {
		t.Error("expected zoom in")
	}

	// Drag pans only when zoomed.
	if !g.Drag(DragEvent{DeltaX: -50}) {
		t.Error("drag while zoomed must be consumed")
	}

	tr.Reset()
	if g.Drag(DragEvent{DeltaX: -50}) {
		t.Error("drag at scale 1 must not be consumed")
	}

	// Pinch zooms about the midpoint.
	if !g.Pinch(PinchEvent{MidX: 200, DistanceDelta: 120}) {
		t.Error("pinch must be consumed")
	}
	if tr.State().Scale <= MinZoom {
		t.Error("expected pinch zoom in")
	}
}
