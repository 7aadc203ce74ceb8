package view

// Gesture-to-transform mapping. Each handler returns true when it
// consumed the gesture, which is the UI layer's cue to suppress the
// default scroll/zoom behavior — and only then.

const (
	// wheelZoomStep converts one wheel notch into a scale delta.
	wheelZoomStep = 0.25

	// pinchZoomScale converts a change in inter-pointer distance in
	// pixels into a scale delta.
	pinchZoomScale = 0.01
)

// WheelEvent is a scroll-wheel tick over the display.
type WheelEvent struct {
	X        float64 `json:"x"`        // cursor x in viewport pixels
	DeltaY   float64 `json:"deltaY"`   // positive = scroll down
	Modifier bool    `json:"modifier"` // zoom modifier key held
}

// DragEvent is a single-pointer horizontal drag.
type DragEvent struct {
	DeltaX float64 `json:"deltaX"`
}

// PinchEvent is a two-pointer pinch.
type PinchEvent struct {
	MidX          float64 `json:"midX"`          // pinch midpoint x in viewport pixels
	DistanceDelta float64 `json:"distanceDelta"` // change in inter-pointer distance, pixels
}

// Gestures routes UI pointer events onto a Transform.
type Gestures struct {
	transform *Transform
}

// NewGestures creates a gesture router for the transform.
func NewGestures(t *Transform) *Gestures {
	return &Gestures{transform: t}
}

// Wheel zooms about the cursor position when the modifier key is held.
// Plain scrolling is left to the host.
func (g *Gestures) Wheel(e WheelEvent) bool {
	if !e.Modifier {
		return false
	}

	delta := -e.DeltaY / 100 * wheelZoomStep
	g.transform.Zoom(delta, e.X)
	return true
}

// Drag pans the view. Consumed only when zoomed in, so an unzoomed drag
// falls through to the host.
func (g *Gestures) Drag(e DragEvent) bool {
	if g.transform.State().Scale <= MinZoom {
		return false
	}
	g.transform.Pan(e.DeltaX)
	return true
}

// Pinch zooms about the pinch midpoint using the change in inter-pointer
// distance as the delta.
func (g *Gestures) Pinch(e PinchEvent) bool {
	if e.DistanceDelta == 0 {
		return false
	}
	g.transform.Zoom(e.DistanceDelta*pinchZoomScale, e.MidX)
	return true
}
