package overlay

import (
	"image"
	"image/color"
	"sync"
)

// VFO is one tuned marker. The active VFO is drawn solid and labelled;
// inactive ones are drawn dimmed.
type VFO struct {
	Name      string  `json:"name"`
	Frequency float64 `json:"frequency"` // Hz
	Active    bool    `json:"active"`
}

// VFOMarkers draws a full-height marker line per VFO at its tuned
// frequency.
type VFOMarkers struct {
	mu   sync.Mutex
	vfos []VFO
	text *annotator

	ActiveColor   color.RGBA
	InactiveColor color.RGBA
}

// NewVFOMarkers creates the VFO layer.
func NewVFOMarkers(active, inactive color.RGBA) (*VFOMarkers, error) {
	a, err := newAnnotator()
	if err != nil {
		return nil, err
	}
	return &VFOMarkers{text: a, ActiveColor: active, InactiveColor: inactive}, nil
}

func (v *VFOMarkers) Name() string { return "vfo" }

// Set replaces the marker set.
func (v *VFOMarkers) Set(vfos []VFO) {
	copied := make([]VFO, len(vfos))
	copy(copied, vfos)

	v.mu.Lock()
	v.vfos = copied
	v.mu.Unlock()
}

// Tune moves the named VFO and makes it active, adding it if unknown.
func (v *VFOMarkers) Tune(name string, freq float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	found := false
	for i := range v.vfos {
		if v.vfos[i].Name == name {
			v.vfos[i].Frequency = freq
			v.vfos[i].Active = true
			found = true
		} else {
			v.vfos[i].Active = false
		}
	}
	if !found {
		v.vfos = append(v.vfos, VFO{Name: name, Frequency: freq, Active: true})
	}
}

// Markers returns a copy of the current marker set.
func (v *VFOMarkers) Markers() []VFO {
	v.mu.Lock()
	defer v.mu.Unlock()

	copied := make([]VFO, len(v.vfos))
	copy(copied, v.vfos)
	return copied
}

func (v *VFOMarkers) Draw(img *image.RGBA, span Span) error {
	if span.Width() <= 0 {
		return nil
	}

	v.mu.Lock()
	vfos := make([]VFO, len(v.vfos))
	copy(vfos, v.vfos)
	v.mu.Unlock()

	bounds := img.Bounds()
	w := bounds.Dx()
	labelY := tickMarkHeight + 4*v.text.fontHeight()

	for _, marker := range vfos {
		if !span.Contains(marker.Frequency) {
			continue
		}

		c := v.InactiveColor
		if marker.Active {
			c = v.ActiveColor
		}

		x := span.PixelOf(marker.Frequency, w)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			img.SetRGBA(bounds.Min.X+x, y, c)
		}

		if marker.Active {
			label := marker.Name + " " + formatFrequency(marker.Frequency)
			if err := v.text.drawText(img, x+4, labelY, label, c); err != nil {
				return err
			}
		}
	}
	return nil
}
