package overlay

import (
	"image"
	"image/color"
	"math"
)

const (
	// pixelsPerLabel spaces frequency labels so they never crowd.
	pixelsPerLabel = 100.0

	tickMarkHeight = 6
)

// FrequencyScale draws tick marks and SI-formatted frequency labels
// along the top edge of the viewport for the visible span.
type FrequencyScale struct {
	text      *annotator
	TickColor color.RGBA
	TextColor color.RGBA
}

// NewFrequencyScale creates the scale layer.
func NewFrequencyScale(tick, text color.RGBA) (*FrequencyScale, error) {
	a, err := newAnnotator()
	if err != nil {
		return nil, err
	}
	return &FrequencyScale{text: a, TickColor: tick, TextColor: text}, nil
}

func (f *FrequencyScale) Name() string { return "freqscale" }

// Draw places a tick and centered label at each nice frequency step
// inside the span. Labels partially outside the raster are clipped by
// the draw context, not skipped.
func (f *FrequencyScale) Draw(img *image.RGBA, span Span) error {
	if span.Width() <= 0 {
		return nil
	}

	w := img.Bounds().Dx()
	step := niceFrequencyStep(span.Width(), w)
	start := math.Ceil(span.Low/step) * step

	textY := tickMarkHeight + f.text.fontHeight()

	for freq := start; freq <= span.High; freq += step {
		x := span.PixelOf(freq, w)

		for y := 0; y < tickMarkHeight; y++ {
			img.SetRGBA(x, y, f.TickColor)
		}

		if err := f.text.drawTextCentered(img, x, textY, formatFrequency(freq), f.TextColor); err != nil {
			return err
		}
	}
	return nil
}

// niceFrequencyStep picks a decade step in Hz so labels sit roughly
// pixelsPerLabel apart, never fewer than two across the span.
func niceFrequencyStep(spanHz float64, width int) float64 {
	steps := []float64{
		1,
		10,
		100,
		1_000,
		10_000,
		100_000,
		1_000_000,
		10_000_000,
		100_000_000,
		1_000_000_000,
	}

	desired := float64(width) / pixelsPerLabel
	target := spanHz / desired

	for _, step := range steps {
		if step >= target {
			if spanHz/step >= 2 {
				return step
			}
			break
		}
	}

	// No decade step fits; fall back to half the span so at least the
	// center frequency is marked.
	return spanHz / 2
}
