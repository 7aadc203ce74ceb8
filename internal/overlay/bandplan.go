package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Band is one allocation in the band plan.
type Band struct {
	Name string  `yaml:"name"`
	Low  float64 `yaml:"low"`  // Hz
	High float64 `yaml:"high"` // Hz
}

// DefaultBands covers the amateur allocations a ground station console
// most commonly sits on. Deployments override these from config.
func DefaultBands() []Band {
	return []Band{
		{Name: "10m", Low: 28_000_000, High: 29_700_000},
		{Name: "6m", Low: 50_000_000, High: 54_000_000},
		{Name: "2m", Low: 144_000_000, High: 148_000_000},
		{Name: "70cm", Low: 420_000_000, High: 450_000_000},
		{Name: "23cm", Low: 1_240_000_000, High: 1_300_000_000},
	}
}

// BandPlan shades each visible band with a translucent tint and labels
// it near the top edge.
type BandPlan struct {
	bands     []Band
	text      *annotator
	TintColor color.NRGBA
	TextColor color.RGBA
}

// NewBandPlan creates the band plan layer.
func NewBandPlan(bands []Band, tint color.NRGBA, text color.RGBA) (*BandPlan, error) {
	a, err := newAnnotator()
	if err != nil {
		return nil, err
	}
	return &BandPlan{bands: bands, text: a, TintColor: tint, TextColor: text}, nil
}

func (b *BandPlan) Name() string { return "bandplan" }

func (b *BandPlan) Draw(img *image.RGBA, span Span) error {
	if span.Width() <= 0 {
		return nil
	}

	bounds := img.Bounds()
	w := bounds.Dx()
	tint := image.NewUniform(b.TintColor)
	labelY := tickMarkHeight + 2*b.text.fontHeight()

	for _, band := range b.bands {
		if band.High < span.Low || band.Low > span.High {
			continue
		}

		x0 := max(span.PixelOf(band.Low, w), 0)
		x1 := min(span.PixelOf(band.High, w), w)
		if x1 <= x0 {
			continue
		}

		region := image.Rect(bounds.Min.X+x0, bounds.Min.Y, bounds.Min.X+x1, bounds.Max.Y)
		draw.Draw(img, region, tint, image.Point{}, draw.Over)

		if err := b.text.drawText(img, x0+4, labelY, band.Name, b.TextColor); err != nil {
			return err
		}
	}
	return nil
}
