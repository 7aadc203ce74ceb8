package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	fontDPI  = 72.0
	fontSize = 11.0
)

// annotator is the shared text renderer for overlay labels. It keeps a
// font.Face alongside the freetype context so labels can be measured
// and centered before drawing.
type annotator struct {
	context  *freetype.Context
	fontFace font.Face
}

func newAnnotator() (*annotator, error) {
	parsedFont, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(fontDPI)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingNone)

	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    fontSize,
		DPI:     fontDPI,
		Hinting: font.HintingNone,
	})

	return &annotator{context: ctx, fontFace: face}, nil
}

// textWidth measures a label in pixels.
func (a *annotator) textWidth(text string) int {
	return font.MeasureString(a.fontFace, text).Round()
}

// fontHeight returns the pixel height of one text line.
func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// drawText stamps text with its baseline at (x, y).
func (a *annotator) drawText(img *image.RGBA, x, y int, text string, c color.Color) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)
	a.context.SetSrc(image.NewUniform(c))

	if _, err := a.context.DrawString(text, freetype.Pt(x, y)); err != nil {
		return fmt.Errorf("drawing label: %w", err)
	}
	return nil
}

// drawTextCentered stamps text centered horizontally on x.
func (a *annotator) drawTextCentered(img *image.RGBA, x, y int, text string, c color.Color) error {
	return a.drawText(img, x-a.textWidth(text)/2, y, text, c)
}

// formatFrequency renders a frequency with an SI prefix, e.g.
// "145.80 MHz".
func formatFrequency(hz float64) string {
	value, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.2f %sHz", value, suffix)
}
