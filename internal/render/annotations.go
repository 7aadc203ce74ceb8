package render

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	stampDPI      = 72.0
	stampFontSize = 10.0
)

// annotationQueue is a FIFO of short text events (rotator state changes,
// clock ticks) waiting to be stamped onto the margin strip. The engine
// consumes at most one entry per frame.
type annotationQueue struct {
	mu    sync.Mutex
	items []string
}

// push appends a text event.
func (q *annotationQueue) push(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, text)
}

// pop removes and returns the oldest event, if any.
func (q *annotationQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}
	text := q.items[0]
	q.items = q.items[1:]
	return text, true
}

func (q *annotationQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// stamper renders short text strings onto raster surfaces. It uses the
// embedded Go font so the engine needs no font files at runtime.
type stamper struct {
	context *freetype.Context
	height  int
}

func newStamper() (*stamper, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(stampDPI)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(stampFontSize)
	ctx.SetHinting(font.HintingNone)

	return &stamper{
		context: ctx,
		height:  int(stampFontSize) + 2,
	}, nil
}

// stamp draws text with its baseline at y into img.
func (s *stamper) stamp(img *image.RGBA, x, y int, text string, c color.Color) {
	s.context.SetClip(img.Bounds())
	s.context.SetDst(img)
	s.context.SetSrc(image.NewUniform(c))

	// Draw errors are swallowed: a failed label must never take down
	// the rendering context.
	_, _ = s.context.DrawString(text, freetype.Pt(x, y))
}

// lineHeight returns the vertical space one stamped line occupies.
func (s *stamper) lineHeight() int {
	return s.height
}
