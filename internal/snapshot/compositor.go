// Package snapshot flattens the waterfall display into one exportable
// image: the engine's data-resolution surfaces and the viewport-
// resolution overlays are cropped to the visible window, stacked into
// vertical slots, rescaled to a target width and encoded as PNG.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"math"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/hamgrid/groundscope/internal/render"
	"github.com/hamgrid/groundscope/internal/view"
)

const (
	// DefaultCaptureTimeout bounds the wait for the rendering context's
	// raster reply.
	DefaultCaptureTimeout = 2 * time.Second

	// maxCompositeHeight crops the final image vertically, measured
	// from the top.
	maxCompositeHeight = 900

	// defaultStripHeight is used for an optional overlay slot whose
	// raster is unavailable; the slot is filled with background, never
	// skipped.
	defaultStripHeight = 20
)

// ErrMissingSurface aborts a capture when a required raster (waterfall,
// bandscope) is unavailable.
var ErrMissingSurface = errors.New("required surface missing")

// EngineSource delivers the rendering context's raster surfaces.
type EngineSource interface {
	Rasters(ctx context.Context) (render.Rasters, error)
}

// Layers resolves the currently mounted viewport-resolution overlay
// rasters by role. A nil function or a nil raster marks the overlay as
// unmounted; its slot is background-filled.
type Layers struct {
	BandPlan  func() *image.RGBA
	Bookmarks func() *image.RGBA
	FreqScale func() *image.RGBA
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithLogger sets the compositor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) {
		c.logger = logger.With(slog.String("component", "snapshot"))
	}
}

// WithBackground sets the fill color for margins and empty slots.
func WithBackground(c color.RGBA) Option {
	return func(comp *Compositor) { comp.background = c }
}

// WithTimeout overrides the bounded raster wait.
func WithTimeout(d time.Duration) Option {
	return func(c *Compositor) { c.timeout = d }
}

// Compositor produces flattened snapshot images of the current display.
type Compositor struct {
	engine     EngineSource
	transform  *view.Transform
	layers     Layers
	background color.RGBA
	timeout    time.Duration
	logger     *slog.Logger
}

// NewCompositor creates a compositor over the engine and view state.
func NewCompositor(engine EngineSource, transform *view.Transform, layers Layers, options ...Option) *Compositor {
	c := &Compositor{
		engine:     engine,
		transform:  transform,
		layers:     layers,
		background: color.RGBA{A: 0xff},
		timeout:    DefaultCaptureTimeout,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Window is the visible crop of one surface in its own pixel space.
// Data-resolution and viewport-resolution surfaces get independent
// windows because their native widths differ.
type Window struct {
	SrcX  int
	Width int
}

// cropWindow computes the visible window of a surface of the given
// native width, for a view of the given scale and offset over a
// viewport of viewportWidth pixels.
func cropWindow(surfaceWidth int, scale, offset float64, viewportWidth int) Window {
	if surfaceWidth <= 0 || viewportWidth <= 0 || scale < 1 {
		return Window{Width: surfaceWidth}
	}

	ratio := float64(surfaceWidth) / float64(viewportWidth)
	visible := float64(surfaceWidth) / scale

	srcX := -offset * ratio / scale
	srcX = math.Max(0, math.Min(srcX, float64(surfaceWidth)-visible))

	return Window{
		SrcX:  int(math.Round(srcX)),
		Width: int(math.Round(visible)),
	}
}

// Capture flattens the current display into a PNG whose final width is
// targetWidth. The raster request to the rendering context waits at
// most the configured timeout; rendering continues uninterrupted. Any
// missing required surface aborts the capture.
func (c *Compositor) Capture(ctx context.Context, targetWidth int) ([]byte, error) {
	state := c.transform.State()
	viewW := c.transform.ViewportWidth()

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rasters, err := c.engine.Rasters(rctx)
	if err != nil {
		return nil, fmt.Errorf("requesting rasters: %w", err)
	}
	if rasters.Waterfall == nil || rasters.Bandscope == nil {
		return nil, ErrMissingSurface
	}

	composite := c.compose(rasters, state, int(viewW))
	final, err := c.rescale(composite, leftMarginWidth(rasters), targetWidth)
	if err != nil {
		return nil, err
	}
	final = cropHeight(final, maxCompositeHeight)

	var buf bytes.Buffer
	if err := png.Encode(&buf, final); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	c.logger.Info("snapshot captured",
		slog.Int("width", final.Rect.Dx()),
		slog.Int("height", final.Rect.Dy()),
		slog.Float64("scale", state.Scale))
	return buf.Bytes(), nil
}

// leftMarginWidth is the fixed-width margin column: the annotation
// strip beside the dB axis. It is never rescaled.
func leftMarginWidth(r render.Rasters) int {
	w := 0
	if r.Margin != nil {
		w += r.Margin.Rect.Dx()
	}
	if r.DBAxis != nil {
		w += r.DBAxis.Rect.Dx()
	}
	return w
}

// compose stacks the vertical slots back to front: bandscope (with its
// uncropped dB-axis margin), band-plan strip, bookmark strip, frequency
// scale strip (or background fill), then the waterfall with its margin
// annotation strip and dB axis.
func (c *Compositor) compose(r render.Rasters, state view.State, viewW int) *image.RGBA {
	dataWin := cropWindow(r.Waterfall.Rect.Dx(), state.Scale, state.Offset, viewW)
	viewWin := cropWindow(viewW, state.Scale, state.Offset, viewW)

	marginW := leftMarginWidth(r)
	mainW := viewWin.Width

	bandPlan := resolve(c.layers.BandPlan)
	bookmarks := resolve(c.layers.Bookmarks)
	freqScale := resolve(c.layers.FreqScale)

	bandH := r.Bandscope.Rect.Dy()
	planH := stripHeight(bandPlan)
	bookH := stripHeight(bookmarks)
	freqH := stripHeight(freqScale)
	waterH := r.Waterfall.Rect.Dy()

	img := image.NewRGBA(image.Rect(0, 0, marginW+mainW, bandH+planH+bookH+freqH+waterH))
	draw.Draw(img, img.Rect, image.NewUniform(c.background), image.Point{}, draw.Src)

	bandY := 0
	planY := bandH
	bookY := planY + planH
	freqY := bookY + bookH
	waterY := freqY + freqH

	// dB-axis margin beside the bandscope, uncropped at native size.
	axisX := marginW
	if r.DBAxis != nil {
		axisX = marginW - r.DBAxis.Rect.Dx()
		drawAt(img, r.DBAxis, axisX, bandY, r.DBAxis.Rect.Dx(), bandH)
	}

	drawCropped(img, r.Bandscope, dataWin, marginW, bandY, mainW, bandH)
	drawCropped(img, bandPlan, viewWin, marginW, planY, mainW, planH)
	drawCropped(img, bookmarks, viewWin, marginW, bookY, mainW, bookH)

	// Margin annotation strip alongside the waterfall.
	if r.Margin != nil {
		drawAt(img, r.Margin, 0, waterY, r.Margin.Rect.Dx(), waterH)
	}

	// Frequency scale slot stays background-filled when unmounted.
	drawCropped(img, freqScale, viewWin, marginW, freqY, mainW, freqH)

	// dB axis for the waterfall rows, then the waterfall itself.
	if r.DBAxis != nil {
		drawAt(img, r.DBAxis, axisX, waterY, r.DBAxis.Rect.Dx(), waterH)
	}
	drawCropped(img, r.Waterfall, dataWin, marginW, waterY, mainW, waterH)

	return img
}

func resolve(fn func() *image.RGBA) *image.RGBA {
	if fn == nil {
		return nil
	}
	return fn()
}

func stripHeight(img *image.RGBA) int {
	if img == nil {
		return defaultStripHeight
	}
	return img.Rect.Dy()
}

// drawAt scales src to the dst rectangle at (x, y).
func drawAt(dst *image.RGBA, src *image.RGBA, x, y, w, h int) {
	xdraw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+w, y+h), src, src.Rect, xdraw.Src, nil)
}

// drawCropped extracts the window from src and scales it into the dst
// rectangle. A nil src leaves the slot's background fill in place.
func drawCropped(dst *image.RGBA, src *image.RGBA, win Window, x, y, w, h int) {
	if src == nil || win.Width <= 0 {
		return
	}

	srcRect := image.Rect(src.Rect.Min.X+win.SrcX, src.Rect.Min.Y,
		src.Rect.Min.X+win.SrcX+win.Width, src.Rect.Max.Y)
	srcRect = srcRect.Intersect(src.Rect)
	if srcRect.Empty() {
		return
	}

	xdraw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+w, y+h), src, srcRect, xdraw.Src, nil)
}

// rescale resizes the main (non-margin) region to targetWidth−marginW,
// copying the margin column unscaled so axis and annotation text stays
// legible.
func (c *Compositor) rescale(composite *image.RGBA, marginW, targetWidth int) (*image.RGBA, error) {
	if targetWidth <= 0 || targetWidth == composite.Rect.Dx() {
		return composite, nil
	}
	if targetWidth <= marginW {
		return nil, fmt.Errorf("target width %d does not fit the %dpx margin", targetWidth, marginW)
	}

	h := composite.Rect.Dy()
	out := image.NewRGBA(image.Rect(0, 0, targetWidth, h))

	marginRect := image.Rect(0, 0, marginW, h)
	draw.Draw(out, marginRect, composite, image.Point{}, draw.Src)

	mainSrc := image.Rect(marginW, 0, composite.Rect.Dx(), h)
	mainDst := image.Rect(marginW, 0, targetWidth, h)
	xdraw.ApproxBiLinear.Scale(out, mainDst, composite, mainSrc, xdraw.Src, nil)

	return out, nil
}

// cropHeight trims the image to at most maxH rows, measured from the
// top.
func cropHeight(img *image.RGBA, maxH int) *image.RGBA {
	if img.Rect.Dy() <= maxH {
		return img
	}

	out := image.NewRGBA(image.Rect(0, 0, img.Rect.Dx(), maxH))
	draw.Draw(out, out.Rect, img, img.Rect.Min, draw.Src)
	return out
}
