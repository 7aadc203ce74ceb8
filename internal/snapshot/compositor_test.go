package snapshot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/hamgrid/groundscope/internal/render"
	"github.com/hamgrid/groundscope/internal/view"
)

func TestCropWindow(t *testing.T) {
	tests := []struct {
		name          string
		surfaceWidth  int
		scale         float64
		offset        float64
		viewportWidth int
		want          Window
	}{
		{"data res, middle half", 1024, 2, -400, 800, Window{SrcX: 256, Width: 512}},
		{"viewport res, middle half", 800, 2, -400, 800, Window{SrcX: 200, Width: 400}},
		{"unzoomed full width", 1024, 1, 0, 800, Window{SrcX: 0, Width: 1024}},
		{"panned to right edge", 1024, 2, -800, 800, Window{SrcX: 512, Width: 512}},
		{"offset beyond bounds clamps", 1024, 2, -5000, 800, Window{SrcX: 512, Width: 512}},
		{"quarter zoom", 1024, 4, -1200, 800, Window{SrcX: 384, Width: 256}},
		{"invalid scale falls back to full", 1024, 0.5, 0, 800, Window{SrcX: 0, Width: 1024}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cropWindow(tt.surfaceWidth, tt.scale, tt.offset, tt.viewportWidth)
			if got != tt.want {
				t.Errorf("cropWindow(%d, %v, %v, %d) = %+v, want %+v",
					tt.surfaceWidth, tt.scale, tt.offset, tt.viewportWidth, got, tt.want)
			}
		})
	}
}

var (
	red   = color.RGBA{R: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	gray  = color.RGBA{R: 99, G: 99, B: 99, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// testRasters builds a waterfall whose left half is red and right half
// blue, so crop placement is observable in the composite.
func testRasters(waterfallHeight int) render.Rasters {
	waterfall := uniform(1024, waterfallHeight, red)
	draw.Draw(waterfall, image.Rect(512, 0, 1024, waterfallHeight),
		image.NewUniform(blue), image.Point{}, draw.Src)

	return render.Rasters{
		Waterfall: waterfall,
		Bandscope: uniform(1024, 32, green),
		DBAxis:    uniform(24, 32, gray),
		Margin:    uniform(48, waterfallHeight, white),
	}
}

type fakeEngine struct {
	rasters render.Rasters
	err     error
	block   bool
}

func (f *fakeEngine) Rasters(ctx context.Context) (render.Rasters, error) {
	if f.block {
		<-ctx.Done()
		return render.Rasters{}, ctx.Err()
	}
	return f.rasters, f.err
}

func zoomedTransform() *view.Transform {
	tr := view.NewTransform(800)
	tr.Restore(view.State{Scale: 2, Offset: -400})
	return tr
}

func decodePNG(t *testing.T, data []byte) *image.RGBA {
	t.Helper()

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Rect, img, img.Bounds().Min, draw.Src)
	return out
}

func TestCaptureComposite(t *testing.T) {
	engine := &fakeEngine{rasters: testRasters(10)}
	c := NewCompositor(engine, zoomedTransform(), Layers{})

	// Margin column 48+24=72; main 400; slots 32+20+20+20+10 high.
	data, err := c.Capture(context.Background(), 472)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	img := decodePNG(t, data)

	if w, h := img.Rect.Dx(), img.Rect.Dy(); w != 472 || h != 102 {
		t.Fatalf("unexpected composite size %dx%d", w, h)
	}

	// Bandscope slot main area.
	if got := img.RGBAAt(100, 10); got != green {
		t.Errorf("expected bandscope pixel, got %v", got)
	}

	// Empty overlay strips keep the background fill.
	if got := img.RGBAAt(100, 40); got != (color.RGBA{A: 255}) {
		t.Errorf("expected background in empty overlay slot, got %v", got)
	}

	// Waterfall row: visible data window is columns 256-767, so red in
	// the left part of the main area, blue in the right.
	if got := img.RGBAAt(72+50, 95); got != red {
		t.Errorf("expected red waterfall pixel, got %v", got)
	}
	if got := img.RGBAAt(72+350, 95); got != blue {
		t.Errorf("expected blue waterfall pixel, got %v", got)
	}

	// Fixed margin beside the waterfall: annotation strip, then dB axis.
	if got := img.RGBAAt(10, 95); got != white {
		t.Errorf("expected annotation strip pixel, got %v", got)
	}
	if got := img.RGBAAt(50, 95); got != gray {
		t.Errorf("expected dB axis pixel, got %v", got)
	}
}

func TestCaptureRescalesMainAreaOnly(t *testing.T) {
	engine := &fakeEngine{rasters: testRasters(10)}
	c := NewCompositor(engine, zoomedTransform(), Layers{})

	data, err := c.Capture(context.Background(), 272)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	img := decodePNG(t, data)

	if got := img.Rect.Dx(); got != 272 {
		t.Fatalf("expected width 272, got %d", got)
	}

	// The margin column is copied unscaled.
	if got := img.RGBAAt(10, 95); got != white {
		t.Errorf("expected unscaled annotation strip, got %v", got)
	}
	if got := img.RGBAAt(50, 95); got != gray {
		t.Errorf("expected unscaled dB axis, got %v", got)
	}

	// Main area shrank from 400 to 200 but keeps its content split.
	if got := img.RGBAAt(72+25, 95); got != red {
		t.Errorf("expected red in rescaled main area, got %v", got)
	}
	if got := img.RGBAAt(72+175, 95); got != blue {
		t.Errorf("expected blue in rescaled main area, got %v", got)
	}
}

func TestCaptureTargetNarrowerThanMargin(t *testing.T) {
	engine := &fakeEngine{rasters: testRasters(10)}
	c := NewCompositor(engine, zoomedTransform(), Layers{})

	if _, err := c.Capture(context.Background(), 50); err == nil {
		t.Fatal("expected error for target narrower than the margin")
	}
}

func TestCaptureCropsHeight(t *testing.T) {
	engine := &fakeEngine{rasters: testRasters(1000)}
	c := NewCompositor(engine, zoomedTransform(), Layers{})

	data, err := c.Capture(context.Background(), 0)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	img := decodePNG(t, data)

	if got := img.Rect.Dy(); got != maxCompositeHeight {
		t.Errorf("expected height cropped to %d, got %d", maxCompositeHeight, got)
	}
}

func TestCaptureTimeout(t *testing.T) {
	engine := &fakeEngine{block: true}
	c := NewCompositor(engine, zoomedTransform(), Layers{}, WithTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := c.Capture(context.Background(), 472)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("capture did not honor the bounded wait, took %v", elapsed)
	}
}

func TestCaptureMissingRequiredSurface(t *testing.T) {
	rasters := testRasters(10)
	rasters.Bandscope = nil
	engine := &fakeEngine{rasters: rasters}
	c := NewCompositor(engine, zoomedTransform(), Layers{})

	if _, err := c.Capture(context.Background(), 472); !errors.Is(err, ErrMissingSurface) {
		t.Fatalf("expected ErrMissingSurface, got %v", err)
	}
}

func TestCaptureWithOverlayLayers(t *testing.T) {
	engine := &fakeEngine{rasters: testRasters(10)}
	yellow := color.RGBA{R: 255, G: 255, A: 255}
	layers := Layers{
		FreqScale: func() *image.RGBA { return uniform(800, 24, yellow) },
	}
	c := NewCompositor(engine, zoomedTransform(), layers)

	data, err := c.Capture(context.Background(), 0)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	img := decodePNG(t, data)

	// Slots above the frequency scale: bandscope 32, two empty 20px
	// strips; the scale slot is 24px high starting at y=72.
	if got := img.RGBAAt(100, 80); got != yellow {
		t.Errorf("expected frequency scale pixel, got %v", got)
	}
}

func TestFilename(t *testing.T) {
	name := Filename("ISS (ZARYA) pass #42", 145.8e6)

	if !strings.HasPrefix(name, "ISS_ZARYA_pass_42_145.80MHz_") {
		t.Errorf("unexpected filename prefix: %s", name)
	}
	if !strings.HasSuffix(name, ".png") {
		t.Errorf("expected .png suffix: %s", name)
	}

	if got := Filename("///", 7.074e6); !strings.HasPrefix(got, "snapshot_7.07MHz_") {
		t.Errorf("expected fallback target name, got %s", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NOAA-19", "NOAA-19"},
		{"ISS (ZARYA)", "ISS_ZARYA"},
		{"  so/50  ", "so_50"},
		{"***", "snapshot"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
