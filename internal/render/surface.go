package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
)

// ErrHandleConsumed is returned when a surface handle is taken twice.
var ErrHandleConsumed = errors.New("surface handle already consumed")

// Surface is a raster with a fixed backing resolution. Data-resolution
// surfaces (waterfall, bandscope, margins) are drawn once per frame at
// their backing size regardless of the visible zoom.
type Surface struct {
	img *image.RGBA
}

// NewSurface allocates a surface of the given backing size.
func NewSurface(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size: %dx%d", width, height)
	}
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}

// Width returns the backing width in pixels.
func (s *Surface) Width() int { return s.img.Rect.Dx() }

// Height returns the backing height in pixels.
func (s *Surface) Height() int { return s.img.Rect.Dy() }

// Image exposes the backing raster for drawing.
func (s *Surface) Image() *image.RGBA { return s.img }

// ScrollDown shifts the entire content down by one row. The vacated top
// row keeps its previous content and must be overwritten by the caller.
func (s *Surface) ScrollDown() {
	stride := s.img.Stride
	h := s.Height()
	if h < 2 {
		return
	}
	// Move rows [0, h-1) to [1, h). copy handles the overlap because the
	// destination is past the source.
	copy(s.img.Pix[stride:h*stride], s.img.Pix[:(h-1)*stride])
}

// FillRow paints one full row with the given color.
func (s *Surface) FillRow(y int, c color.RGBA) {
	for x := 0; x < s.Width(); x++ {
		s.img.SetRGBA(x, y, c)
	}
}

// Fill paints the whole surface with the given color.
func (s *Surface) Fill(c color.RGBA) {
	draw.Draw(s.img, s.img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
}

// Snapshot returns a deep copy of the raster, safe to hand across the
// context boundary.
func (s *Surface) Snapshot() *image.RGBA {
	dst := image.NewRGBA(s.img.Rect)
	copy(dst.Pix, s.img.Pix)
	return dst
}

// Handle transfers exclusive ownership of a surface into the rendering
// context. Take consumes the handle; once taken, the creating side must
// not draw to the surface again.
type Handle struct {
	mu       sync.Mutex
	surface  *Surface
	consumed bool
}

// NewHandle wraps a surface for a one-time ownership transfer.
func NewHandle(s *Surface) *Handle {
	return &Handle{surface: s}
}

// Take consumes the handle and returns the surface. A second call
// returns ErrHandleConsumed.
func (h *Handle) Take() (*Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consumed {
		return nil, ErrHandleConsumed
	}
	h.consumed = true

	s := h.surface
	h.surface = nil
	return s, nil
}
