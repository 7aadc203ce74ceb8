// Package colormap maps power levels in dB onto RGB colors for the
// waterfall and bandscope displays. Mapping is deterministic per
// (power, scheme, dynamic range) and memoized; rounding power to the
// nearest 0.5 dB keeps the key cardinality bounded, so the cache may
// live for the whole session.
package colormap

import (
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/hamgrid/groundscope/internal/spectrum"
)

// Scheme identifies a color palette. Each palette is a deterministic
// piecewise function of normalized power t in [0,1], continuous at
// segment boundaries and monotonically increasing in intensity.
type Scheme string

const (
	SchemeClassic   Scheme = "classic"   // blue to red rainbow
	SchemeThermal   Scheme = "thermal"   // black, red, yellow, white
	SchemeGrayscale Scheme = "grayscale" // power-law black to white
)

// DefaultScheme is used when configuration names an unknown scheme.
const DefaultScheme = SchemeClassic

// grayGamma keeps low-level noise visually dark in the grayscale scheme.
const grayGamma = 0.7

type cacheKey struct {
	halfDb   int32 // power rounded to 0.5 dB, stored doubled
	scheme   Scheme
	min, max float64
}

// Mapper converts power values to colors with a memoizing cache.
// It is not safe for concurrent use; the rendering engine owns one
// instance inside its single-threaded context.
type Mapper struct {
	cache map[cacheKey]color.RGBA
}

// NewMapper creates an empty mapper.
func NewMapper() *Mapper {
	return &Mapper{cache: make(map[cacheKey]color.RGBA)}
}

// ColorFor maps powerDb onto an RGB color for the given scheme and
// dynamic range. The power is clamped to the range and rounded to the
// nearest 0.5 dB before normalization.
func (m *Mapper) ColorFor(powerDb float64, scheme Scheme, rng spectrum.DynamicRange) color.RGBA {
	p := math.Max(rng.Min, math.Min(powerDb, rng.Max))
	half := int32(math.Round(p * 2))

	key := cacheKey{halfDb: half, scheme: scheme, min: rng.Min, max: rng.Max}
	if c, ok := m.cache[key]; ok {
		return c
	}

	rounded := float64(half) / 2
	t := (rounded - rng.Min) / rng.Span()
	t = math.Max(0, math.Min(1, t))

	c := Sample(scheme, t)
	m.cache[key] = c
	return c
}

// CacheSize returns the number of memoized entries.
func (m *Mapper) CacheSize() int {
	return len(m.cache)
}

// Sample evaluates a scheme's palette at normalized intensity t in [0,1]
// without touching the cache. The bandscope uses it to derive line and
// fill colors from two fixed intensity points.
func Sample(scheme Scheme, t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))

	switch scheme {
	case SchemeGrayscale:
		v := uint8(math.Pow(t, grayGamma) * 255)
		return color.RGBA{R: v, G: v, B: v, A: 0xff}

	case SchemeThermal:
		return thermal(t)

	case SchemeClassic:
		fallthrough
	default:
		// Hue walks from blue (240) down to red (0); value follows a
		// power law so the noise floor stays dark.
		r, g, b := colorful.Hsv(240-(t*240), 0.9+(t*0.1), math.Pow(t, 0.7)).RGB255()
		return color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
}

// thermal ramps black -> red -> yellow -> white in three linear segments.
func thermal(t float64) color.RGBA {
	switch {
	case t < 1.0/3:
		return color.RGBA{R: uint8(t * 3 * 255), A: 0xff}
	case t < 2.0/3:
		return color.RGBA{R: 255, G: uint8((t - 1.0/3) * 3 * 255), A: 0xff}
	default:
		return color.RGBA{R: 255, G: 255, B: uint8((t - 2.0/3) * 3 * 255), A: 0xff}
	}
}

// Parse returns the scheme named by s, falling back to DefaultScheme.
func Parse(s string) Scheme {
	switch Scheme(s) {
	case SchemeClassic, SchemeThermal, SchemeGrayscale:
		return Scheme(s)
	default:
		return DefaultScheme
	}
}
