package colormap

import (
	"testing"

	"github.com/hamgrid/groundscope/internal/spectrum"
)

func TestColorForDeterministic(t *testing.T) {
	m := NewMapper()
	rng := spectrum.DynamicRange{Min: -120, Max: 30}

	for _, scheme := range []Scheme{SchemeClassic, SchemeThermal, SchemeGrayscale} {
		a := m.ColorFor(-57.3, scheme, rng)
		b := m.ColorFor(-57.3, scheme, rng)
		if a != b {
			t.Errorf("%s: repeated lookup differs: %v vs %v", scheme, a, b)
		}

		// A fresh mapper must agree with the cached one.
		c := NewMapper().ColorFor(-57.3, scheme, rng)
		if a != c {
			t.Errorf("%s: cached and fresh lookup differ: %v vs %v", scheme, a, c)
		}
	}
}

func TestColorForRounding(t *testing.T) {
	m := NewMapper()
	rng := spectrum.DynamicRange{Min: -120, Max: 30}

	// Values within the same 0.5 dB bucket share one cache entry.
	a := m.ColorFor(-60.1, SchemeClassic, rng)
	b := m.ColorFor(-59.9, SchemeClassic, rng)
	if a != b {
		t.Errorf("expected -60.1 and -59.9 to round to the same color, got %v and %v", a, b)
	}
	if m.CacheSize() != 1 {
		t.Errorf("expected 1 cache entry, got %d", m.CacheSize())
	}

	// A different range is a different key even for the same power.
	m.ColorFor(-60.0, SchemeClassic, spectrum.DynamicRange{Min: -100, Max: 0})
	if m.CacheSize() != 2 {
		t.Errorf("expected 2 cache entries after range change, got %d", m.CacheSize())
	}
}

func TestGrayscaleEndpoints(t *testing.T) {
	m := NewMapper()
	rng := spectrum.DynamicRange{Min: -120, Max: 30}

	black := m.ColorFor(-120, SchemeGrayscale, rng)
	if black.R != 0 || black.G != 0 || black.B != 0 {
		t.Errorf("expected black at range minimum, got %v", black)
	}

	white := m.ColorFor(30, SchemeGrayscale, rng)
	if white.R != 255 || white.G != 255 || white.B != 255 {
		t.Errorf("expected white at range maximum, got %v", white)
	}

	// Clamping: out-of-range inputs pin to the endpoints.
	if c := m.ColorFor(-500, SchemeGrayscale, rng); c != black {
		t.Errorf("expected clamp to black below range, got %v", c)
	}
	if c := m.ColorFor(500, SchemeGrayscale, rng); c != white {
		t.Errorf("expected clamp to white above range, got %v", c)
	}
}

func TestSampleMonotonicIntensity(t *testing.T) {
	// The brightest channel must never get darker as t grows.
	maxChannel := func(scheme Scheme, t float64) uint8 {
		c := Sample(scheme, t)
		m := c.R
		if c.G > m {
			m = c.G
		}
		if c.B > m {
			m = c.B
		}
		return m
	}

	for _, scheme := range []Scheme{SchemeClassic, SchemeThermal, SchemeGrayscale} {
		prev := maxChannel(scheme, 0)
		for i := 1; i <= 100; i++ {
			cur := maxChannel(scheme, float64(i)/100)
			if cur < prev {
				t.Errorf("%s: intensity decreased at t=%0.2f: %d -> %d", scheme, float64(i)/100, prev, cur)
			}
			prev = cur
		}
	}
}

func TestParse(t *testing.T) {
	if Parse("thermal") != SchemeThermal {
		t.Error("expected thermal scheme")
	}
	if Parse("no-such-scheme") != DefaultScheme {
		t.Error("expected fallback to default scheme")
	}
}

func TestAutoRange(t *testing.T) {
	seed := spectrum.DynamicRange{Min: -120, Max: -20}
	ar := NewAutoRange(1.0, seed) // no smoothing, follow immediately

	// Below the minimum sample count nothing changes.
	ar.Observe([]float64{-50, -60})
	if _, ok := ar.Update(); ok {
		t.Fatal("expected no result before minimum sample count")
	}

	// A tight cluster around -60 dB: the result must contain it and
	// respect the minimum span.
	samples := make([]float64, 200)
	for i := range samples {
		samples[i] = -60 + float64(i%10)
	}
	ar.Observe(samples)

	res, ok := ar.Update()
	if !ok {
		t.Fatal("expected a result after observing samples")
	}
	if err := res.Range.Validate(); err != nil {
		t.Fatalf("auto range produced invalid range: %v", err)
	}
	if res.Range.Span() < minimumSpanDb {
		t.Errorf("expected span >= %d dB, got %0.1f", minimumSpanDb, res.Range.Span())
	}
	if res.Range.Min > -60 || res.Range.Max < -51 {
		t.Errorf("range %+v does not contain the observed cluster", res.Range)
	}
	if res.Stats.Mean > -50 || res.Stats.Mean < -70 {
		t.Errorf("unexpected mean %0.1f", res.Stats.Mean)
	}
}
