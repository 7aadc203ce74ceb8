package ingest

import (
	"testing"
	"time"
)

func TestGovernorBurst(t *testing.T) {
	g := NewRateGovernor(60)

	base := time.Now()
	var accepted, overflowStarts, overflowStops int

	// 100 frames delivered over 500ms, far above the 60/s ceiling.
	for i := 0; i < 100; i++ {
		d := g.Accept(base.Add(time.Duration(i) * 5 * time.Millisecond))
		if d.Accepted {
			accepted++

			// Property: acceptance outside overflow never sees a window
			// count above the ceiling.
			if !d.Overflow && g.WindowCount() > 60 {
				t.Errorf("frame %d: accepted outside overflow with window count %d", i, g.WindowCount())
			}
		}
		if d.OverflowChanged {
			if d.Overflow {
				overflowStarts++
			} else {
				overflowStops++
			}
		}
	}

	if overflowStarts != 1 {
		t.Errorf("expected exactly one overflow-start event, got %d", overflowStarts)
	}
	if overflowStops != 0 {
		t.Errorf("expected no overflow-stop during sustained burst, got %d", overflowStops)
	}
	if accepted >= 100 {
		t.Error("expected some frames to be rejected")
	}

	// Acceptance is paced at the minimum interval once in overflow, so
	// the accepted count stays near the ceiling for the elapsed time.
	if accepted > 75 {
		t.Errorf("expected pacing to hold accepted count down, got %d", accepted)
	}
}

func TestGovernorTightBurst(t *testing.T) {
	g := NewRateGovernor(60)

	base := time.Now()
	var accepted int
	for i := 0; i < 100; i++ {
		// Sub-millisecond spacing, as from a transport replaying a file
		// without pacing.
		d := g.Accept(base.Add(time.Duration(i) * 100 * time.Microsecond))
		if d.Accepted {
			accepted++
		}
	}

	if accepted > 60 {
		t.Errorf("expected at most 60 accepted frames, got %d", accepted)
	}
}

func TestGovernorRejectedEvictedFromWindow(t *testing.T) {
	g := NewRateGovernor(60)

	base := time.Now()
	for i := 0; i < 61; i++ {
		g.Accept(base.Add(time.Duration(i) * time.Millisecond))
	}
	// Frame 61 tripped overflow and was rejected, so it must not remain
	// in the window.
	if got := g.WindowCount(); got != 60 {
		t.Errorf("expected rejected frame evicted, window count 60, got %d", got)
	}
}

func TestGovernorOverflowEdges(t *testing.T) {
	g := NewRateGovernor(10) // min interval 100ms

	base := time.Now()
	var events []bool

	// Burst above the ceiling, then slow delivery, then burst again.
	feed := func(start time.Time, n int, spacing time.Duration) time.Time {
		ts := start
		for i := 0; i < n; i++ {
			d := g.Accept(ts)
			if d.OverflowChanged {
				events = append(events, d.Overflow)
			}
			ts = ts.Add(spacing)
		}
		return ts
	}

	ts := feed(base, 15, 10*time.Millisecond) // trips overflow
	ts = ts.Add(2 * time.Second)              // window drains
	ts = feed(ts, 5, 200*time.Millisecond)    // calm, overflow exits
	feed(ts, 15, 10*time.Millisecond)         // trips overflow again

	want := []bool{true, false, true}
	if len(events) != len(want) {
		t.Fatalf("expected %d overflow transitions, got %d (%v)", len(want), len(events), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("transition %d: expected overflow=%v, got %v", i, want[i], events[i])
		}
	}
}

func TestGovernorNoOverflowAtOrBelowCeiling(t *testing.T) {
	g := NewRateGovernor(60)

	base := time.Now()
	for i := 0; i < 180; i++ {
		// Exactly 50/s, below the ceiling.
		d := g.Accept(base.Add(time.Duration(i) * 20 * time.Millisecond))
		if !d.Accepted {
			t.Fatalf("frame %d rejected below ceiling", i)
		}
		if d.Overflow || d.OverflowChanged {
			t.Fatalf("frame %d triggered overflow below ceiling", i)
		}
	}
}

func TestGovernorDefaultCeiling(t *testing.T) {
	if g := NewRateGovernor(0); g.ceiling != DefaultCeiling {
		t.Errorf("expected default ceiling %d, got %d", DefaultCeiling, g.ceiling)
	}
}
