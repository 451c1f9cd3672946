package filter

import (
	"testing"
	"time"
)

type step struct {
	t   float64
	raw bool
}

func runGate(g *Gate, maxPulse time.Duration, steps []step) []bool {
	out := make([]bool, len(steps))
	for i, s := range steps {
		out[i] = g.Step(s.t, s.raw, maxPulse)
	}
	return out
}

func TestGate_ShortPulseNeverVisible(t *testing.T) {
	var g Gate
	out := runGate(&g, 5*time.Millisecond, []step{
		{0, false}, {0.001, true}, {0.002, true}, {0.0035, true}, {0.004, false}, {0.005, false},
	})
	for i, v := range out {
		if v {
			t.Fatalf("step %d: short pulse became visible", i)
		}
	}
	if g.State() != GateIdle {
		t.Fatalf("state = %v, want idle", g.State())
	}
}

func TestGate_PromotionTiming(t *testing.T) {
	var g Gate
	const maxPulse = 5 * time.Millisecond
	// 1ms cadence, rising edge at t=0.010
	promotedAt := -1.0
	for i := 0; i <= 30; i++ {
		tm := float64(i) / 1000
		raw := i >= 10
		if g.Step(tm, raw, maxPulse) && promotedAt < 0 {
			promotedAt = tm
		}
	}
	if promotedAt < 0 {
		t.Fatalf("held press was never promoted")
	}
	// No earlier than rise+maxPulse, no later than one cycle after.
	if promotedAt < 0.015-1e-9 || promotedAt > 0.016+1e-9 {
		t.Fatalf("promoted at %.4f, want within [0.015, 0.016]", promotedAt)
	}
}

func TestGate_ReleaseIsImmediate(t *testing.T) {
	var g Gate
	out := runGate(&g, 2*time.Millisecond, []step{
		{0.000, true}, {0.001, true}, {0.0025, true}, {0.003, false},
	})
	if !out[2] {
		t.Fatalf("expected press promoted at 2.5ms")
	}
	if out[3] {
		t.Fatalf("release should drop output on the same sample")
	}
}

func TestGate_HeldAtStartIsRisingEdge(t *testing.T) {
	var g Gate
	if g.Step(0, true, 5*time.Millisecond) {
		t.Fatalf("first high sample must not be visible")
	}
	if g.State() != GatePending {
		t.Fatalf("state = %v, want pending", g.State())
	}
}

func TestGate_ZeroMaxPulsePromotesImmediately(t *testing.T) {
	var g Gate
	if !g.Step(0.5, true, 0) {
		t.Fatalf("maxPulse=0 should pass the press through")
	}
}

func TestGate_EndToEndScenario(t *testing.T) {
	const maxPulse = 5 * time.Millisecond

	var a Gate
	out := runGate(&a, maxPulse, []step{{0, false}, {0.001, true}, {0.004, false}})
	for i, v := range out {
		if v {
			t.Fatalf("scenario 1 step %d: output became 1", i)
		}
	}

	var b Gate
	out = runGate(&b, maxPulse, []step{{0, false}, {0.001, true}, {0.010, true}})
	if out[0] || out[1] {
		t.Fatalf("scenario 2: output visible before promotion: %v", out)
	}
	if !out[2] {
		t.Fatalf("scenario 2: expected promotion by t=0.010")
	}
}

func TestHatGate(t *testing.T) {
	const maxPulse = 5 * time.Millisecond
	var h HatGate

	if got := h.Step(0, 8, maxPulse); got != 8 {
		t.Fatalf("first value should be the baseline, got %v", got)
	}
	// Candidate 2 appears, flickers to 3, then settles on 3.
	cases := []struct {
		t, raw, want float64
	}{
		{0.001, 2, 8},
		{0.003, 3, 8},  // timer restarts for the new candidate
		{0.0065, 3, 8}, // only 3.5ms stable
		{0.0085, 3, 3}, // 5.5ms stable
		{0.009, 3, 3},
		{0.010, 0, 3},
		{0.011, 3, 3}, // back to the current value cancels the pending change
		{0.017, 3, 3},
	}
	for i, tc := range cases {
		if got := h.Step(tc.t, tc.raw, maxPulse); got != tc.want {
			t.Fatalf("case %d (t=%v raw=%v): got %v, want %v", i, tc.t, tc.raw, got, tc.want)
		}
	}
}
