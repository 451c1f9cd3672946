package mapping

import (
	"testing"

	"padbridge/internal/pad"
)

func TestResolveAxis_PriorityWins(t *testing.T) {
	v, ok := ResolveAxis([]Candidate{
		{Priority: 5, Deadband: 0.1, Value: 0.9},
		{Priority: 10, Deadband: 0.1, Value: 0.5},
	})
	if !ok || v != 0.5 {
		t.Fatalf("got %v, want 0.5", v)
	}
}

func TestResolveAxis_FallbackLargestMagnitude(t *testing.T) {
	v, ok := ResolveAxis([]Candidate{
		{Priority: 10, Deadband: 0.1, Value: 0.02},
		{Priority: 5, Deadband: 0.1, Value: 0.05},
	})
	if !ok || v != 0.05 {
		t.Fatalf("got %v, want 0.05", v)
	}

	v, _ = ResolveAxis([]Candidate{
		{Priority: 1, Deadband: 0.2, Value: 0.1},
		{Priority: 1, Deadband: 0.2, Value: -0.15},
	})
	if v != -0.15 {
		t.Fatalf("negative magnitude not considered: %v", v)
	}
}

func TestResolveAxis_EqualPriorityUsesInsertionOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		v, _ := ResolveAxis([]Candidate{
			{Priority: 3, Deadband: 0.1, Value: 0.4},
			{Priority: 3, Deadband: 0.1, Value: -0.8},
			{Priority: 1, Deadband: 0.1, Value: 1.0},
		})
		if v != 0.4 {
			t.Fatalf("iteration %d: got %v, want first inserted 0.4", i, v)
		}
	}
	// Fallback ties also go to the earliest entry.
	v, _ := ResolveAxis([]Candidate{
		{Priority: 0, Deadband: 0.5, Value: -0.3},
		{Priority: 0, Deadband: 0.5, Value: 0.3},
	})
	if v != -0.3 {
		t.Fatalf("fallback tie: got %v, want -0.3", v)
	}
}

func TestResolveAxis_DeadbandIsStrict(t *testing.T) {
	v, _ := ResolveAxis([]Candidate{
		{Priority: 9, Deadband: 0.1, Value: 0.1},
		{Priority: 1, Deadband: 0.1, Value: 0.3},
	})
	if v != 0.3 {
		t.Fatalf("value equal to deadband should not win: %v", v)
	}
}

func TestResolveAxis_Empty(t *testing.T) {
	if _, ok := ResolveAxis(nil); ok {
		t.Fatalf("expected ok=false")
	}
}

func TestResolveButton(t *testing.T) {
	if ResolveButton(nil) {
		t.Fatalf("no candidates should be inactive")
	}
	if ResolveButton([]Candidate{{Value: 0.5}, {Value: 0}}) {
		t.Fatalf("0.5 is not above threshold")
	}
	if !ResolveButton([]Candidate{{Priority: 1, Value: 0}, {Priority: 0, Value: 1}}) {
		t.Fatalf("any active source should activate")
	}
}

func mustAction(t *testing.T, s string) Action {
	t.Helper()
	a, err := ParseAction(s)
	if err != nil {
		t.Fatalf("ParseAction(%q): %v", s, err)
	}
	return a
}

func TestResolve_Table(t *testing.T) {
	entries := []Entry{
		{ID: "1", SignalID: "stick:joy_x", Action: mustAction(t, "x360:left_x"), Priority: 10, Deadband: 0.1},
		{ID: "2", SignalID: "throttle:mini_x", Action: mustAction(t, "x360:left_x"), Priority: 5, Deadband: 0.1},
		{ID: "3", SignalID: "stick:joy_y", Action: mustAction(t, "x360:left_y"), Invert: true},
		{ID: "4", SignalID: "stick:trigger", Action: mustAction(t, "x360:button_a")},
		{ID: "5", SignalID: "stick:A", Action: mustAction(t, "x360:button_a")},
		{ID: "6", SignalID: "throttle:slider", Action: mustAction(t, "x360:right_trigger")},
		{ID: "7", SignalID: "stick:C", Action: mustAction(t, "keyboard:57")},
		{ID: "8", SignalID: "stick:D", Action: mustAction(t, "mouse:left_click")},
	}
	values := map[string]float64{
		"stick:joy_x":     0.05,
		"throttle:mini_x": -0.7,
		"stick:joy_y":     0.25,
		"stick:trigger":   0,
		"stick:A":         1,
		"throttle:slider": 0.8,
		"stick:C":         1,
	}
	out := Resolve(entries, func(id string) (float64, bool) {
		v, ok := values[id]
		return v, ok
	})

	if out.State.LX != -0.7 {
		t.Errorf("LX = %v, want -0.7 (priority 10 source inside deadband)", out.State.LX)
	}
	if out.State.LY != -0.25 {
		t.Errorf("LY = %v, want inverted -0.25", out.State.LY)
	}
	if out.State.RT != 0.8 {
		t.Errorf("RT = %v", out.State.RT)
	}
	if out.State.Buttons != pad.BitA {
		t.Errorf("buttons = %#04x", out.State.Buttons)
	}
	if !out.Keys[57] {
		t.Errorf("key 57 not pressed")
	}
	if pressed, ok := out.Mouse[MouseLeft]; !ok || pressed {
		t.Errorf("mouse left should be tracked and released (missing value reads 0)")
	}
}
