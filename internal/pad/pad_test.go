package pad

import "testing"

func TestParseSignal_RoundTrip(t *testing.T) {
	for _, sig := range All() {
		got, err := ParseSignal(sig.String())
		if err != nil {
			t.Fatalf("ParseSignal(%q): %v", sig, err)
		}
		if got != sig {
			t.Errorf("ParseSignal(%q) = %v", sig, got)
		}
	}
	if _, err := ParseSignal("left_z"); err == nil {
		t.Fatalf("expected error for unknown signal")
	}
	if got, err := ParseSignal(" Button_A "); err != nil || got != ButtonA {
		t.Fatalf("ParseSignal is not case/space tolerant: %v %v", got, err)
	}
}

func TestSignalKinds(t *testing.T) {
	analog, bipolar, buttons := 0, 0, 0
	var mask uint16
	for _, sig := range All() {
		if sig.Analog() {
			analog++
		}
		if sig.Bipolar() {
			bipolar++
		}
		if b := sig.Bit(); b != 0 {
			buttons++
			if mask&b != 0 {
				t.Fatalf("bit %#04x used twice", b)
			}
			mask |= b
		}
	}
	if analog != 6 || bipolar != 4 || buttons != 14 {
		t.Fatalf("analog=%d bipolar=%d buttons=%d", analog, bipolar, buttons)
	}
}

func TestStateSetValue(t *testing.T) {
	var s State
	s.Set(LeftX, -0.25)
	s.Set(RightTrigger, 0.75)
	s.Set(ButtonA, 1)
	s.Set(DPadLeft, 0.9)
	s.Set(DPadLeft, 0.2)

	if s.Value(LeftX) != -0.25 || s.Value(RightTrigger) != 0.75 {
		t.Fatalf("analog values not stored: %+v", s)
	}
	if s.Value(ButtonA) != 1 || s.Buttons != BitA {
		t.Fatalf("buttons = %#04x, want %#04x", s.Buttons, BitA)
	}
	if s.Value(DPadLeft) != 0 {
		t.Fatalf("dpad_left should be released")
	}
}

func TestTestPulse(t *testing.T) {
	p := TestPulse(State{Buttons: BitStart})
	if p.LX != -1 || p.LY != 1 || p.RX != 1 || p.RY != -1 || p.LT != 1 || p.RT != 1 {
		t.Fatalf("unexpected axes: %+v", p)
	}
	want := BitStart | BitA | BitB | BitX | BitY | BitLeftShoulder | BitRightShoulder
	if p.Buttons != want {
		t.Fatalf("buttons = %#04x, want %#04x", p.Buttons, want)
	}
}

func TestRings(t *testing.T) {
	rs, err := NewRings(8)
	if err != nil {
		t.Fatal(err)
	}
	rs.Push(0.1, State{LX: 0.5, Buttons: BitB})
	rs.Push(0.2, State{LX: 0.6})

	got := rs.Snapshot(LeftX, 0.2, 1)
	if len(got) != 2 || got[1].V != 0.6 {
		t.Fatalf("left_x snapshot: %v", got)
	}
	got = rs.Snapshot(ButtonB, 0.2, 1)
	if len(got) != 2 || got[0].V != 1 || got[1].V != 0 {
		t.Fatalf("button_b snapshot: %v", got)
	}
	if rs.Snapshot(Signal(99), 1, 1) != nil {
		t.Fatalf("unknown signal should yield nil")
	}
	rs.Clear()
	if rs.Len() != 0 {
		t.Fatalf("Len after Clear = %d", rs.Len())
	}
	if _, err := NewRings(3); err == nil {
		t.Fatalf("expected capacity error")
	}
}
