package filter

import (
	"sync"
	"testing"
	"time"

	"padbridge/internal/pad"
)

func TestBank_GatesButtonsAndClampsAxes(t *testing.T) {
	b := NewBank(DefaultParams())

	out := b.Apply(0.000, pad.State{LX: 0.1})
	if out.LX != 0.1 {
		t.Fatalf("baseline altered: %+v", out)
	}
	out = b.Apply(0.001, pad.State{LX: 0.9, Buttons: pad.BitA})
	if out.LX != 0.1 {
		t.Fatalf("spike not clamped: %v", out.LX)
	}
	if out.Buttons != 0 {
		t.Fatalf("button visible before promotion: %#04x", out.Buttons)
	}
	out = b.Apply(0.007, pad.State{LX: 0.15, Buttons: pad.BitA})
	if out.LX != 0.15 || out.Buttons != pad.BitA {
		t.Fatalf("unexpected state after hold: %+v", out)
	}
	if b.GateState(pad.ButtonA) != GateActive {
		t.Fatalf("gate state = %v", b.GateState(pad.ButtonA))
	}
}

func TestBank_ModeNoneBypasses(t *testing.T) {
	b := NewBank(DefaultParams())
	b.SetMode(pad.ButtonB, None())
	b.SetMode(pad.LeftY, None())

	b.Apply(0, pad.State{})
	out := b.Apply(0.001, pad.State{LY: -1, Buttons: pad.BitB})
	if out.LY != -1 || out.Buttons != pad.BitB {
		t.Fatalf("bypassed signals were filtered: %+v", out)
	}
}

func TestBank_Disabled(t *testing.T) {
	b := NewBank(DefaultParams())
	b.SetEnabled(false)
	b.SetTriggerDigital(pad.RightTrigger, true)

	b.Apply(0, pad.State{})
	out := b.Apply(0.001, pad.State{RX: 1, RT: 0.6, Buttons: pad.BitY})
	if out.RX != 1 || out.Buttons != pad.BitY {
		t.Fatalf("disabled bank filtered: %+v", out)
	}
	if out.RT != 1 {
		t.Fatalf("digital trigger not thresholded while disabled: %v", out.RT)
	}
}

func TestBank_DigitalTriggerIsGatedNotClamped(t *testing.T) {
	b := NewBank(DefaultParams())
	b.SetTriggerDigital(pad.LeftTrigger, true)
	if !b.TriggerDigital(pad.LeftTrigger) || b.TriggerDigital(pad.RightTrigger) {
		t.Fatalf("trigger flags not independent")
	}

	b.Apply(0.000, pad.State{LT: 0})
	if out := b.Apply(0.001, pad.State{LT: 0.8}); out.LT != 0 {
		t.Fatalf("digital trigger visible before promotion: %v", out.LT)
	}
	// A clamp would hold this 0->1 step forever; the gate promotes it.
	if out := b.Apply(0.008, pad.State{LT: 0.8}); out.LT != 1 {
		t.Fatalf("digital trigger not promoted: %v", out.LT)
	}
	if out := b.Apply(0.009, pad.State{LT: 0.2}); out.LT != 0 {
		t.Fatalf("digital trigger release not immediate: %v", out.LT)
	}
}

func TestBank_PerSignalMaxPulse(t *testing.T) {
	b := NewBank(DefaultParams())
	b.SetMode(pad.Start, Digital(20*time.Millisecond))

	b.Apply(0, pad.State{Buttons: pad.BitStart | pad.BitBack})
	out := b.Apply(0.010, pad.State{Buttons: pad.BitStart | pad.BitBack})
	if out.Buttons != pad.BitBack {
		t.Fatalf("buttons = %#04x, want only back promoted", out.Buttons)
	}
	out = b.Apply(0.021, pad.State{Buttons: pad.BitStart | pad.BitBack})
	if out.Buttons != pad.BitStart|pad.BitBack {
		t.Fatalf("buttons = %#04x, want start and back", out.Buttons)
	}
}

func TestBank_ResetAndConcurrentConfig(t *testing.T) {
	b := NewBank(DefaultParams())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.SetMode(pad.ButtonX, Digital(time.Duration(i)*time.Microsecond))
			b.SetParams(Params{MaxPulse: time.Millisecond, Delta: 0.3})
			b.SetTriggerDigital(pad.RightTrigger, i%2 == 0)
		}
	}()
	for i := 0; i < 1000; i++ {
		b.Apply(float64(i)/1000, pad.State{Buttons: pad.BitX})
	}
	wg.Wait()

	b.Reset()
	if b.GateState(pad.ButtonX) != GateIdle {
		t.Fatalf("gate not reset")
	}
}

func TestKeyed(t *testing.T) {
	k := NewKeyed(DefaultParams())

	if got := k.Apply("stick:joy_x", 0, 0.42); got != 0.42 {
		t.Fatalf("unconfigured id filtered: %v", got)
	}

	k.SetMode("stick:trigger", Digital(0), Shape{})
	k.SetMode("stick:POV", Digital(0), Shape{Hat: true})

	if got := k.Apply("stick:trigger", 0, 1); got != 0 {
		t.Fatalf("press visible before promotion: %v", got)
	}
	if got := k.Apply("stick:trigger", 0.003, 0); got != 0 {
		t.Fatalf("short pulse leaked: %v", got)
	}

	if got := k.Apply("stick:POV", 0, 15); got != 15 {
		t.Fatalf("hat baseline = %v", got)
	}
	if got := k.Apply("stick:POV", 0.001, 4); got != 15 {
		t.Fatalf("hat changed before hold time: %v", got)
	}
	if got := k.Apply("stick:POV", 0.007, 4); got != 4 {
		t.Fatalf("hat not promoted: %v", got)
	}

	if ids := k.IDs(); len(ids) != 2 || ids[0] != "stick:POV" {
		t.Fatalf("IDs = %v", ids)
	}
	if m := k.Mode("stick:trigger"); m.Kind != KindDigital {
		t.Fatalf("Mode = %v", m)
	}
	if m := k.Mode("missing"); m.Kind != KindNone {
		t.Fatalf("missing mode = %v", m)
	}

	k.Reset()
	if got := k.Apply("stick:POV", 0.008, 0); got != 0 {
		t.Fatalf("hat baseline not cleared by Reset: %v", got)
	}
}

func TestParseKindAndStrategy(t *testing.T) {
	for in, want := range map[string]Kind{"none": KindNone, "Digital": KindDigital, "analog": KindAnalog, "": KindNone} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseKind("spiky"); err == nil {
		t.Errorf("expected error")
	}
	if s, err := ParseStrategy("rate_limit"); err != nil || s != StrategyRateLimit {
		t.Errorf("ParseStrategy = %v, %v", s, err)
	}
}
