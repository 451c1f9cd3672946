package filter

import (
	"sync"
	"sync/atomic"

	"padbridge/internal/pad"
)

// Bank filters whole ControllerStates for the fixed pad signals.
//
// Per-signal modes, trigger digital flags and the enable flag are independent
// and stored in atomics. Gate and spike state is read-modify-write per cycle
// and lives under mu.
type Bank struct {
	modes          [pad.Count]atomic.Pointer[Mode]
	params         atomic.Pointer[Params]
	triggerDigital [2]atomic.Bool
	enabled        atomic.Bool

	mu    sync.Mutex
	chans [pad.Count]Channel
}

// NewBank returns an enabled bank with the default mode on every signal:
// analog clamp for axes and triggers, digital gate for buttons, both using
// the global parameters.
func NewBank(p Params) *Bank {
	b := &Bank{}
	b.SetParams(p)
	for _, sig := range pad.All() {
		m := Digital(0)
		if sig.Analog() {
			m = Analog(0)
		}
		b.SetMode(sig, m)
	}
	b.enabled.Store(true)
	return b
}

// SetMode changes the filter of one signal.
func (b *Bank) SetMode(sig pad.Signal, m Mode) {
	if !sig.Valid() {
		return
	}
	if m.MaxPulse < 0 {
		m.MaxPulse = 0
	}
	if m.Delta < 0 {
		m.Delta = 0
	}
	b.modes[sig].Store(&m)
}

// Mode returns the filter of one signal.
func (b *Bank) Mode(sig pad.Signal) Mode {
	if !sig.Valid() {
		return None()
	}
	return *b.modes[sig].Load()
}

// SetParams replaces the global parameters, clamped to valid ranges.
func (b *Bank) SetParams(p Params) {
	p = p.Clamped()
	b.params.Store(&p)
}

// Params returns the global parameters.
func (b *Bank) Params() Params { return *b.params.Load() }

func triggerIndex(sig pad.Signal) int {
	switch sig {
	case pad.LeftTrigger:
		return 0
	case pad.RightTrigger:
		return 1
	}
	return -1
}

// SetTriggerDigital switches a trigger between analog and on/off handling.
// It is a no-op for other signals.
func (b *Bank) SetTriggerDigital(sig pad.Signal, digital bool) {
	if i := triggerIndex(sig); i >= 0 {
		b.triggerDigital[i].Store(digital)
	}
}

// TriggerDigital reports whether a trigger is in digital mode.
func (b *Bank) TriggerDigital(sig pad.Signal) bool {
	i := triggerIndex(sig)
	return i >= 0 && b.triggerDigital[i].Load()
}

// SetEnabled turns filtering on or off. When off, Apply only performs the
// trigger thresholding.
func (b *Bank) SetEnabled(on bool) { b.enabled.Store(on) }

// Enabled reports whether filtering is on.
func (b *Bank) Enabled() bool { return b.enabled.Load() }

// Apply filters s sampled at t seconds.
//
// Digital triggers are thresholded at 0.5 first so the step is not mistaken
// for a spike, then gated like buttons instead of clamped.
func (b *Bank) Apply(t float64, s pad.State) pad.State {
	ltDig := b.TriggerDigital(pad.LeftTrigger)
	rtDig := b.TriggerDigital(pad.RightTrigger)
	if ltDig {
		s.LT = threshold(s.LT)
	}
	if rtDig {
		s.RT = threshold(s.RT)
	}
	if !b.Enabled() {
		return s
	}

	p := b.Params()
	out := s

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sig := range pad.All() {
		m := b.Mode(sig)
		shape := Shape{Bipolar: sig.Bipolar()}
		if (sig == pad.LeftTrigger && ltDig) || (sig == pad.RightTrigger && rtDig) {
			if m.Kind != KindNone {
				m = Mode{Kind: KindDigital, MaxPulse: m.MaxPulse}
			}
		}
		out.Set(sig, b.chans[sig].Apply(m, p, shape, t, s.Value(sig)))
	}
	return out
}

// GateState returns the debounce state of one signal.
func (b *Bank) GateState(sig pad.Signal) GateState {
	if !sig.Valid() {
		return GateIdle
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chans[sig].GateState()
}

// Reset returns every signal's filter state to idle.
func (b *Bank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.chans {
		b.chans[i].Reset()
	}
}

func threshold(v float64) float64 {
	if v >= 0.5 {
		return 1
	}
	return 0
}
