package filter

// Shape describes the value range of a filtered signal.
type Shape struct {
	Bipolar bool // -1..1 rather than 0..1
	Hat     bool // multi-valued switch; digital mode uses the hold gate
}

// Span is the nominal range used by the rate limiter.
func (s Shape) Span() float64 {
	if s.Bipolar {
		return 2
	}
	return 1
}

// Channel is the filter state of one signal. It is not safe for concurrent
// use; owners guard it.
type Channel struct {
	gate  Gate
	hat   HatGate
	spike Spike
}

// Apply runs v (sampled at t seconds) through the filter selected by mode.
// Digital mode returns 0 or 1 for plain switches and the held value for hats.
func (c *Channel) Apply(mode Mode, p Params, shape Shape, t, v float64) float64 {
	switch mode.Kind {
	case KindDigital:
		if shape.Hat {
			return c.hat.Step(t, v, mode.maxPulse(p))
		}
		if c.gate.Step(t, v > 0.5, mode.maxPulse(p)) {
			return 1
		}
		return 0
	case KindAnalog:
		if p.Strategy == StrategyRateLimit {
			return c.spike.RateLimit(v, shape.Span(), p.RatePercent)
		}
		return c.spike.Clamp(v, mode.delta(p))
	}
	return v
}

// GateState exposes the debounce state for diagnostics.
func (c *Channel) GateState() GateState { return c.gate.State() }

// Reset clears all filter state.
func (c *Channel) Reset() {
	c.gate.Reset()
	c.hat.Reset()
	c.spike.Reset()
}
