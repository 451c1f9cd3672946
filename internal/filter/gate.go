package filter

import "time"

// GateState is the debounce state of one digital signal.
type GateState int

const (
	GateIdle GateState = iota
	GatePending
	GateActive
)

func (s GateState) String() string {
	switch s {
	case GatePending:
		return "pending"
	case GateActive:
		return "active"
	}
	return "idle"
}

// Gate hides presses until they have been held for maxPulse. Releases pass
// through immediately, and a press released before promotion is dropped
// entirely. The zero value is idle with the previous raw level low, so a
// signal already held at startup is treated as a fresh press.
type Gate struct {
	state    GateState
	riseTime float64
	prev     bool
}

// State returns the current debounce state.
func (g *Gate) State() GateState { return g.state }

// Step feeds one raw level sampled at t (seconds) and returns the gated
// output. A maxPulse of zero or less promotes on the rising edge.
func (g *Gate) Step(t float64, raw bool, maxPulse time.Duration) bool {
	switch {
	case raw && !g.prev:
		g.riseTime = t
		g.state = GatePending
		if maxPulse <= 0 {
			g.state = GateActive
		}
	case raw && g.prev:
		if g.state == GatePending && t-g.riseTime >= maxPulse.Seconds() {
			g.state = GateActive
		}
	default:
		g.state = GateIdle
	}
	g.prev = raw
	return g.state == GateActive
}

// Reset returns the gate to idle.
func (g *Gate) Reset() { *g = Gate{} }

// HatGate debounces a multi-valued switch such as a 4-bit hat. A new raw
// value is promoted only after it has been stable for maxPulse; meanwhile
// the previous filtered value keeps being reported. The first value seen is
// taken as the baseline without delay.
type HatGate struct {
	primed    bool
	out       float64
	pending   bool
	candidate float64
	since     float64
}

// Step feeds one raw value at t and returns the filtered value.
func (h *HatGate) Step(t, raw float64, maxPulse time.Duration) float64 {
	if !h.primed {
		h.primed = true
		h.out = raw
		return raw
	}
	if raw == h.out {
		h.pending = false
		return h.out
	}
	if !h.pending || raw != h.candidate {
		h.pending = true
		h.candidate = raw
		h.since = t
	}
	if t-h.since >= maxPulse.Seconds() {
		h.out = raw
		h.pending = false
	}
	return h.out
}

// Reset forgets the baseline.
func (h *HatGate) Reset() { *h = HatGate{} }
