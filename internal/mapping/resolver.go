package mapping

import (
	"math"
	"sort"

	"padbridge/internal/pad"
)

// Candidate is one entry's bid for an output.
type Candidate struct {
	Priority int
	Deadband float64
	Value    float64
}

// sortByPriority orders candidates by descending priority. Equal priorities
// keep their insertion order.
func sortByPriority(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Priority > cands[j].Priority
	})
}

// ResolveAxis picks the value of the highest-priority candidate whose
// magnitude exceeds its deadband. If none does, the candidate with the
// largest magnitude wins (earliest on ties). ok is false when cands is empty.
// cands is reordered.
func ResolveAxis(cands []Candidate) (v float64, ok bool) {
	if len(cands) == 0 {
		return 0, false
	}
	sortByPriority(cands)
	for _, c := range cands {
		if math.Abs(c.Value) > c.Deadband {
			return c.Value, true
		}
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if math.Abs(c.Value) > math.Abs(best.Value) {
			best = c
		}
	}
	return best.Value, true
}

// ResolveButton reports whether any candidate is above 0.5. Candidates are
// visited in priority order. cands is reordered.
func ResolveButton(cands []Candidate) bool {
	sortByPriority(cands)
	for _, c := range cands {
		if c.Value > 0.5 {
			return true
		}
	}
	return false
}

// Outcome is the arbitrated result of one publish cycle.
type Outcome struct {
	State pad.State
	Keys  map[uint16]bool
	Mouse map[MouseButton]bool
}

// ValueFunc returns the latest value of a signal id.
type ValueFunc func(id string) (float64, bool)

// Resolve arbitrates every action referenced by entries. Signals with no
// value yet read as zero. Actions no entry targets are left at zero.
func Resolve(entries []Entry, values ValueFunc) Outcome {
	var (
		axes    [pad.Count][]Candidate
		buttons [pad.Count][]Candidate
		keys    map[uint16][]Candidate
		mouse   map[MouseButton][]Candidate
	)

	for _, e := range entries {
		v, _ := values(e.SignalID)
		if e.Invert {
			v = -v
		}
		c := Candidate{Priority: e.Priority, Deadband: e.Deadband, Value: v}

		switch a := e.Action.(type) {
		case AxisAction:
			if a.Signal.Valid() {
				axes[a.Signal] = append(axes[a.Signal], c)
			}
		case ButtonAction:
			if a.Signal.Valid() {
				buttons[a.Signal] = append(buttons[a.Signal], c)
			}
		case KeyAction:
			if keys == nil {
				keys = make(map[uint16][]Candidate)
			}
			keys[a.Code] = append(keys[a.Code], c)
		case MouseAction:
			if mouse == nil {
				mouse = make(map[MouseButton][]Candidate)
			}
			mouse[a.Button] = append(mouse[a.Button], c)
		}
	}

	var out Outcome
	for i := range axes {
		if v, ok := ResolveAxis(axes[i]); ok {
			out.State.Set(pad.Signal(i), v)
		}
		if len(buttons[i]) > 0 && ResolveButton(buttons[i]) {
			out.State.Buttons |= pad.Signal(i).Bit()
		}
	}
	if len(keys) > 0 {
		out.Keys = make(map[uint16]bool, len(keys))
		for code, cs := range keys {
			out.Keys[code] = ResolveButton(cs)
		}
	}
	if len(mouse) > 0 {
		out.Mouse = make(map[MouseButton]bool, len(mouse))
		for b, cs := range mouse {
			out.Mouse[b] = ResolveButton(cs)
		}
	}
	return out
}
