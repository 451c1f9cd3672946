package pad

import (
	"fmt"

	"padbridge/internal/ring"
)

// Rings is one ring per signal. Only the owning producer pushes.
type Rings struct {
	rings [Count]*ring.Ring
}

// NewRings allocates a ring of the given capacity for every signal.
func NewRings(capacity int) (*Rings, error) {
	rs := &Rings{}
	for i := range rs.rings {
		r, err := ring.New(capacity)
		if err != nil {
			return nil, fmt.Errorf("signal %s: %w", Signal(i), err)
		}
		rs.rings[i] = r
	}
	return rs, nil
}

// Push records every signal of s at time t.
func (rs *Rings) Push(t float64, s State) {
	for i, r := range rs.rings {
		r.Push(t, s.Value(Signal(i)))
	}
}

// Ring returns the ring of one signal, or nil for an unknown signal.
func (rs *Rings) Ring(sig Signal) *ring.Ring {
	if !sig.Valid() {
		return nil
	}
	return rs.rings[sig]
}

// Snapshot copies the window of one signal.
func (rs *Rings) Snapshot(sig Signal, latest, window float64) []ring.Sample {
	r := rs.Ring(sig)
	if r == nil {
		return nil
	}
	return r.Snapshot(latest, window)
}

// SnapshotWithBaseline copies the window of one signal plus the level just
// before it.
func (rs *Rings) SnapshotWithBaseline(sig Signal, latest, window float64) []ring.Sample {
	r := rs.Ring(sig)
	if r == nil {
		return nil
	}
	return r.SnapshotWithBaseline(latest, window)
}

// Clear empties every ring.
func (rs *Rings) Clear() {
	for _, r := range rs.rings {
		r.Clear()
	}
}

// Len returns the retained sample count, identical across signals.
func (rs *Rings) Len() int { return rs.rings[0].Len() }
