package filter

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Keyed filters samples of named signals, such as those decoded from a HID
// report, before they reach the mapping resolver. Signals without a
// configured mode pass through unchanged.
type Keyed struct {
	params atomic.Pointer[Params]

	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mode  Mode
	shape Shape
	ch    Channel
}

// NewKeyed returns an empty keyed filter set.
func NewKeyed(p Params) *Keyed {
	k := &Keyed{entries: make(map[string]*keyedEntry)}
	k.SetParams(p)
	return k
}

// SetParams replaces the global parameters, clamped to valid ranges.
func (k *Keyed) SetParams(p Params) {
	p = p.Clamped()
	k.params.Store(&p)
}

// Params returns the global parameters.
func (k *Keyed) Params() Params { return *k.params.Load() }

// SetMode configures one signal. Changing the shape or kind resets its state.
func (k *Keyed) SetMode(id string, m Mode, shape Shape) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[id]
	if !ok {
		k.entries[id] = &keyedEntry{mode: m, shape: shape}
		return
	}
	if e.mode.Kind != m.Kind || e.shape != shape {
		e.ch.Reset()
	}
	e.mode, e.shape = m, shape
}

// Mode returns the configured mode of id, or None.
func (k *Keyed) Mode(id string) Mode {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.entries[id]; ok {
		return e.mode
	}
	return None()
}

// Modes returns a copy of every configured mode.
func (k *Keyed) Modes() map[string]Mode {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[string]Mode, len(k.entries))
	for id, e := range k.entries {
		out[id] = e.mode
	}
	return out
}

// IDs returns the configured ids in sorted order.
func (k *Keyed) IDs() []string {
	k.mu.Lock()
	ids := make([]string, 0, len(k.entries))
	for id := range k.entries {
		ids = append(ids, id)
	}
	k.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Apply filters one sample.
func (k *Keyed) Apply(id string, t, v float64) float64 {
	p := k.Params()
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[id]
	if !ok {
		return v
	}
	return e.ch.Apply(e.mode, p, e.shape, t, v)
}

// Reset clears the filter state of every signal, keeping their modes.
func (k *Keyed) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, e := range k.entries {
		e.ch.Reset()
	}
}
