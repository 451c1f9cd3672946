// Package ring implements a fixed-capacity time-series ring buffer with a
// single writer and any number of concurrent snapshot readers.
package ring

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrCapacity is returned when a ring is constructed with a capacity that is
// not a positive power of two.
var ErrCapacity = errors.New("ring capacity must be a positive power of two")

// Sample is one timestamped value. T is in seconds on the producer's clock.
type Sample struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// Ring holds the most recent Cap() samples pushed into it.
//
// Push must only be called from one goroutine. Snapshot and friends may run
// concurrently with Push; a reader racing the newest write may observe a slot
// whose T and V come from different pushes. That is fine for display and must
// not be relied on for control decisions.
//
// Slots are stored as float bits in atomics so concurrent readers stay within
// the memory model.
type Ring struct {
	mask   uint64
	ts     []atomic.Uint64
	vs     []atomic.Uint64
	cursor atomic.Uint64
}

// New returns a ring with the given capacity.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrCapacity
	}
	return &Ring{
		mask: uint64(capacity - 1),
		ts:   make([]atomic.Uint64, capacity),
		vs:   make([]atomic.Uint64, capacity),
	}, nil
}

// MustNew is New for capacities known at compile time.
func MustNew(capacity int) *Ring {
	r, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return r
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return int(r.mask + 1) }

// Len returns how many samples are currently retrievable.
func (r *Ring) Len() int {
	w := r.cursor.Load()
	if w > r.mask+1 {
		return r.Cap()
	}
	return int(w)
}

// Push appends a sample, overwriting the oldest one once the ring is full.
// A Clear landing between the slot write and the cursor update makes the
// cursor swap fail; the sample is then rewritten at the cleared position.
func (r *Ring) Push(t, v float64) {
	tb, vb := math.Float64bits(t), math.Float64bits(v)
	for {
		i := r.cursor.Load()
		slot := i & r.mask
		r.ts[slot].Store(tb)
		r.vs[slot].Store(vb)
		if r.cursor.CompareAndSwap(i, i+1) {
			return
		}
	}
}

// Clear logically empties the ring. It is safe to call from any goroutine.
// Storage is left as is and is never read again before being overwritten.
func (r *Ring) Clear() {
	r.cursor.Store(0)
}

// Latest returns the newest sample, if any.
func (r *Ring) Latest() (Sample, bool) {
	w := r.cursor.Load()
	if w == 0 {
		return Sample{}, false
	}
	return r.at(w - 1), true
}

func (r *Ring) at(i uint64) Sample {
	slot := i & r.mask
	return Sample{
		T: math.Float64frombits(r.ts[slot].Load()),
		V: math.Float64frombits(r.vs[slot].Load()),
	}
}

// bounds returns the logical index range [start, end) of retained samples.
func (r *Ring) bounds() (uint64, uint64) {
	end := r.cursor.Load()
	n := end
	if n > r.mask+1 {
		n = r.mask + 1
	}
	return end - n, end
}

// Snapshot copies every retained sample with latest-window <= T <= latest,
// oldest first. Timestamps are expected to be non-decreasing in push order;
// the scan walks back from the newest sample and stops at the cutoff.
func (r *Ring) Snapshot(latest, window float64) []Sample {
	out, _, _ := r.scanBack(latest, latest-window)
	if out == nil {
		return []Sample{}
	}
	reverse(out)
	return out
}

// SnapshotWithBaseline is Snapshot with the newest sample older than the
// cutoff prepended, so the level just before the window is known even when
// nothing changed inside it. With no samples at all it returns nil; when only
// stale samples exist it returns the baseline alone.
func (r *Ring) SnapshotWithBaseline(latest, window float64) []Sample {
	in, baseline, ok := r.scanBack(latest, latest-window)
	if ok {
		in = append(in, baseline)
	}
	if len(in) == 0 {
		return nil
	}
	reverse(in)
	return in
}

// scanBack collects samples in [cutoff, latest], newest first. The first
// sample found below cutoff is returned as the baseline.
func (r *Ring) scanBack(latest, cutoff float64) (in []Sample, baseline Sample, ok bool) {
	start, end := r.bounds()
	for i := end; i > start; i-- {
		s := r.at(i - 1)
		if s.T > latest {
			continue
		}
		if s.T < cutoff {
			return in, s, true
		}
		in = append(in, s)
	}
	return in, Sample{}, false
}

func reverse(s []Sample) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
