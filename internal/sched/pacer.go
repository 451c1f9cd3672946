package sched

import (
	"math"
	"time"
)

// Valid loop rates.
const (
	MinHz = 10.0
	MaxHz = 8000.0
)

// ClampHz forces hz into [MinHz, MaxHz]. NaN maps to MinHz.
func ClampHz(hz float64) float64 {
	switch {
	case math.IsNaN(hz) || hz < MinHz:
		return MinHz
	case hz > MaxHz:
		return MaxHz
	}
	return hz
}

// Pacer tracks the next wake deadline of a fixed-rate loop.
//
// The deadline advances by whole intervals rather than from "now" so that
// wake-up lateness does not accumulate. After a stall of more than one
// interval it jumps forward instead of bursting to catch up.
type Pacer struct {
	hz       float64
	interval time.Duration
	deadline time.Time
}

// NewPacer returns a pacer whose first deadline is one interval after start.
func NewPacer(hz float64, start time.Time) *Pacer {
	p := &Pacer{}
	p.setRate(hz)
	p.deadline = start.Add(p.interval)
	return p
}

// SetRate changes the rate. The interval is recomputed only when the clamped
// rate differs from the current one; it reports whether it did.
func (p *Pacer) SetRate(hz float64) bool {
	hz = ClampHz(hz)
	if hz == p.hz {
		return false
	}
	p.setRate(hz)
	return true
}

func (p *Pacer) setRate(hz float64) {
	p.hz = ClampHz(hz)
	p.interval = time.Duration(float64(time.Second) / p.hz)
}

func (p *Pacer) Hz() float64             { return p.hz }
func (p *Pacer) Interval() time.Duration { return p.interval }
func (p *Pacer) Deadline() time.Time     { return p.deadline }

// Advance moves to the next deadline. If now has already overshot that
// deadline by more than one interval, the deadline is resynchronized to
// now+interval and Advance reports true.
func (p *Pacer) Advance(now time.Time) bool {
	p.deadline = p.deadline.Add(p.interval)
	if now.After(p.deadline.Add(p.interval)) {
		p.deadline = now.Add(p.interval)
		return true
	}
	return false
}

// Resync restarts the schedule one interval after now.
func (p *Pacer) Resync(now time.Time) {
	p.deadline = now.Add(p.interval)
}

// Wait blocks until the current deadline: a coarse Sleep to deadline-guard,
// then Yield in a loop for the remainder.
func (p *Pacer) Wait(c Clock, guard time.Duration) {
	if now := c.Now(); now.Before(p.deadline.Add(-guard)) {
		c.Sleep(p.deadline.Add(-guard).Sub(now))
	}
	for c.Now().Before(p.deadline) {
		c.Yield()
	}
}
