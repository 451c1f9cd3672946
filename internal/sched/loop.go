package sched

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

const (
	// DefaultGuard is how early the coarse sleep ends before a deadline.
	DefaultGuard = 800 * time.Microsecond
	// DefaultBackoff is the pause after a failed cycle.
	DefaultBackoff = 200 * time.Millisecond
)

// StepFunc runs one cycle at now. Returning false means the cycle had no
// data (device absent); the loop then backs off and resynchronizes.
type StepFunc func(now time.Time) bool

// Loop runs a StepFunc at a target rate that may be changed while running.
type Loop struct {
	clock   Clock
	guard   time.Duration
	backoff time.Duration

	targetHz atomic.Uint64 // float64 bits
	stats    atomic.Pointer[PollStats]
	cycles   atomic.Uint64
}

// LoopConfig configures a Loop. Zero values pick the defaults.
type LoopConfig struct {
	Clock    Clock
	TargetHz float64
	Guard    time.Duration
	Backoff  time.Duration
}

// NewLoop constructs a loop. It does not start running until Run.
func NewLoop(cfg LoopConfig) *Loop {
	l := &Loop{
		clock:   cfg.Clock,
		guard:   cfg.Guard,
		backoff: cfg.Backoff,
	}
	if l.clock == nil {
		l.clock = RealClock{}
	}
	if l.guard <= 0 {
		l.guard = DefaultGuard
	}
	if l.backoff <= 0 {
		l.backoff = DefaultBackoff
	}
	l.SetTargetHz(cfg.TargetHz)
	l.stats.Store(&PollStats{})
	return l
}

// SetTargetHz changes the rate, clamped to [MinHz, MaxHz]. It takes effect
// on the next cycle.
func (l *Loop) SetTargetHz(hz float64) {
	l.targetHz.Store(math.Float64bits(ClampHz(hz)))
}

// TargetHz returns the clamped target rate.
func (l *Loop) TargetHz() float64 {
	return math.Float64frombits(l.targetHz.Load())
}

// Stats returns the most recently published PollStats.
func (l *Loop) Stats() PollStats { return *l.stats.Load() }

// Cycles counts successful cycles since construction.
func (l *Loop) Cycles() uint64 { return l.cycles.Load() }

// Clock returns the loop's clock.
func (l *Loop) Clock() Clock { return l.clock }

// Run executes step until ctx is canceled. The context is checked once per
// cycle; a step in progress always completes.
func (l *Loop) Run(ctx context.Context, step StepFunc) {
	c := l.clock
	p := NewPacer(l.TargetHz(), c.Now())
	acc := newStatsAccum(c.Now())

	for ctx.Err() == nil {
		p.SetRate(l.TargetHz())

		start := c.Now()
		if !step(start) {
			c.Sleep(l.backoff)
			now := c.Now()
			p.Resync(now)
			if ps, ok := acc.tick(now); ok {
				l.stats.Store(&ps)
			}
			continue
		}
		acc.observe(c.Now().Sub(start))
		l.cycles.Add(1)

		p.Wait(c, l.guard)
		now := c.Now()
		p.Advance(now)

		if ps, ok := acc.tick(now); ok {
			l.stats.Store(&ps)
		}
	}
}
