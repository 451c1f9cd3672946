// Package sched provides the deadline-based fixed-rate loop shared by the
// input poller and the output publisher, split so the timing rules can be
// driven by a fake clock in tests.
package sched

import (
	"runtime"
	"sync"
	"time"
)

// Clock is the time source a Loop runs against.
type Clock interface {
	Now() time.Time
	// Sleep blocks for roughly d. It may return early or late.
	Sleep(d time.Duration)
	// Yield gives up the processor briefly while spinning toward a deadline.
	Yield()
}

// RealClock is the wall clock. time.Now carries a monotonic reading, so
// differences are immune to wall clock steps.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }
func (RealClock) Yield()                { runtime.Gosched() }

// FakeClock is a manually driven Clock. Sleep advances time by exactly the
// requested duration and Yield by YieldStep, so a loop run against it
// consumes no wall time.
type FakeClock struct {
	mu        sync.Mutex
	now       time.Time
	yieldStep time.Duration

	// OnSleep, if set, may return extra time to add to a sleep to simulate
	// the OS waking late.
	OnSleep func(d time.Duration) time.Duration
}

// NewFakeClock returns a fake clock starting at start with a 10µs yield step.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start, yieldStep: 10 * time.Microsecond}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if c.OnSleep != nil {
		d += c.OnSleep(d)
	}
	c.Advance(d)
}

func (c *FakeClock) Yield() {
	c.mu.Lock()
	step := c.yieldStep
	c.mu.Unlock()
	c.Advance(step)
}

// SetYieldStep changes how far each Yield moves time.
func (c *FakeClock) SetYieldStep(d time.Duration) {
	c.mu.Lock()
	c.yieldStep = d
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
