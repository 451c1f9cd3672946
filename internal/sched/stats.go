package sched

import "time"

// PollStats summarizes recent loop behaviour for diagnostics.
type PollStats struct {
	EffectiveHz float64 `json:"effective_hz"`
	AvgLoopUS   float64 `json:"avg_loop_us"`
}

const (
	statsWindow   = 100 * time.Millisecond
	loopCostAlpha = 0.05
)

// statsAccum accumulates cycles and publishes PollStats roughly every
// 100ms so the per-cycle cost is one add and one EMA step.
type statsAccum struct {
	windowStart time.Time
	polls       uint64
	emaUS       float64
}

func newStatsAccum(start time.Time) *statsAccum {
	return &statsAccum{windowStart: start}
}

// observe records one completed cycle that took cost.
func (s *statsAccum) observe(cost time.Duration) {
	s.polls++
	us := float64(cost) / float64(time.Microsecond)
	if s.emaUS == 0 {
		s.emaUS = us
		return
	}
	s.emaUS = (1-loopCostAlpha)*s.emaUS + loopCostAlpha*us
}

// tick returns fresh stats once a window has elapsed.
func (s *statsAccum) tick(now time.Time) (PollStats, bool) {
	elapsed := now.Sub(s.windowStart)
	if elapsed < statsWindow {
		return PollStats{}, false
	}
	ps := PollStats{
		EffectiveHz: float64(s.polls) / elapsed.Seconds(),
		AvgLoopUS:   s.emaUS,
	}
	s.windowStart = now
	s.polls = 0
	return ps, true
}
