package filter

import "math"

// Spike holds the previous filtered value of one analog channel. The first
// sample after construction or Reset passes through and becomes the baseline.
type Spike struct {
	primed bool
	prev   float64
}

// Clamp discards v and repeats the previous output when it jumped by at
// least delta. A delta of zero or less disables the clamp.
func (s *Spike) Clamp(v, delta float64) float64 {
	if !s.primed {
		s.primed, s.prev = true, v
		return v
	}
	if delta > 0 && math.Abs(v-s.prev) >= delta {
		v = s.prev
	}
	s.prev = v
	return v
}

// RateLimit moves toward v by at most percent% of span per call. A percent
// of zero or less disables the limit.
func (s *Spike) RateLimit(v, span, percent float64) float64 {
	if !s.primed {
		s.primed, s.prev = true, v
		return v
	}
	if percent > 0 {
		step := span * percent / 100
		switch d := v - s.prev; {
		case d > step:
			v = s.prev + step
		case d < -step:
			v = s.prev - step
		}
	}
	s.prev = v
	return v
}

// Reset forgets the baseline.
func (s *Spike) Reset() { *s = Spike{} }
