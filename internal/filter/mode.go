// Package filter implements the per-signal noise filters: a debounce gate for
// buttons and switches, a hold gate for multi-bit hats, and spike clamp /
// rate limiting for analog channels.
package filter

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects which filter a signal runs through.
type Kind int

const (
	KindNone Kind = iota
	KindDigital
	KindAnalog
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDigital:
		return "digital"
	case KindAnalog:
		return "analog"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses "none", "digital" or "analog".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return KindNone, nil
	case "digital":
		return KindDigital, nil
	case "analog":
		return KindAnalog, nil
	}
	return KindNone, fmt.Errorf("unknown filter kind %q (must be none, digital, or analog)", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Mode is the filter configuration of one signal. A zero MaxPulse or Delta
// means "use the global value from Params".
type Mode struct {
	Kind     Kind          `json:"kind"`
	MaxPulse time.Duration `json:"max_pulse,omitempty"`
	Delta    float64       `json:"delta,omitempty"`
}

// None disables filtering.
func None() Mode { return Mode{Kind: KindNone} }

// Digital gates presses shorter than maxPulse.
func Digital(maxPulse time.Duration) Mode { return Mode{Kind: KindDigital, MaxPulse: maxPulse} }

// Analog rejects jumps of at least delta.
func Analog(delta float64) Mode { return Mode{Kind: KindAnalog, Delta: delta} }

func (m Mode) String() string {
	switch m.Kind {
	case KindDigital:
		return fmt.Sprintf("digital(max_pulse=%s)", m.MaxPulse)
	case KindAnalog:
		return fmt.Sprintf("analog(delta=%.3f)", m.Delta)
	}
	return m.Kind.String()
}

func (m Mode) maxPulse(p Params) time.Duration {
	if m.MaxPulse > 0 {
		return m.MaxPulse
	}
	return p.MaxPulse
}

func (m Mode) delta(p Params) float64 {
	if m.Delta > 0 {
		return m.Delta
	}
	return p.Delta
}

// Strategy picks the analog filter variant.
type Strategy int

const (
	StrategyClamp Strategy = iota
	StrategyRateLimit
)

func (s Strategy) String() string {
	if s == StrategyRateLimit {
		return "rate_limit"
	}
	return "clamp"
}

// ParseStrategy parses "clamp" or "rate_limit".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return StrategyClamp, nil
	case "rate_limit", "ratelimit", "rate":
		return StrategyRateLimit, nil
	}
	return StrategyClamp, fmt.Errorf("unknown analog strategy %q (must be clamp or rate_limit)", s)
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Params are the global filter settings shared by every signal.
type Params struct {
	MaxPulse    time.Duration `json:"max_pulse"`
	Delta       float64       `json:"delta"`
	Strategy    Strategy      `json:"strategy"`
	RatePercent float64       `json:"rate_percent"`
}

// Limits for runtime-adjustable parameters. Out of range values are clamped.
const (
	MaxPulseLimit   = time.Second
	MaxDelta        = 2.0
	MaxRatePercent  = 100.0
	DefaultMaxPulse = 5 * time.Millisecond
	DefaultDelta    = 0.25
	DefaultRate     = 10.0
)

// DefaultParams returns the stock settings.
func DefaultParams() Params {
	return Params{
		MaxPulse:    DefaultMaxPulse,
		Delta:       DefaultDelta,
		Strategy:    StrategyClamp,
		RatePercent: DefaultRate,
	}
}

// Clamped returns p with every field forced into its valid range.
func (p Params) Clamped() Params {
	if p.MaxPulse < 0 {
		p.MaxPulse = 0
	}
	if p.MaxPulse > MaxPulseLimit {
		p.MaxPulse = MaxPulseLimit
	}
	p.Delta = clampFloat(p.Delta, 0, MaxDelta)
	p.RatePercent = clampFloat(p.RatePercent, 0, MaxRatePercent)
	if p.Strategy != StrategyRateLimit {
		p.Strategy = StrategyClamp
	}
	return p
}

func clampFloat(v, lo, hi float64) float64 {
	if !(v >= lo) { // also catches NaN
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
