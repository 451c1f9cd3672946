// Package compose turns controller state into output reports: the direct
// passthrough Forwarder for the polled pad, and the Publisher loop that
// resolves mapped samples from any source.
package compose

import (
	"fmt"
	"math"

	"padbridge/internal/mapping"
	"padbridge/internal/pad"
)

// Report is a controller state in the virtual device's native ranges.
type Report struct {
	LX      int16  `json:"lx"`
	LY      int16  `json:"ly"`
	RX      int16  `json:"rx"`
	RY      int16  `json:"ry"`
	LT      uint8  `json:"lt"`
	RT      uint8  `json:"rt"`
	Buttons uint16 `json:"buttons"`
}

func (r Report) String() string {
	return fmt.Sprintf("LX=%d LY=%d RX=%d RY=%d LT=%d RT=%d buttons=%#04x",
		r.LX, r.LY, r.RX, r.RY, r.LT, r.RT, r.Buttons)
}

// AxisToInt16 maps -1..1 onto the int16 range, scaling positive values by
// 32767 and negative values by 32768. Out of range input is clamped and NaN
// maps to zero.
func AxisToInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	if v >= 0 {
		return int16(v * 32767)
	}
	return int16(v * 32768)
}

// TriggerToUint8 maps 0..1 onto 0..255 with rounding.
func TriggerToUint8(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	return uint8(v*255 + 0.5)
}

// Int16ToAxis is the inverse of AxisToInt16.
func Int16ToAxis(v int16) float64 {
	if v >= 0 {
		return float64(v) / 32767
	}
	return float64(v) / 32768
}

// FromState converts a normalized state.
func FromState(s pad.State) Report {
	return Report{
		LX:      AxisToInt16(s.LX),
		LY:      AxisToInt16(s.LY),
		RX:      AxisToInt16(s.RX),
		RY:      AxisToInt16(s.RY),
		LT:      TriggerToUint8(s.LT),
		RT:      TriggerToUint8(s.RT),
		Buttons: s.Buttons,
	}
}

// State converts back to normalized values.
func (r Report) State() pad.State {
	return pad.State{
		LX:      Int16ToAxis(r.LX),
		LY:      Int16ToAxis(r.LY),
		RX:      Int16ToAxis(r.RX),
		RY:      Int16ToAxis(r.RY),
		LT:      float64(r.LT) / 255,
		RT:      float64(r.RT) / 255,
		Buttons: r.Buttons,
	}
}

// ReportSink is the virtual pad. Errors are transient; the caller records
// them and retries on the next cycle.
type ReportSink interface {
	SendReport(r Report) error
}

// Emitter injects keyboard and mouse button transitions.
type Emitter interface {
	Key(code uint16, down bool) error
	Mouse(b mapping.MouseButton, down bool) error
}

// Observer is notified of every report send attempt.
type Observer interface {
	ObserveReport(path string, err error)
}

// Path labels passed to Observer.
const (
	PathForward = "forward"
	PathMapped  = "mapped"
)
