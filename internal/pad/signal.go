// Package pad defines the fixed set of logical controller signals and the
// ControllerState value passed between pipeline stages.
package pad

import (
	"fmt"
	"strings"
)

// Signal identifies one logical controller channel. The set is fixed.
type Signal int

const (
	LeftX Signal = iota
	LeftY
	RightX
	RightY
	LeftTrigger
	RightTrigger
	ButtonA
	ButtonB
	ButtonX
	ButtonY
	LeftShoulder
	RightShoulder
	Back
	Start
	LeftThumb
	RightThumb
	DPadUp
	DPadDown
	DPadLeft
	DPadRight

	// Count is the number of signals.
	Count
)

// XInput button bits.
const (
	BitDPadUp        uint16 = 0x0001
	BitDPadDown      uint16 = 0x0002
	BitDPadLeft      uint16 = 0x0004
	BitDPadRight     uint16 = 0x0008
	BitStart         uint16 = 0x0010
	BitBack          uint16 = 0x0020
	BitLeftThumb     uint16 = 0x0040
	BitRightThumb    uint16 = 0x0080
	BitLeftShoulder  uint16 = 0x0100
	BitRightShoulder uint16 = 0x0200
	BitA             uint16 = 0x1000
	BitB             uint16 = 0x2000
	BitX             uint16 = 0x4000
	BitY             uint16 = 0x8000
)

// Kind classifies a signal's value range.
type Kind int

const (
	KindAxis    Kind = iota // bipolar -1..1
	KindTrigger             // unipolar 0..1
	KindButton              // 0 or 1
)

type signalInfo struct {
	name string
	kind Kind
	bit  uint16
}

var signals = [Count]signalInfo{
	LeftX:         {"left_x", KindAxis, 0},
	LeftY:         {"left_y", KindAxis, 0},
	RightX:        {"right_x", KindAxis, 0},
	RightY:        {"right_y", KindAxis, 0},
	LeftTrigger:   {"left_trigger", KindTrigger, 0},
	RightTrigger:  {"right_trigger", KindTrigger, 0},
	ButtonA:       {"button_a", KindButton, BitA},
	ButtonB:       {"button_b", KindButton, BitB},
	ButtonX:       {"button_x", KindButton, BitX},
	ButtonY:       {"button_y", KindButton, BitY},
	LeftShoulder:  {"left_shoulder", KindButton, BitLeftShoulder},
	RightShoulder: {"right_shoulder", KindButton, BitRightShoulder},
	Back:          {"back", KindButton, BitBack},
	Start:         {"start", KindButton, BitStart},
	LeftThumb:     {"left_thumb", KindButton, BitLeftThumb},
	RightThumb:    {"right_thumb", KindButton, BitRightThumb},
	DPadUp:        {"dpad_up", KindButton, BitDPadUp},
	DPadDown:      {"dpad_down", KindButton, BitDPadDown},
	DPadLeft:      {"dpad_left", KindButton, BitDPadLeft},
	DPadRight:     {"dpad_right", KindButton, BitDPadRight},
}

// All returns every signal in declaration order.
func All() []Signal {
	out := make([]Signal, Count)
	for i := range out {
		out[i] = Signal(i)
	}
	return out
}

// Valid reports whether s names a known signal.
func (s Signal) Valid() bool { return s >= 0 && s < Count }

func (s Signal) String() string {
	if !s.Valid() {
		return fmt.Sprintf("signal(%d)", int(s))
	}
	return signals[s].name
}

// Kind returns the value range class of s.
func (s Signal) Kind() Kind { return signals[s].kind }

// Analog reports whether s carries a continuous value.
func (s Signal) Analog() bool { return s.Valid() && signals[s].kind != KindButton }

// Bipolar reports whether s ranges over -1..1.
func (s Signal) Bipolar() bool { return s.Valid() && signals[s].kind == KindAxis }

// Bit returns the XInput button bit, or 0 for analog signals.
func (s Signal) Bit() uint16 {
	if !s.Valid() {
		return 0
	}
	return signals[s].bit
}

// ParseSignal resolves a signal by name (case-insensitive).
func ParseSignal(name string) (Signal, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, info := range signals {
		if info.name == n {
			return Signal(i), nil
		}
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Signal) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid signal %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signal) UnmarshalText(b []byte) error {
	v, err := ParseSignal(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
