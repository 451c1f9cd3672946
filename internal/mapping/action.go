// Package mapping holds the logical-signal-to-output mapping table and the
// priority/deadband resolver that arbitrates between entries targeting the
// same output.
package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"padbridge/internal/pad"
)

// Action is the output an entry drives. The concrete types are AxisAction,
// ButtonAction, KeyAction and MouseAction.
type Action interface {
	action()
	String() string
}

// AxisAction drives a stick axis or trigger of the virtual pad.
type AxisAction struct{ Signal pad.Signal }

// ButtonAction drives one button of the virtual pad.
type ButtonAction struct{ Signal pad.Signal }

// KeyAction presses a keyboard key, identified by its Linux input key code.
type KeyAction struct{ Code uint16 }

// MouseButton identifies a mouse button.
type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseRight
	MouseMiddle
)

var mouseNames = map[MouseButton]string{
	MouseLeft:   "left_click",
	MouseRight:  "right_click",
	MouseMiddle: "middle_click",
}

func (b MouseButton) String() string {
	if n, ok := mouseNames[b]; ok {
		return n
	}
	return fmt.Sprintf("mouse(%d)", int(b))
}

// MouseAction presses a mouse button.
type MouseAction struct{ Button MouseButton }

func (AxisAction) action()   {}
func (ButtonAction) action() {}
func (KeyAction) action()    {}
func (MouseAction) action()  {}

func (a AxisAction) String() string   { return "x360:" + a.Signal.String() }
func (a ButtonAction) String() string { return "x360:" + a.Signal.String() }
func (a KeyAction) String() string    { return "keyboard:" + strconv.Itoa(int(a.Code)) }
func (a MouseAction) String() string  { return "mouse:" + a.Button.String() }

// ParseAction parses the "<target>:<name>" form used in profiles, e.g.
// "x360:left_x", "x360:button_a", "keyboard:57", "mouse:left_click".
func ParseAction(s string) (Action, error) {
	target, name, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || name == "" {
		return nil, fmt.Errorf("action %q: expected <target>:<name>", s)
	}
	switch strings.ToLower(target) {
	case "x360":
		sig, err := pad.ParseSignal(name)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", s, err)
		}
		if sig.Analog() {
			return AxisAction{Signal: sig}, nil
		}
		return ButtonAction{Signal: sig}, nil

	case "keyboard", "key":
		code, err := strconv.ParseUint(name, 0, 16)
		if err != nil || code == 0 {
			return nil, fmt.Errorf("action %q: key must be a non-zero input key code", s)
		}
		return KeyAction{Code: uint16(code)}, nil

	case "mouse":
		n := strings.ToLower(name)
		for b, bn := range mouseNames {
			if bn == n {
				return MouseAction{Button: b}, nil
			}
		}
		return nil, fmt.Errorf("action %q: unknown mouse action", s)
	}
	return nil, fmt.Errorf("action %q: unknown target %q", s, target)
}
