// Package uinput creates virtual input devices through /dev/uinput: an
// XInput-style gamepad that accepts composed reports and a keyboard/mouse
// for mapped key and button actions.
package uinput

import (
	"bytes"
	"encoding/binary"

	"padbridge/internal/compose"
	"padbridge/internal/evdev"
	"padbridge/internal/mapping"
	"padbridge/internal/pad"
)

// Mouse button codes from linux/input-event-codes.h.
const (
	BtnLeft   = 0x110
	BtnRight  = 0x111
	BtnMiddle = 0x112
)

// gamepadKeys maps report button bits to key codes. D-pad bits are sent as
// hat axes instead.
var gamepadKeys = []struct {
	bit  uint16
	code uint16
}{
	{pad.BitA, evdev.BtnSouth},
	{pad.BitB, evdev.BtnEast},
	{pad.BitX, evdev.BtnNorth},
	{pad.BitY, evdev.BtnWest},
	{pad.BitLeftShoulder, evdev.BtnTL},
	{pad.BitRightShoulder, evdev.BtnTR},
	{pad.BitBack, evdev.BtnSelect},
	{pad.BitStart, evdev.BtnStart},
	{pad.BitLeftThumb, evdev.BtnThumbL},
	{pad.BitRightThumb, evdev.BtnThumbR},
}

// MouseCode returns the key code of a mouse button.
func MouseCode(b mapping.MouseButton) uint16 {
	switch b {
	case mapping.MouseRight:
		return BtnRight
	case mapping.MouseMiddle:
		return BtnMiddle
	}
	return BtnLeft
}

func hatAxes(buttons uint16) (x, y int32) {
	switch {
	case buttons&pad.BitDPadLeft != 0 && buttons&pad.BitDPadRight == 0:
		x = -1
	case buttons&pad.BitDPadRight != 0 && buttons&pad.BitDPadLeft == 0:
		x = 1
	}
	switch {
	case buttons&pad.BitDPadUp != 0 && buttons&pad.BitDPadDown == 0:
		y = -1
	case buttons&pad.BitDPadDown != 0 && buttons&pad.BitDPadUp == 0:
		y = 1
	}
	return x, y
}

// EncodeReport returns the events that move the device from prev to next,
// ending in SYN_REPORT. With full set every field is sent. Y axes are
// flipped back to the kernel's down-positive convention.
func EncodeReport(prev, next compose.Report, full bool) []evdev.InputEvent {
	var evs []evdev.InputEvent
	abs := func(code uint16, p, n int32) {
		if full || p != n {
			evs = append(evs, evdev.InputEvent{Type: evdev.EvAbs, Code: code, Value: n})
		}
	}
	abs(evdev.AbsX, int32(prev.LX), int32(next.LX))
	abs(evdev.AbsY, flipY(prev.LY), flipY(next.LY))
	abs(evdev.AbsRX, int32(prev.RX), int32(next.RX))
	abs(evdev.AbsRY, flipY(prev.RY), flipY(next.RY))
	abs(evdev.AbsZ, int32(prev.LT), int32(next.LT))
	abs(evdev.AbsRZ, int32(prev.RT), int32(next.RT))

	px, py := hatAxes(prev.Buttons)
	nx, ny := hatAxes(next.Buttons)
	abs(evdev.AbsHat0X, px, nx)
	abs(evdev.AbsHat0Y, py, ny)

	for _, k := range gamepadKeys {
		was := prev.Buttons&k.bit != 0
		is := next.Buttons&k.bit != 0
		if full || was != is {
			evs = append(evs, keyEvent(k.code, is))
		}
	}
	return append(evs, synEvent())
}

// flipY negates an int16 axis, clamping so -32768 maps to 32767.
func flipY(v int16) int32 {
	n := -int32(v)
	if n > 32767 {
		n = 32767
	}
	return n
}

func keyEvent(code uint16, down bool) evdev.InputEvent {
	ev := evdev.InputEvent{Type: evdev.EvKey, Code: code}
	if down {
		ev.Value = 1
	}
	return ev
}

func synEvent() evdev.InputEvent {
	return evdev.InputEvent{Type: evdev.EvSyn, Code: evdev.SynReport}
}

// marshal encodes events as consecutive input_event structs.
func marshal(evs []evdev.InputEvent) []byte {
	var buf bytes.Buffer
	buf.Grow(len(evs) * evdev.EventSize)
	for _, ev := range evs {
		_ = binary.Write(&buf, binary.LittleEndian, ev)
	}
	return buf.Bytes()
}
