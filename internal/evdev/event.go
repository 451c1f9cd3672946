// Package evdev reads a Linux gamepad through the input event interface and
// exposes its latest state as a poller.Source.
package evdev

import (
	"bytes"
	"encoding/binary"
	"sync"

	"padbridge/internal/pad"
)

// InputEvent mirrors struct input_event on 64-bit Linux:
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type InputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// EventSize is the encoded size of an InputEvent.
var EventSize = binary.Size(InputEvent{})

// ParseEvent decodes one little-endian input_event.
func ParseEvent(b []byte) (InputEvent, error) {
	var ev InputEvent
	err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &ev)
	return ev, err
}

// Event types and codes from linux/input-event-codes.h.
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvAbs = 0x03

	SynReport  = 0
	SynDropped = 3

	AbsX     = 0x00
	AbsY     = 0x01
	AbsZ     = 0x02
	AbsRX    = 0x03
	AbsRY    = 0x04
	AbsRZ    = 0x05
	AbsHat0X = 0x10
	AbsHat0Y = 0x11

	BtnSouth     = 0x130
	BtnEast      = 0x131
	BtnNorth     = 0x133
	BtnWest      = 0x134
	BtnTL        = 0x136
	BtnTR        = 0x137
	BtnSelect    = 0x13a
	BtnStart     = 0x13b
	BtnThumbL    = 0x13d
	BtnThumbR    = 0x13e
	BtnDPadUp    = 0x220
	BtnDPadDown  = 0x221
	BtnDPadLeft  = 0x222
	BtnDPadRight = 0x223
)

// AbsInfo mirrors struct input_absinfo.
type AbsInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// Ranges assumed when the device does not report them.
var (
	defaultStick   = AbsInfo{Minimum: -32768, Maximum: 32767}
	defaultTrigger = AbsInfo{Minimum: 0, Maximum: 255}
	defaultHat     = AbsInfo{Minimum: -1, Maximum: 1}
)

// AbsCodes lists the absolute axes the decoder understands.
var AbsCodes = []uint16{AbsX, AbsY, AbsZ, AbsRX, AbsRY, AbsRZ, AbsHat0X, AbsHat0Y}

var keyBits = map[uint16]uint16{
	BtnSouth:     pad.BitA,
	BtnEast:      pad.BitB,
	BtnNorth:     pad.BitX,
	BtnWest:      pad.BitY,
	BtnTL:        pad.BitLeftShoulder,
	BtnTR:        pad.BitRightShoulder,
	BtnSelect:    pad.BitBack,
	BtnStart:     pad.BitStart,
	BtnThumbL:    pad.BitLeftThumb,
	BtnThumbR:    pad.BitRightThumb,
	BtnDPadUp:    pad.BitDPadUp,
	BtnDPadDown:  pad.BitDPadDown,
	BtnDPadLeft:  pad.BitDPadLeft,
	BtnDPadRight: pad.BitDPadRight,
}

// Decoder folds input events into a pad.State. Changes become visible on
// SYN_REPORT so readers never see half a frame. Safe for concurrent use.
type Decoder struct {
	mu       sync.Mutex
	abs      map[uint16]AbsInfo
	pending  pad.State
	hatX     int32
	hatY     int32
	hatBits  uint16
	keys     uint16
	current  pad.State
	dropping bool
	frames   uint64
}

// NewDecoder builds a decoder using the given axis ranges; missing axes use
// common gamepad defaults.
func NewDecoder(abs map[uint16]AbsInfo) *Decoder {
	d := &Decoder{abs: make(map[uint16]AbsInfo, len(abs))}
	for k, v := range abs {
		d.abs[k] = v
	}
	return d
}

func (d *Decoder) info(code uint16) AbsInfo {
	if ai, ok := d.abs[code]; ok && ai.Maximum > ai.Minimum {
		return ai
	}
	switch code {
	case AbsZ, AbsRZ:
		return defaultTrigger
	case AbsHat0X, AbsHat0Y:
		return defaultHat
	}
	return defaultStick
}

// Apply consumes one event.
func (d *Decoder) Apply(ev InputEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Type {
	case EvSyn:
		switch ev.Code {
		case SynDropped:
			d.dropping = true
		case SynReport:
			if d.dropping {
				// Events since the drop are incomplete; the next full
				// frame brings the state back in line.
				d.dropping = false
				return
			}
			d.pending.Buttons = d.keys | d.hatBits
			d.current = d.pending
			d.frames++
		}
	case EvKey:
		bit, ok := keyBits[ev.Code]
		if !ok {
			return
		}
		if ev.Value != 0 {
			d.keys |= bit
		} else {
			d.keys &^= bit
		}
	case EvAbs:
		d.applyAbs(ev.Code, ev.Value)
	}
}

func (d *Decoder) applyAbs(code uint16, raw int32) {
	ai := d.info(code)
	switch code {
	case AbsX:
		d.pending.LX = bipolar(ai, raw)
	case AbsY:
		d.pending.LY = -bipolar(ai, raw)
	case AbsRX:
		d.pending.RX = bipolar(ai, raw)
	case AbsRY:
		d.pending.RY = -bipolar(ai, raw)
	case AbsZ:
		d.pending.LT = unipolar(ai, raw)
	case AbsRZ:
		d.pending.RT = unipolar(ai, raw)
	case AbsHat0X:
		d.hatX = sign(raw)
		d.hatBits = hatToBits(d.hatX, d.hatY)
	case AbsHat0Y:
		d.hatY = sign(raw)
		d.hatBits = hatToBits(d.hatX, d.hatY)
	}
}

// State returns the last complete frame and how many frames have been seen.
func (d *Decoder) State() (pad.State, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.frames
}

// Reset forgets every input.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending, d.current = pad.State{}, pad.State{}
	d.hatX, d.hatY, d.hatBits, d.keys = 0, 0, 0, 0
	d.dropping = false
}

func bipolar(ai AbsInfo, raw int32) float64 {
	span := float64(ai.Maximum) - float64(ai.Minimum)
	v := (float64(raw)-float64(ai.Minimum))/span*2 - 1
	return clamp(v, -1, 1)
}

func unipolar(ai AbsInfo, raw int32) float64 {
	span := float64(ai.Maximum) - float64(ai.Minimum)
	return clamp((float64(raw)-float64(ai.Minimum))/span, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v int32) int32 {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

func hatToBits(x, y int32) uint16 {
	var b uint16
	switch x {
	case -1:
		b |= pad.BitDPadLeft
	case 1:
		b |= pad.BitDPadRight
	}
	switch y {
	case -1:
		b |= pad.BitDPadUp
	case 1:
		b |= pad.BitDPadDown
	}
	return b
}
