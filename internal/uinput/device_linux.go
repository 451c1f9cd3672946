//go:build linux

package uinput

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"padbridge/internal/compose"
	"padbridge/internal/evdev"
	"padbridge/internal/mapping"
)

// Path is the uinput control node.
const Path = "/dev/uinput"

// ioctl request numbers from linux/uinput.h.
const (
	uiDevCreate  = 0x5501     // _IO('U', 1)
	uiDevDestroy = 0x5502     // _IO('U', 2)
	uiSetEvBit   = 0x40045564 // _IOW('U', 100, int)
	uiSetKeyBit  = 0x40045565 // _IOW('U', 101, int)
	uiSetRelBit  = 0x40045566 // _IOW('U', 102, int)
	uiSetAbsBit  = 0x40045567 // _IOW('U', 103, int)

	evRel = 0x02
	relX  = 0x00
	relY  = 0x01

	busUSB = 0x03
)

// userDev mirrors struct uinput_user_dev.
type userDev struct {
	Name         [80]byte
	Bustype      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	FFEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

type absRange struct {
	min, max, flat int32
}

type deviceSpec struct {
	name    string
	vendor  uint16
	product uint16
	keys    []uint16
	rels    []uint16
	abs     map[uint16]absRange
}

type device struct {
	mu sync.Mutex
	f  *os.File
}

func create(spec deviceSpec) (*device, error) {
	f, err := os.OpenFile(Path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Path, err)
	}
	fd := int(f.Fd())
	fail := func(what string, err error) (*device, error) {
		f.Close()
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	if len(spec.keys) > 0 {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, evdev.EvKey); err != nil {
			return fail("UI_SET_EVBIT EV_KEY", err)
		}
		for _, k := range spec.keys {
			if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(k)); err != nil {
				return fail(fmt.Sprintf("UI_SET_KEYBIT %#x", k), err)
			}
		}
	}
	if len(spec.rels) > 0 {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, evRel); err != nil {
			return fail("UI_SET_EVBIT EV_REL", err)
		}
		for _, r := range spec.rels {
			if err := unix.IoctlSetInt(fd, uiSetRelBit, int(r)); err != nil {
				return fail(fmt.Sprintf("UI_SET_RELBIT %#x", r), err)
			}
		}
	}

	ud := userDev{Bustype: busUSB, Vendor: spec.vendor, Product: spec.product, Version: 1}
	copy(ud.Name[:len(ud.Name)-1], spec.name)
	if len(spec.abs) > 0 {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, evdev.EvAbs); err != nil {
			return fail("UI_SET_EVBIT EV_ABS", err)
		}
		for code, r := range spec.abs {
			if err := unix.IoctlSetInt(fd, uiSetAbsBit, int(code)); err != nil {
				return fail(fmt.Sprintf("UI_SET_ABSBIT %#x", code), err)
			}
			ud.Absmin[code], ud.Absmax[code], ud.Absflat[code] = r.min, r.max, r.flat
		}
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, ud); err != nil {
		return fail("encode uinput_user_dev", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fail("write uinput_user_dev", err)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fail("UI_DEV_CREATE", err)
	}
	return &device{f: f}, nil
}

func (d *device) write(evs []evdev.InputEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return errors.New("uinput device closed")
	}
	_, err := d.f.Write(marshal(evs))
	return err
}

func (d *device) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := unix.IoctlSetInt(int(d.f.Fd()), uiDevDestroy, 0)
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	d.f = nil
	return err
}

// Gamepad is a virtual XInput-style controller. It implements
// compose.ReportSink and is safe for concurrent use.
type Gamepad struct {
	dev *device

	mu   sync.Mutex
	last compose.Report
	sent bool
}

// NewGamepad creates the virtual controller. It shows up with the vendor
// and product ids of an Xbox 360 pad so games pick a sensible layout.
func NewGamepad(name string) (*Gamepad, error) {
	keys := make([]uint16, 0, len(gamepadKeys))
	for _, k := range gamepadKeys {
		keys = append(keys, k.code)
	}
	stick := absRange{min: -32768, max: 32767, flat: 128}
	dev, err := create(deviceSpec{
		name:    name,
		vendor:  0x045e,
		product: 0x028e,
		keys:    keys,
		abs: map[uint16]absRange{
			evdev.AbsX:     stick,
			evdev.AbsY:     stick,
			evdev.AbsRX:    stick,
			evdev.AbsRY:    stick,
			evdev.AbsZ:     {min: 0, max: 255},
			evdev.AbsRZ:    {min: 0, max: 255},
			evdev.AbsHat0X: {min: -1, max: 1},
			evdev.AbsHat0Y: {min: -1, max: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	return &Gamepad{dev: dev}, nil
}

// SendReport writes the changes since the previous report.
func (g *Gamepad) SendReport(r compose.Report) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	evs := EncodeReport(g.last, r, !g.sent)
	if len(evs) == 1 && g.sent {
		return nil
	}
	if err := g.dev.write(evs); err != nil {
		// Resend everything once the device accepts writes again.
		g.sent = false
		return fmt.Errorf("uinput write: %w", err)
	}
	g.last, g.sent = r, true
	return nil
}

// Close destroys the virtual device.
func (g *Gamepad) Close() error { return g.dev.close() }

// Keyboard is a virtual keyboard and mouse. It implements compose.Emitter.
type Keyboard struct {
	dev *device
}

// NewKeyboard creates the virtual keyboard with every standard key code and
// the three main mouse buttons.
func NewKeyboard(name string) (*Keyboard, error) {
	keys := make([]uint16, 0, 256)
	for code := uint16(1); code < 256; code++ {
		keys = append(keys, code)
	}
	keys = append(keys, BtnLeft, BtnRight, BtnMiddle)
	dev, err := create(deviceSpec{
		name:    name,
		vendor:  0x1d6b,
		product: 0x0104,
		keys:    keys,
		rels:    []uint16{relX, relY},
	})
	if err != nil {
		return nil, err
	}
	return &Keyboard{dev: dev}, nil
}

// Key presses or releases a key.
func (k *Keyboard) Key(code uint16, down bool) error {
	return k.dev.write([]evdev.InputEvent{keyEvent(code, down), synEvent()})
}

// Mouse presses or releases a mouse button.
func (k *Keyboard) Mouse(b mapping.MouseButton, down bool) error {
	return k.dev.write([]evdev.InputEvent{keyEvent(MouseCode(b), down), synEvent()})
}

// Close destroys the virtual device.
func (k *Keyboard) Close() error { return k.dev.close() }
