package evdev

import (
	"log/slog"
	"sync/atomic"
	"time"

	"padbridge/internal/pad"
)

// DefaultReconnect is the delay between attempts to reopen a lost device.
const DefaultReconnect = time.Second

// Device tracks one gamepad. Run feeds it in the background; Poll returns
// the newest complete frame and is cheap enough to call every cycle.
type Device struct {
	path      string
	reconnect time.Duration
	logger    *slog.Logger

	dec       atomic.Pointer[Decoder]
	connected atomic.Bool
	name      atomic.Pointer[string]
}

// NewDevice prepares a device reader. An empty path selects the first
// joystick under /dev/input/by-id.
func NewDevice(path string, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Device{path: path, reconnect: DefaultReconnect, logger: logger}
	d.dec.Store(NewDecoder(nil))
	return d
}

// Poll implements poller.Source. ok is false while the device is closed or
// before its first full frame.
func (d *Device) Poll() (pad.State, bool) {
	if !d.connected.Load() {
		return pad.State{}, false
	}
	s, frames := d.dec.Load().State()
	return s, frames > 0
}

// Connected reports whether the device is open.
func (d *Device) Connected() bool { return d.connected.Load() }

// Name is the kernel's name for the open device, if known.
func (d *Device) Name() string {
	if n := d.name.Load(); n != nil {
		return *n
	}
	return ""
}
