//go:build !linux

package evdev

import (
	"context"
	"errors"
)

// FindJoystick is unsupported on this platform.
func FindJoystick() (string, error) {
	return "", errors.New("evdev is only supported on linux")
}

// Run logs once and waits for cancellation; the device never connects.
func (d *Device) Run(ctx context.Context) {
	d.logger.Warn("evdev input is only supported on linux")
	<-ctx.Done()
}
