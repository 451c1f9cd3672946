//go:build !linux

package hotas

import (
	"errors"
	"io"
)

// DeviceInfo identifies a hidraw node.
type DeviceInfo struct {
	Path      string
	Name      string
	VendorID  uint16
	ProductID uint16
}

var errUnsupported = errors.New("hidraw is only supported on linux")

// ListHidraw is unsupported on this platform.
func ListHidraw() ([]DeviceInfo, error) { return nil, errUnsupported }

// OpenHidraw returns an OpenFunc that always fails on this platform.
func OpenHidraw(Layout, string) OpenFunc {
	return func() (io.ReadCloser, error) { return nil, errUnsupported }
}
