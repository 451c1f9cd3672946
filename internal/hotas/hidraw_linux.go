//go:build linux

package hotas

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DeviceInfo identifies a hidraw node.
type DeviceInfo struct {
	Path      string
	Name      string
	VendorID  uint16
	ProductID uint16
}

// ListHidraw describes every readable /dev/hidraw* node.
func ListHidraw() ([]DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/hidraw*")
	if err != nil {
		return nil, err
	}
	var out []DeviceInfo
	for _, path := range paths {
		info, err := probe(path)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func probe(path string) (DeviceInfo, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return DeviceInfo{}, err
	}
	defer f.Close()

	fd := int(f.Fd())
	raw, err := unix.IoctlHIDGetRawInfo(fd)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("HIDIOCGRAWINFO %s: %w", path, err)
	}
	name, _ := unix.IoctlHIDGetRawName(fd)
	return DeviceInfo{
		Path:      path,
		Name:      name,
		VendorID:  uint16(raw.Vendor),
		ProductID: uint16(raw.Product),
	}, nil
}

// OpenHidraw returns an OpenFunc for the first hidraw node matching the
// layout's vendor and product. An explicit path bypasses the search.
func OpenHidraw(l Layout, path string) OpenFunc {
	return func() (io.ReadCloser, error) {
		if path != "" {
			return os.OpenFile(path, os.O_RDONLY, 0)
		}
		devs, err := ListHidraw()
		if err != nil {
			return nil, err
		}
		for _, d := range devs {
			if d.VendorID == l.VendorID && d.ProductID == l.ProductID {
				return os.OpenFile(d.Path, os.O_RDONLY, 0)
			}
		}
		return nil, fmt.Errorf("no hidraw device %04x:%04x", l.VendorID, l.ProductID)
	}
}
