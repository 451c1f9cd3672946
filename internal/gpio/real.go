//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads switch lines through the GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
	defs  []Line
}

// NewRealReader requests every line of defs on chip (e.g. "gpiochip0").
func NewRealReader(chip string, defs []Line) (*RealReader, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	r := &RealReader{chip: c, defs: defs}
	for _, d := range defs {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
		switch d.Pull {
		case "up":
			opts = append(opts, gpiocdev.WithPullUp)
		case "down":
			opts = append(opts, gpiocdev.WithPullDown)
		}
		l, err := c.RequestLine(d.Offset, opts...)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request line %s (%d): %w", d.Name, d.Offset, err)
		}
		r.lines = append(r.lines, l)
	}
	return r, nil
}

// Read returns the logical level of every line. Active-low lines are
// inverted here.
func (r *RealReader) Read() ([]bool, error) {
	out := make([]bool, len(r.lines))
	for i, l := range r.lines {
		v, err := l.Value()
		if err != nil {
			return nil, fmt.Errorf("read line %s: %w", r.defs[i].Name, err)
		}
		on := v != 0
		if r.defs[i].ActiveLow {
			on = !on
		}
		out[i] = on
	}
	return out, nil
}

// Close releases every line and the chip.
func (r *RealReader) Close() error {
	var errs []error
	for i, l := range r.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %s: %w", r.defs[i].Name, err))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}
	return errors.Join(errs...)
}
