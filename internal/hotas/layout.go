// Package hotas decodes raw HID reports from flight sticks and throttles
// into named, normalized samples.
package hotas

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"padbridge/internal/filter"
)

// Kind classifies a report field.
type Kind string

const (
	KindAnalog  Kind = "analog"
	KindDigital Kind = "digital"
	KindHat     Kind = "hat"
)

// Norm selects how a raw field value is scaled.
type Norm string

const (
	// NormBipolar maps 0..2^bits-1 onto -1..1.
	NormBipolar Norm = "bipolar"
	// NormUnipolar maps 0..2^bits-1 onto 0..1.
	NormUnipolar Norm = "unipolar"
	// NormRaw passes the integer value through.
	NormRaw Norm = "raw"
)

// Descriptor locates one signal inside a report. Bits are numbered
// LSB-first within each byte, byte 0 first.
type Descriptor struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name,omitempty"`
	BitStart int    `yaml:"bit_start"`
	BitLen   int    `yaml:"bits"`
	Kind     Kind   `yaml:"kind"`
	Norm     Norm   `yaml:"norm,omitempty"`
}

// Max is the largest raw value the field can hold.
func (d Descriptor) Max() uint64 {
	return 1<<uint(d.BitLen) - 1
}

// Normalize scales a raw field value.
func (d Descriptor) Normalize(raw uint64) float64 {
	norm := d.Norm
	if norm == "" {
		norm = d.defaultNorm()
	}
	full := float64(d.Max())
	switch norm {
	case NormBipolar:
		return float64(raw)/full*2 - 1
	case NormUnipolar:
		return float64(raw) / full
	}
	return float64(raw)
}

func (d Descriptor) defaultNorm() Norm {
	if d.Kind == KindAnalog {
		return NormBipolar
	}
	return NormRaw
}

// Shape is the filter shape matching the field.
func (d Descriptor) Shape() filter.Shape {
	n := d.Norm
	if n == "" {
		n = d.defaultNorm()
	}
	return filter.Shape{Bipolar: n == NormBipolar, Hat: d.Kind == KindHat}
}

// Validate checks field geometry.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor: empty id")
	}
	if d.BitStart < 0 {
		return fmt.Errorf("descriptor %s: bit_start must be >= 0", d.ID)
	}
	if d.BitLen < 1 || d.BitLen > 32 {
		return fmt.Errorf("descriptor %s: bits must be in [1, 32]", d.ID)
	}
	switch d.Kind {
	case KindAnalog, KindDigital, KindHat:
	default:
		return fmt.Errorf("descriptor %s: unknown kind %q", d.ID, d.Kind)
	}
	switch d.Norm {
	case "", NormBipolar, NormUnipolar, NormRaw:
	default:
		return fmt.Errorf("descriptor %s: unknown norm %q", d.ID, d.Norm)
	}
	return nil
}

// Layout describes every signal of one device.
type Layout struct {
	// Device prefixes sample keys, as in "stick:joy_x".
	Device    string       `yaml:"device"`
	VendorID  uint16       `yaml:"vendor_id"`
	ProductID uint16       `yaml:"product_id"`
	Signals   []Descriptor `yaml:"signals"`
}

// Key returns the sample key of a descriptor.
func (l Layout) Key(d Descriptor) string {
	return l.Device + ":" + d.ID
}

// ReportLen is the minimum report length covering every field.
func (l Layout) ReportLen() int {
	n := 0
	for _, d := range l.Signals {
		if end := (d.BitStart + d.BitLen + 7) / 8; end > n {
			n = end
		}
	}
	return n
}

// Validate checks the layout.
func (l Layout) Validate() error {
	if l.Device == "" {
		return fmt.Errorf("layout: device is required")
	}
	seen := make(map[string]bool, len(l.Signals))
	for _, d := range l.Signals {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.ID] {
			return fmt.Errorf("layout %s: duplicate signal %q", l.Device, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// X56Stick is the stick half of a Logitech/Saitek X56.
func X56Stick() Layout {
	return Layout{
		Device:    "stick",
		VendorID:  0x0738,
		ProductID: 0x2221,
		Signals: []Descriptor{
			{ID: "joy_x", Name: "JOY_X", BitStart: 8, BitLen: 16, Kind: KindAnalog},
			{ID: "joy_y", Name: "JOY_Y", BitStart: 24, BitLen: 16, Kind: KindAnalog},
			{ID: "joy_z", Name: "JOY_Z", BitStart: 40, BitLen: 12, Kind: KindAnalog},
			{ID: "c_joy_x", Name: "C_JOY_X", BitStart: 80, BitLen: 8, Kind: KindAnalog},
			{ID: "c_joy_y", Name: "C_JOY_Y", BitStart: 88, BitLen: 8, Kind: KindAnalog},
			{ID: "POV", Name: "POV", BitStart: 52, BitLen: 4, Kind: KindHat},
			{ID: "trigger", Name: "TRIGGER", BitStart: 56, BitLen: 1, Kind: KindDigital},
			{ID: "A", Name: "BTN_A", BitStart: 57, BitLen: 1, Kind: KindDigital},
			{ID: "B", Name: "BTN_B", BitStart: 58, BitLen: 1, Kind: KindDigital},
			{ID: "C", Name: "C_BTN", BitStart: 59, BitLen: 1, Kind: KindDigital},
			{ID: "D", Name: "BTN_D", BitStart: 60, BitLen: 1, Kind: KindDigital},
			{ID: "E", Name: "BTN_E", BitStart: 61, BitLen: 1, Kind: KindDigital},
			{ID: "H1", Name: "H1", BitStart: 62, BitLen: 4, Kind: KindHat},
			{ID: "H2", Name: "H2", BitStart: 66, BitLen: 4, Kind: KindHat},
		},
	}
}

// LoadLayout reads a YAML layout file. Unknown fields are rejected.
func LoadLayout(path string) (Layout, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var l Layout
	if err := dec.Decode(&l); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}
