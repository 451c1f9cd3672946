package hotas

import (
	"errors"
	"fmt"
)

// ErrShortReport is returned when a report ends before a field does.
var ErrShortReport = errors.New("hotas: report too short")

// ExtractBits reads n bits starting at bit start, LSB-first within bytes.
func ExtractBits(report []byte, start, n int) (uint64, error) {
	if n <= 0 {
		return 0, nil
	}
	last := start + n - 1
	if last/8 >= len(report) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortReport, last/8+1, len(report))
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit := start + i
		v |= uint64(report[bit/8]>>(bit%8)&1) << i
	}
	return v, nil
}

// Value is one decoded field.
type Value struct {
	Key string
	Raw uint64
	V   float64
}

// Decode extracts every field of the layout from report. Fields that do not
// fit in a short report are skipped; err is ErrShortReport if any were.
func Decode(l Layout, report []byte) ([]Value, error) {
	out := make([]Value, 0, len(l.Signals))
	var short error
	for _, d := range l.Signals {
		raw, err := ExtractBits(report, d.BitStart, d.BitLen)
		if err != nil {
			short = err
			continue
		}
		out = append(out, Value{Key: l.Key(d), Raw: raw, V: d.Normalize(raw)})
	}
	return out, short
}
