// Package gpio samples panel switches wired to GPIO lines and feeds them to
// the mapped output path as named signals.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reader reads the logical levels of the configured lines, in Line order.
type Reader interface {
	Read() ([]bool, error)
	Close() error
}

// Line is one switch input.
type Line struct {
	Name      string `yaml:"name"`
	Offset    int    `yaml:"offset"`
	ActiveLow bool   `yaml:"active_low"`
	Pull      string `yaml:"pull"` // "up", "down" or "" to leave as is
}

// Validate checks one line definition.
func (l Line) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("gpio line %d: name is required", l.Offset)
	}
	if l.Offset < 0 {
		return fmt.Errorf("gpio line %s: offset must be >= 0", l.Name)
	}
	switch l.Pull {
	case "", "up", "down":
	default:
		return fmt.Errorf("gpio line %s: pull must be up, down or empty", l.Name)
	}
	return nil
}

// Key is the signal id a line publishes under.
func (l Line) Key() string { return "gpio:" + l.Name }

// Sink receives samples. compose.Publisher implements it.
type Sink interface {
	AcceptSample(id string, v, t float64)
}

// DefaultHz is the sampling cadence for panel switches.
const DefaultHz = 50.0

// Sampler polls a Reader and pushes every line's level to a Sink.
type Sampler struct {
	reader Reader
	lines  []Line
	sink   Sink
	epoch  time.Time
	hz     float64
	logger *slog.Logger

	failing bool
}

// NewSampler builds a sampler. hz <= 0 selects DefaultHz.
func NewSampler(r Reader, lines []Line, sink Sink, epoch time.Time, hz float64, logger *slog.Logger) *Sampler {
	if hz <= 0 {
		hz = DefaultHz
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{reader: r, lines: lines, sink: sink, epoch: epoch, hz: hz, logger: logger}
}

// Sample reads once and pushes the levels stamped with now.
func (s *Sampler) Sample(now time.Time) error {
	levels, err := s.reader.Read()
	if err != nil {
		if !s.failing {
			s.logger.Warn("gpio read failed", "error", err)
			s.failing = true
		}
		return err
	}
	if s.failing {
		s.logger.Info("gpio read recovered")
		s.failing = false
	}
	t := now.Sub(s.epoch).Seconds()
	for i, l := range s.lines {
		if i >= len(levels) {
			break
		}
		v := 0.0
		if levels[i] {
			v = 1
		}
		s.sink.AcceptSample(l.Key(), v, t)
	}
	return nil
}

// Run samples until ctx is canceled, then closes the reader.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.hz))
	defer ticker.Stop()
	defer func() {
		if err := s.reader.Close(); err != nil {
			s.logger.Warn("gpio close failed", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_ = s.Sample(now)
		}
	}
}
