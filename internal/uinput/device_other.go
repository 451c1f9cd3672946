//go:build !linux

package uinput

import (
	"errors"

	"padbridge/internal/compose"
	"padbridge/internal/mapping"
)

var errUnsupported = errors.New("uinput: not supported on this platform (requires Linux)")

// Gamepad is not available on non-Linux platforms.
type Gamepad struct{}

// NewGamepad returns an error on non-Linux platforms.
func NewGamepad(string) (*Gamepad, error) { return nil, errUnsupported }

func (g *Gamepad) SendReport(compose.Report) error { return errUnsupported }
func (g *Gamepad) Close() error                    { return nil }

// Keyboard is not available on non-Linux platforms.
type Keyboard struct{}

// NewKeyboard returns an error on non-Linux platforms.
func NewKeyboard(string) (*Keyboard, error) { return nil, errUnsupported }

func (k *Keyboard) Key(uint16, bool) error                { return errUnsupported }
func (k *Keyboard) Mouse(mapping.MouseButton, bool) error { return errUnsupported }
func (k *Keyboard) Close() error                          { return nil }
