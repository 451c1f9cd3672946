package pad

// State is a value snapshot of every signal at one instant. Axes are -1..1,
// triggers 0..1, and buttons an XInput bitmask.
type State struct {
	LX      float64 `json:"lx"`
	LY      float64 `json:"ly"`
	RX      float64 `json:"rx"`
	RY      float64 `json:"ry"`
	LT      float64 `json:"lt"`
	RT      float64 `json:"rt"`
	Buttons uint16  `json:"buttons"`
}

// Value returns the value of one signal; buttons read as 0 or 1.
func (s State) Value(sig Signal) float64 {
	switch sig {
	case LeftX:
		return s.LX
	case LeftY:
		return s.LY
	case RightX:
		return s.RX
	case RightY:
		return s.RY
	case LeftTrigger:
		return s.LT
	case RightTrigger:
		return s.RT
	}
	if s.Buttons&sig.Bit() != 0 {
		return 1
	}
	return 0
}

// Set stores v into one signal. A button is pressed when v > 0.5.
func (s *State) Set(sig Signal, v float64) {
	switch sig {
	case LeftX:
		s.LX = v
	case LeftY:
		s.LY = v
	case RightX:
		s.RX = v
	case RightY:
		s.RY = v
	case LeftTrigger:
		s.LT = v
	case RightTrigger:
		s.RT = v
	default:
		bit := sig.Bit()
		if v > 0.5 {
			s.Buttons |= bit
		} else {
			s.Buttons &^= bit
		}
	}
}

// Pressed reports whether a button bit is set.
func (s State) Pressed(bit uint16) bool { return s.Buttons&bit != 0 }

// TestPulse returns the fixed diagnostic pattern layered over base: full
// scale on every axis and trigger plus the face and shoulder buttons.
func TestPulse(base State) State {
	return State{
		LX:      -1,
		LY:      1,
		RX:      1,
		RY:      -1,
		LT:      1,
		RT:      1,
		Buttons: base.Buttons | BitA | BitB | BitX | BitY | BitLeftShoulder | BitRightShoulder,
	}
}
