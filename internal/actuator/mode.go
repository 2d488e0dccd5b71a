package actuator

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownMode is returned when a configured mode kind is not recognized.
var ErrUnknownMode = errors.New("unknown operating mode")

// Mode kind names accepted in operating_mode_map.
const (
	KindClearMultiTurn       = "clear_multi_turn"
	KindCurrent              = "current"
	KindCurrentBasedPosition = "current_based_position"
	KindExtendedPosition     = "extended_position"
	KindReboot               = "reboot"
	KindTorqueDisable        = "torque_disable"
	KindVelocity             = "velocity"
)

// Kinds lists every known mode kind.
func Kinds() []string {
	return []string{
		KindClearMultiTurn,
		KindCurrent,
		KindCurrentBasedPosition,
		KindExtendedPosition,
		KindReboot,
		KindTorqueDisable,
		KindVelocity,
	}
}

// OperatingMode defines how an actuator's commands reach the servo and how
// its state is read back. At most one mode is present per actuator.
//
// Starting runs once when the mode becomes present and Stopping once when it
// stops being present. Read and Write are only called in between, any number
// of times. Hooks report device failures through the debug log; the actuator
// does not interpret them.
type OperatingMode interface {
	Name() string
	Starting()
	Stopping()
	Read(now time.Time, period time.Duration)
	Write(now time.Time, period time.Duration)
}

// ModeFactory builds one mode of the given kind bound to st.
// items holds the control table items written when the mode starts.
type ModeFactory func(kind string, st *State, items map[string]int) (OperatingMode, error)

// NewOperatingMode is the ModeFactory for X-series servos.
func NewOperatingMode(kind string, st *State, items map[string]int) (OperatingMode, error) {
	switch kind {
	case KindClearMultiTurn:
		return &clearMultiTurnMode{base: newBase(kind, st, nil)}, nil
	case KindCurrent:
		return &currentMode{base: newBase(kind, st, items)}, nil
	case KindCurrentBasedPosition:
		return &currentBasedPositionMode{base: newBase(kind, st, items)}, nil
	case KindExtendedPosition:
		return &extendedPositionMode{base: newBase(kind, st, items)}, nil
	case KindReboot:
		return &rebootMode{base: newBase(kind, st, nil)}, nil
	case KindTorqueDisable:
		return &torqueDisableMode{base: newBase(kind, st, nil)}, nil
	case KindVelocity:
		return &velocityMode{base: newBase(kind, st, items)}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownMode, kind)
}
