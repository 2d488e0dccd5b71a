package actuator

import (
	"sort"

	"github.com/cjeanneret/dxlhw/internal/hw/dynamixel"
)

// Device is the register access an operating mode needs from its servo.
// *dynamixel.Device implements it.
type Device interface {
	ID() int
	ReadItem(name string) (int32, error)
	WriteItem(name string, value int32) error
	Reboot() error
	ClearMultiTurn() error
}

var _ Device = (*dynamixel.Device)(nil)

// State is the record shared by an actuator and all of its operating modes.
// Measured fields are written by the present mode's Read, command fields by
// the controller side between Read and Write.
type State struct {
	Name           string
	ID             int
	TorqueConstant float64 // N·m per ampere

	Pos, Vel, Eff          float64
	PosCmd, VelCmd, EffCmd float64

	// Auxiliary integer channels keyed by control table item name.
	// The pointers stay valid for the life of the actuator.
	AdditionalStates   map[string]*int32
	AdditionalCommands map[string]*int32

	dev Device
}

// NewState allocates the shared record for one actuator.
func NewState(name string, dev Device, torqueConstant float64, states, commands []string) *State {
	st := &State{
		Name:               name,
		ID:                 dev.ID(),
		TorqueConstant:     torqueConstant,
		AdditionalStates:   make(map[string]*int32, len(states)),
		AdditionalCommands: make(map[string]*int32, len(commands)),
		dev:                dev,
	}
	for _, item := range states {
		st.AdditionalStates[item] = new(int32)
	}
	for _, item := range commands {
		st.AdditionalCommands[item] = new(int32)
	}
	return st
}

// Device returns the servo the state is bound to.
func (s *State) Device() Device { return s.dev }

func sortedKeys(m map[string]*int32) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
