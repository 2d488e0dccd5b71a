// Package hwiface is the boundary between hardware actuators and the
// controllers that drive them: controller descriptions and name-keyed
// state/command slots that actuators register and controllers claim.
package hwiface

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateHandle is returned when a handle name is registered twice on one interface.
var ErrDuplicateHandle = errors.New("hwiface: handle already registered")

// ErrNoHandle is returned when a handle name is unknown on an interface.
var ErrNoHandle = errors.New("hwiface: no such handle")

// ControllerInfo describes a controller taking part in a switch.
// Only Name is interpreted by the hardware layer.
type ControllerInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

// Names extracts controller names, preserving order.
func Names(infos []ControllerInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// StateHandle exposes an actuator's measured position, velocity and effort.
type StateHandle struct {
	Name     string
	Position *float64
	Velocity *float64
	Effort   *float64
}

// CommandHandle adds one command slot to a state handle.
type CommandHandle struct {
	StateHandle
	Command *float64
}

// Int32Handle is a named integer slot (auxiliary state or command channel).
type Int32Handle struct {
	Name  string
	Value *int32
}

// Kind names one interface of the registry.
type Kind string

const (
	ActuatorState    Kind = "actuator_state"
	PositionActuator Kind = "position_actuator"
	VelocityActuator Kind = "velocity_actuator"
	EffortActuator   Kind = "effort_actuator"
	Int32State       Kind = "int32_state"
	Int32Command     Kind = "int32_command"
)

// Interfaces holds every handle registered by the hardware, per interface kind.
type Interfaces struct {
	mu       sync.RWMutex
	states   map[string]StateHandle
	commands map[Kind]map[string]CommandHandle
	int32s   map[Kind]map[string]Int32Handle
}

// NewInterfaces creates an empty registry.
func NewInterfaces() *Interfaces {
	return &Interfaces{
		states: make(map[string]StateHandle),
		commands: map[Kind]map[string]CommandHandle{
			PositionActuator: {},
			VelocityActuator: {},
			EffortActuator:   {},
		},
		int32s: map[Kind]map[string]Int32Handle{
			Int32State:   {},
			Int32Command: {},
		},
	}
}

// RegisterState registers an actuator state handle.
func (in *Interfaces) RegisterState(h StateHandle) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, ok := in.states[h.Name]; ok {
		return fmt.Errorf("%w: %s %q", ErrDuplicateHandle, ActuatorState, h.Name)
	}
	in.states[h.Name] = h
	return nil
}

// RegisterCommand registers a command handle on one of the actuator command interfaces.
func (in *Interfaces) RegisterCommand(kind Kind, h CommandHandle) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	m, ok := in.commands[kind]
	if !ok {
		return fmt.Errorf("hwiface: %q is not a command interface", kind)
	}
	if _, ok := m[h.Name]; ok {
		return fmt.Errorf("%w: %s %q", ErrDuplicateHandle, kind, h.Name)
	}
	m[h.Name] = h
	return nil
}

// RegisterInt32 registers an integer state or command handle.
func (in *Interfaces) RegisterInt32(kind Kind, h Int32Handle) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	m, ok := in.int32s[kind]
	if !ok {
		return fmt.Errorf("hwiface: %q is not an int32 interface", kind)
	}
	if _, ok := m[h.Name]; ok {
		return fmt.Errorf("%w: %s %q", ErrDuplicateHandle, kind, h.Name)
	}
	m[h.Name] = h
	return nil
}

// State returns a registered state handle.
func (in *Interfaces) State(name string) (StateHandle, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	h, ok := in.states[name]
	if !ok {
		return StateHandle{}, fmt.Errorf("%w: %s %q", ErrNoHandle, ActuatorState, name)
	}
	return h, nil
}

// Command returns a registered command handle.
func (in *Interfaces) Command(kind Kind, name string) (CommandHandle, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	h, ok := in.commands[kind][name]
	if !ok {
		return CommandHandle{}, fmt.Errorf("%w: %s %q", ErrNoHandle, kind, name)
	}
	return h, nil
}

// Int32 returns a registered integer handle.
func (in *Interfaces) Int32(kind Kind, name string) (Int32Handle, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	h, ok := in.int32s[kind][name]
	if !ok {
		return Int32Handle{}, fmt.Errorf("%w: %s %q", ErrNoHandle, kind, name)
	}
	return h, nil
}

// Names lists the handle names of one interface, sorted.
func (in *Interfaces) Names(kind Kind) []string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	var names []string
	switch kind {
	case ActuatorState:
		for n := range in.states {
			names = append(names, n)
		}
	case Int32State, Int32Command:
		for n := range in.int32s[kind] {
			names = append(names, n)
		}
	default:
		for n := range in.commands[kind] {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
