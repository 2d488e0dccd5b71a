// Package actuator drives one joint servo through at most one operating mode
// at a time and switches between modes as controllers start and stop.
package actuator

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver"

	"github.com/cjeanneret/dxlhw/internal/config"
	"github.com/cjeanneret/dxlhw/internal/debug"
	"github.com/cjeanneret/dxlhw/internal/hw/dynamixel"
	"github.com/cjeanneret/dxlhw/internal/hwiface"
)

// ErrMissingParam is returned when a required actuator parameter is absent.
var ErrMissingParam = config.ErrMissingParam

var (
	// ErrDeviceNotFound is returned when the configured id does not answer.
	ErrDeviceNotFound = errors.New("servo not found")
	// ErrFirmware is returned when the servo firmware fails firmware_constraint.
	ErrFirmware = errors.New("unsupported firmware")
	// ErrUnknownItem is returned for an auxiliary channel missing from the control table.
	ErrUnknownItem = errors.New("unknown auxiliary item")
)

const noMode = -1

// Actuator owns the shared state of one servo, its mode registry and the
// present mode. It is not safe for concurrent use; a single control loop
// calls every method.
type Actuator struct {
	state    *State
	registry *registry
	present  int
}

// Snapshot is a copy of an actuator's state, safe to hand to other goroutines.
type Snapshot struct {
	Name               string           `json:"name"`
	ID                 int              `json:"id"`
	Mode               string           `json:"mode,omitempty"`
	Position           float64          `json:"position"`
	Velocity           float64          `json:"velocity"`
	Effort             float64          `json:"effort"`
	PositionCommand    float64          `json:"position_command"`
	VelocityCommand    float64          `json:"velocity_command"`
	EffortCommand      float64          `json:"effort_command"`
	AdditionalStates   map[string]int32 `json:"additional_states,omitempty"`
	AdditionalCommands map[string]int32 `json:"additional_commands,omitempty"`
}

// New finds the servo configured for name on bus, builds its operating modes
// and registers its handles on ifaces. Nothing is registered if any mode
// fails to build.
func New(name string, cfg config.ActuatorConfig, bus dynamixel.Bus, ifaces *hwiface.Interfaces) (*Actuator, error) {
	return newActuator(name, cfg, bus, ifaces, NewOperatingMode)
}

func newActuator(name string, cfg config.ActuatorConfig, bus dynamixel.Bus, ifaces *hwiface.Interfaces, factory ModeFactory) (*Actuator, error) {
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	id := *cfg.ID

	dev, err := dynamixel.Find(bus, id)
	if err != nil {
		return nil, fmt.Errorf("actuator %q (id: %d): %w: %v", name, id, ErrDeviceNotFound, err)
	}

	if cfg.FirmwareConstraint != "" {
		if err := checkFirmware(cfg.FirmwareConstraint, dev.Firmware()); err != nil {
			return nil, fmt.Errorf("actuator %q (id: %d): %w", name, id, err)
		}
	}

	for _, item := range append(append([]string(nil), cfg.AdditionalStates...), cfg.AdditionalCommands...) {
		if !dev.HasItem(item) {
			return nil, fmt.Errorf("actuator %q (id: %d): %w %q", name, id, ErrUnknownItem, item)
		}
	}

	st := NewState(name, dev, *cfg.TorqueConstant, cfg.AdditionalStates, cfg.AdditionalCommands)

	reg, err := buildRegistry(cfg.OperatingModeMap, cfg.ItemMap, st, factory)
	if err != nil {
		return nil, fmt.Errorf("actuator %q (id: %d): %w", name, id, err)
	}

	a := &Actuator{state: st, registry: reg, present: noMode}
	if err := a.register(ifaces); err != nil {
		return nil, fmt.Errorf("actuator %q (id: %d): %w", name, id, err)
	}

	debug.Actuator(name, id, "initialized: model %d, firmware %d, %d mode(s)", dev.Model(), dev.Firmware(), len(reg.modes))
	return a, nil
}

func checkFirmware(constraint string, firmware uint8) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("firmware_constraint %q: %v", constraint, err)
	}
	v, err := semver.NewVersion(fmt.Sprintf("%d.0.0", firmware))
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: version %d does not satisfy %q", ErrFirmware, firmware, constraint)
	}
	return nil
}

func (a *Actuator) register(ifaces *hwiface.Interfaces) error {
	st := a.state
	sh := hwiface.StateHandle{Name: st.Name, Position: &st.Pos, Velocity: &st.Vel, Effort: &st.Eff}
	if err := ifaces.RegisterState(sh); err != nil {
		return err
	}
	cmds := []struct {
		kind hwiface.Kind
		cmd  *float64
	}{
		{hwiface.PositionActuator, &st.PosCmd},
		{hwiface.VelocityActuator, &st.VelCmd},
		{hwiface.EffortActuator, &st.EffCmd},
	}
	for _, c := range cmds {
		if err := ifaces.RegisterCommand(c.kind, hwiface.CommandHandle{StateHandle: sh, Command: c.cmd}); err != nil {
			return err
		}
	}
	for _, item := range sortedKeys(st.AdditionalStates) {
		h := hwiface.Int32Handle{Name: st.Name + "/" + item, Value: st.AdditionalStates[item]}
		if err := ifaces.RegisterInt32(hwiface.Int32State, h); err != nil {
			return err
		}
	}
	for _, item := range sortedKeys(st.AdditionalCommands) {
		h := hwiface.Int32Handle{Name: st.Name + "/" + item, Value: st.AdditionalCommands[item]}
		if err := ifaces.RegisterInt32(hwiface.Int32Command, h); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the actuator name.
func (a *Actuator) Name() string { return a.state.Name }

// ID returns the servo id.
func (a *Actuator) ID() int { return a.state.ID }

// Controllers lists the controller names this actuator has a mode for.
func (a *Actuator) Controllers() []string { return a.registry.controllers() }

// PresentMode returns the name of the present mode, or "" if none.
func (a *Actuator) PresentMode() string {
	if a.present == noMode {
		return ""
	}
	return a.registry.mode(a.present).Name()
}

// PrepareSwitch reports whether starting and stopping the given controllers
// would leave the actuator with zero or one mode. It has no side effects.
func (a *Actuator) PrepareSwitch(starting, stopping []hwiface.ControllerInfo) bool {
	n := 0
	if a.present != noMode {
		n = 1
		for _, c := range stopping {
			if idx, ok := a.registry.lookup(c.Name); ok && idx == a.present {
				n = 0
				break
			}
		}
	}
	for _, c := range starting {
		if _, ok := a.registry.lookup(c.Name); ok {
			n++
		}
	}
	if n > 1 {
		debug.Errorf("actuator %q (id: %d): rejected infeasible controller switch", a.state.Name, a.state.ID)
		return false
	}
	return true
}

// DoSwitch stops the present mode if a stopping controller maps to it, then
// starts the mode of the first starting controller that has one. Callers must
// have had the same lists accepted by PrepareSwitch.
func (a *Actuator) DoSwitch(starting, stopping []hwiface.ControllerInfo) {
	if a.present != noMode {
		for _, c := range stopping {
			if idx, ok := a.registry.lookup(c.Name); ok && idx == a.present {
				a.stopPresent()
				break
			}
		}
	}
	if a.present == noMode {
		for _, c := range starting {
			if idx, ok := a.registry.lookup(c.Name); ok {
				mode := a.registry.mode(idx)
				debug.Actuator(a.state.Name, a.state.ID, "starting operating mode %q", mode.Name())
				a.present = idx
				mode.Starting()
				break
			}
		}
	}
}

func (a *Actuator) stopPresent() {
	mode := a.registry.mode(a.present)
	debug.Actuator(a.state.Name, a.state.ID, "stopping operating mode %q", mode.Name())
	mode.Stopping()
	a.present = noMode
}

// Read updates the measured state through the present mode. No-op without one.
func (a *Actuator) Read(now time.Time, period time.Duration) {
	if a.present != noMode {
		a.registry.mode(a.present).Read(now, period)
	}
}

// Write sends the commands through the present mode. No-op without one.
func (a *Actuator) Write(now time.Time, period time.Duration) {
	if a.present != noMode {
		a.registry.mode(a.present).Write(now, period)
	}
}

// Close stops the present mode, if any.
func (a *Actuator) Close() {
	if a.present != noMode {
		a.stopPresent()
	}
}

// Snapshot copies the current state.
func (a *Actuator) Snapshot() Snapshot {
	st := a.state
	s := Snapshot{
		Name:            st.Name,
		ID:              st.ID,
		Mode:            a.PresentMode(),
		Position:        st.Pos,
		Velocity:        st.Vel,
		Effort:          st.Eff,
		PositionCommand: st.PosCmd,
		VelocityCommand: st.VelCmd,
		EffortCommand:   st.EffCmd,
	}
	if len(st.AdditionalStates) > 0 {
		s.AdditionalStates = make(map[string]int32, len(st.AdditionalStates))
		for k, v := range st.AdditionalStates {
			s.AdditionalStates[k] = *v
		}
	}
	if len(st.AdditionalCommands) > 0 {
		s.AdditionalCommands = make(map[string]int32, len(st.AdditionalCommands))
		for k, v := range st.AdditionalCommands {
			s.AdditionalCommands[k] = *v
		}
	}
	return s
}
