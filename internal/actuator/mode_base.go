package actuator

import (
	"fmt"
	"math"
	"sort"

	"github.com/cjeanneret/dxlhw/internal/debug"
	"github.com/cjeanneret/dxlhw/internal/hw/dynamixel"
)

// base carries what every mode shares: the bound state, the start-up items,
// and the last values written so that unchanged commands are not resent.
type base struct {
	name  string
	st    *State
	items map[string]int

	prevPos, prevVel, prevEff float64
	prevAdditional           map[string]int32
}

func newBase(name string, st *State, items map[string]int) base {
	return base{name: name, st: st, items: items}
}

func (b *base) Name() string { return b.name }

func (b *base) fail(err error) {
	debug.Error(fmt.Errorf("actuator %q (id: %d) mode %s: %w", b.st.Name, b.st.ID, b.name, err))
}

func (b *base) write(item string, value int32) bool {
	if err := b.st.dev.WriteItem(item, value); err != nil {
		b.fail(err)
		return false
	}
	return true
}

func (b *base) torque(on bool) bool {
	v := int32(0)
	if on {
		v = 1
	}
	return b.write(dynamixel.ItemTorqueEnable, v)
}

// enter switches the servo to operatingMode: torque off, mode register,
// configured items, torque back on. The command cache is cleared.
func (b *base) enter(operatingMode int32) bool {
	b.resetCache()
	if !b.torque(false) {
		return false
	}
	if !b.write(dynamixel.ItemOperatingMode, operatingMode) {
		return false
	}
	names := make([]string, 0, len(b.items))
	for name := range b.items {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		debug.Verbose("%s: %s = %d", b.st.Name, name, b.items[name])
		if !b.write(name, int32(b.items[name])) {
			return false
		}
	}
	if !b.torque(true) {
		return false
	}
	b.loadAdditionalCommands()
	return true
}

func (b *base) resetCache() {
	b.prevPos, b.prevVel, b.prevEff = math.NaN(), math.NaN(), math.NaN()
	b.prevAdditional = make(map[string]int32, len(b.st.AdditionalCommands))
}

// loadAdditionalCommands seeds the auxiliary command slots with the servo's
// current values so nothing is written until a controller changes them.
func (b *base) loadAdditionalCommands() {
	for _, item := range sortedKeys(b.st.AdditionalCommands) {
		v, err := b.st.dev.ReadItem(item)
		if err != nil {
			b.fail(err)
			continue
		}
		*b.st.AdditionalCommands[item] = v
		b.prevAdditional[item] = v
	}
}

// readState updates the measured fields and auxiliary states.
func (b *base) readState() bool {
	pos, err := b.st.dev.ReadItem(dynamixel.ItemPresentPosition)
	if err != nil {
		b.fail(err)
		return false
	}
	vel, err := b.st.dev.ReadItem(dynamixel.ItemPresentVelocity)
	if err != nil {
		b.fail(err)
		return false
	}
	cur, err := b.st.dev.ReadItem(dynamixel.ItemPresentCurrent)
	if err != nil {
		b.fail(err)
		return false
	}
	b.st.Pos = dynamixel.TicksToRadians(pos)
	b.st.Vel = dynamixel.VelocityToRadPerSec(vel)
	b.st.Eff = dynamixel.CurrentToAmpere(cur) * b.st.TorqueConstant

	for _, item := range sortedKeys(b.st.AdditionalStates) {
		v, err := b.st.dev.ReadItem(item)
		if err != nil {
			b.fail(err)
			continue
		}
		*b.st.AdditionalStates[item] = v
	}
	return true
}

func (b *base) writeAdditionalCommands() {
	for _, item := range sortedKeys(b.st.AdditionalCommands) {
		v := *b.st.AdditionalCommands[item]
		if prev, ok := b.prevAdditional[item]; ok && prev == v {
			continue
		}
		if b.write(item, v) {
			b.prevAdditional[item] = v
		}
	}
}

// changed reports whether cmd is a real value that differs from prev.
func changed(cmd, prev float64) bool {
	return !math.IsNaN(cmd) && cmd != prev
}

func (b *base) writePosition() {
	if changed(b.st.PosCmd, b.prevPos) && b.write(dynamixel.ItemGoalPosition, dynamixel.RadiansToTicks(b.st.PosCmd)) {
		b.prevPos = b.st.PosCmd
	}
}

func (b *base) writeVelocity() {
	if changed(b.st.VelCmd, b.prevVel) && b.write(dynamixel.ItemGoalVelocity, dynamixel.RadPerSecToVelocity(b.st.VelCmd)) {
		b.prevVel = b.st.VelCmd
	}
}

func (b *base) writeEffort() {
	if !changed(b.st.EffCmd, b.prevEff) || b.st.TorqueConstant == 0 {
		return
	}
	if b.write(dynamixel.ItemGoalCurrent, dynamixel.AmpereToCurrent(b.st.EffCmd/b.st.TorqueConstant)) {
		b.prevEff = b.st.EffCmd
	}
}

// Stopping disables torque. Modes that do something else override it.
func (b *base) Stopping() {
	b.torque(false)
}
