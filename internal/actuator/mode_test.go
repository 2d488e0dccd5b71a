package actuator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/dxlhw/internal/config"
	"github.com/cjeanneret/dxlhw/internal/hw/dynamixel"
	"github.com/cjeanneret/dxlhw/internal/hwiface"
)

const servoID = 3

func newServo(t *testing.T, cfg config.ActuatorConfig) (*Actuator, *dynamixel.MockBus) {
	t.Helper()
	bus := dynamixel.NewMockBus()
	bus.AddServo(servoID, 1020, 45)
	a, err := New("wrist", cfg, bus, hwiface.NewInterfaces())
	require.NoError(t, err)
	return a, bus
}

func writesTo(bus *dynamixel.MockBus, item string) int {
	it := dynamixel.XSeries[item]
	n := 0
	for _, c := range bus.Calls() {
		if c.Op == "write" && c.Addr == it.Address {
			n++
		}
	}
	return n
}

func TestNewOperatingMode_Kinds(t *testing.T) {
	st := &State{Name: "j"}
	for _, kind := range Kinds() {
		m, err := NewOperatingMode(kind, st, nil)
		require.NoError(t, err, kind)
		assert.Equal(t, kind, m.Name())
	}
	_, err := NewOperatingMode("position", st, nil)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestExtendedPositionMode(t *testing.T) {
	cfg := actuatorConfig(servoID, map[string]string{"pos": KindExtendedPosition})
	cfg.ItemMap = map[string]map[string]int{KindExtendedPosition: {"Position_P_Gain": 640}}
	a, bus := newServo(t, cfg)
	now := time.Now()

	a.DoSwitch(ctrls("pos"), nil)
	assert.Equal(t, int32(dynamixel.OperatingModeExtendedPosition), bus.Item(servoID, dynamixel.ItemOperatingMode))
	assert.Equal(t, int32(1), bus.Item(servoID, dynamixel.ItemTorqueEnable))
	assert.Equal(t, int32(640), bus.Item(servoID, "Position_P_Gain"))
	assert.Equal(t, a.state.Pos, a.state.PosCmd, "position command holds the present position")

	a.state.PosCmd = math.Pi
	a.Write(now, time.Millisecond)
	assert.Equal(t, int32(dynamixel.CenterPosition+dynamixel.TicksPerRevolution/2), bus.Item(servoID, dynamixel.ItemGoalPosition))

	a.Read(now, time.Millisecond)
	assert.InDelta(t, math.Pi, a.Snapshot().Position, 1e-9)

	bus.ResetCalls()
	a.Write(now, time.Millisecond)
	assert.Zero(t, writesTo(bus, dynamixel.ItemGoalPosition), "unchanged command must not be resent")

	a.state.PosCmd = math.NaN()
	a.Write(now, time.Millisecond)
	assert.Zero(t, writesTo(bus, dynamixel.ItemGoalPosition), "NaN command must be skipped")

	a.DoSwitch(nil, ctrls("pos"))
	assert.Equal(t, int32(0), bus.Item(servoID, dynamixel.ItemTorqueEnable))
}

func TestCurrentMode(t *testing.T) {
	a, bus := newServo(t, actuatorConfig(servoID, map[string]string{"eff": KindCurrent}))
	now := time.Now()

	a.DoSwitch(ctrls("eff"), nil)
	assert.Equal(t, int32(dynamixel.OperatingModeCurrent), bus.Item(servoID, dynamixel.ItemOperatingMode))
	assert.Zero(t, a.state.EffCmd)

	// 0.3 N·m with 1.5 N·m/A is 0.2 A
	a.state.EffCmd = 0.3
	a.Write(now, time.Millisecond)
	raw := dynamixel.AmpereToCurrent(0.2)
	assert.Equal(t, raw, bus.Item(servoID, dynamixel.ItemGoalCurrent))

	a.Read(now, time.Millisecond)
	assert.InDelta(t, dynamixel.CurrentToAmpere(raw)*1.5, a.state.Eff, 1e-9)
}

func TestVelocityMode(t *testing.T) {
	a, bus := newServo(t, actuatorConfig(servoID, map[string]string{"vel": KindVelocity}))
	now := time.Now()

	a.DoSwitch(ctrls("vel"), nil)
	assert.Equal(t, int32(dynamixel.OperatingModeVelocity), bus.Item(servoID, dynamixel.ItemOperatingMode))

	a.state.VelCmd = 1.0
	a.Write(now, time.Millisecond)
	assert.Equal(t, dynamixel.RadPerSecToVelocity(1.0), bus.Item(servoID, dynamixel.ItemGoalVelocity))

	a.Read(now, time.Millisecond)
	assert.InDelta(t, dynamixel.VelocityToRadPerSec(dynamixel.RadPerSecToVelocity(1.0)), a.state.Vel, 1e-9)
}

func TestCurrentBasedPositionMode(t *testing.T) {
	a, bus := newServo(t, actuatorConfig(servoID, map[string]string{"pos": KindCurrentBasedPosition}))

	a.DoSwitch(ctrls("pos"), nil)
	assert.Equal(t, int32(dynamixel.OperatingModeCurrentBasedPosition), bus.Item(servoID, dynamixel.ItemOperatingMode))
	assert.InDelta(t, dynamixel.CurrentToAmpere(1193)*1.5, a.state.EffCmd, 1e-9, "effort command starts at the current limit")

	a.Write(time.Now(), time.Millisecond)
	assert.Equal(t, int32(1193), bus.Item(servoID, dynamixel.ItemGoalCurrent))
	assert.Equal(t, int32(dynamixel.CenterPosition), bus.Item(servoID, dynamixel.ItemGoalPosition))
}

func TestTorqueDisableMode(t *testing.T) {
	a, bus := newServo(t, actuatorConfig(servoID, map[string]string{
		"off": KindTorqueDisable,
		"vel": KindVelocity,
	}))
	a.DoSwitch(ctrls("vel"), nil)
	require.Equal(t, int32(1), bus.Item(servoID, dynamixel.ItemTorqueEnable))

	a.DoSwitch(ctrls("off"), ctrls("vel"))
	assert.Equal(t, int32(0), bus.Item(servoID, dynamixel.ItemTorqueEnable))

	bus.SetItem(servoID, dynamixel.ItemPresentPosition, dynamixel.CenterPosition+1024)
	bus.ResetCalls()
	a.Read(time.Now(), time.Millisecond)
	a.Write(time.Now(), time.Millisecond)
	assert.InDelta(t, math.Pi/2, a.state.Pos, 1e-9)
	for _, c := range bus.Calls() {
		assert.NotEqual(t, "write", c.Op)
	}
}

func TestRebootMode(t *testing.T) {
	a, bus := newServo(t, actuatorConfig(servoID, map[string]string{"reboot": KindReboot}))
	bus.ResetCalls()

	a.DoSwitch(ctrls("reboot"), nil)
	a.Read(time.Now(), time.Millisecond)
	a.Write(time.Now(), time.Millisecond)
	a.DoSwitch(nil, ctrls("reboot"))

	calls := bus.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "reboot", calls[0].Op)
	assert.Equal(t, uint8(servoID), calls[0].ID)
}

func TestClearMultiTurnMode(t *testing.T) {
	a, bus := newServo(t, actuatorConfig(servoID, map[string]string{"clear": KindClearMultiTurn}))
	bus.SetItem(servoID, dynamixel.ItemPresentPosition, 3*dynamixel.TicksPerRevolution+100)

	a.DoSwitch(ctrls("clear"), nil)
	assert.Equal(t, int32(100), bus.Item(servoID, dynamixel.ItemPresentPosition))

	a.Read(time.Now(), time.Millisecond)
	assert.InDelta(t, dynamixel.TicksToRadians(100), a.state.Pos, 1e-9)
}

func TestAdditionalChannels(t *testing.T) {
	cfg := actuatorConfig(servoID, map[string]string{"vel": KindVelocity})
	cfg.AdditionalStates = []string{"Present_Temperature"}
	cfg.AdditionalCommands = []string{"LED"}
	bus := dynamixel.NewMockBus()
	bus.AddServo(servoID, 1020, 45)
	ifaces := hwiface.NewInterfaces()
	a, err := New("wrist", cfg, bus, ifaces)
	require.NoError(t, err)

	temp, err := ifaces.Int32(hwiface.Int32State, "wrist/Present_Temperature")
	require.NoError(t, err)
	led, err := ifaces.Int32(hwiface.Int32Command, "wrist/LED")
	require.NoError(t, err)

	a.DoSwitch(ctrls("vel"), nil)
	a.Read(time.Now(), time.Millisecond)
	assert.Equal(t, int32(30), *temp.Value)

	bus.ResetCalls()
	a.Write(time.Now(), time.Millisecond)
	assert.Zero(t, writesTo(bus, "LED"), "command seeded from the servo is not rewritten")

	*led.Value = 1
	a.Write(time.Now(), time.Millisecond)
	assert.Equal(t, int32(1), bus.Item(servoID, "LED"))
	assert.Equal(t, map[string]int32{"LED": 1}, a.Snapshot().AdditionalCommands)
}

// deadDevice fails every operation, like a servo that stopped answering.
type deadDevice struct{ id int }

func (d deadDevice) ID() int { return d.id }
func (d deadDevice) ReadItem(string) (int32, error) { return 0, dynamixel.ErrNoResponse }
func (d deadDevice) WriteItem(string, int32) error { return dynamixel.ErrNoResponse }
func (d deadDevice) Reboot() error { return dynamixel.ErrNoResponse }
func (d deadDevice) ClearMultiTurn() error { return dynamixel.ErrNoResponse }

func TestModeFailureIsNotFatal(t *testing.T) {
	a, _ := newServo(t, actuatorConfig(servoID, map[string]string{
		"pos": KindExtendedPosition,
		"off": KindTorqueDisable,
	}))
	a.DoSwitch(ctrls("pos"), nil)
	a.state.Pos = 0.5
	a.state.dev = deadDevice{id: servoID}

	assert.NotPanics(t, func() {
		a.Read(time.Now(), time.Millisecond)
		a.state.PosCmd = 1
		a.Write(time.Now(), time.Millisecond)
		a.DoSwitch(ctrls("off"), ctrls("pos"))
	})
	assert.Equal(t, 0.5, a.state.Pos, "failed read keeps the last known state")
	assert.Equal(t, KindTorqueDisable, a.PresentMode(), "hook failures do not undo the switch")
}
