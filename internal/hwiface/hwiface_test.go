package hwiface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterfaces_RegisterAndLookup(t *testing.T) {
	in := NewInterfaces()
	var pos, vel, eff, cmd float64
	var temp int32

	sh := StateHandle{Name: "joint1", Position: &pos, Velocity: &vel, Effort: &eff}
	require.NoError(t, in.RegisterState(sh))
	require.NoError(t, in.RegisterCommand(PositionActuator, CommandHandle{StateHandle: sh, Command: &cmd}))
	require.NoError(t, in.RegisterInt32(Int32State, Int32Handle{Name: "joint1/Present_Temperature", Value: &temp}))

	got, err := in.Command(PositionActuator, "joint1")
	require.NoError(t, err)
	*got.Command = 1.5
	assert.Equal(t, 1.5, cmd, "handles must alias the registered slot")

	pos = 0.25
	st, err := in.State("joint1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, *st.Position)

	ih, err := in.Int32(Int32State, "joint1/Present_Temperature")
	require.NoError(t, err)
	temp = 42
	assert.Equal(t, int32(42), *ih.Value)

	assert.Equal(t, []string{"joint1"}, in.Names(ActuatorState))
	assert.Equal(t, []string{"joint1"}, in.Names(PositionActuator))
	assert.Empty(t, in.Names(VelocityActuator))
}

func TestInterfaces_Duplicate(t *testing.T) {
	in := NewInterfaces()
	var v float64
	sh := StateHandle{Name: "joint1", Position: &v, Velocity: &v, Effort: &v}

	require.NoError(t, in.RegisterState(sh))
	assert.ErrorIs(t, in.RegisterState(sh), ErrDuplicateHandle)

	require.NoError(t, in.RegisterCommand(EffortActuator, CommandHandle{StateHandle: sh, Command: &v}))
	assert.ErrorIs(t, in.RegisterCommand(EffortActuator, CommandHandle{StateHandle: sh, Command: &v}), ErrDuplicateHandle)
}

func TestInterfaces_WrongKind(t *testing.T) {
	in := NewInterfaces()
	var v float64
	var i int32

	assert.Error(t, in.RegisterCommand(Int32State, CommandHandle{Command: &v}))
	assert.Error(t, in.RegisterInt32(PositionActuator, Int32Handle{Value: &i}))
}

func TestInterfaces_Missing(t *testing.T) {
	in := NewInterfaces()

	_, err := in.State("nope")
	assert.ErrorIs(t, err, ErrNoHandle)
	_, err = in.Command(VelocityActuator, "nope")
	assert.ErrorIs(t, err, ErrNoHandle)
	_, err = in.Int32(Int32Command, "nope")
	assert.ErrorIs(t, err, ErrNoHandle)
}

func TestNames(t *testing.T) {
	infos := []ControllerInfo{{Name: "b"}, {Name: "a", Type: "position"}}
	assert.Equal(t, []string{"b", "a"}, Names(infos))
}
