package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerRail_OnOff(t *testing.T) {
	drv := NewMockDriver()
	rail, err := NewPowerRail(drv, 26)
	require.NoError(t, err)

	on, err := rail.IsOn()
	require.NoError(t, err)
	assert.False(t, on, "rail starts off")

	require.NoError(t, rail.On(0))
	on, _ = rail.IsOn()
	assert.True(t, on)

	require.NoError(t, rail.Off())
	on, _ = rail.IsOn()
	assert.False(t, on)
}

func TestMockDriver_RejectsWriteToInput(t *testing.T) {
	drv := NewMockDriver()
	require.NoError(t, drv.SetupPin(4, Input))
	assert.Error(t, drv.WritePin(4, High))
}

func TestMockDriver_Closed(t *testing.T) {
	drv := NewMockDriver()
	rail, err := NewPowerRail(drv, 26)
	require.NoError(t, err)
	require.NoError(t, drv.Close())
	assert.Error(t, rail.On(0))
}

func TestNewDriver_Mock(t *testing.T) {
	drv, err := NewDriver(true)
	require.NoError(t, err)
	assert.IsType(t, &MockDriver{}, drv)
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "HIGH", High.String())
	assert.Equal(t, "LOW", Low.String())
}
