package actuator

import (
	"time"

	"github.com/cjeanneret/dxlhw/internal/hw/dynamixel"
)

// currentMode drives the servo by goal current computed from the effort command.
type currentMode struct{ base }

func (m *currentMode) Starting() {
	if !m.enter(dynamixel.OperatingModeCurrent) {
		return
	}
	m.readState()
	m.st.EffCmd = 0
}

func (m *currentMode) Read(time.Time, time.Duration) { m.readState() }

func (m *currentMode) Write(time.Time, time.Duration) {
	m.writeEffort()
	m.writeAdditionalCommands()
}

// velocityMode drives the servo by goal velocity.
type velocityMode struct{ base }

func (m *velocityMode) Starting() {
	if !m.enter(dynamixel.OperatingModeVelocity) {
		return
	}
	m.readState()
	m.st.VelCmd = 0
}

func (m *velocityMode) Read(time.Time, time.Duration) { m.readState() }

func (m *velocityMode) Write(time.Time, time.Duration) {
	m.writeVelocity()
	m.writeAdditionalCommands()
}

// extendedPositionMode drives the servo by multi-turn goal position.
// The position command starts at the present position so the joint holds.
type extendedPositionMode struct{ base }

func (m *extendedPositionMode) Starting() {
	if !m.enter(dynamixel.OperatingModeExtendedPosition) {
		return
	}
	if m.readState() {
		m.st.PosCmd = m.st.Pos
	}
}

func (m *extendedPositionMode) Read(time.Time, time.Duration) { m.readState() }

func (m *extendedPositionMode) Write(time.Time, time.Duration) {
	m.writePosition()
	m.writeAdditionalCommands()
}

// currentBasedPositionMode drives the servo by goal position with the effort
// command acting as a current limit.
type currentBasedPositionMode struct{ base }

func (m *currentBasedPositionMode) Starting() {
	if !m.enter(dynamixel.OperatingModeCurrentBasedPosition) {
		return
	}
	if m.readState() {
		m.st.PosCmd = m.st.Pos
	}
	limit, err := m.st.dev.ReadItem(dynamixel.ItemCurrentLimit)
	if err != nil {
		m.fail(err)
		return
	}
	m.st.EffCmd = dynamixel.CurrentToAmpere(limit) * m.st.TorqueConstant
}

func (m *currentBasedPositionMode) Read(time.Time, time.Duration) { m.readState() }

func (m *currentBasedPositionMode) Write(time.Time, time.Duration) {
	m.writeEffort()
	m.writePosition()
	m.writeAdditionalCommands()
}
