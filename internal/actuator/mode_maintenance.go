package actuator

import (
	"time"

	"github.com/cjeanneret/dxlhw/internal/debug"
)

// torqueDisableMode leaves the joint limp while still reporting its state.
type torqueDisableMode struct{ base }

func (m *torqueDisableMode) Starting() {
	m.resetCache()
	m.torque(false)
}

func (m *torqueDisableMode) Read(time.Time, time.Duration) { m.readState() }

func (m *torqueDisableMode) Write(time.Time, time.Duration) {}

// rebootMode restarts the servo, clearing hardware errors. The servo does not
// answer until it has booted again, so no state is read.
type rebootMode struct{ base }

func (m *rebootMode) Starting() {
	debug.Actuator(m.st.Name, m.st.ID, "rebooting servo")
	if err := m.st.dev.Reboot(); err != nil {
		m.fail(err)
	}
}

func (m *rebootMode) Stopping() {}

func (m *rebootMode) Read(time.Time, time.Duration) {}

func (m *rebootMode) Write(time.Time, time.Duration) {}

// clearMultiTurnMode resets the revolution count of extended position mode.
type clearMultiTurnMode struct{ base }

func (m *clearMultiTurnMode) Starting() {
	m.resetCache()
	if !m.torque(false) {
		return
	}
	if err := m.st.dev.ClearMultiTurn(); err != nil {
		m.fail(err)
	}
}

func (m *clearMultiTurnMode) Read(time.Time, time.Duration) { m.readState() }

func (m *clearMultiTurnMode) Write(time.Time, time.Duration) {}
