package dynamixel

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/dxlhw/internal/debug"
)

const mockMemorySize = 256

// MockCall records one bus operation.
type MockCall struct {
	Op   string // "ping", "read", "write", "reboot", "clear"
	ID   uint8
	Addr uint16
	Data []byte
}

type mockServo struct {
	mem      [mockMemorySize]byte
	firmware uint8
}

// MockBus is an in-memory X-series chain used for development without
// hardware and for tests. Present values follow goal values while torque is
// enabled, and EEPROM items are write-protected while torque is on, like the
// real servos.
type MockBus struct {
	mu     sync.Mutex
	servos map[uint8]*mockServo
	calls  []MockCall
}

// NewMockBus creates an empty simulated bus.
func NewMockBus() *MockBus {
	debug.Info("Using MOCK dynamixel bus (development mode)")
	return &MockBus{servos: make(map[uint8]*mockServo)}
}

// AddServo attaches a simulated servo with the given id.
func (m *MockBus) AddServo(id uint8, model uint16, firmware uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &mockServo{firmware: firmware}
	m.servos[id] = s
	s.set(XSeries[ItemModelNumber], int32(model))
	s.set(XSeries[ItemFirmwareVersion], int32(firmware))
	s.set(XSeries["ID"], int32(id))
	s.set(XSeries[ItemOperatingMode], OperatingModePosition)
	s.set(XSeries[ItemCurrentLimit], 1193)
	s.set(XSeries["Velocity_Limit"], 200)
	s.set(XSeries[ItemPresentPosition], CenterPosition)
	s.set(XSeries[ItemGoalPosition], CenterPosition)
	s.set(XSeries["Present_Temperature"], 30)
	s.set(XSeries["Present_Input_Voltage"], 120)
}

func (s *mockServo) get(it Item) int32 {
	return DecodeValue(s.mem[it.Address : it.Address+it.Size])
}

func (s *mockServo) set(it Item, v int32) {
	copy(s.mem[it.Address:], EncodeValue(v, it.Size))
}

// simulate moves present values toward goals instantly while torque is on.
func (s *mockServo) simulate() {
	if s.get(XSeries[ItemTorqueEnable]) == 0 {
		s.set(XSeries[ItemPresentVelocity], 0)
		s.set(XSeries[ItemPresentCurrent], 0)
		return
	}
	switch s.get(XSeries[ItemOperatingMode]) {
	case OperatingModeCurrent:
		s.set(XSeries[ItemPresentCurrent], s.get(XSeries[ItemGoalCurrent]))
	case OperatingModeVelocity:
		s.set(XSeries[ItemPresentVelocity], s.get(XSeries[ItemGoalVelocity]))
	case OperatingModePosition, OperatingModeExtendedPosition, OperatingModeCurrentBasedPosition:
		s.set(XSeries[ItemPresentPosition], s.get(XSeries[ItemGoalPosition]))
		s.set(XSeries[ItemPresentVelocity], 0)
	}
}

func (m *MockBus) servo(op string, id uint8, addr uint16, data []byte) (*mockServo, error) {
	m.calls = append(m.calls, MockCall{Op: op, ID: id, Addr: addr, Data: append([]byte(nil), data...)})
	s, ok := m.servos[id]
	if !ok {
		return nil, fmt.Errorf("%w from id %d", ErrNoResponse, id)
	}
	return s, nil
}

// Ping implements Bus.
func (m *MockBus) Ping(id uint8) (PingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.servo("ping", id, 0, nil)
	if err != nil {
		return PingResult{}, err
	}
	return PingResult{Model: uint16(s.get(XSeries[ItemModelNumber])), Firmware: s.firmware}, nil
}

// Read implements Bus.
func (m *MockBus) Read(id uint8, addr, size uint16) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.servo("read", id, addr, nil)
	if err != nil {
		return nil, err
	}
	if int(addr)+int(size) > mockMemorySize {
		return nil, &StatusError{ID: id, Code: 0x07}
	}
	s.simulate()
	return append([]byte(nil), s.mem[addr:addr+size]...), nil
}

// Write implements Bus.
func (m *MockBus) Write(id uint8, addr uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.servo("write", id, addr, data)
	if err != nil {
		return err
	}
	if int(addr)+len(data) > mockMemorySize {
		return &StatusError{ID: id, Code: 0x07}
	}
	if addr < torqueLockedBelow && s.get(XSeries[ItemTorqueEnable]) != 0 {
		return &StatusError{ID: id, Code: 0x07}
	}
	copy(s.mem[addr:], data)
	return nil
}

// Reboot implements Bus.
func (m *MockBus) Reboot(id uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.servo("reboot", id, 0, nil)
	if err != nil {
		return err
	}
	s.set(XSeries[ItemTorqueEnable], 0)
	s.set(XSeries[ItemHardwareErrorStatus], 0)
	return nil
}

// ClearMultiTurn implements Bus.
func (m *MockBus) ClearMultiTurn(id uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.servo("clear", id, 0, nil)
	if err != nil {
		return err
	}
	pos := s.get(XSeries[ItemPresentPosition]) % TicksPerRevolution
	if pos < 0 {
		pos += TicksPerRevolution
	}
	s.set(XSeries[ItemPresentPosition], pos)
	s.set(XSeries[ItemGoalPosition], pos)
	return nil
}

// Close implements Bus.
func (m *MockBus) Close() error {
	debug.Trace("dynamixel bus Close (mock)")
	return nil
}

// Calls returns a copy of the recorded operations.
func (m *MockBus) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// ResetCalls forgets recorded operations.
func (m *MockBus) ResetCalls() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

// Item returns the raw value of a named item of servo id (0 if unknown).
func (m *MockBus) Item(id uint8, name string) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.servos[id]
	if !ok {
		return 0
	}
	it, ok := XSeries[name]
	if !ok {
		return 0
	}
	return s.get(it)
}

// SetItem forces the raw value of a named item of servo id, bypassing write protection.
func (m *MockBus) SetItem(id uint8, name string, v int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.servos[id]; ok {
		if it, ok := XSeries[name]; ok {
			s.set(it, v)
		}
	}
}
