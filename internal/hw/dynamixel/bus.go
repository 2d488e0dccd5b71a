package dynamixel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cjeanneret/dxlhw/internal/debug"
)

// ErrNoResponse is returned when no device answers an instruction.
var ErrNoResponse = errors.New("dynamixel: no response")

// PingResult is what a device reports when pinged.
type PingResult struct {
	Model    uint16
	Firmware uint8
}

// Bus is the register-level access to a chain of servos.
// This allows plugging in a real serial link or an in-memory simulator.
type Bus interface {
	Ping(id uint8) (PingResult, error)
	Read(id uint8, addr, size uint16) ([]byte, error)
	Write(id uint8, addr uint16, data []byte) error
	Reboot(id uint8) error
	ClearMultiTurn(id uint8) error
	Close() error
}

// Client speaks protocol 2.0 over any byte stream (serial port, pipe, test buffer).
type Client struct {
	mu     sync.Mutex
	port   io.ReadWriter
	closer io.Closer
}

// NewClient creates a client over port. If port also implements io.Closer,
// Close closes it.
func NewClient(port io.ReadWriter) *Client {
	c := &Client{port: port}
	if cl, ok := port.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

// transact sends one instruction and waits for its status packet.
// Broadcast instructions return a nil status.
func (c *Client) transact(id uint8, inst Instruction, params []byte) (*Status, error) {
	pkt := EncodeInstruction(id, inst, params)

	// Keep the write/read pair in one critical section so replies are not interleaved
	c.mu.Lock()
	defer c.mu.Unlock()

	debug.Packet("tx", pkt)
	if _, err := c.port.Write(pkt); err != nil {
		return nil, fmt.Errorf("write instruction 0x%02X to id %d: %w", byte(inst), id, err)
	}
	if id == BroadcastID {
		return nil, nil
	}

	st, err := ReadStatus(c.port)
	if err != nil {
		if errors.Is(err, ErrCRC) || errors.Is(err, ErrMalformed) {
			return nil, fmt.Errorf("read status from id %d: %w", id, err)
		}
		// EOF, port timeout or garbage without a header all mean nobody answered
		return nil, fmt.Errorf("%w from id %d: %v", ErrNoResponse, id, err)
	}
	debug.Trace("rx status id=%d err=0x%02X params=% X", st.ID, st.Error, st.Params)

	if st.ID != id {
		return nil, fmt.Errorf("%w: expected id %d, got %d", ErrMalformed, id, st.ID)
	}
	if code := st.Error & statusErrorMask; code != 0 {
		return st, &StatusError{ID: id, Code: code}
	}
	if st.Alert() {
		debug.Warn("dynamixel: id %d reports a hardware error alert", id)
	}
	return st, nil
}

// Ping checks that id answers and returns its model number and firmware version.
func (c *Client) Ping(id uint8) (PingResult, error) {
	st, err := c.transact(id, InstPing, nil)
	if err != nil {
		return PingResult{}, err
	}
	if len(st.Params) < 3 {
		return PingResult{}, fmt.Errorf("%w: ping reply has %d params", ErrMalformed, len(st.Params))
	}
	return PingResult{
		Model:    binary.LittleEndian.Uint16(st.Params[0:2]),
		Firmware: st.Params[2],
	}, nil
}

// Read reads size bytes starting at addr.
func (c *Client) Read(id uint8, addr, size uint16) ([]byte, error) {
	params := make([]byte, 4)
	binary.LittleEndian.PutUint16(params[0:], addr)
	binary.LittleEndian.PutUint16(params[2:], size)

	st, err := c.transact(id, InstRead, params)
	if err != nil {
		return nil, err
	}
	if len(st.Params) != int(size) {
		return nil, fmt.Errorf("%w: read %d bytes, want %d", ErrMalformed, len(st.Params), size)
	}
	return st.Params, nil
}

// Write writes data starting at addr.
func (c *Client) Write(id uint8, addr uint16, data []byte) error {
	params := make([]byte, 2, 2+len(data))
	binary.LittleEndian.PutUint16(params, addr)
	params = append(params, data...)

	_, err := c.transact(id, InstWrite, params)
	return err
}

// Reboot restarts the device.
func (c *Client) Reboot(id uint8) error {
	_, err := c.transact(id, InstReboot, nil)
	return err
}

// ClearMultiTurn resets the revolution count of the present position.
func (c *Client) ClearMultiTurn(id uint8) error {
	_, err := c.transact(id, InstClear, clearMultiTurnParams)
	return err
}

// Close closes the underlying port if it is closable.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
