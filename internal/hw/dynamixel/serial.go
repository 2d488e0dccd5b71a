package dynamixel

import (
	"fmt"
	"time"

	"github.com/goburrow/serial"

	"github.com/cjeanneret/dxlhw/internal/debug"
)

// SerialConfig describes the USB/TTL link to the servo chain.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration // per-read timeout; a missing reply surfaces as ErrNoResponse
}

// OpenSerial opens the serial port and returns a protocol 2.0 client on it.
func OpenSerial(cfg SerialConfig) (*Client, error) {
	debug.Info("Opening serial port %s at %d baud", cfg.Port, cfg.BaudRate)

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}

	return NewClient(port), nil
}
