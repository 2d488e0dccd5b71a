package gpio

import (
	"fmt"
	"time"

	"github.com/cjeanneret/dxlhw/internal/debug"
)

// PowerSettle is how long servos need after power-up before they answer pings.
const PowerSettle = 500 * time.Millisecond

// PowerRail switches the servo supply through one active-HIGH output pin.
type PowerRail struct {
	drv Driver
	pin int
}

// NewPowerRail configures pin as an output and leaves the supply off.
func NewPowerRail(drv Driver, pin int) (*PowerRail, error) {
	if err := drv.SetupPin(pin, Output); err != nil {
		return nil, fmt.Errorf("setup power pin %d: %w", pin, err)
	}
	p := &PowerRail{drv: drv, pin: pin}
	if err := p.Off(); err != nil {
		return nil, err
	}
	return p, nil
}

// On powers the servos and waits settle before returning.
func (p *PowerRail) On(settle time.Duration) error {
	debug.Info("Servo power ON (pin %d)", p.pin)
	if err := p.drv.WritePin(p.pin, High); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	time.Sleep(settle)
	return nil
}

// Off cuts the servo supply.
func (p *PowerRail) Off() error {
	debug.Verbose("Servo power OFF (pin %d)", p.pin)
	if err := p.drv.WritePin(p.pin, Low); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	return nil
}

// IsOn reads back the rail state.
func (p *PowerRail) IsOn() (bool, error) {
	l, err := p.drv.ReadPin(p.pin)
	return l == High, err
}
