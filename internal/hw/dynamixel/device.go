package dynamixel

import (
	"fmt"

	"github.com/cjeanneret/dxlhw/internal/debug"
)

// Device is one servo on a bus, addressed by id, with named register access.
type Device struct {
	bus      Bus
	id       uint8
	model    uint16
	firmware uint8
	table    ControlTable
}

// Find pings id on bus and returns a handle to the servo if it answers.
func Find(bus Bus, id int) (*Device, error) {
	if id < 0 || id > int(MaxID) {
		return nil, fmt.Errorf("dynamixel: id %d out of range 0-%d", id, MaxID)
	}

	res, err := bus.Ping(uint8(id))
	if err != nil {
		return nil, err
	}
	debug.Verbose("Found id %d: model %d, firmware %d", id, res.Model, res.Firmware)

	return &Device{
		bus:      bus,
		id:       uint8(id),
		model:    res.Model,
		firmware: res.Firmware,
		table:    XSeries,
	}, nil
}

// ID returns the bus id of the servo.
func (d *Device) ID() int { return int(d.id) }

// Model returns the model number reported at ping time.
func (d *Device) Model() uint16 { return d.model }

// Firmware returns the firmware version reported at ping time.
func (d *Device) Firmware() uint8 { return d.firmware }

// HasItem reports whether the control table knows name.
func (d *Device) HasItem(name string) bool {
	_, ok := d.table[name]
	return ok
}

// ReadItem reads a named control table item.
func (d *Device) ReadItem(name string) (int32, error) {
	it, err := d.table.Item(name)
	if err != nil {
		return 0, err
	}
	data, err := d.bus.Read(d.id, it.Address, it.Size)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	return DecodeValue(data), nil
}

// WriteItem writes a named control table item.
func (d *Device) WriteItem(name string, value int32) error {
	it, err := d.table.Item(name)
	if err != nil {
		return err
	}
	debug.Trace("id %d: %s <- %d", d.id, name, value)
	if err := d.bus.Write(d.id, it.Address, EncodeValue(value, it.Size)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Reboot restarts the servo. Torque is disabled afterwards.
func (d *Device) Reboot() error {
	return d.bus.Reboot(d.id)
}

// ClearMultiTurn resets the revolution count kept in extended position mode.
func (d *Device) ClearMultiTurn() error {
	return d.bus.ClearMultiTurn(d.id)
}
