package dynamixel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Item names used throughout the hardware layer.
const (
	ItemModelNumber         = "Model_Number"
	ItemFirmwareVersion     = "Firmware_Version"
	ItemOperatingMode       = "Operating_Mode"
	ItemCurrentLimit        = "Current_Limit"
	ItemTorqueEnable        = "Torque_Enable"
	ItemGoalCurrent         = "Goal_Current"
	ItemGoalVelocity        = "Goal_Velocity"
	ItemGoalPosition        = "Goal_Position"
	ItemPresentCurrent      = "Present_Current"
	ItemPresentVelocity     = "Present_Velocity"
	ItemPresentPosition     = "Present_Position"
	ItemHardwareErrorStatus = "Hardware_Error_Status"
)

// Operating_Mode register values.
const (
	OperatingModeCurrent              = 0
	OperatingModeVelocity             = 1
	OperatingModePosition             = 3
	OperatingModeExtendedPosition     = 4
	OperatingModeCurrentBasedPosition = 5
	OperatingModePWM                  = 16
)

// torqueLockedBelow is the first RAM address; EEPROM items below it are
// write-protected while torque is enabled.
const torqueLockedBelow = 64

var ErrUnknownItem = errors.New("dynamixel: unknown control table item")

// Item is one named entry of a control table.
type Item struct {
	Name    string
	Address uint16
	Size    uint16
}

// ControlTable maps item names to their location.
type ControlTable map[string]Item

// Item looks up a named item.
func (t ControlTable) Item(name string) (Item, error) {
	it, ok := t[name]
	if !ok {
		return Item{}, fmt.Errorf("%w: %q", ErrUnknownItem, name)
	}
	return it, nil
}

// XSeries is the protocol 2.0 control table shared by XM/XH/XW/XC servos.
var XSeries = newControlTable([]Item{
	{ItemModelNumber, 0, 2},
	{"Model_Information", 2, 4},
	{ItemFirmwareVersion, 6, 1},
	{"ID", 7, 1},
	{"Baud_Rate", 8, 1},
	{"Return_Delay_Time", 9, 1},
	{"Drive_Mode", 10, 1},
	{ItemOperatingMode, 11, 1},
	{"Secondary_ID", 12, 1},
	{"Protocol_Type", 13, 1},
	{"Homing_Offset", 20, 4},
	{"Moving_Threshold", 24, 4},
	{"Temperature_Limit", 31, 1},
	{"Max_Voltage_Limit", 32, 2},
	{"Min_Voltage_Limit", 34, 2},
	{"PWM_Limit", 36, 2},
	{ItemCurrentLimit, 38, 2},
	{"Velocity_Limit", 44, 4},
	{"Max_Position_Limit", 48, 4},
	{"Min_Position_Limit", 52, 4},
	{"Shutdown", 63, 1},
	{ItemTorqueEnable, 64, 1},
	{"LED", 65, 1},
	{"Status_Return_Level", 68, 1},
	{"Registered_Instruction", 69, 1},
	{ItemHardwareErrorStatus, 70, 1},
	{"Velocity_I_Gain", 76, 2},
	{"Velocity_P_Gain", 78, 2},
	{"Position_D_Gain", 80, 2},
	{"Position_I_Gain", 82, 2},
	{"Position_P_Gain", 84, 2},
	{"Feedforward_2nd_Gain", 88, 2},
	{"Feedforward_1st_Gain", 90, 2},
	{"Bus_Watchdog", 98, 1},
	{"Goal_PWM", 100, 2},
	{ItemGoalCurrent, 102, 2},
	{ItemGoalVelocity, 104, 4},
	{"Profile_Acceleration", 108, 4},
	{"Profile_Velocity", 112, 4},
	{ItemGoalPosition, 116, 4},
	{"Realtime_Tick", 120, 2},
	{"Moving", 122, 1},
	{"Moving_Status", 123, 1},
	{"Present_PWM", 124, 2},
	{ItemPresentCurrent, 126, 2},
	{ItemPresentVelocity, 128, 4},
	{ItemPresentPosition, 132, 4},
	{"Velocity_Trajectory", 136, 4},
	{"Position_Trajectory", 140, 4},
	{"Present_Input_Voltage", 144, 2},
	{"Present_Temperature", 146, 1},
})

func newControlTable(items []Item) ControlTable {
	t := make(ControlTable, len(items))
	for _, it := range items {
		t[it.Name] = it
	}
	return t
}

// DecodeValue converts little-endian register bytes to a value.
// One-byte items are unsigned; two and four byte items are signed.
func DecodeValue(data []byte) int32 {
	switch len(data) {
	case 1:
		return int32(data[0])
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(data)))
	case 4:
		return int32(binary.LittleEndian.Uint32(data))
	default:
		return 0
	}
}

// EncodeValue converts a value to little-endian register bytes of the given size.
func EncodeValue(value int32, size uint16) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(value))
	if size > 4 {
		size = 4
	}
	return buf[:size]
}
