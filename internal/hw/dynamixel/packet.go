package dynamixel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sigurn/crc16"
)

// Instruction is a protocol 2.0 instruction code.
type Instruction byte

const (
	InstPing   Instruction = 0x01
	InstRead   Instruction = 0x02
	InstWrite  Instruction = 0x03
	InstReboot Instruction = 0x08
	InstClear  Instruction = 0x10
	InstStatus Instruction = 0x55
)

const (
	BroadcastID uint8 = 0xFE
	MaxID       uint8 = 0xFC

	maxHeaderScan   = 1024
	statusMinLength = 4 // instruction + error + crc
	statusErrorMask = 0x7F
	statusAlertBit  = 0x80
)

var header = [4]byte{0xFF, 0xFF, 0xFD, 0x00}

// clearMultiTurnParams is the fixed parameter block of the Clear instruction
// that resets the multi-turn revolution count.
var clearMultiTurnParams = []byte{0x01, 0x44, 0x58, 0x4C, 0x22}

var (
	ErrCRC       = errors.New("dynamixel: crc mismatch")
	ErrMalformed = errors.New("dynamixel: malformed status packet")
	ErrNoHeader  = errors.New("dynamixel: no packet header found")
)

// Status is a decoded status packet.
type Status struct {
	ID     uint8
	Error  byte
	Params []byte
}

// Alert reports whether the device flagged a hardware error.
func (s *Status) Alert() bool {
	return s.Error&statusAlertBit != 0
}

// StatusError is returned when a status packet carries a non-zero error number.
type StatusError struct {
	ID   uint8
	Code byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dynamixel: id %d returned %s (0x%02X)", e.ID, statusErrorText(e.Code), e.Code)
}

func statusErrorText(code byte) string {
	switch code {
	case 0x01:
		return "result fail"
	case 0x02:
		return "instruction error"
	case 0x03:
		return "crc error"
	case 0x04:
		return "data range error"
	case 0x05:
		return "data length error"
	case 0x06:
		return "data limit error"
	case 0x07:
		return "access error"
	default:
		return "unknown error"
	}
}

// crcTable is CRC-16/BUYPASS: polynomial 0x8005, init 0, no reflection.
var crcTable = crc16.MakeTable(crc16.CRC16_BUYPASS)

// CRC16 computes the protocol 2.0 checksum.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// stuff inserts 0xFD after every FF FF FD sequence in the payload.
func stuff(p []byte) []byte {
	out := make([]byte, 0, len(p)+len(p)/3)
	for i, b := range p {
		out = append(out, b)
		if i >= 2 && p[i-2] == 0xFF && p[i-1] == 0xFF && b == 0xFD {
			out = append(out, 0xFD)
		}
	}
	return out
}

func unstuff(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		out = append(out, p[i])
		if i >= 2 && p[i-2] == 0xFF && p[i-1] == 0xFF && p[i] == 0xFD && i+1 < len(p) && p[i+1] == 0xFD {
			i++
		}
	}
	return out
}

// EncodeInstruction builds a complete instruction packet.
func EncodeInstruction(id uint8, inst Instruction, params []byte) []byte {
	stuffed := stuff(params)
	length := len(stuffed) + 3

	pkt := make([]byte, 0, len(header)+5+len(stuffed)+2)
	pkt = append(pkt, header[:]...)
	pkt = append(pkt, id, byte(length), byte(length>>8), byte(inst))
	pkt = append(pkt, stuffed...)

	crc := CRC16(pkt)
	return append(pkt, byte(crc), byte(crc>>8))
}

// EncodeStatus builds a status packet. Used by device simulators and tests.
func EncodeStatus(id uint8, errByte byte, params []byte) []byte {
	stuffed := stuff(params)
	length := len(stuffed) + statusMinLength

	pkt := make([]byte, 0, len(header)+6+len(stuffed)+2)
	pkt = append(pkt, header[:]...)
	pkt = append(pkt, id, byte(length), byte(length>>8), byte(InstStatus), errByte)
	pkt = append(pkt, stuffed...)

	crc := CRC16(pkt)
	return append(pkt, byte(crc), byte(crc>>8))
}

// ReadStatus scans r for a packet header and decodes the following status packet.
func ReadStatus(r io.Reader) (*Status, error) {
	var window [4]byte
	b := make([]byte, 1)
	found := false
	for i := 0; i < maxHeaderScan; i++ {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		window[0], window[1], window[2], window[3] = window[1], window[2], window[3], b[0]
		if window == header {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoHeader
	}

	head := make([]byte, 3)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("read id/length: %w", err)
	}
	length := int(binary.LittleEndian.Uint16(head[1:]))
	if length < statusMinLength {
		return nil, fmt.Errorf("%w: length %d", ErrMalformed, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	full := make([]byte, 0, len(header)+len(head)+len(body))
	full = append(full, header[:]...)
	full = append(full, head...)
	full = append(full, body...)

	n := len(full)
	want := binary.LittleEndian.Uint16(full[n-2:])
	if got := CRC16(full[:n-2]); got != want {
		return nil, fmt.Errorf("%w: got 0x%04X want 0x%04X", ErrCRC, got, want)
	}
	if Instruction(body[0]) != InstStatus {
		return nil, fmt.Errorf("%w: instruction 0x%02X", ErrMalformed, body[0])
	}

	return &Status{
		ID:     head[0],
		Error:  body[1],
		Params: unstuff(body[2 : length-2]),
	}, nil
}
