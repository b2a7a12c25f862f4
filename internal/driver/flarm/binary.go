// internal/driver/flarm/binary.go
package flarm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"glider-device-service/internal/bulk"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
)

const (
	startFrame byte = 0x73
	escape     byte = 0x78
	escEscape  byte = 0x55
	escStart   byte = 0x31

	frameVersion    byte = 0
	frameHeaderSize      = 8
)

// Binary frame types
const (
	frameTypeAck   byte = 0xA0
	frameTypeNack  byte = 0xB7
	frameTypePing  byte = 0x01
	frameTypeReset byte = 0x12
	frameTypeExit  byte = 0x14
)

var errNack = errors.New("frame rejected by FLARM")

// frameHeader is the little endian header of every binary frame
type frameHeader struct {
	Length   uint16
	Version  byte
	Sequence uint16
	Type     byte
	CRC      uint16
}

func (h frameHeader) marshal() []byte {
	buf := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:], h.Length)
	buf[2] = h.Version
	binary.LittleEndian.PutUint16(buf[3:], h.Sequence)
	buf[5] = h.Type
	binary.LittleEndian.PutUint16(buf[6:], h.CRC)
	return buf
}

func unmarshalHeader(buf []byte) frameHeader {
	return frameHeader{
		Length:   binary.LittleEndian.Uint16(buf[0:]),
		Version:  buf[2],
		Sequence: binary.LittleEndian.Uint16(buf[3:]),
		Type:     buf[5],
		CRC:      binary.LittleEndian.Uint16(buf[6:]),
	}
}

// frameCRC covers the header without its CRC field plus the payload
func frameCRC(h frameHeader, payload []byte) uint16 {
	data := append(h.marshal()[:6], payload...)
	return bulk.CalculateCRC(data)
}

// escapeFrame stuffs start and escape bytes in data
func escapeFrame(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for _, b := range data {
		switch b {
		case startFrame:
			out = append(out, escape, escStart)
		case escape:
			out = append(out, escape, escEscape)
		default:
			out = append(out, b)
		}
	}
	return out
}

// encodeFrame builds a complete frame including the start byte
func encodeFrame(frameType byte, sequence uint16, payload []byte) []byte {
	h := frameHeader{
		Length:   uint16(frameHeaderSize + len(payload)),
		Version:  frameVersion,
		Sequence: sequence,
		Type:     frameType,
	}
	h.CRC = frameCRC(h, payload)

	frame := []byte{startFrame}
	frame = append(frame, escapeFrame(h.marshal())...)
	return append(frame, escapeFrame(payload)...)
}

func (d *Device) sendFrame(frameType byte, payload []byte) error {
	return port.FullWrite(d.port, encodeFrame(frameType, d.nextSequence(), payload), 2*time.Second)
}

// readEscaped reads n unescaped bytes
func (d *Device) readEscaped(n int, env operation.Env, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, n)
	var c [1]byte
	for len(out) < n {
		if err := port.FullRead(d.port, env, c[:], timeout); err != nil {
			return nil, err
		}
		b := c[0]
		if b == startFrame {
			return nil, fmt.Errorf("unexpected start of frame")
		}
		if b == escape {
			if err := port.FullRead(d.port, env, c[:], timeout); err != nil {
				return nil, err
			}
			switch c[0] {
			case escStart:
				b = startFrame
			case escEscape:
				b = escape
			default:
				return nil, fmt.Errorf("invalid escape sequence 0x%02x", c[0])
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// waitForAck waits for the answer to the frame with the given sequence
func (d *Device) waitForAck(sequence uint16, env operation.Env, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return port.ErrTimeout
		}
		if err := port.WaitResultError(port.WaitForChar(d.port, startFrame, env, remaining)); err != nil {
			return err
		}

		raw, err := d.readEscaped(frameHeaderSize, env, remaining)
		if err != nil {
			continue
		}
		h := unmarshalHeader(raw)
		if h.Length < frameHeaderSize {
			continue
		}

		payload, err := d.readEscaped(int(h.Length)-frameHeaderSize, env, remaining)
		if err != nil || frameCRC(h, payload) != h.CRC {
			continue
		}

		if len(payload) < 2 || binary.LittleEndian.Uint16(payload) != sequence {
			continue
		}
		switch h.Type {
		case frameTypeAck:
			return nil
		case frameTypeNack:
			return errNack
		}
	}
}

// BinaryMode switches the unit to the binary protocol and checks it
// answers a ping
func (d *Device) BinaryMode(env operation.Env) error {
	if d.Mode() == ModeBinary {
		return nil
	}

	if err := port.WriteNMEA(d.port, "PFLAX"); err != nil {
		return err
	}
	if !env.Sleep(d.resetDelay) {
		return operation.ErrCancelled
	}
	d.port.Flush()

	sequence := d.nextSequence()
	if err := port.FullWrite(d.port, encodeFrame(frameTypePing, sequence, nil), 2*time.Second); err != nil {
		return err
	}
	if err := d.waitForAck(sequence, env, d.configTimeout); err != nil {
		d.setMode(ModeUnknown)
		return fmt.Errorf("FLARM did not answer ping: %w", err)
	}

	d.setMode(ModeBinary)
	return nil
}
