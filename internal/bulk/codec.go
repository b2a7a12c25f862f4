// internal/bulk/codec.go
package bulk

import (
	"errors"
	"fmt"
)

// Control codes shared by the bulk transfer protocols
const (
	STX byte = 0x02
	ETX byte = 0x03
	ENQ byte = 0x05
	ACK byte = 0x06
	DLE byte = 0x10
	CAN byte = 0x18
)

var (
	ErrCRC      = errors.New("bulk frame CRC mismatch")
	ErrOverflow = errors.New("bulk frame exceeds buffer")
)

// Encode frames payload as DLE STX, the DLE-stuffed payload and CRC,
// then DLE ETX.
func Encode(payload []byte) []byte {
	crc := CalculateCRC(payload)

	out := make([]byte, 0, len(payload)+8)
	out = append(out, DLE, STX)
	for _, b := range payload {
		out = appendStuffed(out, b)
	}
	out = appendStuffed(out, byte(crc>>8))
	out = appendStuffed(out, byte(crc))
	return append(out, DLE, ETX)
}

func appendStuffed(out []byte, b byte) []byte {
	if b == DLE {
		return append(out, DLE, DLE)
	}
	return append(out, b)
}

const (
	stateIdle = iota
	stateFrame
)

// Decoder reassembles one bulk frame byte by byte. A doubled DLE is a
// literal DLE; DLE STX starts a frame and resets the CRC; DLE ETX ends it.
type Decoder struct {
	state         int
	escapePending bool
	buffer        []byte
	maxSize       int
	crc           uint16
	done          bool
}

// NewDecoder creates a decoder accepting frames up to maxSize bytes
// including the two CRC bytes.
func NewDecoder(maxSize int) *Decoder {
	return &Decoder{
		buffer:  make([]byte, 0, maxSize),
		maxSize: maxSize,
	}
}

// Reset discards the current frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escapePending = false
	d.buffer = d.buffer[:0]
	d.crc = crcInitial
	d.done = false
}

// Feed processes one received byte and reports whether the frame ended.
// A DLE in front of an ordinary byte stays pending until the next DLE,
// STX or ETX, so a stray DLE turns the following control byte into a
// frame delimiter.
func (d *Decoder) Feed(b byte) (bool, error) {
	if d.done {
		return true, nil
	}

	switch b {
	case DLE:
		if !d.escapePending {
			d.escapePending = true
			return false, nil
		}
		d.escapePending = false
		return false, d.store(b)

	case STX:
		if d.escapePending {
			d.escapePending = false
			d.state = stateFrame
			d.buffer = d.buffer[:0]
			d.crc = crcInitial
			return false, nil
		}

	case ETX:
		if d.escapePending && d.state == stateFrame {
			d.escapePending = false
			d.state = stateIdle
			d.done = true
			return true, nil
		}
		if d.escapePending {
			return false, nil
		}
	}
	return false, d.store(b)
}

func (d *Decoder) store(b byte) error {
	if d.state != stateFrame {
		return nil
	}
	if len(d.buffer) >= d.maxSize {
		d.Reset()
		return ErrOverflow
	}
	d.buffer = append(d.buffer, b)
	d.crc = UpdateCRC16(d.crc, b)
	return nil
}

// Done reports whether a complete frame was received
func (d *Decoder) Done() bool {
	return d.done
}

// Len returns the number of frame bytes received so far
func (d *Decoder) Len() int {
	return len(d.buffer)
}

// Payload returns the frame contents without the CRC. A frame shorter
// than the CRC is empty; a non-zero CRC residual is an error.
func (d *Decoder) Payload() ([]byte, error) {
	if !d.done {
		return nil, fmt.Errorf("bulk frame incomplete after %d bytes", len(d.buffer))
	}
	if d.crc != 0 {
		return nil, ErrCRC
	}
	if len(d.buffer) < 2 {
		return []byte{}, nil
	}
	return d.buffer[:len(d.buffer)-2], nil
}

// Decode runs a complete encoded frame through a fresh decoder
func Decode(frame []byte) ([]byte, error) {
	d := NewDecoder(len(frame))
	for _, b := range frame {
		done, err := d.Feed(b)
		if err != nil {
			return nil, err
		}
		if done {
			payload, err := d.Payload()
			if err != nil {
				return nil, err
			}
			return append([]byte(nil), payload...), nil
		}
	}
	return nil, fmt.Errorf("bulk frame incomplete after %d bytes", len(frame))
}
