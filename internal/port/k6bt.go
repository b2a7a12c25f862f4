// internal/port/k6bt.go
package port

import (
	"bytes"
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// K6-Bt Bluetooth adapter in-band command bytes
const (
	k6btEscape         byte = 0xa5
	k6btChangeBaudRate byte = 0x20
	k6btFlushBuffers   byte = 0x40
)

// K6BtPort drives a K6-Bt Bluetooth adapter sitting between us and the
// instrument. Commands for the adapter are prefixed with an escape byte;
// escape bytes in payload data are sent twice.
type K6BtPort struct {
	port Port
	baud atomic.Uint32
}

// NewK6BtPort wraps port and configures the adapter for baud
func NewK6BtPort(port Port, baud uint) (*K6BtPort, error) {
	p := &K6BtPort{port: port}
	if err := p.SetBaudrate(baud); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *K6BtPort) sendCommand(cmd byte) error {
	_, err := p.port.Write([]byte{k6btEscape, cmd})
	return err
}

func (p *K6BtPort) Write(data []byte) (int, error) {
	total := 0
	for {
		i := bytes.IndexByte(data, k6btEscape)
		if i < 0 {
			break
		}

		chunk := data[:i+1]
		n, err := p.port.Write(chunk)
		total += n
		if err != nil || n != len(chunk) {
			return total, err
		}

		// the doubled escape byte is not counted
		if _, err := p.port.Write(data[i : i+1]); err != nil {
			return total, err
		}
		data = data[i+1:]
	}

	if len(data) > 0 {
		n, err := p.port.Write(data)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *K6BtPort) Flush() {
	p.port.Flush()
	// flush the adapter's RX and TX buffers
	p.sendCommand(k6btFlushBuffers | 0x3)
}

func k6btBaudCode(baud uint) (byte, bool) {
	switch baud {
	case 2400:
		return 0x0, true
	case 4800:
		return 0x1, true
	case 9600:
		return 0x2, true
	case 19200:
		return 0x3, true
	case 38400:
		return 0x4, true
	case 57600:
		return 0x5, true
	case 115200:
		return 0x6, true
	}
	return 0, false
}

func (p *K6BtPort) SetBaudrate(baud uint) error {
	code, ok := k6btBaudCode(baud)
	if !ok {
		return fmt.Errorf("baud rate %d not supported by K6-Bt", baud)
	}
	if err := p.sendCommand(k6btChangeBaudRate | code); err != nil {
		return err
	}
	p.baud.Store(uint32(baud))
	return nil
}

func (p *K6BtPort) GetBaudrate() uint {
	return uint(p.baud.Load())
}

func (p *K6BtPort) State() State                              { return p.port.State() }
func (p *K6BtPort) Drain() error                              { return p.port.Drain() }
func (p *K6BtPort) StopRxThread() error                       { return p.port.StopRxThread() }
func (p *K6BtPort) StartRxThread() error                      { return p.port.StartRxThread() }
func (p *K6BtPort) Read(buf []byte) (int, error)              { return p.port.Read(buf) }
func (p *K6BtPort) WaitRead(timeout time.Duration) WaitResult { return p.port.WaitRead(timeout) }
func (p *K6BtPort) Stats() Stats                              { return p.port.Stats() }
func (p *K6BtPort) Close() error                              { return p.port.Close() }
