// internal/port/serial.go
package port

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// serialHandle is the subset of serial.Port used here
type serialHandle interface {
	SetMode(mode *serial.Mode) error
	SetReadTimeout(timeout time.Duration) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	ResetInputBuffer() error
	Close() error
}

// allow tests to override the device access
var openSerialHandle = func(path string, mode *serial.Mode) (serialHandle, error) {
	return serial.Open(path, mode)
}

// DefaultBaudRate is the NMEA 0183 standard rate
const DefaultBaudRate = 4800

// pollInterval bounds how long the receive goroutine blocks in Read
const pollInterval = 100 * time.Millisecond

// SerialPort is a TTY opened through go.bug.st/serial
type SerialPort struct {
	*Buffered

	path   string
	handle serialHandle
	logger *zap.Logger

	baud    atomic.Uint32
	writeMu sync.Mutex
	closing atomic.Bool
	wg      sync.WaitGroup
}

// OpenSerial opens path at baud and starts receiving
func OpenSerial(path string, baud uint, handler Handler, logger *zap.Logger) (*SerialPort, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}

	handle, err := openSerialHandle(path, serialMode(baud))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := handle.SetReadTimeout(pollInterval); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	p := &SerialPort{
		Buffered: NewBuffered(handler),
		path:     path,
		handle:   handle,
		logger: logger.With(
			zap.String("port", "serial"),
			zap.String("path", path),
		),
	}
	p.baud.Store(uint32(baud))

	p.wg.Add(1)
	go p.readLoop()

	p.logger.Info("Serial port opened", zap.Uint("baud_rate", baud))
	return p, nil
}

func serialMode(baud uint) *serial.Mode {
	return &serial.Mode{
		BaudRate: int(baud),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (p *SerialPort) readLoop() {
	defer p.wg.Done()

	buf := make([]byte, 1024)
	for !p.closing.Load() {
		n, err := p.handle.Read(buf)
		if err != nil {
			if p.closing.Load() {
				return
			}
			p.logger.Warn("Serial read failed", zap.Error(err))
			p.SetFailed()
			return
		}
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			p.Feed(data)
		}
	}
}

func (p *SerialPort) Write(data []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	n, err := p.handle.Write(data)
	p.CountWritten(n)
	if err != nil {
		p.logger.Warn("Serial write failed", zap.Error(err))
		p.SetFailed()
		return n, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return n, nil
}

func (p *SerialPort) Drain() error {
	return p.handle.Drain()
}

func (p *SerialPort) Flush() {
	if err := p.handle.ResetInputBuffer(); err != nil {
		p.logger.Debug("Failed to reset input buffer", zap.Error(err))
	}
	p.Buffered.Flush()
}

func (p *SerialPort) SetBaudrate(baud uint) error {
	if uint(p.baud.Load()) == baud {
		return nil
	}
	if err := p.handle.SetMode(serialMode(baud)); err != nil {
		return fmt.Errorf("failed to set baud rate %d: %w", baud, err)
	}
	p.baud.Store(uint32(baud))
	p.logger.Debug("Baud rate changed", zap.Uint("baud_rate", baud))
	return nil
}

func (p *SerialPort) GetBaudrate() uint {
	return uint(p.baud.Load())
}

// Path returns the device path
func (p *SerialPort) Path() string {
	return p.path
}

func (p *SerialPort) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}

	p.StopRxThread()
	err := p.handle.Close()
	p.wg.Wait()
	p.Shutdown()

	p.logger.Info("Serial port closed")
	return err
}
