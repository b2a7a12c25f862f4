// internal/port/port.go
package port

import (
	"errors"
	"time"
)

// WaitResult is the outcome of waiting for inbound data
type WaitResult int

const (
	WaitReady WaitResult = iota
	WaitTimeout
	WaitFailed
	WaitCancelled
)

func (r WaitResult) String() string {
	switch r {
	case WaitReady:
		return "ready"
	case WaitTimeout:
		return "timeout"
	case WaitFailed:
		return "failed"
	case WaitCancelled:
		return "cancelled"
	}
	return "unknown"
}

// State is the health of the underlying transport
type State int

const (
	StateReady State = iota
	StateLimbo
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateLimbo:
		return "limbo"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrTimeout         = errors.New("port timeout")
	ErrFailed          = errors.New("port failed")
	ErrClosed          = errors.New("port closed")
	ErrNotConnected    = errors.New("port has no connected peer")
	ErrUnsupportedPort = errors.New("port type not supported on this platform")
)

// Handler receives inbound bytes from the port's receive goroutine
type Handler interface {
	DataReceived(data []byte)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(data []byte)

func (f HandlerFunc) DataReceived(data []byte) {
	f(data)
}

// Port is a byte oriented duplex channel to an instrument. While the
// receive goroutine runs, inbound bytes go to the Handler; while it is
// stopped they are buffered for Read and WaitRead.
type Port interface {
	State() State

	// Write makes a single attempt; n == 0 with an error is an I/O failure
	Write(p []byte) (int, error)

	// Drain blocks until all written bytes left the device
	Drain() error

	// Flush discards buffered inbound bytes
	Flush()

	SetBaudrate(baud uint) error
	GetBaudrate() uint

	// StopRxThread is safe when not running; no handler call happens
	// after it returns.
	StopRxThread() error
	StartRxThread() error

	// Read makes a single attempt, waiting at most the receive timeout
	Read(p []byte) (int, error)

	WaitRead(timeout time.Duration) WaitResult

	Stats() Stats

	Close() error
}

// Stats provides port level statistics
type Stats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	LastActivity time.Time `json:"last_activity"`
	State        string    `json:"state"`
}
