// internal/port/porttest/port.go
package porttest

import (
	"bytes"
	"errors"
	"sync"

	"glider-device-service/internal/port"
)

// ErrWriteFailed is returned by Write once FailWrites is set
var ErrWriteFailed = errors.New("scripted write failure")

// Port is an in-memory port.Port for driver tests. Bytes written by the
// code under test are recorded and passed to OnWrite, which may answer
// through Feed.
type Port struct {
	*port.Buffered

	// OnWrite runs outside the port lock for every Write call
	OnWrite func(p *Port, data []byte)

	mu         sync.Mutex
	written    bytes.Buffer
	writes     [][]byte
	baud       uint
	bauds      []uint
	failWrites bool
	closed     bool
	flushes    int
}

// New creates a mock port at baud delivering received data to handler
func New(baud uint, handler port.Handler) *Port {
	return &Port{
		Buffered: port.NewBuffered(handler),
		baud:     baud,
	}
}

func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.failWrites {
		p.mu.Unlock()
		return 0, ErrWriteFailed
	}
	chunk := append([]byte(nil), data...)
	p.written.Write(chunk)
	p.writes = append(p.writes, chunk)
	hook := p.OnWrite
	p.mu.Unlock()

	p.CountWritten(len(data))
	if hook != nil {
		hook(p, chunk)
	}
	return len(data), nil
}

func (p *Port) Drain() error {
	return nil
}

func (p *Port) Flush() {
	p.mu.Lock()
	p.flushes++
	p.mu.Unlock()
	p.Buffered.Flush()
}

func (p *Port) SetBaudrate(baud uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baud = baud
	p.bauds = append(p.bauds, baud)
	return nil
}

func (p *Port) GetBaudrate() uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baud
}

func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.StopRxThread()
	p.Shutdown()
	return nil
}

// FeedString queues s as inbound data
func (p *Port) FeedString(s string) {
	p.Feed([]byte(s))
}

// Fail marks the transport as broken
func (p *Port) Fail() {
	p.SetFailed()
}

// FailWrites makes every following Write fail
func (p *Port) FailWrites(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWrites = fail
}

// Written returns everything written so far
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

// WrittenString returns everything written so far as a string
func (p *Port) WrittenString() string {
	return string(p.Written())
}

// Writes returns the individual Write calls
func (p *Port) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// ResetWritten forgets recorded writes
func (p *Port) ResetWritten() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written.Reset()
	p.writes = nil
}

// BaudHistory returns every rate passed to SetBaudrate
func (p *Port) BaudHistory() []uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint(nil), p.bauds...)
}

// IsClosed reports whether Close was called
func (p *Port) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Flushes counts Flush calls
func (p *Port) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

var _ port.Port = (*Port)(nil)
