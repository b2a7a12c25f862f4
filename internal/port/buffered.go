// internal/port/buffered.go
package port

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"glider-device-service/internal/buffer"
)

const defaultBufferSize = 16 * 1024

// Buffered is the receive side shared by all port implementations. The
// transport goroutine calls Feed; Buffered either forwards the bytes to
// the Handler or queues them for synchronous reads.
type Buffered struct {
	handler Handler

	// deliverMu is held while the handler runs so that StopRxThread can
	// wait for an in-flight callback
	deliverMu sync.Mutex
	running   bool

	mu        sync.Mutex
	fifo      *buffer.Fifo
	available chan struct{}

	failed    atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once

	rxTimeout    atomic.Duration
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	lastActivity atomic.Time
}

// NewBuffered creates a receive core delivering to handler
func NewBuffered(handler Handler) *Buffered {
	return &Buffered{
		handler:   handler,
		fifo:      buffer.NewFifo(defaultBufferSize),
		available: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

// Feed hands inbound bytes from the transport to the handler or the fifo
func (b *Buffered) Feed(data []byte) {
	if len(data) == 0 {
		return
	}
	b.bytesRead.Add(int64(len(data)))
	b.lastActivity.Store(time.Now())

	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	if b.running && b.handler != nil {
		b.handler.DataReceived(data)
		return
	}

	// bytes that do not fit into a full fifo are dropped
	b.mu.Lock()
	b.fifo.Push(data)
	b.mu.Unlock()
	b.signal()
}

// CountWritten records bytes sent by the transport
func (b *Buffered) CountWritten(n int) {
	if n > 0 {
		b.bytesWritten.Add(int64(n))
		b.lastActivity.Store(time.Now())
	}
}

// SetFailed marks the transport as broken and wakes all waiters
func (b *Buffered) SetFailed() {
	b.failed.Store(true)
	b.signal()
}

// Shutdown wakes all waiters for good
func (b *Buffered) Shutdown() {
	b.closeOnce.Do(func() { close(b.closed) })
}

func (b *Buffered) signal() {
	select {
	case b.available <- struct{}{}:
	default:
	}
}

func (b *Buffered) State() State {
	if b.failed.Load() {
		return StateFailed
	}
	return StateReady
}

func (b *Buffered) StartRxThread() error {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.fifo.Clear()
	b.mu.Unlock()

	b.running = true
	return nil
}

func (b *Buffered) StopRxThread() error {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.running = false
	return nil
}

// IsRxRunning reports whether inbound bytes go to the handler
func (b *Buffered) IsRxRunning() bool {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	return b.running
}

// SetRxTimeout bounds how long Read waits for data
func (b *Buffered) SetRxTimeout(timeout time.Duration) {
	b.rxTimeout.Store(timeout)
}

func (b *Buffered) Flush() {
	b.mu.Lock()
	b.fifo.Clear()
	b.mu.Unlock()
}

func (b *Buffered) Read(p []byte) (int, error) {
	if n := b.pop(p); n > 0 {
		return n, nil
	}

	switch b.WaitRead(b.rxTimeout.Load()) {
	case WaitReady:
		return b.pop(p), nil
	case WaitFailed:
		return 0, ErrFailed
	default:
		return 0, ErrTimeout
	}
}

func (b *Buffered) pop(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fifo.Pop(p)
}

func (b *Buffered) buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fifo.Len()
}

func (b *Buffered) WaitRead(timeout time.Duration) WaitResult {
	deadline := time.Now().Add(timeout)
	for {
		if b.buffered() > 0 {
			return WaitReady
		}
		if b.failed.Load() {
			return WaitFailed
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return WaitTimeout
		}

		timer := time.NewTimer(remaining)
		select {
		case <-b.available:
			timer.Stop()
		case <-b.closed:
			timer.Stop()
			if b.buffered() > 0 {
				return WaitReady
			}
			return WaitFailed
		case <-timer.C:
			if b.buffered() > 0 {
				return WaitReady
			}
			return WaitTimeout
		}
	}
}

func (b *Buffered) Stats() Stats {
	return Stats{
		BytesWritten: b.bytesWritten.Load(),
		BytesRead:    b.bytesRead.Load(),
		LastActivity: b.lastActivity.Load(),
		State:        b.State().String(),
	}
}
