// internal/port/tcp.go
package port

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// TCPListenerPort accepts one client at a time on a local TCP port, for
// instruments and simulators that connect to us over WiFi.
type TCPListenerPort struct {
	*Buffered

	listener net.Listener
	logger   *zap.Logger

	connMu sync.Mutex
	conn   net.Conn

	closing atomic.Bool
	wg      sync.WaitGroup
}

// OpenTCPListener listens on the given port of all interfaces
func OpenTCPListener(tcpPort int, handler Handler, logger *zap.Logger) (*TCPListenerPort, error) {
	return listenTCP(fmt.Sprintf(":%d", tcpPort), handler, logger)
}

func listenTCP(address string, handler Handler, logger *zap.Logger) (*TCPListenerPort, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p := &TCPListenerPort{
		Buffered: NewBuffered(handler),
		listener: listener,
		logger: logger.With(
			zap.String("port", "tcp_listener"),
			zap.String("address", listener.Addr().String()),
		),
	}

	p.wg.Add(1)
	go p.acceptLoop()

	p.logger.Info("TCP listener opened")
	return p, nil
}

// Addr returns the listening address
func (p *TCPListenerPort) Addr() net.Addr {
	return p.listener.Addr()
}

func (p *TCPListenerPort) acceptLoop() {
	defer p.wg.Done()

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if p.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			p.logger.Warn("Accept failed", zap.Error(err))
			p.SetFailed()
			return
		}

		p.logger.Info("Client connected", zap.String("remote", conn.RemoteAddr().String()))
		p.setConn(conn)
		p.serve(conn)
		p.setConn(nil)

		if p.closing.Load() {
			return
		}
		p.logger.Info("Client disconnected", zap.String("remote", conn.RemoteAddr().String()))
	}
}

func (p *TCPListenerPort) serve(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			p.Feed(data)
		}
		if err != nil {
			return
		}
	}
}

func (p *TCPListenerPort) setConn(conn net.Conn) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	p.conn = conn
}

// Connected reports whether a client is attached
func (p *TCPListenerPort) Connected() bool {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	return p.conn != nil
}

func (p *TCPListenerPort) Write(data []byte) (int, error) {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.conn == nil {
		return 0, ErrNotConnected
	}

	n, err := p.conn.Write(data)
	p.CountWritten(n)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return n, nil
}

func (p *TCPListenerPort) Drain() error {
	return nil
}

// Baud rates do not apply to a TCP link
func (p *TCPListenerPort) SetBaudrate(baud uint) error {
	return nil
}

func (p *TCPListenerPort) GetBaudrate() uint {
	return 0
}

func (p *TCPListenerPort) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}

	p.StopRxThread()
	err := p.listener.Close()

	p.connMu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.connMu.Unlock()

	p.wg.Wait()
	p.Shutdown()

	p.logger.Info("TCP listener closed")
	return err
}
