package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPTarget relays over an outbound TCP connection.
type TCPTarget struct {
	conn   net.Conn
	w      *bufio.Writer
	closed atomic.Bool // set on Close or once the peer is gone

	closeOnce sync.Once
	closeErr  error
	// WriteTimeout bounds a single flush; zero means no deadline.
	WriteTimeout time.Duration
}

// DialTCP opens a TCP connection to address ("host:port").
func DialTCP(ctx context.Context, address string, timeout time.Duration) (*TCPTarget, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", address, err)
	}
	return NewTCPTarget(conn), nil
}

// NewTCPTarget wraps an established connection.
func NewTCPTarget(conn net.Conn) *TCPTarget {
	return &TCPTarget{conn: conn, w: bufio.NewWriter(conn)}
}

func (t *TCPTarget) Write(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrUnavailable
	}
	n, err := t.w.Write(p)
	return n, t.classify(err)
}

// Flush pushes buffered bytes into the socket.
func (t *TCPTarget) Flush() error {
	if t.closed.Load() {
		return ErrUnavailable
	}
	if t.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
	}
	return t.classify(t.w.Flush())
}

// classify marks the target closed when the peer is gone. The socket itself
// stays open until Close.
func (t *TCPTarget) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, net.ErrClosed) || isPeerGone(err) {
		t.closed.Store(true)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func isPeerGone(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && !opErr.Timeout()
}

// Close releases the socket, including after the peer went away. It is idempotent.
func (t *TCPTarget) Close() error {
	t.closed.Store(true)
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *TCPTarget) Closed() bool {
	return t.closed.Load()
}

func (t *TCPTarget) String() string {
	return "tcp://" + t.conn.RemoteAddr().String()
}
