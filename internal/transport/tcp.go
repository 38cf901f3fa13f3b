// ABOUTME: Length-prefixed frames over a raw TCP stream
// ABOUTME: Default transport between coordinator and participants
package transport

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/harperreed/berkeley-go/internal/protocol"
)

type streamConn struct {
	conn   net.Conn
	reader *bufio.Reader
	addr   string

	// Writes may come from different goroutines (broadcast, reporter)
	writeMu sync.Mutex
}

// NewStreamConn wraps any net.Conn with length-prefixed framing
func NewStreamConn(conn net.Conn) Conn {
	return &streamConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		addr:   conn.RemoteAddr().String(),
	}
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	payload, err := protocol.ReadFrame(c.reader)
	if err != nil {
		return nil, &TransportError{Op: "read", Addr: c.addr, Err: err}
	}
	return payload, nil
}

func (c *streamConn) WriteFrame(payload []byte, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return &TransportError{Op: "write", Addr: c.addr, Err: err}
	}
	if err := protocol.WriteFrame(c.conn, payload); err != nil {
		return &TransportError{Op: "write", Addr: c.addr, Err: err}
	}
	return nil
}

func (c *streamConn) RemoteAddr() string {
	return c.addr
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

type tcpListener struct {
	ln net.Listener
}

// ListenTCP binds a TCP listener on addr
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept() (Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn), nil
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

// DialTCP connects to a coordinator's TCP listener
func DialTCP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn), nil
}
