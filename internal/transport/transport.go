// ABOUTME: Connection abstraction shared by coordinator and participants
// ABOUTME: A Conn moves whole frames; how they are delimited is up to the implementation
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// KindTCP frames timestamps with a 4-byte length prefix over a raw TCP stream
	KindTCP = "tcp"

	// KindWebSocket carries one timestamp per binary WebSocket message
	KindWebSocket = "ws"
)

// Conn is one coordinator<->participant connection
type Conn interface {
	// ReadFrame blocks until the next complete frame arrives
	ReadFrame() ([]byte, error)

	// WriteFrame writes one frame; a zero deadline means no deadline
	WriteFrame(payload []byte, deadline time.Time) error

	// RemoteAddr identifies the peer (host:port)
	RemoteAddr() string

	Close() error
}

// Listener accepts participant connections
type Listener interface {
	Accept() (Conn, error)
	Addr() string
	Close() error
}

// TransportError reports a failure of the underlying connection: peer closed,
// reset, framing violation, or deadline exceeded. The connection is unusable after it.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was an exceeded deadline
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsClosed reports whether err means the peer or the local side closed the connection
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure:
		return true
	}
	return false
}

// Listen binds a listener of the given kind
func Listen(kind, addr string) (Listener, error) {
	switch kind {
	case KindTCP:
		return ListenTCP(addr)
	case KindWebSocket:
		return ListenWebSocket(addr)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// Dial connects to a coordinator using the given kind
func Dial(ctx context.Context, kind, addr string) (Conn, error) {
	switch kind {
	case KindTCP:
		return DialTCP(ctx, addr)
	case KindWebSocket:
		return DialWebSocket(ctx, addr)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
