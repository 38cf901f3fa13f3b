// ABOUTME: WebSocket transport for coordinator and participants
// ABOUTME: Each binary WebSocket message carries exactly one timestamp frame
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/berkeley-go/internal/protocol"
)

// WebSocketPath is the HTTP path the coordinator upgrades on
const WebSocketPath = "/berkeley"

type wsConn struct {
	conn *websocket.Conn
	addr string

	// gorilla/websocket allows one concurrent writer
	writeMu sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, addr: conn.RemoteAddr().String()}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, &TransportError{Op: "read", Addr: c.addr, Err: err}
	}
	if messageType != websocket.BinaryMessage {
		return nil, &protocol.DecodeError{Reason: fmt.Sprintf("websocket message type %d is not binary", messageType)}
	}
	return data, nil
}

func (c *wsConn) WriteFrame(payload []byte, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return &TransportError{Op: "write", Addr: c.addr, Err: err}
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return &TransportError{Op: "write", Addr: c.addr, Err: err}
	}
	return nil
}

func (c *wsConn) RemoteAddr() string {
	return c.addr
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

type wsListener struct {
	ln         net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader

	conns     chan Conn
	done      chan struct{}
	closeOnce sync.Once
}

// ListenWebSocket binds addr and serves WebSocket upgrades on WebSocketPath.
// Binding happens before returning so a taken port is reported immediately.
func ListenWebSocket(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &wsListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			// Participants are not browsers; there is no origin to check
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, l.handleWebSocket)
	l.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := l.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Close()
		}
	}()

	return l, nil
}

func (l *wsListener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case l.conns <- newWSConn(conn):
	case <-l.done:
		conn.Close()
	}
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.httpServer.Close()
	})
	return err
}

// DialWebSocket connects to a coordinator's WebSocket listener
func DialWebSocket(ctx context.Context, addr string) (Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: WebSocketPath}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return newWSConn(conn), nil
}
