// ABOUTME: One participant connection on the coordinator side
// ABOUTME: Reads clock reports, keeps the registry record current, delivers broadcasts
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/harperreed/berkeley-go/internal/clock"
	"github.com/harperreed/berkeley-go/internal/metrics"
	"github.com/harperreed/berkeley-go/internal/protocol"
	"github.com/harperreed/berkeley-go/internal/registry"
	"github.com/harperreed/berkeley-go/internal/transport"
)

type sessionConfig struct {
	registry *registry.Registry
	clock    clock.Clock
	logger   logr.Logger
	metrics  *metrics.Coordinator
	onChange func()
}

// Session owns one accepted connection. It is the registry's Sink for its participant.
type Session struct {
	id   string
	conn transport.Conn
	cfg  sessionConfig
	log  logr.Logger

	closeOnce sync.Once
	closeErr  error
}

func newSession(conn transport.Conn, cfg sessionConfig) *Session {
	id := conn.RemoteAddr()
	return &Session{
		id:   id,
		conn: conn,
		cfg:  cfg,
		log:  cfg.logger.WithValues("participant", id),
	}
}

// ID returns the participant id, taken from the peer address
func (s *Session) ID() string {
	return s.id
}

// Run reads reports until the connection fails or ctx ends. On return the
// participant's record is gone from the registry and the connection is closed.
func (s *Session) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.cfg.metrics.SessionsOpened.Inc()
	s.log.Info("participant connected")

	defer func() {
		if s.cfg.registry.Release(s.id, s) {
			s.notify()
		}
		s.Close()
		s.cfg.metrics.SessionsClosed.Inc()
	}()

	for {
		payload, err := s.conn.ReadFrame()
		if err != nil {
			if s.decodeFailed(err) {
				continue
			}
			if transport.IsClosed(err) || ctx.Err() != nil {
				s.log.Info("participant disconnected")
			} else {
				s.log.Error(err, "session terminated")
			}
			return
		}

		reported, err := protocol.DecodeTimestamp(protocol.KindClockReport, payload)
		if err != nil {
			if s.decodeFailed(err) {
				continue
			}
			s.log.Error(err, "session terminated")
			return
		}

		now := s.cfg.clock.Now()
		offset := now.Sub(reported)

		created, err := s.cfg.registry.Upsert(s.id, s, offset, now)
		if errors.Is(err, registry.ErrEvicted) {
			s.log.V(1).Info("report after eviction ignored, closing session")
			return
		}
		s.cfg.metrics.Reports.Inc()
		s.log.V(1).Info("clock report", "reported", reported, "offset", offset)
		if created {
			s.notify()
		}
	}
}

func (s *Session) decodeFailed(err error) bool {
	var decodeErr *protocol.DecodeError
	if !errors.As(err, &decodeErr) {
		return false
	}
	s.cfg.metrics.DecodeErrors.Inc()
	s.log.Info("dropping malformed message", "error", decodeErr.Error())
	return true
}

// Send writes one payload, bounded by ctx's deadline if it has one
func (s *Session) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()

	start := time.Now()
	err := s.conn.WriteFrame(payload, deadline)
	s.cfg.metrics.SendDuration.UpdateDuration(start)
	return err
}

// Close closes the connection. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) notify() {
	if s.cfg.onChange != nil {
		s.cfg.onChange()
	}
}
