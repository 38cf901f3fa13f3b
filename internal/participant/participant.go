// ABOUTME: Participant side of Berkeley clock synchronization
// ABOUTME: Reports the local clock periodically and applies corrections from the coordinator
package participant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/harperreed/berkeley-go/internal/clock"
	"github.com/harperreed/berkeley-go/internal/protocol"
	clocksync "github.com/harperreed/berkeley-go/internal/sync"
	"github.com/harperreed/berkeley-go/internal/transport"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultReportPeriod   = 5 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultCyclePeriod    = 10 * time.Second
	DefaultSendTimeout    = 2 * time.Second
)

// ErrClosed is returned when using a participant after Close
var ErrClosed = errors.New("participant closed")

// ConnectError reports that the coordinator could not be reached
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// State is the connection state. Closed is terminal.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Correction is one applied corrected-time broadcast
type Correction struct {
	Corrected  time.Time
	ReceivedAt time.Time // local clock at receipt
	Skew       time.Duration
}

// Stats is a snapshot of participant counters
type Stats struct {
	State         State
	Skew          time.Duration
	LastCorrected time.Time
	Corrections   int
	Reports       int64
	DecodeErrors  int64
	Quality       clocksync.Quality
}

// Config holds participant configuration
type Config struct {
	// CoordinatorAddr is the coordinator address (host:port)
	CoordinatorAddr string

	// Transport is transport.KindTCP (default) or transport.KindWebSocket
	Transport string

	// Name identifies this participant in logs (default: random)
	Name string

	ReportPeriod   time.Duration
	ConnectTimeout time.Duration

	// SendTimeout bounds each report write
	SendTimeout time.Duration

	// CyclePeriod is the coordinator's expected broadcast interval, used for sync quality
	CyclePeriod time.Duration

	Clock  clock.Clock
	Logger logr.Logger

	// OnCorrection is called after each applied correction
	OnCorrection func(Correction)

	// OnStateChange is called on every state transition
	OnStateChange func(State)
}

// Participant reports its clock and tracks the coordinator's corrected time
type Participant struct {
	config    Config
	log       logr.Logger
	clockSync *clocksync.ClockSync

	mu    sync.Mutex
	conn  transport.Conn
	state State

	closing      atomic.Bool
	reports      atomic.Int64
	decodeErrors atomic.Int64
}

// New creates a participant in the Connecting state
func New(config Config) *Participant {
	if config.Transport == "" {
		config.Transport = transport.KindTCP
	}
	if config.Name == "" {
		config.Name = "participant-" + uuid.NewString()[:8]
	}
	if config.ReportPeriod <= 0 {
		config.ReportPeriod = DefaultReportPeriod
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.CyclePeriod <= 0 {
		config.CyclePeriod = DefaultCyclePeriod
	}
	if config.Clock == nil {
		config.Clock = clock.System{}
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}

	return &Participant{
		config:    config,
		log:       config.Logger.WithName("participant").WithValues("name", config.Name),
		clockSync: clocksync.NewClockSync(config.Clock, config.CyclePeriod),
		state:     StateConnecting,
	}
}

// Connect dials the coordinator. On failure the participant is Closed and
// the error is a *ConnectError.
func (p *Participant) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateConnecting || p.conn != nil {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	p.log.Info("connecting", "coordinator", p.config.CoordinatorAddr, "transport", p.config.Transport)

	dialCtx, cancel := context.WithTimeout(ctx, p.config.ConnectTimeout)
	defer cancel()

	conn, err := transport.Dial(dialCtx, p.config.Transport, p.config.CoordinatorAddr)
	if err != nil {
		p.setState(StateClosed)
		return &ConnectError{Addr: p.config.CoordinatorAddr, Err: err}
	}

	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	p.conn = conn
	p.mu.Unlock()

	p.setState(StateActive)
	p.log.Info("connected", "coordinator", conn.RemoteAddr())
	return nil
}

// Run performs the reporter and corrector duties until the connection fails,
// ctx ends, or Close is called. A clean stop returns nil; a connection
// failure is returned to the caller. The participant is Closed afterwards.
func (p *Participant) Run(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	state := p.state
	p.mu.Unlock()
	if conn == nil || state != StateActive {
		return ErrClosed
	}

	g, gctx := errgroup.WithContext(ctx)

	// Unblocks the corrector's read when either duty ends or ctx is cancelled
	stop := context.AfterFunc(gctx, func() { conn.Close() })
	defer stop()

	g.Go(func() error {
		return p.reportLoop(gctx, conn)
	})
	g.Go(func() error {
		return p.correctLoop(conn)
	})

	err := g.Wait()
	conn.Close()
	p.setState(StateClosed)

	if p.closing.Load() || ctx.Err() != nil {
		p.log.Info("participant stopped")
		return nil
	}
	p.log.Error(err, "connection to coordinator lost")
	return err
}

func (p *Participant) reportLoop(ctx context.Context, conn transport.Conn) error {
	ticker := time.NewTicker(p.config.ReportPeriod)
	defer ticker.Stop()

	for {
		local := p.clockSync.LocalNow()
		payload := protocol.EncodeTimestamp(protocol.KindClockReport, local)
		if err := conn.WriteFrame(payload, time.Now().Add(p.config.SendTimeout)); err != nil {
			return fmt.Errorf("report: %w", err)
		}
		p.reports.Add(1)
		p.log.V(1).Info("reported local time", "local", local)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Participant) correctLoop(conn transport.Conn) error {
	for {
		payload, err := conn.ReadFrame()
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				p.dropMalformed(decodeErr)
				continue
			}
			return fmt.Errorf("receive: %w", err)
		}

		corrected, err := protocol.DecodeTimestamp(protocol.KindCorrectedTime, payload)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				p.dropMalformed(decodeErr)
				continue
			}
			return err
		}

		receivedAt := p.clockSync.LocalNow()
		skew := p.clockSync.ApplyCorrection(corrected, receivedAt)
		p.log.Info("corrected time", "corrected", corrected, "local", receivedAt, "skew", skew)

		if p.config.OnCorrection != nil {
			p.config.OnCorrection(Correction{
				Corrected:  corrected,
				ReceivedAt: receivedAt,
				Skew:       skew,
			})
		}
	}
}

func (p *Participant) dropMalformed(err *protocol.DecodeError) {
	p.decodeErrors.Add(1)
	p.log.Info("dropping malformed message", "error", err.Error())
}

// Close ends both duties and closes the connection. Safe to call more than once.
func (p *Participant) Close() error {
	p.closing.Store(true)

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	p.setState(StateClosed)
	if conn != nil {
		if err := conn.Close(); err != nil && !transport.IsClosed(err) {
			return err
		}
	}
	return nil
}

// Now returns the local clock adjusted by the latest correction
func (p *Participant) Now() time.Time {
	return p.clockSync.Now()
}

// LocalNow returns the uncorrected local clock
func (p *Participant) LocalNow() time.Time {
	return p.clockSync.LocalNow()
}

// State returns the current connection state
func (p *Participant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns participant statistics
func (p *Participant) Stats() Stats {
	skew, lastCorrected, samples, _ := p.clockSync.GetStats()
	return Stats{
		State:         p.State(),
		Skew:          skew,
		LastCorrected: lastCorrected,
		Corrections:   samples,
		Reports:       p.reports.Load(),
		DecodeErrors:  p.decodeErrors.Load(),
		Quality:       p.clockSync.CheckQuality(),
	}
}

// Name returns the participant's display name
func (p *Participant) Name() string {
	return p.config.Name
}

// setState moves to next unless already Closed
func (p *Participant) setState(next State) {
	p.mu.Lock()
	if p.state == StateClosed || p.state == next {
		p.mu.Unlock()
		return
	}
	p.state = next
	p.mu.Unlock()

	p.log.V(1).Info("state changed", "state", next.String())
	if p.config.OnStateChange != nil {
		p.config.OnStateChange(next)
	}
}
