// ABOUTME: Coordinator for Berkeley clock synchronization
// ABOUTME: Owns the listeners and the registry, supervises sessions and the sync cycle
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/harperreed/berkeley-go/internal/clock"
	"github.com/harperreed/berkeley-go/internal/discovery"
	"github.com/harperreed/berkeley-go/internal/metrics"
	"github.com/harperreed/berkeley-go/internal/registry"
	"github.com/harperreed/berkeley-go/internal/transport"
)

const (
	DefaultCyclePeriod          = 10 * time.Second
	DefaultSendTimeout          = 2 * time.Second
	DefaultBroadcastConcurrency = 8

	acceptBackoff = 50 * time.Millisecond
)

// Config holds coordinator configuration
type Config struct {
	// ListenAddr is the TCP listen address, e.g. ":8080"
	ListenAddr string

	// WebSocketAddr optionally serves the same protocol over WebSocket; empty disables it
	WebSocketAddr string

	// MetricsAddr optionally serves Prometheus metrics on /metrics; empty disables it
	MetricsAddr string

	Name                 string
	CyclePeriod          time.Duration
	SendTimeout          time.Duration
	BroadcastConcurrency int
	EnableMDNS           bool
	UseTUI               bool

	Clock  clock.Clock
	Logger logr.Logger

	// OnCycle is called after every synchronization cycle
	OnCycle func(CycleResult)
}

// BindError reports that a listening endpoint could not be acquired.
// It is fatal: address and port are operator decisions and are not retried.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ParticipantInfo is a read-only view of one registry record
type ParticipantInfo struct {
	ID       string
	Offset   time.Duration
	LastSeen time.Time
}

// Coordinator accepts participants and runs the synchronization cycle
type Coordinator struct {
	config Config
	id     string
	log    logr.Logger
	clock  clock.Clock

	registry *registry.Registry
	metrics  *metrics.Coordinator
	cycle    *Cycle

	listeners     []transport.Listener
	metricsServer *http.Server
	mdnsManager   *discovery.Manager
	tui           *CoordinatorTUI
	startTime     time.Time

	lastCycleMu sync.RWMutex
	lastCycle   *CycleResult

	// Control
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a coordinator; nothing is bound until Listen
func New(config Config) *Coordinator {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.Name == "" {
		config.Name = "berkeley-coordinator"
	}
	if config.CyclePeriod <= 0 {
		config.CyclePeriod = DefaultCyclePeriod
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.BroadcastConcurrency <= 0 {
		config.BroadcastConcurrency = DefaultBroadcastConcurrency
	}
	if config.Clock == nil {
		config.Clock = clock.System{}
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}

	c := &Coordinator{
		config:    config,
		id:        uuid.NewString(),
		log:       config.Logger.WithName("coordinator"),
		clock:     config.Clock,
		registry:  registry.New(),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
	c.metrics = metrics.NewCoordinator(c.registry.Len)
	c.cycle = NewCycle(c.registry, CycleConfig{
		Period:      config.CyclePeriod,
		SendTimeout: config.SendTimeout,
		Concurrency: config.BroadcastConcurrency,
		Clock:       config.Clock,
		Logger:      c.log,
		Metrics:     c.metrics,
		OnResult:    c.recordCycle,
	})

	return c
}

// Listen binds every configured endpoint. If any bind fails, the ones
// already bound are released and a *BindError is returned.
func (c *Coordinator) Listen() error {
	bind := func(kind, addr string) error {
		ln, err := transport.Listen(kind, addr)
		if err != nil {
			return &BindError{Addr: addr, Err: err}
		}
		c.listeners = append(c.listeners, ln)
		c.log.Info("listening", "transport", kind, "addr", ln.Addr())
		return nil
	}

	if err := bind(transport.KindTCP, c.config.ListenAddr); err != nil {
		return err
	}
	if c.config.WebSocketAddr != "" {
		if err := bind(transport.KindWebSocket, c.config.WebSocketAddr); err != nil {
			c.closeListeners()
			return err
		}
	}

	if c.config.MetricsAddr != "" {
		ln, err := net.Listen("tcp", c.config.MetricsAddr)
		if err != nil {
			c.closeListeners()
			return &BindError{Addr: c.config.MetricsAddr, Err: err}
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.metrics.Handler())
		c.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.log.Error(err, "metrics server failed")
			}
		}()
		c.log.Info("serving metrics", "addr", ln.Addr().String())
	}

	return nil
}

// Start binds and then serves until ctx is cancelled or Stop is called
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.Listen(); err != nil {
		return err
	}
	return c.Serve(ctx)
}

// Serve runs the accept loops and the synchronization cycle. It returns once
// every session and the cycle have exited.
func (c *Coordinator) Serve(ctx context.Context) error {
	if len(c.listeners) == 0 {
		return errors.New("coordinator is not listening")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.log.Info("coordinator starting", "name", c.config.Name, "id", c.id, "cyclePeriod", c.config.CyclePeriod)

	if c.config.UseTUI {
		c.tui = NewCoordinatorTUI(c.config.Name, c.Addr())
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.tui.Start(); err != nil {
				c.log.Error(err, "tui failed")
			}
		}()
	}

	if c.config.EnableMDNS {
		c.startMDNS()
	}

	for _, ln := range c.listeners {
		c.wg.Add(1)
		go func(ln transport.Listener) {
			defer c.wg.Done()
			c.acceptLoop(ctx, ln)
		}(ln)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.cycle.Run(ctx)
	}()

	var tuiQuitChan <-chan struct{}
	if c.tui != nil {
		tuiQuitChan = c.tui.QuitChan()
	}

	select {
	case <-ctx.Done():
		c.log.Info("coordinator shutting down")
	case <-c.stopChan:
		c.log.Info("coordinator shutting down")
	case <-tuiQuitChan:
		c.log.Info("tui quit requested, shutting down")
	}

	// Sessions close their connections when ctx ends
	cancel()
	c.closeListeners()

	if c.tui != nil {
		c.tui.Stop()
	}
	if c.mdnsManager != nil {
		c.mdnsManager.Stop()
	}
	if c.metricsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.metricsServer.Shutdown(shutdownCtx); err != nil {
			c.log.Error(err, "metrics server shutdown")
		}
		cancelShutdown()
	}

	c.wg.Wait()
	c.log.Info("coordinator stopped cleanly")
	return nil
}

// Stop asks Serve to shut down
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *Coordinator) acceptLoop(ctx context.Context, ln transport.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.log.Error(err, "accept failed", "addr", ln.Addr())
			select {
			case <-time.After(acceptBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}

		session := newSession(conn, sessionConfig{
			registry: c.registry,
			clock:    c.clock,
			logger:   c.log,
			metrics:  c.metrics,
			onChange: c.updateTUI,
		})

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			session.Run(ctx)
		}()
	}
}

func (c *Coordinator) closeListeners() {
	for _, ln := range c.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.log.V(1).Info("closing listener", "addr", ln.Addr(), "error", err.Error())
		}
	}
}

func (c *Coordinator) startMDNS() {
	_, portStr, err := net.SplitHostPort(c.Addr())
	if err != nil {
		c.log.Error(err, "cannot advertise listener address")
		return
	}
	port, _ := strconv.Atoi(portStr)

	c.mdnsManager = discovery.NewManager(discovery.Config{
		ServiceName: c.config.Name,
		Port:        port,
		Transport:   transport.KindTCP,
		Logger:      c.log,
	})
	if err := c.mdnsManager.Advertise(); err != nil {
		c.log.Error(err, "failed to start mDNS advertisement")
	}
}

func (c *Coordinator) recordCycle(result CycleResult) {
	c.lastCycleMu.Lock()
	c.lastCycle = &result
	c.lastCycleMu.Unlock()

	c.updateTUI()

	if c.config.OnCycle != nil {
		c.config.OnCycle(result)
	}
}

// Addr returns the bound TCP address, or "" before Listen
func (c *Coordinator) Addr() string {
	if len(c.listeners) == 0 {
		return ""
	}
	return c.listeners[0].Addr()
}

// WebSocketAddr returns the bound WebSocket address, or "" if disabled
func (c *Coordinator) WebSocketAddr() string {
	if c.config.WebSocketAddr == "" || len(c.listeners) < 2 {
		return ""
	}
	return c.listeners[1].Addr()
}

// ID returns this coordinator instance's identifier
func (c *Coordinator) ID() string {
	return c.id
}

// Participants returns the current registry contents
func (c *Coordinator) Participants() []ParticipantInfo {
	records := c.registry.Records()
	infos := make([]ParticipantInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, ParticipantInfo{
			ID:       rec.ID,
			Offset:   rec.LastOffset,
			LastSeen: rec.LastSeen,
		})
	}
	return infos
}

// LastCycle returns the most recent cycle result, if any cycle has run
func (c *Coordinator) LastCycle() (CycleResult, bool) {
	c.lastCycleMu.RLock()
	defer c.lastCycleMu.RUnlock()
	if c.lastCycle == nil {
		return CycleResult{}, false
	}
	return *c.lastCycle, true
}
