// ABOUTME: Periodic synchronization cycle: snapshot, average, broadcast
// ABOUTME: Every participant in a cycle receives the same corrected time
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/harperreed/berkeley-go/internal/clock"
	"github.com/harperreed/berkeley-go/internal/metrics"
	"github.com/harperreed/berkeley-go/internal/protocol"
	"github.com/harperreed/berkeley-go/internal/registry"
	"golang.org/x/sync/errgroup"
)

// CycleConfig holds the cycle's collaborators and timing
type CycleConfig struct {
	Period      time.Duration
	SendTimeout time.Duration
	Concurrency int
	Clock       clock.Clock
	Logger      logr.Logger
	Metrics     *metrics.Coordinator
	OnResult    func(CycleResult)
}

// CycleResult describes one tick
type CycleResult struct {
	ID            string
	Started       time.Time
	Participants  int
	AverageOffset time.Duration
	CorrectedTime time.Time
	Delivered     []string
	Failed        []string
	Skipped       bool // registry was empty, nothing was broadcast
}

// Cycle runs the synchronization loop over a registry
type Cycle struct {
	registry *registry.Registry
	config   CycleConfig
	log      logr.Logger
}

// NewCycle creates a cycle; Run drives it
func NewCycle(reg *registry.Registry, config CycleConfig) *Cycle {
	if config.Clock == nil {
		config.Clock = clock.System{}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultBroadcastConcurrency
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewCoordinator(reg.Len)
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	return &Cycle{
		registry: reg,
		config:   config,
		log:      config.Logger.WithName("cycle"),
	}
}

// Run ticks every Period until ctx ends. The first tick happens one period after start.
func (c *Cycle) Run(ctx context.Context) {
	c.log.Info("sync cycle starting", "period", c.config.Period)

	ticker := time.NewTicker(c.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Tick(ctx)
		case <-ctx.Done():
			c.log.Info("sync cycle stopping")
			return
		}
	}
}

// Tick runs one cycle. A participant whose send fails is evicted and its
// connection closed; other participants are unaffected.
func (c *Cycle) Tick(ctx context.Context) CycleResult {
	result := CycleResult{
		ID:      uuid.NewString(),
		Started: c.config.Clock.Now(),
	}

	entries := c.registry.Snapshot()
	result.Participants = len(entries)

	if len(entries) == 0 {
		result.Skipped = true
		c.config.Metrics.CyclesSkipped.Inc()
		c.log.V(1).Info("no participants to synchronize")
		c.report(result)
		return result
	}

	offsets := make([]time.Duration, len(entries))
	for i, e := range entries {
		offsets[i] = e.Offset
	}
	result.AverageOffset = AverageOffset(offsets)

	// Computed once; every participant gets these exact bytes
	result.CorrectedTime = protocol.Truncate(c.config.Clock.Now().Add(result.AverageOffset))
	payload := protocol.EncodeTimestamp(protocol.KindCorrectedTime, result.CorrectedTime)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.config.Concurrency)

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, c.config.SendTimeout)
			err := entry.Sink.Send(sendCtx, payload)
			cancel()

			if err != nil {
				c.registry.Evict(entry.ID, entry.Sink)
				entry.Sink.Close()
				c.log.Info("broadcast failed, participant evicted", "participant", entry.ID, "error", err.Error())

				mu.Lock()
				result.Failed = append(result.Failed, entry.ID)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			result.Delivered = append(result.Delivered, entry.ID)
			mu.Unlock()
			return nil
		})
	}
	// Send errors are handled per participant; nothing is returned
	_ = g.Wait()

	sort.Strings(result.Delivered)
	sort.Strings(result.Failed)

	c.config.Metrics.Cycles.Inc()
	c.config.Metrics.Deliveries.Add(len(result.Delivered))
	c.config.Metrics.DeliveryFailures.Add(len(result.Failed))
	c.config.Metrics.SetAverageOffset(result.AverageOffset)

	c.log.Info("cycle complete",
		"cycle", result.ID,
		"participants", result.Participants,
		"averageOffset", result.AverageOffset,
		"correctedTime", result.CorrectedTime,
		"delivered", len(result.Delivered),
		"failed", len(result.Failed))

	c.report(result)
	return result
}

func (c *Cycle) report(result CycleResult) {
	if c.config.OnResult != nil {
		c.config.OnResult(result)
	}
}

// AverageOffset is the arithmetic mean of offsets, truncated toward zero to
// the nanosecond. It returns 0 for an empty slice. The sum is not guarded
// against overflow; offsets are bounded by realistic clock disagreement.
func AverageOffset(offsets []time.Duration) time.Duration {
	if len(offsets) == 0 {
		return 0
	}
	var sum time.Duration
	for _, o := range offsets {
		sum += o
	}
	return sum / time.Duration(len(offsets))
}
