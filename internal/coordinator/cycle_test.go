// ABOUTME: Tests for the synchronization cycle
// ABOUTME: Covers averaging, empty ticks, identical broadcasts and send-failure eviction
package coordinator

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/berkeley-go/internal/clock"
	"github.com/harperreed/berkeley-go/internal/protocol"
	"github.com/harperreed/berkeley-go/internal/registry"
	"github.com/harperreed/berkeley-go/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// recordingSink captures every payload it is sent
type recordingSink struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     error
	closed   bool
}

func (s *recordingSink) Send(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestAverageOffset(t *testing.T) {
	tests := []struct {
		name    string
		offsets []time.Duration
		want    time.Duration
	}{
		{name: "empty", offsets: nil, want: 0},
		{name: "single", offsets: []time.Duration{250 * time.Millisecond}, want: 250 * time.Millisecond},
		{name: "mixed signs", offsets: []time.Duration{time.Second, -time.Second, 3 * time.Second}, want: time.Second},
		{name: "all negative", offsets: []time.Duration{-2 * time.Second, -4 * time.Second}, want: -3 * time.Second},
		{name: "truncates toward zero", offsets: []time.Duration{1, 1, 2}, want: 1},
		{name: "negative truncates toward zero", offsets: []time.Duration{-1, -1, -2}, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AverageOffset(tt.offsets))
		})
	}
}

func TestTickEmptyRegistryIsNoop(t *testing.T) {
	req := require.New(t)

	// Given: an empty registry
	reg := registry.New()
	var reported []CycleResult
	cycle := NewCycle(reg, CycleConfig{
		Period:      time.Second,
		SendTimeout: time.Second,
		Clock:       clock.NewFake(epoch),
		OnResult:    func(r CycleResult) { reported = append(reported, r) },
	})

	// When: a tick runs
	result := cycle.Tick(context.Background())

	// Then: nothing is broadcast and the tick is reported as skipped
	req.True(result.Skipped)
	req.Zero(result.Participants)
	req.Empty(result.Delivered)
	req.Empty(result.Failed)
	req.Len(reported, 1)
	req.Equal(uint64(1), cycle.config.Metrics.CyclesSkipped.Get())
	req.Zero(cycle.config.Metrics.Cycles.Get())
}

func TestTickBroadcastsIdenticalCorrectedTime(t *testing.T) {
	req := require.New(t)

	// Given: three participants with offsets +1s, -1s, +3s
	reg := registry.New()
	sinks := map[string]*recordingSink{
		"a": {},
		"b": {},
		"c": {},
	}
	offsets := map[string]time.Duration{"a": time.Second, "b": -time.Second, "c": 3 * time.Second}
	for id, sink := range sinks {
		_, err := reg.Upsert(id, sink, offsets[id], epoch)
		req.NoError(err)
	}

	cycle := NewCycle(reg, CycleConfig{
		Period:      time.Second,
		SendTimeout: time.Second,
		Concurrency: 2,
		Clock:       clock.NewFake(epoch),
	})

	// When: a tick runs
	result := cycle.Tick(context.Background())

	// Then: everyone gets the same bytes, carrying now + mean offset
	req.False(result.Skipped)
	req.Equal(3, result.Participants)
	req.Equal(time.Second, result.AverageOffset)
	req.True(result.CorrectedTime.Equal(epoch.Add(time.Second)))
	req.Equal([]string{"a", "b", "c"}, result.Delivered)
	req.Empty(result.Failed)

	want := protocol.EncodeTimestamp(protocol.KindCorrectedTime, epoch.Add(time.Second))
	for id, sink := range sinks {
		got := sink.received()
		req.Len(got, 1, "participant %s", id)
		req.Equal(want, got[0], "participant %s", id)
	}

	req.Equal(uint64(1), cycle.config.Metrics.Cycles.Get())
	req.Equal(uint64(3), cycle.config.Metrics.Deliveries.Get())
	req.Equal(3, reg.Len())
}

func TestTickSendFailureEvictsOnlyThatParticipant(t *testing.T) {
	req := require.New(t)

	// Given: two healthy participants and one whose connection is broken
	reg := registry.New()
	healthyA := &recordingSink{}
	healthyB := &recordingSink{}
	broken := &recordingSink{fail: errors.New("connection reset by peer")}

	for id, sink := range map[string]*recordingSink{"a": healthyA, "b": healthyB, "broken": broken} {
		_, err := reg.Upsert(id, sink, 0, epoch)
		req.NoError(err)
	}

	cycle := NewCycle(reg, CycleConfig{
		Period:      time.Second,
		SendTimeout: time.Second,
		Clock:       clock.NewFake(epoch),
	})

	// When: a tick runs
	result := cycle.Tick(context.Background())

	// Then: the broken participant is evicted and closed, the others are untouched
	req.Equal([]string{"a", "b"}, result.Delivered)
	req.Equal([]string{"broken"}, result.Failed)
	req.True(broken.isClosed())
	req.False(healthyA.isClosed())
	req.False(healthyB.isClosed())
	req.Len(healthyA.received(), 1)
	req.Len(healthyB.received(), 1)
	req.Equal(2, reg.Len())
	req.Equal(uint64(1), cycle.config.Metrics.DeliveryFailures.Get())

	// A late report from the evicted session does not bring it back
	_, err := reg.Upsert("broken", broken, 0, epoch)
	req.ErrorIs(err, registry.ErrEvicted)
	req.Equal(2, reg.Len())
}

func TestTickSendTimeoutClosesSession(t *testing.T) {
	req := require.New(t)

	// Given: a real session whose peer never reads
	server, client := net.Pipe()
	defer client.Close()

	reg := registry.New()
	fake := clock.NewFake(epoch)
	cycle := NewCycle(reg, CycleConfig{
		Period:      time.Second,
		SendTimeout: 50 * time.Millisecond,
		Clock:       fake,
	})
	session := newSession(transport.NewStreamConn(server), sessionConfig{
		registry: reg,
		clock:    fake,
		logger:   cycle.log,
		metrics:  cycle.config.Metrics,
	})
	_, err := reg.Upsert(session.ID(), session, 0, epoch)
	req.NoError(err)

	// When: a tick runs
	start := time.Now()
	result := cycle.Tick(context.Background())

	// Then: the send times out, the participant is gone and its connection closed
	req.Less(time.Since(start), 2*time.Second)
	req.Equal([]string{session.ID()}, result.Failed)
	req.Zero(reg.Len())

	_, err = client.Read(make([]byte, 1))
	req.Error(err)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	req := require.New(t)

	reg := registry.New()
	ticks := make(chan CycleResult, 16)
	cycle := NewCycle(reg, CycleConfig{
		Period:      10 * time.Millisecond,
		SendTimeout: time.Second,
		OnResult: func(r CycleResult) {
			select {
			case ticks <- r:
			default:
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cycle.Run(ctx)
		close(done)
	}()

	select {
	case r := <-ticks:
		req.True(r.Skipped)
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not tick")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not stop")
	}
}
