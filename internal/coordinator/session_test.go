// ABOUTME: Tests for coordinator-side participant sessions
// ABOUTME: Covers offset recording, malformed frames and release on disconnect
package coordinator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/harperreed/berkeley-go/internal/clock"
	"github.com/harperreed/berkeley-go/internal/metrics"
	"github.com/harperreed/berkeley-go/internal/protocol"
	"github.com/harperreed/berkeley-go/internal/registry"
	"github.com/harperreed/berkeley-go/internal/transport"
	"github.com/stretchr/testify/require"
)

type sessionHarness struct {
	reg     *registry.Registry
	clock   *clock.Fake
	metrics *metrics.Coordinator
	peer    net.Conn
	session *Session
	done    chan struct{}
	cancel  context.CancelFunc
}

func startSession(t *testing.T) *sessionHarness {
	t.Helper()

	server, peer := net.Pipe()
	reg := registry.New()
	h := &sessionHarness{
		reg:     reg,
		clock:   clock.NewFake(epoch),
		metrics: metrics.NewCoordinator(reg.Len),
		peer:    peer,
		done:    make(chan struct{}),
	}
	h.session = newSession(transport.NewStreamConn(server), sessionConfig{
		registry: reg,
		clock:    h.clock,
		logger:   logr.Discard(),
		metrics:  h.metrics,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.session.Run(ctx)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		peer.Close()
		<-h.done
	})
	return h
}

func (h *sessionHarness) send(t *testing.T, payload []byte) {
	t.Helper()
	require.NoError(t, protocol.WriteFrame(h.peer, payload))
}

func (h *sessionHarness) offset() (time.Duration, bool) {
	for _, rec := range h.reg.Records() {
		if rec.ID == h.session.ID() {
			return rec.LastOffset, true
		}
	}
	return 0, false
}

func (h *sessionHarness) waitForOffset(t *testing.T, want time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, ok := h.offset()
		return ok && got == want
	}, 2*time.Second, 5*time.Millisecond, "offset never became %v", want)
}

func TestSessionRecordsOffset(t *testing.T) {
	req := require.New(t)
	h := startSession(t)

	// Given: a participant whose clock is 2s behind the coordinator
	// When: it reports
	h.send(t, protocol.EncodeTimestamp(protocol.KindClockReport, epoch.Add(-2*time.Second)))

	// Then: the registry holds offset = coordinator now - reported
	h.waitForOffset(t, 2*time.Second)

	// And a later report replaces the offset in place
	h.clock.Advance(5 * time.Second)
	h.send(t, protocol.EncodeTimestamp(protocol.KindClockReport, epoch.Add(5*time.Second+300*time.Millisecond)))
	h.waitForOffset(t, -300*time.Millisecond)

	req.Equal(1, h.reg.Len())
	req.Equal(uint64(2), h.metrics.Reports.Get())
}

func TestSessionSurvivesMalformedFrame(t *testing.T) {
	req := require.New(t)
	h := startSession(t)

	h.send(t, protocol.EncodeTimestamp(protocol.KindClockReport, epoch.Add(-time.Second)))
	h.waitForOffset(t, time.Second)

	// When: garbage arrives mid-session
	h.send(t, []byte{0xde, 0xad})
	h.send(t, protocol.EncodeTimestamp(protocol.KindCorrectedTime, epoch))

	// Then: the session keeps going and the next valid report updates the offset
	h.send(t, protocol.EncodeTimestamp(protocol.KindClockReport, epoch.Add(4*time.Second)))
	h.waitForOffset(t, -4*time.Second)

	req.Equal(uint64(2), h.metrics.DecodeErrors.Get())
	select {
	case <-h.done:
		t.Fatal("session terminated on a malformed frame")
	default:
	}
}

func TestSessionMalformedFirstFrameCreatesNoRecord(t *testing.T) {
	h := startSession(t)

	h.send(t, []byte{byte(protocol.KindClockReport)})

	require.Eventually(t, func() bool {
		return h.metrics.DecodeErrors.Get() == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, h.reg.Len())
}

func TestSessionReleasesRecordOnDisconnect(t *testing.T) {
	req := require.New(t)
	h := startSession(t)

	h.send(t, protocol.EncodeTimestamp(protocol.KindClockReport, epoch))
	h.waitForOffset(t, 0)

	// When: the peer goes away
	req.NoError(h.peer.Close())

	// Then: the session ends and its id is gone
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	req.Zero(h.reg.Len())
	req.Equal(uint64(1), h.metrics.SessionsClosed.Get())
}

func TestSessionFramingViolationTerminates(t *testing.T) {
	h := startSession(t)

	// A length far above the maximum frame size
	_, err := h.peer.Write([]byte{0x00, 0x10, 0x00, 0x00})
	require.NoError(t, err)

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate on a framing violation")
	}
	require.Zero(t, h.reg.Len())
}

func TestSessionStopsOnContextCancel(t *testing.T) {
	req := require.New(t)
	h := startSession(t)

	h.send(t, protocol.EncodeTimestamp(protocol.KindClockReport, epoch))
	h.waitForOffset(t, 0)

	h.cancel()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on cancel")
	}
	req.Zero(h.reg.Len())

	_, err := h.peer.Read(make([]byte, 1))
	req.Error(err)
}
