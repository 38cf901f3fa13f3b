// ABOUTME: Tests for coordinator metrics
// ABOUTME: Verifies counters and gauges appear in the scrape output
package metrics

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorMetricsOutput(t *testing.T) {
	participants := 3
	m := NewCoordinator(func() int { return participants })

	m.Reports.Add(5)
	m.DecodeErrors.Inc()
	m.Cycles.Inc()
	m.DeliveryFailures.Inc()
	m.SetAverageOffset(1500 * time.Millisecond)
	m.SendDuration.UpdateDuration(time.Now().Add(-time.Millisecond))

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, "berkeley_reports_total 5")
	assert.Contains(t, out, "berkeley_decode_errors_total 1")
	assert.Contains(t, out, "berkeley_cycles_total 1")
	assert.Contains(t, out, "berkeley_broadcast_failures_total 1")
	assert.Contains(t, out, "berkeley_participants 3")
	assert.Contains(t, out, "berkeley_average_offset_seconds 1.5")
	assert.Contains(t, out, "berkeley_broadcast_send_duration_seconds_count 1")
	assert.Contains(t, out, "berkeley_uptime_seconds")
}

func TestSeparateCoordinatorsDoNotCollide(t *testing.T) {
	a := NewCoordinator(func() int { return 0 })
	b := NewCoordinator(func() int { return 0 })

	a.Cycles.Inc()

	var buf bytes.Buffer
	b.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), "berkeley_cycles_total 0")
}

func TestHandler(t *testing.T) {
	m := NewCoordinator(func() int { return 1 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "berkeley_participants 1")
}
