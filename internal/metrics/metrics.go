// ABOUTME: Coordinator metrics in Prometheus text format
// ABOUTME: Counts cycles, reports, decode errors and broadcast failures
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Coordinator holds one coordinator's metrics. Each coordinator gets its own
// Set so several can run in one process (tests).
type Coordinator struct {
	set       *metrics.Set
	startTime time.Time

	Reports          *metrics.Counter
	DecodeErrors     *metrics.Counter
	SessionsOpened   *metrics.Counter
	SessionsClosed   *metrics.Counter
	Cycles           *metrics.Counter
	CyclesSkipped    *metrics.Counter
	Deliveries       *metrics.Counter
	DeliveryFailures *metrics.Counter
	SendDuration     *metrics.Histogram

	averageOffsetNanos atomic.Int64
}

// NewCoordinator registers the coordinator metrics. participants is read on every scrape.
func NewCoordinator(participants func() int) *Coordinator {
	set := metrics.NewSet()

	c := &Coordinator{
		set:              set,
		startTime:        time.Now(),
		Reports:          set.NewCounter(`berkeley_reports_total`),
		DecodeErrors:     set.NewCounter(`berkeley_decode_errors_total`),
		SessionsOpened:   set.NewCounter(`berkeley_sessions_opened_total`),
		SessionsClosed:   set.NewCounter(`berkeley_sessions_closed_total`),
		Cycles:           set.NewCounter(`berkeley_cycles_total`),
		CyclesSkipped:    set.NewCounter(`berkeley_cycles_skipped_total`),
		Deliveries:       set.NewCounter(`berkeley_broadcast_deliveries_total`),
		DeliveryFailures: set.NewCounter(`berkeley_broadcast_failures_total`),
		SendDuration:     set.NewHistogram(`berkeley_broadcast_send_duration_seconds`),
	}

	set.NewGauge(`berkeley_participants`, func() float64 {
		return float64(participants())
	})
	set.NewGauge(`berkeley_average_offset_seconds`, func() float64 {
		return time.Duration(c.averageOffsetNanos.Load()).Seconds()
	})

	return c
}

// SetAverageOffset records the average offset of the latest broadcast cycle
func (c *Coordinator) SetAverageOffset(d time.Duration) {
	c.averageOffsetNanos.Store(int64(d))
}

// WritePrometheus writes all coordinator metrics plus process metrics
func (c *Coordinator) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)

	uptime := math.Floor(time.Since(c.startTime).Seconds())
	fmt.Fprintf(w, "berkeley_start_timestamp %d\n", c.startTime.Unix())
	fmt.Fprintf(w, "berkeley_uptime_seconds %d\n", int64(uptime))
}

// Handler serves the metrics for scraping
func (c *Coordinator) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		c.WritePrometheus(w)
	})
}
