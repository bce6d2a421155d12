package ops

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit stream sink.
type Metrics struct {
	Tracked prometheus.Counter
	Dropped prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the singleton Metrics instance with stream sink metrics
// registered. Safe to call multiple times; metrics are only registered once.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Tracked: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rxcred_audit_stream_tracked_total",
				Help: "Total number of audit events streamed to the ops topic",
			}),
			Dropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rxcred_audit_stream_dropped_total",
				Help: "Total number of audit events dropped by the stream sink",
			}),
		}
	})
	return metricsInstance
}

// IncTracked increments the tracked counter.
func (m *Metrics) IncTracked() {
	m.Tracked.Inc()
}

// IncDropped increments the dropped counter.
func (m *Metrics) IncDropped() {
	m.Dropped.Inc()
}
