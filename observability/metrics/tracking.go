package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// TrackingMetrics follows samples and analyses through the lab workflow.
type TrackingMetrics struct {
	registered  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	open        *prometheus.GaugeVec
}

var (
	trackingOnce     sync.Once
	trackingRegistry *TrackingMetrics
)

func Tracking() *TrackingMetrics {
	trackingOnce.Do(func() {
		trackingRegistry = &TrackingMetrics{
			registered: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tracking_registered_total",
				Help: "Count of tracking records registered by kind.",
			}, []string{"kind"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tracking_transitions_total",
				Help: "Count of lab status transitions by kind and resulting status.",
			}, []string{"kind", "status"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tracking_failures_total",
				Help: "Count of registrations marked failed by kind.",
			}, []string{"kind"}),
			open: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "tracking_open_records",
				Help: "Tracking records that have not reached a final status.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			trackingRegistry.registered,
			trackingRegistry.transitions,
			trackingRegistry.failures,
			trackingRegistry.open,
		)
	})
	return trackingRegistry
}

func (m *TrackingMetrics) ObserveRegistered(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.registered.WithLabelValues(kind).Inc()
	m.open.WithLabelValues(kind).Inc()
}

// ObserveTransition records a status change. final reports whether the new
// status ends the workflow.
func (m *TrackingMetrics) ObserveTransition(kind, status string, final bool) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.transitions.WithLabelValues(kind, status).Inc()
	if final {
		m.open.WithLabelValues(kind).Dec()
	}
}

func (m *TrackingMetrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.failures.WithLabelValues(kind).Inc()
	m.open.WithLabelValues(kind).Dec()
}

// ObserveDeleted drops a record that was still open.
func (m *TrackingMetrics) ObserveDeleted(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.open.WithLabelValues(kind).Dec()
}

func (m *TrackingMetrics) InitKind(kind string) {
	if m == nil {
		return
	}
	m.registered.WithLabelValues(kind).Add(0)
	m.failures.WithLabelValues(kind).Add(0)
	m.open.WithLabelValues(kind).Set(0)
}
