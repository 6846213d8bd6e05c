package observability

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genomarket",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genomarket",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "genomarket",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genomarket",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// SettlementMetrics captures the marketplace settlement flows. Operations are
// mirrored to the OpenTelemetry meter so OTLP collectors see them too.
type SettlementMetrics struct {
	operations      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	escrow          *prometheus.GaugeVec
	cleanupFailures *prometheus.CounterVec

	instruments settlementInstruments
}

type settlementInstruments struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

func newSettlementInstruments(provider metric.MeterProvider) settlementInstruments {
	meter := provider.Meter("genomarket/settlement")
	fallback := noop.NewMeterProvider().Meter("genomarket/settlement")
	calls, err := meter.Int64Counter("genomarket.settlement.operations",
		metric.WithDescription("Settlement operations by pallet, operation and result code."))
	if err != nil {
		calls, _ = fallback.Int64Counter("genomarket.settlement.operations")
	}
	duration, err := meter.Float64Histogram("genomarket.settlement.duration",
		metric.WithDescription("Latency of settlement operations."),
		metric.WithUnit("s"))
	if err != nil {
		duration, _ = fallback.Float64Histogram("genomarket.settlement.duration")
	}
	return settlementInstruments{calls: calls, duration: duration}
}

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genomarket",
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Settlement operations segmented by pallet, operation and result code.",
			}, []string{"pallet", "op", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "genomarket",
				Subsystem: "settlement",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for settlement operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"pallet", "op"}),
			escrow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "genomarket",
				Subsystem: "settlement",
				Name:      "escrow_balance",
				Help:      "Funds held in escrow by each pallet, per currency.",
			}, []string{"pallet", "currency"}),
			cleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genomarket",
				Subsystem: "settlement",
				Name:      "tracking_cleanup_failures_total",
				Help:      "Cancellations whose tracking record could not be removed.",
			}, []string{"pallet"}),
			instruments: newSettlementInstruments(otel.GetMeterProvider()),
		}
		prometheus.MustRegister(
			settlementRegistry.operations,
			settlementRegistry.latency,
			settlementRegistry.escrow,
			settlementRegistry.cleanupFailures,
		)
	})
	return settlementRegistry
}

// ObserveOperation records one settlement call. code is the stable error code,
// or empty on success.
func (m *SettlementMetrics) ObserveOperation(pallet, op, code string, duration time.Duration) {
	if m == nil {
		return
	}
	if pallet == "" {
		pallet = "unknown"
	}
	if code == "" {
		code = "ok"
	}
	m.operations.WithLabelValues(pallet, op, code).Inc()
	m.latency.WithLabelValues(pallet, op).Observe(duration.Seconds())

	if m.instruments.calls == nil {
		return
	}
	ctx := context.Background()
	m.instruments.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pallet", pallet),
		attribute.String("op", op),
		attribute.String("code", code),
	))
	m.instruments.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("pallet", pallet),
		attribute.String("op", op),
	))
}

// SetEscrowBalance updates the escrow gauge for a pallet and currency.
func (m *SettlementMetrics) SetEscrowBalance(pallet, currency string, balance *big.Int) {
	if m == nil {
		return
	}
	m.escrow.WithLabelValues(pallet, currency).Set(bigToFloat(balance))
}

// IncTrackingCleanupFailure counts a cancellation that left a tracking record
// behind.
func (m *SettlementMetrics) IncTrackingCleanupFailure(pallet string) {
	if m == nil {
		return
	}
	m.cleanupFailures.WithLabelValues(pallet).Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Clamp values that cannot be represented exactly.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
