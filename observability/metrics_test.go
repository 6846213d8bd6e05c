package observability

import (
	"context"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSettlementMetrics(t *testing.T) {
	m := Settlement()
	require.Same(t, m, Settlement())

	ok := m.operations.WithLabelValues("orders", "fulfill", "ok")
	failed := m.operations.WithLabelValues("orders", "fulfill", "InsufficientBalance")
	beforeOK := testutil.ToFloat64(ok)
	beforeFailed := testutil.ToFloat64(failed)
	latency := m.latency.WithLabelValues("orders", "fulfill")
	beforeSamples := sampleCount(t, latency)

	m.ObserveOperation("orders", "fulfill", "", 10*time.Millisecond)
	m.ObserveOperation("orders", "fulfill", "InsufficientBalance", time.Millisecond)
	require.Equal(t, beforeOK+1, testutil.ToFloat64(ok))
	require.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
	require.Equal(t, beforeSamples+2, sampleCount(t, latency))

	m.SetEscrowBalance("service-request", "USN", big.NewInt(1250))
	require.Equal(t, float64(1250), testutil.ToFloat64(m.escrow.WithLabelValues("service-request", "USN")))
	m.SetEscrowBalance("service-request", "USN", nil)
	require.Zero(t, testutil.ToFloat64(m.escrow.WithLabelValues("service-request", "USN")))

	cleanup := m.cleanupFailures.WithLabelValues("orders")
	before := testutil.ToFloat64(cleanup)
	m.IncTrackingCleanupFailure("orders")
	require.Equal(t, before+1, testutil.ToFloat64(cleanup))
}

func sampleCount(t *testing.T, obs prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := obs.(prometheus.Metric)
	require.True(t, ok)
	var out dto.Metric
	require.NoError(t, metric.Write(&out))
	return out.GetHistogram().GetSampleCount()
}

func TestSettlementOperationsReachOTelMeter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m := *Settlement()
	m.instruments = newSettlementInstruments(provider)
	m.ObserveOperation("service-request", "pay", "", 5*time.Millisecond)
	m.ObserveOperation("service-request", "pay", "BadNonce", time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	calls := map[string]int64{}
	var histograms int
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				require.Equal(t, "genomarket.settlement.operations", md.Name)
				for _, dp := range data.DataPoints {
					code, ok := dp.Attributes.Value(attribute.Key("code"))
					require.True(t, ok)
					calls[code.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				require.Equal(t, "genomarket.settlement.duration", md.Name)
				for _, dp := range data.DataPoints {
					histograms += int(dp.Count)
				}
			}
		}
	}
	require.Equal(t, map[string]int64{"ok": 1, "BadNonce": 1}, calls)
	require.Equal(t, 2, histograms)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var s *SettlementMetrics
	s.ObserveOperation("orders", "pay", "", time.Second)
	s.SetEscrowBalance("orders", "DBIO", big.NewInt(1))
	s.IncTrackingCleanupFailure("orders")

	var m *moduleMetrics
	m.Observe("orders", "GET", http.StatusOK, time.Second)
	m.RecordThrottle("tx", "")

	var e *eventMetrics
	e.RecordTransfer("USN")
}

func TestModuleMetricsCountsErrors(t *testing.T) {
	m := ModuleMetrics()
	errs := m.errors.WithLabelValues("tx", "POST", "429")
	before := testutil.ToFloat64(errs)
	m.Observe("tx", "POST", http.StatusTooManyRequests, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(errs))

	throttles := m.throttles.WithLabelValues("tx", "unspecified")
	before = testutil.ToFloat64(throttles)
	m.RecordThrottle("tx", "")
	require.Equal(t, before+1, testutil.ToFloat64(throttles))
}

func TestEventsRecordTransferNormalises(t *testing.T) {
	m := Events()
	native := m.transfers.WithLabelValues("DBIO")
	usn := m.transfers.WithLabelValues("USN")
	beforeNative := testutil.ToFloat64(native)
	beforeUSN := testutil.ToFloat64(usn)

	m.RecordTransfer("")
	m.RecordTransfer(" usn ")
	require.Equal(t, beforeNative+1, testutil.ToFloat64(native))
	require.Equal(t, beforeUSN+1, testutil.ToFloat64(usn))
}

func TestBigToFloat(t *testing.T) {
	require.Zero(t, bigToFloat(nil))
	require.Equal(t, float64(42), bigToFloat(big.NewInt(42)))
}
