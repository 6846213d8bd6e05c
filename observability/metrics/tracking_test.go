package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackingOpenGauge(t *testing.T) {
	m := Tracking()
	m.InitKind("dna-sample")
	open := m.open.WithLabelValues("dna-sample")

	m.ObserveRegistered("dna-sample")
	m.ObserveRegistered("dna-sample")
	m.ObserveRegistered("dna-sample")
	require.Equal(t, float64(3), testutil.ToFloat64(open))

	m.ObserveTransition("dna-sample", "Arrived", false)
	m.ObserveTransition("dna-sample", "ResultReady", true)
	m.ObserveFailure("dna-sample")
	m.ObserveDeleted("dna-sample")
	require.Zero(t, testutil.ToFloat64(open))
	require.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("dna-sample")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("dna-sample", "Arrived")))
}

func TestNilTrackingMetrics(t *testing.T) {
	var m *TrackingMetrics
	m.ObserveRegistered("x")
	m.ObserveTransition("x", "Arrived", true)
	m.ObserveFailure("x")
	m.ObserveDeleted("x")
	m.InitKind("x")
}
