package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveTurn("IDLE")
	m.ObserveTurn("IDLE")
	m.ObserveBooking("success")
	m.ObserveResolverFailure()
	m.ObserveTransactorFailure("conflict")
	m.ObserveLockout()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.turnsTotal.WithLabelValues("IDLE")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.bookingsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resolverFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transactorFailures.WithLabelValues("conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.lockoutsTotal))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *BookingMetrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("IDLE")
		m.ObserveBooking("success")
		m.ObserveResolverFailure()
		m.ObserveTransactorFailure("fatal")
		m.ObserveLockout()
		m.ObserveResolveLatency(0.1)
	})
}
