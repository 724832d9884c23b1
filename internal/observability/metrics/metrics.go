package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking dialogue.
type BookingMetrics struct {
	turnsTotal         *prometheus.CounterVec
	bookingsTotal      *prometheus.CounterVec
	resolverFailures   prometheus.Counter
	transactorFailures *prometheus.CounterVec
	lockoutsTotal      prometheus.Counter
	resolveLatency     prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "booking",
			Name:      "turns_total",
			Help:      "Total dialogue turns processed, by entering state",
		}, []string{"state"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Total booking commit outcomes",
		}, []string{"outcome"}),
		resolverFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "booking",
			Name:      "resolver_failures_total",
			Help:      "Total slot resolver failures",
		}),
		transactorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "booking",
			Name:      "transactor_failures_total",
			Help:      "Total booking transactor failures, by class",
		}, []string{"class"}),
		lockoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "abuse",
			Name:      "lockouts_total",
			Help:      "Total booking attempts refused by the abuse guard",
		}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "booking",
			Name:      "resolve_latency_seconds",
			Help:      "Latency of slot resolution calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.bookingsTotal, m.resolverFailures, m.transactorFailures, m.lockoutsTotal, m.resolveLatency)
	return m
}

func (m *BookingMetrics) ObserveTurn(state string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state).Inc()
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveResolverFailure() {
	if m == nil {
		return
	}
	m.resolverFailures.Inc()
}

func (m *BookingMetrics) ObserveTransactorFailure(class string) {
	if m == nil {
		return
	}
	m.transactorFailures.WithLabelValues(class).Inc()
}

func (m *BookingMetrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.lockoutsTotal.Inc()
}

func (m *BookingMetrics) ObserveResolveLatency(seconds float64) {
	if m == nil {
		return
	}
	m.resolveLatency.Observe(seconds)
}
