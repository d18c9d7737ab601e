package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for availability and booking flows.
type SchedulingMetrics struct {
	ruleMutations     *prometheus.CounterVec
	bookingsTotal     *prometheus.CounterVec
	statusChanges     *prometheus.CounterVec
	derivationLatency *prometheus.HistogramVec
	velocityBlocked   prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		ruleMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "availability",
			Name:      "rule_mutations_total",
			Help:      "Availability rule writes by operation and outcome",
		}, []string{"op", "outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "booking",
			Name:      "status_changes_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to", "outcome"}),
		derivationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "therapy",
			Subsystem: "availability",
			Name:      "slot_derivation_seconds",
			Help:      "Latency of open-slot derivation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		velocityBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "booking",
			Name:      "velocity_blocked_total",
			Help:      "Booking attempts rejected by the per-patient velocity limit",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.ruleMutations, m.bookingsTotal, m.statusChanges, m.derivationLatency, m.velocityBlocked)
	return m
}

func (m *SchedulingMetrics) ObserveRuleMutation(op, outcome string) {
	if m == nil {
		return
	}
	m.ruleMutations.WithLabelValues(op, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveStatusChange(from, to, outcome string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(from, to, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveDerivation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.derivationLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveVelocityBlocked() {
	if m == nil {
		return
	}
	m.velocityBlocked.Inc()
}

// Outcome maps an operation error onto a low-cardinality label.
func Outcome(err error, classify func(error) string) string {
	if err == nil {
		return "ok"
	}
	if classify == nil {
		return "error"
	}
	if label := classify(err); label != "" {
		return label
	}
	return "error"
}
