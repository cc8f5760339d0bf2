package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters/histograms for booking and lifecycle flows.
type Metrics struct {
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointments",
			Subsystem: "allocator",
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointments",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transition attempts by event and outcome",
		}, []string{"event", "outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appointments",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservations, m.transitions, m.httpLatency)
	return m
}

func (m *Metrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(event, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}
