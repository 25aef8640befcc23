// Package metrics registers the prometheus instruments for dispatch,
// circuit breakers, and the repository cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all core metrics.
type Metrics struct {
	DispatchesTotal    *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	DispatchesInFlight prometheus.Gauge

	BreakerState            *prometheus.GaugeVec
	BreakerTransitionsTotal *prometheus.CounterVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// New creates a Metrics instance registered on the given registerer. A
// nil registerer uses the default one.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "opcore"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "dispatches_total",
				Help:      "Total number of dispatched messages",
			},
			[]string{"message", "outcome"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "dispatch_duration_seconds",
				Help:      "Dispatch duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"message"},
		),
		DispatchesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "dispatches_in_flight",
				Help:      "Current number of dispatches being processed",
			},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		BreakerTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"name", "to"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of repository cache hits",
			},
			[]string{"entity"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of repository cache misses",
			},
			[]string{"entity"},
		),
	}

	reg.MustRegister(
		m.DispatchesTotal,
		m.DispatchDuration,
		m.DispatchesInFlight,
		m.BreakerState,
		m.BreakerTransitionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
	return m
}

// RecordDispatch records one completed dispatch.
func (m *Metrics) RecordDispatch(message, outcome string, duration time.Duration) {
	m.DispatchesTotal.WithLabelValues(message, outcome).Inc()
	m.DispatchDuration.WithLabelValues(message).Observe(duration.Seconds())
}

// RecordBreakerTransition records a breaker state change.
func (m *Metrics) RecordBreakerTransition(name string, to float64, toLabel string) {
	m.BreakerState.WithLabelValues(name).Set(to)
	m.BreakerTransitionsTotal.WithLabelValues(name, toLabel).Inc()
}
