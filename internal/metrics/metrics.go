// Package metrics exposes Prometheus collectors for proctored attempts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proctor-session-service/internal/session"
)

const namespace = "proctor"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	AttemptsActive    prometheus.Gauge
	Transitions       *prometheus.CounterVec
	Disqualifications *prometheus.CounterVec
	ScorePercentage   prometheus.Histogram
	ClientMessages    *prometheus.CounterVec
	Connections       prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AttemptsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attempts_in_progress",
			Help:      "Number of attempts currently in progress",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Attempt phase transitions by target phase",
		}, []string{"to"}),
		Disqualifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disqualifications_total",
			Help:      "Disqualified attempts by reason",
		}, []string{"reason"}),
		ScorePercentage: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_percentage",
			Help:      "Score percentage of completed attempts",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		ClientMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_total",
			Help:      "Inbound websocket messages by type and outcome",
		}, []string{"type", "status"}),
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open websocket connections",
		}),
	}
}

// ObserveTransition records one attempt phase change.
func (m *Metrics) ObserveTransition(t session.Transition) {
	m.Transitions.WithLabelValues(string(t.To)).Inc()
	if t.To == session.PhaseInProgress {
		m.AttemptsActive.Inc()
	}
	if t.From == session.PhaseInProgress {
		m.AttemptsActive.Dec()
	}
	switch t.To {
	case session.PhaseDisqualified:
		m.Disqualifications.WithLabelValues(t.Reason).Inc()
	case session.PhaseResults:
		if t.Result != nil {
			m.ScorePercentage.Observe(float64(t.Result.Percentage))
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
