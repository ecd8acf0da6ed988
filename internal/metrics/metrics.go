// Package metrics provides Prometheus metrics for the pilot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pilot collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	PipelineRuns     *prometheus.CounterVec
	ModelDuration    prometheus.Histogram
	ActionsTotal     *prometheus.CounterVec
	SessionConnected prometheus.Gauge
	ChatEvents       prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelpilot_pipeline_runs_total",
			Help: "Chat-triggered pipeline runs by outcome.",
		}, []string{"outcome"}),
		ModelDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxelpilot_model_request_duration_seconds",
			Help:    "Duration of model completion requests in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelpilot_actions_total",
			Help: "Sandbox capability calls by verb and status.",
		}, []string{"verb", "status"}),
		SessionConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxelpilot_session_connected",
			Help: "1 while the world session is connected.",
		}),
		ChatEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "voxelpilot_chat_events_total",
			Help: "Chat messages received from players.",
		}),
	}
}

func (m *Metrics) Run(outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveModel(seconds float64) {
	if m == nil {
		return
	}
	m.ModelDuration.Observe(seconds)
}

func (m *Metrics) Action(verb, status string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(verb, status).Inc()
}

func (m *Metrics) Connected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.SessionConnected.Set(1)
		return
	}
	m.SessionConnected.Set(0)
}

func (m *Metrics) Chat() {
	if m == nil {
		return
	}
	m.ChatEvents.Inc()
}
