package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the interpreter collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	NodeVisits       *prometheus.CounterVec
	Turns            *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	WebhookDuration  *prometheus.HistogramVec
	Terminations     *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatflow_node_visits_total",
			Help: "Total number of nodes entered, by node type",
		}, []string{"node_type"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatflow_turns_total",
			Help: "Total number of transcript turns, by role",
		}, []string{"role"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatflow_provider_duration_seconds",
			Help:    "Duration of AI provider calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		WebhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatflow_webhook_duration_seconds",
			Help:    "Duration of webhook calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatflow_sessions_terminated_total",
			Help: "Total number of conversations that ended, by final status",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.NodeVisits, m.Turns, m.ProviderDuration, m.WebhookDuration, m.Terminations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks records every lifecycle event in the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(string(e.NodeType)).Inc()
		},
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(string(e.Turn.Role)).Inc()
		},
		OnProviderCall: func(ctx context.Context, e *domain.CallEvent) {
			m.ProviderDuration.WithLabelValues(outcome(e)).Observe(e.Duration.Seconds())
		},
		OnWebhookCall: func(ctx context.Context, e *domain.CallEvent) {
			m.WebhookDuration.WithLabelValues(outcome(e)).Observe(e.Duration.Seconds())
		},
		OnTerminal: func(ctx context.Context, e *domain.NodeEvent) {
			m.Terminations.WithLabelValues(string(e.Status)).Inc()
		},
	}
}

func outcome(e *domain.CallEvent) string {
	if e.IsError {
		return "error"
	}
	return "ok"
}
