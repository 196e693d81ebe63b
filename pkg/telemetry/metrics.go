package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus counters for dispatch and provisioning
// activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatches       *prometheus.CounterVec
	provisionRuns    *prometheus.CounterVec
	compensationRuns *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "playbook_dispatches_total",
				Help:      "Total number of playbook dispatches",
			},
			[]string{"playbook", "status"},
		),
		provisionRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provision_runs_total",
				Help:      "Total number of provisioning runs",
			},
			[]string{"provider", "status"},
		),
		compensationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Total number of rollback compensations executed",
			},
			[]string{"provider", "status"},
		),
	}

	registry.MustRegister(m.dispatches, m.provisionRuns, m.compensationRuns)
	return m
}

// ObserveDispatch records one playbook dispatch outcome.
func (m *Metrics) ObserveDispatch(playbook, status string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(playbook, status).Inc()
}

// ObserveProvisionRun records one provisioning run outcome.
func (m *Metrics) ObserveProvisionRun(provider, status string) {
	if m == nil {
		return
	}
	m.provisionRuns.WithLabelValues(provider, status).Inc()
}

// ObserveCompensation records one executed compensation.
func (m *Metrics) ObserveCompensation(provider, status string) {
	if m == nil {
		return
	}
	m.compensationRuns.WithLabelValues(provider, status).Inc()
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
