// Package metrics exposes Prometheus collectors for the bridge, the role
// resolution engine and the authorization gate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics implements the observer interfaces of bridge, resolve and gate.
type Metrics struct {
	registry          *prometheus.Registry
	bridge            *prometheus.CounterVec
	resolution        *prometheus.CounterVec
	identifierAttempt prometheus.Counter
	decisions         *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bridge: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rolegate_bridge_total",
			Help: "Identity bridge calls by outcome.",
		}, []string{"outcome"}),
		resolution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rolegate_resolution_total",
			Help: "Role resolutions by tier and outcome.",
		}, []string{"tier", "outcome"}),
		identifierAttempt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rolegate_tier2_attempts_total",
			Help: "Identifier-scoped procedure attempts, retries included.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rolegate_gate_decisions_total",
			Help: "Applied gate states.",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.bridge,
		m.resolution,
		m.identifierAttempt,
		m.decisions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveBridge(outcome string) {
	m.bridge.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveResolution(tier, outcome string) {
	m.resolution.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) ObserveIdentifierAttempt() {
	m.identifierAttempt.Inc()
}

func (m *Metrics) ObserveDecision(status string) {
	m.decisions.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
