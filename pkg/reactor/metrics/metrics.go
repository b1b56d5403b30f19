// Package metrics holds the server's Prometheus collectors. One Metrics
// value is created at startup and shared by every Dispatch reactor, the way
// shockwave shares a single set of promauto collectors across its buffer
// pools rather than giving each one its own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the server-wide counters and gauges. All fields are safe
// for concurrent use by design (every promauto collector is).
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	ActiveClients       prometheus.Gauge
	RequestsDispatched  prometheus.Counter
	NotFoundResponses   prometheus.Counter
	ParseErrors         prometheus.Counter
	ShutdownSeconds     prometheus.Gauge
}

// New registers a fresh set of collectors against the default registry.
// Tests that construct more than one Metrics in the same process should use
// NewWithRegistry to avoid a duplicate-registration panic.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers collectors against the given registerer.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "reactorhttp_connections_accepted_total",
			Help: "Total TCP connections accepted by the server.",
		}),
		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reactorhttp_active_clients",
			Help: "Connections currently owned by a Dispatch reactor.",
		}),
		RequestsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "reactorhttp_requests_dispatched_total",
			Help: "Requests handed to a worker or synthesized locally.",
		}),
		NotFoundResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "reactorhttp_not_found_total",
			Help: "Requests synthesized as 404 for lack of a registered handler.",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "reactorhttp_parse_errors_total",
			Help: "Connections that hit a malformed request.",
		}),
		ShutdownSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reactorhttp_shutdown_duration_seconds",
			Help: "Wall-clock time the last graceful shutdown took.",
		}),
	}
}
