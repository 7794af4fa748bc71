// Package metrics exposes prometheus counters for call sessions and signal relaying
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's collectors, registered on their own registry so
// that several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	CallsStarted    *prometheus.CounterVec
	CallTransitions *prometheus.CounterVec
	SignalsRelayed  *prometheus.CounterVec
	SignalsDropped  *prometheus.CounterVec
	ConnectedUsers  prometheus.Gauge
}

// New creates and registers the server's collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CallsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocall",
			Name:      "calls_started_total",
			Help:      "Call sessions started, by media type",
		}, []string{"type"}),
		CallTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocall",
			Name:      "call_transitions_total",
			Help:      "Accept, decline and end requests applied to call sessions",
		}, []string{"action"}),
		SignalsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocall",
			Name:      "signals_relayed_total",
			Help:      "Signals delivered to a user's inbox, by signal type",
		}, []string{"type"}),
		SignalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocall",
			Name:      "signals_dropped_total",
			Help:      "Signals that could not be delivered, by reason",
		}, []string{"reason"}),
		ConnectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vocall",
			Name:      "connected_users",
			Help:      "Users with an open signaling websocket",
		}),
	}
	m.registry.MustRegister(
		m.CallsStarted,
		m.CallTransitions,
		m.SignalsRelayed,
		m.SignalsDropped,
		m.ConnectedUsers,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
