// Package metrics exposes the bridge's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so components can be
// constructed without metrics in tests.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "telemetry_bridge"

// Connection states reported by the connection_state gauge.
var connectionStates = []string{"disconnected", "connecting", "connected", "error"}

// Metrics holds every collector the bridge updates.
type Metrics struct {
	connectionState    *prometheus.GaugeVec
	connectionAttempts *prometheus.CounterVec
	reconnects         prometheus.Counter
	messages           *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	publishes          *prometheus.CounterVec
	wsClients          prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current broker connection state, 0 for the others.",
		}, []string{"state"}),
		connectionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_attempts_total",
			Help:      "Broker connection attempts by profile and result.",
		}, []string{"broker", "result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Failover sequences restarted from the first broker profile.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound MQTT messages by kind and outcome.",
		}, []string{"kind", "result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_depth",
			Help:      "Messages waiting in the ingest queue.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Outbound command publishes by result.",
		}, []string{"result"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket live feed clients.",
		}),
	}

	collectors := []prometheus.Collector{
		m.connectionState,
		m.connectionAttempts,
		m.reconnects,
		m.messages,
		m.queueDepth,
		m.publishes,
		m.wsClients,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}

	m.SetConnectionState("disconnected")
	return m, nil
}

// SetConnectionState marks state as current.
func (m *Metrics) SetConnectionState(state string) {
	if m == nil {
		return
	}
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

// IncConnectionAttempt counts one dial of a broker profile.
func (m *Metrics) IncConnectionAttempt(broker, result string) {
	if m == nil {
		return
	}
	m.connectionAttempts.WithLabelValues(broker, result).Inc()
}

// IncReconnects counts one restart of the failover sequence.
func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// IncMessages counts one inbound message.
func (m *Metrics) IncMessages(kind, result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind, result).Inc()
}

// SetQueueDepth records the ingest backlog.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// IncPublishes counts one outbound publish.
func (m *Metrics) IncPublishes(result string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(result).Inc()
}

// SetWebSocketClients records the live feed client count.
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
