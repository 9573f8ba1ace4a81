package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks server activity counters and gauges. Each Server owns its
// own registry so multiple servers in one process (tests, mostly) don't
// collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	messagesReceived  *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	registeredUsers   prometheus.Gauge
	channelsActive    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ircd_connections_total",
			Help: "Total number of accepted client connections.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ircd_connections_active",
			Help: "Number of currently open client connections.",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ircd_messages_received_total",
			Help: "Messages received from clients, by command.",
		}, []string{"command"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ircd_messages_sent_total",
			Help: "Messages sent to clients, by command.",
		}, []string{"command"}),
		registeredUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ircd_registered_users",
			Help: "Number of sessions with a registered nickname.",
		}),
		channelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ircd_channels_active",
			Help: "Number of channels in the registry.",
		}),
	}

	m.registry.MustRegister(
		m.connectionsTotal,
		m.connectionsActive,
		m.messagesReceived,
		m.messagesSent,
		m.registeredUsers,
		m.channelsActive,
	)
	return m
}

func (m *Metrics) RecordConnection() {
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) RecordDisconnection() {
	m.connectionsActive.Dec()
}

func (m *Metrics) RecordMessageReceived(command string) {
	m.messagesReceived.WithLabelValues(command).Inc()
}

func (m *Metrics) RecordMessageSent(command string) {
	m.messagesSent.WithLabelValues(command).Inc()
}

func (m *Metrics) SetRegisteredUsers(n int) {
	m.registeredUsers.Set(float64(n))
}

func (m *Metrics) SetActiveChannels(n int) {
	m.channelsActive.Set(float64(n))
}
