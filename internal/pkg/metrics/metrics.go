/*
Package metrics defines the Prometheus collectors for the coordination layer.

Collectors live on a private registry so tests can build as many instances as they need.
All methods are safe on a nil *Metrics, which records nothing.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groupchat"

// Metrics groups the collectors updated by the chat package.
type Metrics struct {
	registry *prometheus.Registry

	connections   prometheus.Gauge
	rooms         prometheus.Gauge
	multicasts    *prometheus.CounterVec
	dropped       prometheus.Counter
	presence      *prometheus.CounterVec
	zombiesSwept  prometheus.Counter
	operations    *prometheus.CounterVec
	opDurationSec *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live websocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one joined connection.",
		}),
		multicasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_multicast_total",
			Help:      "Events multicast to rooms, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Frames dropped because a connection's send queue was full.",
		}),
		presence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_transitions_total",
			Help:      "Presence transitions broadcast, by direction.",
		}, []string{"to"}),
		zombiesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zombie_users_swept_total",
			Help:      "Users flipped offline by the zombie sweep.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Inbound operations, by name and response status.",
		}, []string{"op", "status"}),
		opDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Inbound operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.rooms,
		m.multicasts,
		m.dropped,
		m.presence,
		m.zombiesSwept,
		m.operations,
		m.opDurationSec,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) Multicast(event string) {
	if m != nil {
		m.multicasts.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

// PresenceChanged records a broadcast transition; online selects the label.
func (m *Metrics) PresenceChanged(online bool) {
	if m == nil {
		return
	}
	to := "offline"
	if online {
		to = "online"
	}
	m.presence.WithLabelValues(to).Inc()
}

func (m *Metrics) ZombiesSwept(n int) {
	if m != nil {
		m.zombiesSwept.Add(float64(n))
	}
}

// Operation records one handled inbound operation.
func (m *Metrics) Operation(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, status).Inc()
	m.opDurationSec.WithLabelValues(op).Observe(seconds)
}
