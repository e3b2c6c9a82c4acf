// Package metrics provides Prometheus metrics for the tunnel datapath.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qtun"

// Metrics contains all Prometheus metrics for the server.
type Metrics struct {
	// Handshake metrics
	HandshakesCompleted prometheus.Counter
	HandshakesFailed    prometheus.Counter

	// Datapath metrics
	PacketsRelayed   prometheus.Counter
	PacketsGatewayed prometheus.Counter
	PacketsDropped   *prometheus.CounterVec
	BytesIn          prometheus.Counter
	BytesOut         prometheus.Counter

	// Table metrics
	SessionsActive prometheus.Gauge
	PeersKnown     prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewWithRegistry creates a Metrics instance registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HandshakesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_completed_total",
			Help:      "Handshakes that produced a session",
		}),
		HandshakesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_failed_total",
			Help:      "Handshake attempts dropped before producing a session",
		}),
		PacketsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_relayed_total",
			Help:      "Datagrams re-encrypted and relayed between clients",
		}),
		PacketsGatewayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_gatewayed_total",
			Help:      "Datagrams written to the local TUN for NAT forwarding",
		}),
		PacketsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Datagrams dropped, by reason",
		}, []string{"reason"}),
		BytesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_in_total",
			Help:      "Encrypted bytes received from clients",
		}),
		BytesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_out_total",
			Help:      "Encrypted bytes sent to clients",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in the session table",
		}),
		PeersKnown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_known",
			Help:      "Virtual IPs currently mapped in the peer table",
		}),
	}
}

// DropReason labels for PacketsDropped.
const (
	DropNoSession   = "no_session"
	DropDecrypt     = "decrypt"
	DropBadPacket   = "bad_packet"
	DropPeerOffline = "peer_offline"
	DropNoGateway   = "no_gateway"
)

// RecordDrop increments the drop counter for a reason.
func (m *Metrics) RecordDrop(reason string) {
	m.PacketsDropped.WithLabelValues(reason).Inc()
}
