package actors

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handshake outcomes
const (
	OutcomeConnected        = "connected"
	OutcomeAccepted         = "accepted"
	OutcomeFailed           = "failed"
	OutcomeRejectedFull     = "rejected_full"
	OutcomeAlreadyConn      = "already_connected"
	OutcomeRemoteFull       = "remote_full"
	OutcomeRemoteAlready    = "remote_already_connected"
	OutcomeCancelled        = "cancelled"
	OutcomeConnectionLost   = "connection_lost"
	OutcomeRemoteDisconnect = "remote_disconnected"
)

type Metrics struct {
	Handshakes *prometheus.CounterVec
	Offline    *prometheus.CounterVec
	Dropped    prometheus.Counter
	Connected  prometheus.Gauge
}

// NewMetrics creates the metrics of a single peer, and registers them with reg if it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlink_handshake_total",
			Help: "Connection handshakes and teardowns, by outcome.",
		}, []string{"outcome"}),
		Offline: f.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlink_offline_total",
			Help: "Offline datagrams received, by kind.",
		}, []string{"kind"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "peerlink_dropped_datagrams_total",
			Help: "Datagrams that could not be parsed, or had no slot to go to.",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "peerlink_connected_slots",
			Help: "Slots currently in the connected state.",
		}),
	}
}
