// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WSConnections tracks sockets in the Active state.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_ws_connections",
		Help: "Number of live websocket connections.",
	})

	// Rooms tracks conversations with at least one subscriber.
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_ws_rooms",
		Help: "Number of rooms with live subscribers.",
	})

	// MessagesSent counts committed sends by message kind.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_sent_total",
		Help: "Messages committed by the send pipeline.",
	}, []string{"kind"})

	// BroadcastFrames counts frames enqueued to subscribers.
	BroadcastFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_broadcast_frames_total",
		Help: "Frames enqueued to room subscribers.",
	})

	// SlowConsumerEvictions counts connections dropped for full send queues.
	SlowConsumerEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_slow_consumer_evictions_total",
		Help: "Connections evicted because their send queue saturated.",
	})

	// SendDuration observes the persist+publish latency of the send path.
	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parley_send_duration_seconds",
		Help:    "Latency of the message send pipeline.",
		Buckets: prometheus.DefBuckets,
	})
)
