package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the sync engine. Registered on the
// default registry; exposed through promhttp on /metrics.
var (
	ConnectedSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_connected_sockets",
		Help: "Currently connected websocket clients.",
	})
	ActiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_channels",
		Help: "Channels currently held in memory.",
	})
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_events_total",
		Help: "Inbound CRUD events by entity type and operation.",
	}, []string{"type", "op"})
	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_event_errors_total",
		Help: "Dispatch failures by error kind.",
	}, []string{"kind"})
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_broadcasts_total",
		Help: "Messages fanned out to channel members.",
	})
	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_broadcast_drops_total",
		Help: "Per-socket deliveries skipped due to write failure.",
	})
	StreamChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_stream_chunks_total",
		Help: "AI streaming draft chunks relayed.",
	})
	StreamSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_stream_sessions",
		Help: "Open AI streaming sessions.",
	})
)
