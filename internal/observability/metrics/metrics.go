// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion paths, used as the "path" label.
const (
	PathChannel  = "channel"
	PathEndpoint = "endpoint"
)

// Metrics holds every instrument the pipeline records into.
type Metrics struct {
	EventsIngested       *prometheus.CounterVec
	EventsRejected       *prometheus.CounterVec
	ChannelDropped       *prometheus.CounterVec
	SubscriberReconnects prometheus.Counter
	BroadcastMessages    *prometheus.CounterVec
	LiveSessions         prometheus.Gauge
}

// New registers the instruments on the default registry.
func New() *Metrics {
	return &Metrics{
		EventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomfeed_events_ingested_total",
			Help: "Events persisted, by source and ingestion path.",
		}, []string{"source", "path"}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomfeed_events_rejected_total",
			Help: "Events rejected at normalization or persist, by path.",
		}, []string{"path"}),
		ChannelDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomfeed_channel_messages_dropped_total",
			Help: "Channel messages dropped, by reason (decode, validation).",
		}, []string{"reason"}),
		SubscriberReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "doomfeed_subscriber_reconnects_total",
			Help: "Times the channel subscriber entered backoff and re-dialed.",
		}),
		BroadcastMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "doomfeed_broadcast_messages_total",
			Help: "Messages fanned out to live sessions, by message type.",
		}, []string{"type"}),
		LiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "doomfeed_live_sessions",
			Help: "Currently connected live viewer sessions.",
		}),
	}
}
