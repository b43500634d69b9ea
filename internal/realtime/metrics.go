package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	// wsSessions gauges open websocket sessions on this instance.
	wsSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_sessions",
		Help: "Current number of open realtime sessions.",
	})

	// eventsPublished counts publish calls by event name (not deliveries).
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_published_total",
		Help: "Total number of room events published.",
	}, []string{"event"})

	// deliveriesDropped counts per-session deliveries skipped because the
	// session was closed or its send buffer was full.
	deliveriesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_event_deliveries_dropped_total",
		Help: "Total number of event deliveries dropped (closed session or full buffer).",
	}, []string{"event"})

	// typingMarkers gauges live (room, user) typing markers.
	typingMarkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_typing_markers",
		Help: "Current number of active typing markers.",
	})
)

func init() {
	prometheus.MustRegister(wsSessions, eventsPublished, deliveriesDropped, typingMarkers)
}
