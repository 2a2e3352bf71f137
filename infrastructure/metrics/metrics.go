// Package metrics exposes Prometheus instrumentation for the realtime
// gateway and presence registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks open websocket connections, identified or not.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "linguaconnect_connections_total",
		Help: "Current number of open websocket connections",
	})

	// ActiveUsers tracks users with at least one identified connection.
	ActiveUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "linguaconnect_active_users",
		Help: "Current number of users with a live connection",
	})

	// MessagesTotal counts chat messages by outcome:
	// "persisted", "rejected", "pushed" or "undelivered".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linguaconnect_messages_total",
		Help: "Total number of chat messages handled",
	}, []string{"result"})

	// MessageLatency records send-message handling time in seconds.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "linguaconnect_message_latency_seconds",
		Help:    "Time from receiving send-message to acknowledging it",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// StatusBroadcasts counts user-status-change fan-outs.
	StatusBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "linguaconnect_status_broadcasts_total",
		Help: "Total number of user-status-change broadcasts",
	})

	// PresenceWriteErrors counts failed writes of the durable active flag.
	PresenceWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "linguaconnect_presence_write_errors_total",
		Help: "Total number of failed presence flag writes",
	})

	// RateLimited counts REST requests rejected by the per-IP limiter.
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "linguaconnect_rate_limited_total",
		Help: "Total number of rate limited HTTP requests",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ActiveUsers,
		MessagesTotal,
		MessageLatency,
		StatusBroadcasts,
		PresenceWriteErrors,
		RateLimited,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
