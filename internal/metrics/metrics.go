// Package metrics registers the bot's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Resolutions counts now-playing resolutions by terminal outcome
	// (playing, not_playing, timeout, protocol_violation, ...).
	Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nowbot_resolutions_total",
		Help: "Now-playing resolution attempts by outcome.",
	}, []string{"outcome"})

	// InlineQueries counts inline queries by kind (now_playing, search).
	InlineQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nowbot_inline_queries_total",
		Help: "Inline queries handled, by kind.",
	}, []string{"kind"})

	// BroadcastSends counts messages delivered by admin broadcasts.
	BroadcastSends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nowbot_broadcast_sends_total",
		Help: "Messages delivered by admin broadcasts.",
	})
)

func init() {
	prometheus.MustRegister(Resolutions, InlineQueries, BroadcastSends)
}
