// Package metrics provides Prometheus instrumentation for the relay. It
// counts requests per flow and outcome, message log appends, session
// resolutions and duplicate webhook deliveries, and times bot network calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts relay requests labeled by flow
	// ("outbound", "inbound", "unrecognized") and outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Relay requests by flow and outcome",
	}, []string{"flow", "outcome"})

	// SinkDuration records bot network send latency in seconds.
	SinkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_sink_duration_seconds",
		Help:    "Bot network send latency in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// LogAppendsTotal counts message log appends by sender and result
	// ("ok", "error").
	LogAppendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_log_appends_total",
		Help: "Message log appends by sender and result",
	}, []string{"sender", "result"})

	// ResolutionsTotal counts inbound session resolutions by strategy.
	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_resolutions_total",
		Help: "Inbound session resolutions by strategy",
	}, []string{"strategy"})

	// DuplicateUpdatesTotal counts webhook updates dropped as replays.
	DuplicateUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_duplicate_updates_total",
		Help: "Inbound updates dropped because their update id was already seen",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		SinkDuration,
		LogAppendsTotal,
		ResolutionsTotal,
		DuplicateUpdatesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
