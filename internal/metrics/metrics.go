// Package metrics exposes Prometheus instrumentation for check runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	OutcomeOK             = "ok"
	OutcomeHTTPError      = "http_error"
	OutcomeTransportError = "transport_error"
	OutcomeEmpty          = "empty"
	OutcomeFailed         = "failed"
)

var (
	MirrorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedwatch_mirror_requests_total",
		Help: "Feed requests per mirror, by outcome",
	}, []string{"mirror", "outcome"})

	FeedsNotFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedwatch_feeds_not_found_total",
		Help: "Account checks where every mirror failed",
	})

	ParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedwatch_parse_failures_total",
		Help: "Feed documents that could not be normalized, by detected format",
	}, []string{"format"})

	NewPosts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedwatch_new_posts_total",
		Help: "Posts not previously seen, by account",
	}, []string{"handle"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedwatch_notifications_total",
		Help: "Notifications handed to the sink, by outcome",
	}, []string{"outcome"})

	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedwatch_check_duration_seconds",
		Help:    "Duration of a single account check",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms .. ~51s
	})

	LastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedwatch_last_run_timestamp_seconds",
		Help: "Unix time of the last completed check run",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
