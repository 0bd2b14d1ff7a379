// Package telemetry exposes prometheus metrics for both process roles.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds all tribune metrics.
	Registry = prometheus.NewRegistry()

	// EventsAnnounced counts events announced by the coordinator.
	EventsAnnounced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tribune",
			Name:      "events_announced_total",
			Help:      "Events announced to participants.",
		},
	)

	// Partials counts partial results ingested by the coordinator, by outcome.
	Partials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tribune",
			Name:      "partials_total",
			Help:      "Partial results received, labeled by outcome.",
		},
		[]string{"status"},
	)

	// Shares counts peer shares ingested by a participant, by outcome.
	Shares = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tribune",
			Name:      "shares_total",
			Help:      "Peer shares received, labeled by outcome.",
		},
		[]string{"status"},
	)

	// ActiveEvents tracks events awaiting aggregation on the coordinator.
	ActiveEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tribune",
			Name:      "active_events",
			Help:      "Events currently awaiting aggregation.",
		},
	)

	// RosterSize tracks the number of registered participants.
	RosterSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tribune",
			Name:      "roster_size",
			Help:      "Participants currently in the roster.",
		},
	)

	// RequestsTotal counts HTTP requests by operation and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tribune",
			Name:      "requests_total",
			Help:      "HTTP requests, labeled by op and status class.",
		},
		[]string{"op", "status"},
	)

	// RequestDuration tracks HTTP request latency by operation.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tribune",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)
)

func init() {
	Registry.MustRegister(
		EventsAnnounced, Partials, Shares,
		ActiveEvents, RosterSize,
		RequestsTotal, RequestDuration,
	)
}

// MetricsHandler exposes the registry; mount it on /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// statusWriter captures the response status for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler to record request count and latency under op.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
