// Package metrics registers the board server's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ralphban"

const (
	// OutcomeSuccess marks a handled message.
	OutcomeSuccess = "success"
	// OutcomeFailure marks a message that produced an error reply.
	OutcomeFailure = "failure"
	// OutcomeIgnored marks an unknown message type.
	OutcomeIgnored = "ignored"
)

var (
	// Messages counts inbound board messages by type and outcome.
	Messages = MustRegisterCounterVec(namespace, "board", "messages_total",
		"Inbound board messages by type and outcome.", "type", "outcome")

	// FileWrites counts task file rewrites by mutation action.
	FileWrites = MustRegisterCounterVec(namespace, "board", "file_writes_total",
		"Task file rewrites by action.", "action")

	// Refreshes counts update pushes by result (ok, error).
	Refreshes = MustRegisterCounterVec(namespace, "board", "refreshes_total",
		"Full board refreshes by result.", "result")

	// WatchEvents counts debounced watcher notifications by kind.
	WatchEvents = MustRegisterCounterVec(namespace, "watch", "events_total",
		"Debounced file watcher notifications by kind.", "kind")

	// Peers is the number of connected board views.
	Peers = MustRegisterGauge(namespace, "board", "peers",
		"Connected board views.")

	// OpenBoards is the number of task files with an open board.
	OpenBoards = MustRegisterGauge(namespace, "board", "open",
		"Task files with an open board.")

	// MutationDuration observes read-modify-write latency by action.
	MutationDuration = MustRegisterHistogramVec(namespace, "board", "mutation_duration_seconds",
		"Task file read-modify-write latency.", prometheus.DefBuckets, "action")
)

// MustRegisterCounterVec creates and registers a counter vector with the
// default registry. It panics on a duplicate name, so call it once per
// collector, e.g. from a package-level var block.
func MustRegisterCounterVec(namespace, component, name, help string, labelNames ...string) *prometheus.CounterVec {
	m := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	}, labelNames)
	prometheus.MustRegister(m)
	return m
}

// MustRegisterGauge creates and registers a gauge. Like the other helpers
// it panics on a duplicate name.
func MustRegisterGauge(namespace, component, name, help string) prometheus.Gauge {
	m := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(m)
	return m
}

// MustRegisterHistogramVec creates and registers a histogram vector.
func MustRegisterHistogramVec(namespace, component, name, help string, buckets []float64, labelNames ...string) *prometheus.HistogramVec {
	m := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labelNames)
	prometheus.MustRegister(m)
	return m
}

// ObserveSince records the seconds elapsed since start.
func ObserveSince(o prometheus.Observer, start time.Time) {
	o.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
