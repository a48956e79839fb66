// Package metrics holds the Prometheus collectors of the flow engine.
//
// All Record methods are safe to call on a nil *Metrics, so components can
// run without metrics wired in.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wolkenkit_flows"

// Flow run outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
)

// Metrics contains the engine metrics.
type Metrics struct {
	EventsReceived    prometheus.Counter
	EventsHandled     prometheus.Counter
	EventsDiscarded   prometheus.Counter
	CommandsPublished *prometheus.CounterVec
	FlowRuns          *prometheus.CounterVec
	HandleDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Total number of domain events received from the flow bus",
		}),
		EventsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handled_total",
			Help:      "Total number of domain events acknowledged",
		}),
		EventsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "discarded_total",
			Help:      "Total number of domain events discarded for redelivery",
		}),
		CommandsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "published_total",
			Help:      "Total number of commands sent to the command bus",
		}, []string{"command"}),
		FlowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flows",
			Name:      "runs_total",
			Help:      "Flow invocations by flow, kind and outcome",
		}, []string{"flow", "kind", "outcome"}),
		HandleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handle_duration_seconds",
			Help:      "Time from receiving an event to acknowledging or discarding it",
			Buckets:   prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.EventsReceived,
		m.EventsHandled,
		m.EventsDiscarded,
		m.CommandsPublished,
		m.FlowRuns,
		m.HandleDuration,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordReceived increments the received counter.
func (m *Metrics) RecordReceived() {
	if m == nil {
		return
	}
	m.EventsReceived.Inc()
}

// RecordHandled increments the handled counter and observes duration.
func (m *Metrics) RecordHandled(d time.Duration) {
	if m == nil {
		return
	}
	m.EventsHandled.Inc()
	m.HandleDuration.Observe(d.Seconds())
}

// RecordDiscarded increments the discarded counter and observes duration.
func (m *Metrics) RecordDiscarded(d time.Duration) {
	if m == nil {
		return
	}
	m.EventsDiscarded.Inc()
	m.HandleDuration.Observe(d.Seconds())
}

// RecordCommand increments the published counter for a command name.
func (m *Metrics) RecordCommand(fullName string) {
	if m == nil {
		return
	}
	m.CommandsPublished.WithLabelValues(fullName).Inc()
}

// RecordFlowRun counts one flow invocation.
func (m *Metrics) RecordFlowRun(flow, kind, outcome string) {
	if m == nil {
		return
	}
	m.FlowRuns.WithLabelValues(flow, kind, outcome).Inc()
}
