// Package session implements the driver's session orchestrator.
// This file defines the session's Prometheus instrumentation.
package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/cassio/internal/dispatch"
)

type sessionMetrics struct {
	requestsSubmitted prometheus.Counter
	requestsCompleted prometheus.Counter
	requestsFailed    prometheus.Counter
	eventsProcessed   prometheus.Counter
	hostsUp           prometheus.Gauge
	queueDepth        prometheus.GaugeFunc
}

// newSessionMetrics builds and registers the session's collectors. A nil
// registerer gets a private registry so multiple sessions in one process
// never collide on duplicate registration.
func newSessionMetrics(reg prometheus.Registerer, queue *dispatch.Queue) *sessionMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &sessionMetrics{
		requestsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cassio",
			Subsystem: "session",
			Name:      "requests_submitted_total",
			Help:      "Requests accepted onto the dispatch queue.",
		}),
		requestsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cassio",
			Subsystem: "session",
			Name:      "requests_completed_total",
			Help:      "Requests whose future resolved, successfully or not.",
		}),
		requestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cassio",
			Subsystem: "session",
			Name:      "requests_failed_total",
			Help:      "Requests rejected before reaching a worker.",
		}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cassio",
			Subsystem: "session",
			Name:      "events_processed_total",
			Help:      "Lifecycle events processed by the session loop.",
		}),
		hostsUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cassio",
			Subsystem: "session",
			Name:      "hosts_up",
			Help:      "Hosts currently accepting requests.",
		}),
	}
	m.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "cassio",
		Subsystem: "session",
		Name:      "queue_depth",
		Help:      "Requests waiting on the dispatch queue.",
	}, func() float64 { return float64(queue.Len()) })

	reg.MustRegister(m.requestsSubmitted, m.requestsCompleted, m.requestsFailed, m.eventsProcessed, m.hostsUp, m.queueDepth)
	return m
}
