// Package monitoring provides metrics and observability for the status monitor backend
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Source polling metrics
	sourcePollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuswatch_source_poll_total",
			Help: "Total number of poll attempts per source",
		},
		[]string{"source", "outcome"},
	)

	sourcePollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statuswatch_source_poll_duration_seconds",
			Help:    "Duration of source poll cycles",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "outcome"},
	)

	sourceState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statuswatch_source_state",
			Help: "Current poll state per source (1 for the active state, 0 otherwise)",
		},
		[]string{"source", "state"},
	)

	sourceConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statuswatch_source_consecutive_failures",
			Help: "Consecutive fetch failures per source",
		},
		[]string{"source"},
	)

	// Event bus metrics
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuswatch_events_published_total",
			Help: "Total number of change events published to the bus",
		},
		[]string{"source", "kind"},
	)

	eventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuswatch_events_dropped_total",
			Help: "Total number of events dropped from slow subscriber queues",
		},
	)

	busSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statuswatch_bus_subscribers",
			Help: "Current number of bus subscribers",
		},
	)

	eventLogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statuswatch_eventlog_size",
			Help: "Number of events held in the in-memory event log",
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statuswatch_websocket_connections",
			Help: "Current number of connected WebSocket clients",
		},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuswatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statuswatch_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// System metrics
	activePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statuswatch_active_pollers",
			Help: "Number of running source pollers",
		},
	)
)

// pollStates lists every state the source_state gauge tracks so that
// UpdateSourceState can zero the inactive ones.
var pollStates = []string{"idle", "fetching", "backing-off", "failing"}

// RecordSourcePoll records the outcome and duration of one poll cycle
func RecordSourcePoll(source, outcome string, duration float64) {
	sourcePollTotal.WithLabelValues(source, outcome).Inc()
	sourcePollDuration.WithLabelValues(source, outcome).Observe(duration)
}

// UpdateSourceState marks the given state active for a source and clears the rest
func UpdateSourceState(source, state string) {
	for _, s := range pollStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		sourceState.WithLabelValues(source, s).Set(value)
	}
}

// UpdateConsecutiveFailures updates the consecutive failure gauge for a source
func UpdateConsecutiveFailures(source string, count int) {
	sourceConsecutiveFailures.WithLabelValues(source).Set(float64(count))
}

// RecordEventPublished records a change event published to the bus
func RecordEventPublished(source, kind string) {
	eventsPublishedTotal.WithLabelValues(source, kind).Inc()
}

// RecordEventDropped records an event evicted from a slow subscriber queue
func RecordEventDropped() {
	eventsDroppedTotal.Inc()
}

// UpdateSubscriberCount updates the bus subscriber gauge
func UpdateSubscriberCount(count int) {
	busSubscribers.Set(float64(count))
}

// UpdateEventLogSize updates the event log size gauge
func UpdateEventLogSize(size int) {
	eventLogSize.Set(float64(size))
}

// UpdateWebsocketConnections updates the connected WebSocket client gauge
func UpdateWebsocketConnections(count int) {
	websocketConnections.Set(float64(count))
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

// UpdateActivePollers updates the running poller gauge
func UpdateActivePollers(count int) {
	activePollers.Set(float64(count))
}
