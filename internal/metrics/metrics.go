// Package metrics holds the Prometheus collectors of the bridge on a private registry.
//
// All recording methods are safe on a nil *Metrics so components can run without instrumentation
// (unit tests, tools).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hivesense"

type Metrics struct {
	registry *prometheus.Registry

	messages            *prometheus.CounterVec
	positions           *prometheus.CounterVec
	geolocationRequests *prometheus.CounterVec
	geolocationDuration prometheus.Histogram
	forwardErrors       *prometheus.CounterVec
	recorderErrors      prometheus.Counter
	movementAlarms      prometheus.Counter
	lastMessage         prometheus.Gauge
}

// New creates the collectors and registers them, plus Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound uplink messages by ingest result.",
		}, []string{"result"}),
		positions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_resolutions_total",
			Help:      "Position resolutions by source (service, network_hint, unavailable).",
		}, []string{"source"}),
		geolocationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geolocation_requests_total",
			Help:      "Geolocation API calls by outcome.",
		}, []string{"outcome"}),
		geolocationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geolocation_request_duration_seconds",
			Help:      "Duration of geolocation API calls in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5},
		}),
		forwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_errors_total",
			Help:      "Failed sink updates by field.",
		}, []string{"field"}),
		recorderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_errors_total",
			Help:      "Failed history/monitor recordings.",
		}),
		movementAlarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movement_alarms_total",
			Help:      "Times a device was detected away from its previous position.",
		}),
		lastMessage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_message_timestamp_seconds",
			Help:      "Unix time of the last successfully forwarded uplink.",
		}),
	}

	m.registry.MustRegister(
		m.messages,
		m.positions,
		m.geolocationRequests,
		m.geolocationDuration,
		m.forwardErrors,
		m.recorderErrors,
		m.movementAlarms,
		m.lastMessage,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Messages() *prometheus.CounterVec            { return m.messages }
func (m *Metrics) Positions() *prometheus.CounterVec           { return m.positions }
func (m *Metrics) GeolocationRequests() *prometheus.CounterVec { return m.geolocationRequests }
func (m *Metrics) ForwardErrors() *prometheus.CounterVec       { return m.forwardErrors }
func (m *Metrics) RecorderErrors() prometheus.Counter          { return m.recorderErrors }
func (m *Metrics) MovementAlarms() prometheus.Counter          { return m.movementAlarms }

func (m *Metrics) ObserveMessage(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePosition(source string) {
	if m == nil {
		return
	}
	m.positions.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveGeolocation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.geolocationRequests.WithLabelValues(outcome).Inc()
	m.geolocationDuration.Observe(seconds)
}

func (m *Metrics) ObserveForwardError(field string) {
	if m == nil {
		return
	}
	m.forwardErrors.WithLabelValues(field).Inc()
}

func (m *Metrics) ObserveRecorderError() {
	if m == nil {
		return
	}
	m.recorderErrors.Inc()
}

func (m *Metrics) ObserveMovementAlarm() {
	if m == nil {
		return
	}
	m.movementAlarms.Inc()
}

// SetLastMessage records the unix time of the last forwarded uplink.
func (m *Metrics) SetLastMessage(unixSeconds float64) {
	if m == nil {
		return
	}
	m.lastMessage.Set(unixSeconds)
}
