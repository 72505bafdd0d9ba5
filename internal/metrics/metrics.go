// Package metrics holds the Prometheus collectors for the server. All methods
// are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patientsync"

// Relay outcomes.
const (
	RelayDelivered   = "delivered"
	RelayNoPrincipal = "no_principal"
	RelayFailed      = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	alarmCycles       prometheus.Counter
	alarmMutations    *prometheus.CounterVec
	notifyDelivered   *prometheus.CounterVec
	notifyFailed      *prometheus.CounterVec
	relayRequests     *prometheus.CounterVec
	invocationsDenied *prometheus.CounterVec
}

// New registers the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		alarmCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "cycles_total",
			Help:      "Completed alarm mutation passes.",
		}),
		alarmMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "mutations_total",
			Help:      "Alarm flags written, by new value.",
		}, []string{"alarm"}),
		notifyDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "notifications_delivered_total",
			Help:      "Events queued to a connection, by event name.",
		}, []string{"event"}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "notifications_failed_total",
			Help:      "Events that could not be queued to a connection, by event name.",
		}, []string{"event"}),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Detail-open relay requests, by outcome.",
		}, []string{"outcome"}),
		invocationsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "invocations_rejected_total",
			Help:      "Invocations rejected before dispatch, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.alarmCycles,
		m.alarmMutations,
		m.notifyDelivered,
		m.notifyFailed,
		m.relayRequests,
		m.invocationsDenied,
	)
	return m
}

// TrackConnections exposes the live connection count read from fn.
func (m *Metrics) TrackConnections(fn func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "active_connections",
		Help:      "Currently registered hub connections.",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) AlarmCycle() {
	if m == nil {
		return
	}
	m.alarmCycles.Inc()
}

func (m *Metrics) AlarmMutation(alarm bool) {
	if m == nil {
		return
	}
	m.alarmMutations.WithLabelValues(strconv.FormatBool(alarm)).Inc()
}

func (m *Metrics) NotificationDelivered(event string) {
	if m == nil {
		return
	}
	m.notifyDelivered.WithLabelValues(event).Inc()
}

func (m *Metrics) NotificationFailed(event string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(event).Inc()
}

func (m *Metrics) Relay(outcome string) {
	if m == nil {
		return
	}
	m.relayRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) InvocationRejected(reason string) {
	if m == nil {
		return
	}
	m.invocationsDenied.WithLabelValues(reason).Inc()
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
