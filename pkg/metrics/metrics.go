package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relayer"

// Metrics holds the relayer's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	retries         *prometheus.CounterVec
	terminal        *prometheus.CounterVec
	inFlight        prometheus.Gauge
	relayDuration   *prometheus.HistogramVec
	nodeCallLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Relay action state transitions, by destination state.",
		}, []string{"state"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Raw transaction submissions, by outcome and reject reason.",
		}, []string{"outcome", "reason"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries, by cause.",
		}, []string{"cause"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_finished_total",
			Help:      "Finished relay actions, by final state and error kind.",
		}, []string{"state", "kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relays_in_flight",
			Help:      "Relay actions currently being processed.",
		}),
		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "Time from request to terminal state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"state"}),
		nodeCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_call_duration_seconds",
			Help:      "Latency of node submissions and receipt polls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
	}
	m.registry.MustRegister(
		m.transitions,
		m.submissions,
		m.retries,
		m.terminal,
		m.inFlight,
		m.relayDuration,
		m.nodeCallLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) Submission(outcome, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.submissions.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) Retry(cause string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(cause).Inc()
}

// Started marks an action in flight; the returned func records its end.
func (m *Metrics) Started() func(state, kind string) {
	if m == nil {
		return func(string, string) {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func(state, kind string) {
		m.inFlight.Dec()
		if kind == "" {
			kind = "none"
		}
		m.terminal.WithLabelValues(state, kind).Inc()
		m.relayDuration.WithLabelValues(state).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveNodeCall(call string, start time.Time) {
	if m == nil {
		return
	}
	m.nodeCallLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
}
