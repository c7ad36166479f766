// Package metrics defines the Prometheus collectors exported on the debug server.
//
// Collectors are grouped in a Metrics value bound to a registerer so tests can use a
// private registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leaderbot"

type Metrics struct {
	Registry *prometheus.Registry

	ticks           prometheus.Counter
	tickDuration    prometheus.Histogram
	activeSessions  prometheus.Gauge
	fetchResults    *prometheus.CounterVec
	renderAttempts  *prometheus.CounterVec
	recreations     *prometheus.CounterVec
	removals        *prometheus.CounterVec
	sessionEvents   *prometheus.CounterVec
	skippedRecords  prometheus.Counter
	breakerState    *prometheus.GaugeVec
	commandRequests *prometheus.CounterVec
}

// New registers every collector on a fresh registry (plus the Go and process
// collectors) and returns the bundle.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_ticks_total",
			Help:      "Refresh ticks started.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_tick_duration_seconds",
			Help:      "Wall time of one refresh tick.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in the store.",
		}),
		fetchResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_results_total",
			Help:      "Data fetches by result.",
		}, []string{"result"}),
		renderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_attempts_total",
			Help:      "Render sink calls by operation and result.",
		}, []string{"op", "result"}),
		recreations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_recreations_total",
			Help:      "Artifact recreations by result.",
		}, []string{"result"}),
		removals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_removals_total",
			Help:      "Session removals by reason.",
		}, []string{"reason"}),
		sessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"type"}),
		skippedRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_records_skipped_total",
			Help:      "Fetched records skipped because they were malformed.",
		}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
		commandRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_requests_total",
			Help:      "Chat commands handled by command and result.",
		}, []string{"command", "result"}),
	}
}

func (m *Metrics) TickStarted() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) TickFinished(d time.Duration, active int) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
	m.activeSessions.Set(float64(active))
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) FetchResult(result string) {
	if m == nil {
		return
	}
	m.fetchResults.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordsSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedRecords.Add(float64(n))
}

func (m *Metrics) RenderAttempt(op, result string) {
	if m == nil {
		return
	}
	m.renderAttempts.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Recreation(result string) {
	if m == nil {
		return
	}
	m.recreations.WithLabelValues(result).Inc()
}

func (m *Metrics) Removal(reason string) {
	if m == nil {
		return
	}
	m.removals.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionEvent(typ string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(typ).Inc()
}

func (m *Metrics) BreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) Command(command, result string) {
	if m == nil {
		return
	}
	m.commandRequests.WithLabelValues(command, result).Inc()
}
