// Package observability defines the Prometheus instruments exported by
// the daemon on /metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric exported by the daemon.
const Namespace = "medassistd"

// Outcomes recorded on chat_requests_total.
const (
	ChatOutcomeOK          = "ok"
	ChatOutcomeExhausted   = "exhausted"
	ChatOutcomeUnavailable = "unavailable"
	ChatOutcomeError       = "error"
)

// Outcomes recorded on tool_calls_total.
const (
	ToolOutcomeOK    = "ok"
	ToolOutcomeError = "error"
)

// Outcomes recorded on reminders_dispatched_total.
const (
	ReminderOutcomeSent            = "sent"
	ReminderOutcomeGuestSuppressed = "guest_suppressed"
	ReminderOutcomeFailed          = "failed"
)

// Results recorded on scheduler_ticks_total.
const (
	TickOK      = "ok"
	TickSkipped = "skipped"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	factory   promauto.Factory
	namespace string

	ChatRequests        *prometheus.CounterVec
	ChatLatency         prometheus.Histogram
	ToolCalls           *prometheus.CounterVec
	TriageVerdicts      *prometheus.CounterVec
	SessionsEvicted     prometheus.Counter
	RemindersDispatched *prometheus.CounterVec
	SchedulerTicks      *prometheus.CounterVec
}

// NewMetrics registers the instruments on the default Prometheus
// registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsFor(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsFor registers the instruments on reg. Tests pass a fresh
// registry so parallel constructions do not collide.
func NewMetricsFor(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		factory:   factory,
		namespace: namespace,
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		ChatLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_seconds",
			Help:      "End-to-end chat handling latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		TriageVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triage_verdicts_total",
			Help:      "Triage verdicts by tier.",
		}, []string{"tier"}),
		SessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed by the idle janitor.",
		}),
		RemindersDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_dispatched_total",
			Help:      "Reminder dispatch attempts by outcome.",
		}, []string{"outcome"}),
		SchedulerTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Reminder sweep ticks by result.",
		}, []string{"result"}),
	}
}

// RegisterActiveSessions exposes a gauge backed by the live session
// count.
func (m *Metrics) RegisterActiveSessions(count func() float64) {
	if m == nil {
		return
	}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "active_sessions",
		Help:      "Sessions currently held in memory.",
	}, count)
}

// ObserveChat records one chat request and its latency.
func (m *Metrics) ObserveChat(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
	m.ChatLatency.Observe(d.Seconds())
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordTriageVerdict records one triage evaluation by tier.
func (m *Metrics) RecordTriageVerdict(tier string) {
	if m == nil {
		return
	}
	m.TriageVerdicts.WithLabelValues(tier).Inc()
}

// RecordEviction records one janitor eviction.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.SessionsEvicted.Inc()
}

// RecordReminder records one reminder dispatch attempt.
func (m *Metrics) RecordReminder(outcome string) {
	if m == nil {
		return
	}
	m.RemindersDispatched.WithLabelValues(outcome).Inc()
}

// RecordTick records one scheduler tick.
func (m *Metrics) RecordTick(result string) {
	if m == nil {
		return
	}
	m.SchedulerTicks.WithLabelValues(result).Inc()
}

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
