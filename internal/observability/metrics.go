// Package observability exposes Prometheus metrics for the agent core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all instruments. Create one per process with NewMetrics,
// which registers against the default registry.
type Metrics struct {
	turnsTotal        *prometheus.CounterVec
	turnDuration      prometheus.Histogram
	toolCallsTotal    *prometheus.CounterVec
	toolCallDuration  *prometheus.HistogramVec
	permissionsTotal  *prometheus.CounterVec
	tokensTotal       *prometheus.CounterVec
	backgroundRunning prometheus.Gauge
}

// NewMetrics creates and registers all instruments against the default
// registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all instruments against reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_turns_total",
			Help: "Turns completed, by stop reason.",
		}, []string{"stop_reason"}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "steward_turn_duration_seconds",
			Help:    "Wall-clock duration of a full turn.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_tool_calls_total",
			Help: "Tool calls executed, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steward_tool_call_duration_seconds",
			Help:    "Duration of individual tool executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"tool"}),
		permissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_permission_decisions_total",
			Help: "Permission decisions, by tool and action.",
		}, []string{"tool", "action"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_tokens_total",
			Help: "Model tokens consumed, by direction.",
		}, []string{"direction"}),
		backgroundRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "steward_background_tasks_running",
			Help: "Background tasks currently pending or running.",
		}),
	}
}

// ObserveTurn records a completed turn.
func (m *Metrics) ObserveTurn(stopReason string, d time.Duration) {
	m.turnsTotal.WithLabelValues(stopReason).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// ObserveToolCall records one tool execution.
func (m *Metrics) ObserveToolCall(tool string, ok bool, d time.Duration) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObservePermission records the final action taken for one tool call.
func (m *Metrics) ObservePermission(tool, action string) {
	m.permissionsTotal.WithLabelValues(tool, action).Inc()
}

// AddUsage accumulates token usage reported by the provider.
func (m *Metrics) AddUsage(inputTokens, outputTokens int) {
	m.tokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	m.tokensTotal.WithLabelValues("output").Add(float64(outputTokens))
}

// TaskStarted and TaskFinished track the live background task gauge.
func (m *Metrics) TaskStarted()  { m.backgroundRunning.Inc() }
func (m *Metrics) TaskFinished() { m.backgroundRunning.Dec() }
