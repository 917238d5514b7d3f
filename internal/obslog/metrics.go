package obslog

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	global     *Metrics
	globalOnce sync.Once
)

// Metrics is the process-wide Prometheus registry for the supervisor's
// three externally interesting signals: what a run is costing, how
// long the Hook Pipeline takes per tool, and how sessions end. All
// metrics are prefixed "forge_" for namespacing, the way the
// contextd pre-fetch engine prefixes its own.
type Metrics struct {
	SessionOutcomesTotal *prometheus.CounterVec
	BudgetSpendUSD       prometheus.Gauge
	BudgetCapUSD         prometheus.Gauge
	HookLatency          *prometheus.HistogramVec
	ToolCallsTotal       *prometheus.CounterVec
	AutonomyLevel        prometheus.Gauge
}

// NewMetrics creates and registers the metrics on the default
// registry. sync.Once guards repeated registration across multiple
// calls (e.g. table-driven tests constructing more than one Supervisor
// in the same process), which would otherwise panic on "duplicate
// metrics collector registration".
func NewMetrics() *Metrics {
	globalOnce.Do(func() {
		global = &Metrics{
			SessionOutcomesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "forge_session_outcomes_total",
					Help: "Count of sessions ending in each terminal status.",
				},
				[]string{"status"},
			),
			BudgetSpendUSD: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "forge_budget_spend_usd",
					Help: "Cumulative USD spend for the most recently completed session.",
				},
			),
			BudgetCapUSD: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "forge_budget_cap_usd",
					Help: "Configured per-run USD budget cap.",
				},
			),
			HookLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "forge_hook_pipeline_duration_seconds",
					Help:    "Duration of one Hook Pipeline Run call, by tool.",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
				},
				[]string{"tool"},
			),
			ToolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "forge_tool_calls_total",
					Help: "Count of tool invocations by tool and outcome.",
				},
				[]string{"tool", "outcome"},
			),
			AutonomyLevel: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "forge_autonomy_level",
					Help: "Current autonomy level (1-5) for the active session.",
				},
			),
		}
	})
	return global
}

// RecordSessionOutcome increments the outcome counter for status.
func (m *Metrics) RecordSessionOutcome(status string) {
	if m == nil {
		return
	}
	m.SessionOutcomesTotal.WithLabelValues(status).Inc()
}

// RecordBudgetSpend sets the current run's cumulative spend and cap.
func (m *Metrics) RecordBudgetSpend(spentUSD, capUSD float64) {
	if m == nil {
		return
	}
	m.BudgetSpendUSD.Set(spentUSD)
	m.BudgetCapUSD.Set(capUSD)
}

// RecordHookLatency observes one Hook Pipeline Run call's duration.
func (m *Metrics) RecordHookLatency(tool string, seconds float64) {
	if m == nil {
		return
	}
	m.HookLatency.WithLabelValues(tool).Observe(seconds)
}

// RecordToolCall increments the tool-call counter for tool/outcome
// (one of "ok", "blocked", "denied", "error").
func (m *Metrics) RecordToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// SetAutonomyLevel reports the active session's current autonomy level.
func (m *Metrics) SetAutonomyLevel(level int) {
	if m == nil {
		return
	}
	m.AutonomyLevel.Set(float64(level))
}

// Handler returns the HTTP handler cmd/forge mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
