package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting control-plane
// metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Planning cycles per stream (count, duration, outcome)
//   - Planner LLM latency and failure modes
//   - Action execution by type and status
//   - Loop crash restarts for supervision visibility
//   - Active stream loops for capacity planning
type Metrics struct {
	// CycleCounter counts completed planning cycles.
	// Labels: outcome (reply|silent|error)
	CycleCounter *prometheus.CounterVec

	// CycleDuration measures full cycle wall time in seconds.
	CycleDuration prometheus.Histogram

	// PlannerDuration measures planner passes (prompt build + LLM + parse)
	// in seconds.
	PlannerDuration prometheus.Histogram

	// PlannerFailures counts downgraded planner passes.
	// Labels: reason (llm|parse)
	PlannerFailures *prometheus.CounterVec

	// ActionCounter counts executed actions.
	// Labels: action_type, status (success|error)
	ActionCounter *prometheus.CounterVec

	// LLMRequestCounter counts LLM requests by purpose.
	// Labels: purpose (planner|reply|frequency), status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LoopRestarts counts crash-triggered loop restarts.
	LoopRestarts prometheus.Counter

	// ActiveStreams is a gauge of currently running stream loops.
	ActiveStreams prometheus.Gauge

	// TenantSpaces is a gauge of materialized per-tenant registries.
	TenantSpaces prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// prometheus.NewRegistry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CycleCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatloop_cycles_total",
			Help: "Completed planning cycles by outcome",
		}, []string{"outcome"}),

		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatloop_cycle_duration_seconds",
			Help:    "Full planning cycle duration",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		PlannerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatloop_planner_duration_seconds",
			Help:    "Planner pass duration including the LLM call",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		PlannerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatloop_planner_failures_total",
			Help: "Planner passes downgraded to no_reply",
		}, []string{"reason"}),

		ActionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatloop_actions_total",
			Help: "Executed actions by type and status",
		}, []string{"action_type", "status"}),

		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatloop_llm_requests_total",
			Help: "LLM requests by purpose and status",
		}, []string{"purpose", "status"}),

		LoopRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatloop_loop_restarts_total",
			Help: "Crash-triggered stream loop restarts",
		}),

		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatloop_active_streams",
			Help: "Currently running stream loops",
		}),

		TenantSpaces: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatloop_tenant_spaces",
			Help: "Materialized per-tenant registry sets",
		}),
	}
}

// NopMetrics returns metrics backed by a throwaway registry, for tests and
// for components constructed without observability wiring.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
