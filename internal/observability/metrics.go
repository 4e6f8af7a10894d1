package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects runtime metrics for turns, model calls, tool executions,
// and approval decisions. All observation methods are nil-safe so callers
// can leave metrics disabled.
type Metrics struct {
	// TurnCounter counts completed conversation turns.
	// Labels: channel, status (success|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	// Labels: channel
	TurnDuration *prometheus.HistogramVec

	// ModelRequestCounter counts model adapter calls.
	// Labels: provider, model, status (success|error)
	ModelRequestCounter *prometheus.CounterVec

	// ModelRequestDuration measures model call latency in seconds.
	// Labels: provider, model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelTokens tracks token consumption.
	// Labels: provider, model, type (input|output)
	ModelTokens *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ApprovalCounter counts approval outcomes.
	// Labels: tool, decision (approve|deny|timeout)
	ApprovalCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass prometheus.DefaultRegisterer for the standard /metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axon_turns_total",
				Help: "Total number of conversation turns by channel and status",
			},
			[]string{"channel", "status"},
		),

		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axon_turn_duration_seconds",
				Help:    "End-to-end turn latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"channel"},
		),

		ModelRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axon_model_requests_total",
				Help: "Total number of model requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ModelRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axon_model_request_duration_seconds",
				Help:    "Duration of model API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ModelTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axon_model_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axon_tool_executions_total",
				Help: "Total number of tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axon_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),

		ApprovalCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axon_approvals_total",
				Help: "Total number of approval outcomes by tool and decision",
			},
			[]string{"tool", "decision"},
		),
	}
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(channel, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(channel, status).Inc()
	m.TurnDuration.WithLabelValues(channel).Observe(d.Seconds())
}

// ObserveModelRequest records one model adapter call.
func (m *Metrics) ObserveModelRequest(provider, model, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ModelRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// ObserveTokens records token usage for one model call.
func (m *Metrics) ObserveTokens(provider, model string, input, output int) {
	if m == nil {
		return
	}
	if input > 0 {
		m.ModelTokens.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		m.ModelTokens.WithLabelValues(provider, model, "output").Add(float64(output))
	}
}

// ObserveToolExecution records one tool execution.
func (m *Metrics) ObserveToolExecution(tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveApproval records one approval outcome.
func (m *Metrics) ObserveApproval(tool, decision string) {
	if m == nil {
		return
	}
	m.ApprovalCounter.WithLabelValues(tool, decision).Inc()
}
