package assistant

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the assistant.
type Metrics struct {
	RepliesTotal    *prometheus.CounterVec
	ReplyDuration   *prometheus.HistogramVec
	LLMCallsTotal   prometheus.Counter
	LLMTokensIn     prometheus.Counter
	LLMTokensOut    prometheus.Counter
	LLMDuration     prometheus.Histogram
	ToolCallsTotal  *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	ToolOutputBytes *prometheus.HistogramVec
}

// NewMetrics registers and returns assistant metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RepliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medassist_assistant_replies_total",
			Help: "Total assistant replies by mode and stop reason.",
		}, []string{"mode", "stop_reason"}),
		ReplyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medassist_assistant_reply_duration_seconds",
			Help:    "Duration of assistant replies in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9), // 1ms .. ~65s
		}, []string{"mode"}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medassist_llm_calls_total",
			Help: "Total LLM provider calls.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medassist_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medassist_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medassist_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s .. 64s
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medassist_tool_calls_total",
			Help: "Total tool executions by tool and status.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medassist_tool_duration_seconds",
			Help:    "Duration of tool executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9), // 100us .. ~6.5s
		}, []string{"tool"}),
		ToolOutputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medassist_tool_output_bytes",
			Help:    "Size of tool output returned to the model.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 7), // 64B .. 256KiB
		}, []string{"tool"}),
	}

	reg.MustRegister(
		m.RepliesTotal,
		m.ReplyDuration,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.ToolCallsTotal,
		m.ToolDuration,
		m.ToolOutputBytes,
	)

	return m
}

// Hooks returns assistant hooks that record into m.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnLLMCall: func(in, out int, seconds float64) {
			m.LLMCallsTotal.Inc()
			m.LLMTokensIn.Add(float64(in))
			m.LLMTokensOut.Add(float64(out))
			m.LLMDuration.Observe(seconds)
		},
		OnToolCall: func(name string, seconds float64, _, outputBytes int, isErr bool) {
			status := "success"
			if isErr {
				status = "error"
			}
			m.ToolCallsTotal.WithLabelValues(name, status).Inc()
			m.ToolDuration.WithLabelValues(name).Observe(seconds)
			m.ToolOutputBytes.WithLabelValues(name).Observe(float64(outputBytes))
		},
		OnComplete: func(e *CompleteEvent) {
			m.RepliesTotal.WithLabelValues(e.Mode, string(e.StopReason)).Inc()
			m.ReplyDuration.WithLabelValues(e.Mode).Observe(e.Duration)
		},
	}
}
