// Package metrics exposes Prometheus collectors for the assistant.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	chatResponses *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	modelLatency  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		chatResponses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civicsync",
			Name:      "chat_responses_total",
			Help:      "Chat exchanges by outcome.",
		}, []string{"outcome"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civicsync",
			Name:      "tool_calls_total",
			Help:      "Assistant tool invocations by tool and result.",
		}, []string{"tool", "result"}),
		modelLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "civicsync",
			Name:      "model_request_seconds",
			Help:      "Latency of language model round trips.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
}

func (m *Metrics) ChatResponse(outcome string) {
	if m == nil {
		return
	}
	m.chatResponses.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ToolCall(tool, result string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, result).Inc()
}

func (m *Metrics) ModelRequest(d time.Duration) {
	if m == nil {
		return
	}
	m.modelLatency.Observe(d.Seconds())
}
