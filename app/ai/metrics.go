package ai

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_ai_calls_total",
		Help: "AI provider calls by model and outcome",
	}, []string{"model", "status"})

	callLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recap_ai_call_duration_seconds",
		Help:    "AI provider call latency",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"model"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_ai_tokens_total",
		Help: "Token usage by model and direction",
	}, []string{"model", "direction"})
)

func observeCall(model, status string, latency time.Duration, promptTokens, completionTokens int) {
	callsTotal.WithLabelValues(model, status).Inc()
	callLatency.WithLabelValues(model).Observe(latency.Seconds())
	if promptTokens > 0 {
		tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}
