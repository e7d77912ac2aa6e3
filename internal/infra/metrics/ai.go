package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiProviderErrors,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds, by call kind (stream|ocr).",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "model", "kind", "success"},
	)

	aiProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_provider_errors_total",
			Help: "Provider errors by provider and err_code (0 when absent).",
		},
		[]string{"provider", "code"},
	)
)

// ObserveAICall records one finished stream or OCR call.
func ObserveAICall(provider, model, kind string, tokensIn, tokensOut int, latency time.Duration, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), norm(kind), strconv.FormatBool(success)).
		Observe(float64(latency.Milliseconds()))
}

func IncProviderError(provider string, code int) {
	aiProviderErrors.WithLabelValues(norm(provider), strconv.Itoa(code)).Inc()
}
