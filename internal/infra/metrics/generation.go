package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(generationRunsTotal, firstChunkSeconds) }

var (
	generationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_runs_total",
			Help: "Answer and chat generation runs, labeled by outcome.",
		},
		[]string{"kind", "outcome"}, // kind: 'answer', 'chat'; outcome: 'completed', 'failed', 'superseded'
	)

	firstChunkSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_first_chunk_seconds",
			Help:    "Time from run start to the first streamed delta.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"kind"},
	)
)

func IncGeneration(kind, outcome string) {
	generationRunsTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}

func ObserveFirstChunk(kind string, d time.Duration) {
	firstChunkSeconds.WithLabelValues(norm(kind)).Observe(d.Seconds())
}
