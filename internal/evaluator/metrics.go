package evaluator

import "github.com/prometheus/client_golang/prometheus"

var (
	scoringTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelapi",
			Subsystem: "scoring",
			Name:      "requests_total",
			Help:      "Branch evaluations by mode (sequential, batched, batched_fallback)",
		},
		[]string{"mode"},
	)

	scoringFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "modelapi",
			Subsystem: "scoring",
			Name:      "prompt_failures_total",
			Help:      "Prompts that could not be scored",
		},
	)

	scoringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelapi",
			Subsystem: "scoring",
			Name:      "duration_seconds",
			Help:      "Wall time of branch evaluations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(scoringTotal, scoringFailures, scoringDuration)
}
