package generation

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelapi",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Generations by kind and outcome (ok, stopped, error)",
		},
		[]string{"kind", "outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelapi",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall time of blocking generations",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration)
}
