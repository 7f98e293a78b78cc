package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelapi",
			Subsystem: "manager",
			Name:      "loads_total",
			Help:      "Model loads by outcome",
		},
		[]string{"outcome"},
	)

	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "modelapi",
			Subsystem: "manager",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading models",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	modelLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modelapi",
			Subsystem: "manager",
			Name:      "model_loaded",
			Help:      "1 when a model is loaded and ready",
		},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, loadDuration, modelLoaded)
}
