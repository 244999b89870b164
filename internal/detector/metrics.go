package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	detections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stamp_detections_total",
		Help: "Number of detections by outcome.",
	}, []string{"outcome"})
	detectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stamp_detection_duration_seconds",
		Help:    "Wall-clock duration of detections.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	})
	referencesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stamp_references_loaded",
		Help: "Number of reference stamps in the active store.",
	})
)

func observe(r *DetectionResult) {
	detections.WithLabelValues(r.Outcome()).Inc()
	detectionDuration.Observe(float64(r.TimeMs) / 1000)
}
