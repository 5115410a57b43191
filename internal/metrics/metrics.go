package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// #region collectors

// Metrics holds the collectors for one process. Commands are short-lived,
// so the registry is exported as a node-exporter textfile instead of being
// scraped.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsEncoded     *prometheus.CounterVec
	RecordsSkipped     *prometheus.CounterVec
	TrainingRuns       *prometheus.CounterVec
	TrainingDuration   prometheus.Histogram
	ValidationAccuracy prometheus.Gauge
	TestAccuracy       prometheus.Gauge
	Predictions        *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RecordsEncoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventseq_records_encoded_total",
				Help: "Records encoded into model-ready tensors",
			},
			[]string{"collection"},
		),
		RecordsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventseq_records_skipped_total",
				Help: "Records dropped because they failed to encode",
			},
			[]string{"collection"},
		),
		TrainingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventseq_training_runs_total",
				Help: "Training runs by gate decision",
			},
			[]string{"decision"},
		),
		TrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eventseq_training_duration_seconds",
				Help:    "Wall time spent fitting a model",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		ValidationAccuracy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventseq_validation_accuracy",
				Help: "Validation accuracy of the last trained version",
			},
		),
		TestAccuracy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventseq_test_accuracy",
				Help: "Test accuracy of the active version at last evaluation",
			},
		),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventseq_predictions_total",
				Help: "Single-sequence predictions served",
			},
			[]string{"label_mode"},
		),
	}
	m.Registry.MustRegister(
		m.RecordsEncoded,
		m.RecordsSkipped,
		m.TrainingRuns,
		m.TrainingDuration,
		m.ValidationAccuracy,
		m.TestAccuracy,
		m.Predictions,
	)
	return m
}

// #endregion collectors

// #region export

// WriteTextfile writes the registry in text exposition format. An empty
// path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

// #endregion export
