// Package metrics provides Prometheus metrics collection for the drift
// monitoring service. It defines and manages all ingestion, drift detection,
// retraining, and prediction metrics that are exposed via the Prometheus
// metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the drift monitoring service.
// It provides counters, gauges, and histograms covering the ingest path,
// the drift analyzer, the retraining loop, and prediction serving.
type Metrics struct {
	// Ingestion metrics
	SamplesIngested prometheus.Counter // Total number of samples accepted into the live window
	SamplesRejected prometheus.Counter // Total number of samples rejected at validation

	// Drift metrics
	DriftScore       prometheus.Gauge   // Most recent composite drift score (0-100)
	DriftEvaluations prometheus.Counter // Total number of drift evaluations performed
	AdwinDetections  prometheus.Counter // Total number of ADWIN window cuts across all detectors

	// Retraining metrics
	RetrainAttempts   prometheus.Counter   // Total number of retraining attempts started
	RetrainPromotions prometheus.Counter   // Total number of candidates promoted to champion
	RetrainRejections prometheus.Counter   // Total number of candidates rejected or failed
	RetrainDuration   prometheus.Histogram // Duration of retraining attempts in seconds

	// Prediction metrics
	Predictions        prometheus.Counter   // Total number of predictions served
	PredictionFailures prometheus.Counter   // Total number of prediction failures
	PredictionLatency  prometheus.Histogram // Prediction latency in seconds

	// Model metrics
	ModelAge         prometheus.Gauge // Age of the current champion in seconds
	ChampionAccuracy prometheus.Gauge // Holdout accuracy of the current champion

	// System metrics
	WSClients   prometheus.Gauge   // Number of connected drift report subscribers
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SamplesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "samples_ingested_total",
			Help: "Total number of samples accepted into the live window",
		}),
		SamplesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "samples_rejected_total",
			Help: "Total number of samples rejected at validation",
		}),
		DriftScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drift_score",
			Help: "Most recent composite drift score (0-100)",
		}),
		DriftEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "drift_evaluations_total",
			Help: "Total number of drift evaluations performed",
		}),
		AdwinDetections: factory.NewCounter(prometheus.CounterOpts{
			Name: "adwin_detections_total",
			Help: "Total number of ADWIN window cuts across all detectors",
		}),
		RetrainAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "retrain_attempts_total",
			Help: "Total number of retraining attempts started",
		}),
		RetrainPromotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "retrain_promotions_total",
			Help: "Total number of candidates promoted to champion",
		}),
		RetrainRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "retrain_rejections_total",
			Help: "Total number of candidates rejected or failed",
		}),
		RetrainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "retrain_duration_seconds",
			Help:    "Duration of retraining attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of prediction failures",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the current champion in seconds",
		}),
		ChampionAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "champion_accuracy",
			Help: "Holdout accuracy of the current champion",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Number of connected drift report subscribers",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
