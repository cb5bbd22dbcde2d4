// Package train turns windows of labeled samples into candidate models and
// runs the pre-promotion validation gauntlet: performance, explainability,
// fairness, and stability checks.
package train

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"driftwatch/internal/model"
	"driftwatch/internal/stream"
)

// Config holds training configuration.
type Config struct {
	// MinTrainSamples is the floor below which Train refuses to run.
	MinTrainSamples int `yaml:"minTrainSamples"`
	// HoldoutFraction of the window is reserved for validation, taken from
	// the most recent samples.
	HoldoutFraction float64 `yaml:"holdoutFraction"`
}

func (c *Config) applyDefaults() {
	if c.MinTrainSamples <= 0 {
		c.MinTrainSamples = 100
	}
	if c.HoldoutFraction <= 0 || c.HoldoutFraction >= 0.5 {
		c.HoldoutFraction = 0.2
	}
}

// Candidate is a freshly trained model awaiting validation and comparison.
type Candidate struct {
	Classifier      model.Classifier
	Accuracy        float64
	TrainSamples    int
	HoldoutSamples  int
	Hyperparameters map[string]float64
}

// Trainer trains candidates through the pluggable classifier capability.
type Trainer struct {
	cfg     Config
	factory model.Factory
}

// NewTrainer creates a trainer backed by the given classifier factory.
func NewTrainer(cfg Config, factory model.Factory) *Trainer {
	cfg.applyDefaults()
	return &Trainer{cfg: cfg, factory: factory}
}

// Train fits a fresh classifier on the older part of the window and measures
// accuracy on the held-out most recent part. It returns the candidate and
// the holdout slice for the validation checks.
func (t *Trainer) Train(samples []stream.Sample) (*Candidate, []stream.Sample, error) {
	labeled := make([]stream.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Labeled() {
			labeled = append(labeled, s)
		}
	}
	if len(labeled) < t.cfg.MinTrainSamples {
		return nil, nil, fmt.Errorf("%w: %d labeled samples, need %d",
			stream.ErrInsufficientData, len(labeled), t.cfg.MinTrainSamples)
	}

	cut := len(labeled) - int(float64(len(labeled))*t.cfg.HoldoutFraction)
	trainSet, holdout := labeled[:cut], labeled[cut:]

	X, y := split(trainSet)
	clf := t.factory()
	if err := clf.Fit(X, y); err != nil {
		return nil, nil, fmt.Errorf("fit candidate: %w", err)
	}

	hX, hy := split(holdout)
	preds, err := model.PredictAll(clf, hX)
	if err != nil {
		return nil, nil, fmt.Errorf("score candidate: %w", err)
	}

	candidate := &Candidate{
		Classifier:      clf,
		Accuracy:        accuracy(hy, preds),
		TrainSamples:    len(trainSet),
		HoldoutSamples:  len(holdout),
		Hyperparameters: clf.Hyperparameters(),
	}

	log.Info().
		Int("train_samples", candidate.TrainSamples).
		Int("holdout_samples", candidate.HoldoutSamples).
		Float64("accuracy", candidate.Accuracy).
		Msg("candidate trained")

	return candidate, holdout, nil
}

// split separates a labeled sample slice into a feature matrix and labels.
func split(samples []stream.Sample) ([][]float64, []int) {
	X := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		X[i] = s.Features
		y[i] = s.IntLabel()
	}
	return X, y
}

func accuracy(truth, preds []int) float64 {
	if len(truth) == 0 {
		return 0
	}
	var correct int
	for i := range truth {
		if truth[i] == preds[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}
