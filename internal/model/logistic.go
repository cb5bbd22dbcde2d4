package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrNotFitted is returned when prediction is attempted before Fit or
// Unmarshal.
var ErrNotFitted = errors.New("classifier not fitted")

// LogisticConfig holds the training hyperparameters for the default
// classifier.
type LogisticConfig struct {
	LearningRate float64 `yaml:"learningRate"`
	Epochs       int     `yaml:"epochs"`
	L2Penalty    float64 `yaml:"l2Penalty"`
}

func (c *LogisticConfig) applyDefaults() {
	if c.LearningRate <= 0 {
		c.LearningRate = 0.1
	}
	if c.Epochs <= 0 {
		c.Epochs = 200
	}
	if c.L2Penalty < 0 {
		c.L2Penalty = 0
	}
	if c.L2Penalty == 0 {
		c.L2Penalty = 0.001
	}
}

// Logistic is a binary logistic regression classifier trained by full-batch
// gradient descent. Training is deterministic: weights start at zero and the
// data order fixes the result.
type Logistic struct {
	cfg LogisticConfig

	weights    []float64
	bias       float64
	featureStd []float64
	fitted     bool
}

// NewLogistic creates an untrained classifier.
func NewLogistic(cfg LogisticConfig) *Logistic {
	cfg.applyDefaults()
	return &Logistic{cfg: cfg}
}

// NewFactory returns a Factory producing classifiers with the given
// configuration.
func NewFactory(cfg LogisticConfig) Factory {
	return func() Classifier { return NewLogistic(cfg) }
}

// Fit trains on a feature matrix with 0/1 labels.
func (l *Logistic) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return errors.New("empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature/label length mismatch: %d vs %d", len(X), len(y))
	}
	dim := len(X[0])
	for i, row := range X {
		if len(row) != dim {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), dim)
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d at row %d: only binary labels supported", label, i)
		}
	}

	l.weights = make([]float64, dim)
	l.bias = 0
	l.featureStd = columnStd(X)

	n := float64(len(X))
	grad := make([]float64, dim)
	for epoch := 0; epoch < l.cfg.Epochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		var gradBias float64

		for i, row := range X {
			p := l.proba(row)
			diff := p - float64(y[i])
			for j, v := range row {
				grad[j] += diff * v
			}
			gradBias += diff
		}

		for j := range l.weights {
			l.weights[j] -= l.cfg.LearningRate * (grad[j]/n + l.cfg.L2Penalty*l.weights[j])
		}
		l.bias -= l.cfg.LearningRate * gradBias / n
	}

	l.fitted = true
	return nil
}

// proba returns P(class=1 | x).
func (l *Logistic) proba(x []float64) float64 {
	z := l.bias
	for i, w := range l.weights {
		if i < len(x) {
			z += w * x[i]
		}
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

// Predict returns the predicted class for one feature vector.
func (l *Logistic) Predict(x []float64) (int, error) {
	probs, err := l.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if probs[1] > probs[0] {
		return 1, nil
	}
	return 0, nil
}

// PredictProba returns [P(class=0), P(class=1)].
func (l *Logistic) PredictProba(x []float64) ([]float64, error) {
	if !l.fitted {
		return nil, ErrNotFitted
	}
	if len(x) != len(l.weights) {
		return nil, fmt.Errorf("feature count mismatch: got %d, want %d", len(x), len(l.weights))
	}
	p := l.proba(x)
	return []float64{1 - p, p}, nil
}

// FeatureImportance approximates per-feature influence as |weight| scaled by
// the training-time feature spread, normalized to sum to 1.
func (l *Logistic) FeatureImportance() []float64 {
	if !l.fitted {
		return nil
	}
	raw := make([]float64, len(l.weights))
	var total float64
	for i, w := range l.weights {
		std := 1.0
		if i < len(l.featureStd) && l.featureStd[i] > 0 {
			std = l.featureStd[i]
		}
		raw[i] = math.Abs(w) * std
		total += raw[i]
	}
	if total == 0 {
		uniform := 1.0 / float64(len(raw))
		for i := range raw {
			raw[i] = uniform
		}
		return raw
	}
	for i := range raw {
		raw[i] /= total
	}
	return raw
}

// Hyperparameters describes the training configuration.
func (l *Logistic) Hyperparameters() map[string]float64 {
	return map[string]float64{
		"learning_rate": l.cfg.LearningRate,
		"epochs":        float64(l.cfg.Epochs),
		"l2_penalty":    l.cfg.L2Penalty,
	}
}

// logisticState is the serialized parameter layout.
type logisticState struct {
	Weights    []float64 `json:"weights"`
	Bias       float64   `json:"bias"`
	FeatureStd []float64 `json:"feature_std"`
}

// Marshal serializes the trained parameters.
func (l *Logistic) Marshal() ([]byte, error) {
	if !l.fitted {
		return nil, ErrNotFitted
	}
	return json.Marshal(logisticState{
		Weights:    l.weights,
		Bias:       l.bias,
		FeatureStd: l.featureStd,
	})
}

// Unmarshal restores parameters produced by Marshal.
func (l *Logistic) Unmarshal(data []byte) error {
	var state logisticState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode classifier payload: %w", err)
	}
	if len(state.Weights) == 0 {
		return errors.New("classifier payload has no weights")
	}
	l.weights = state.Weights
	l.bias = state.Bias
	l.featureStd = state.FeatureStd
	l.fitted = true
	return nil
}

func columnStd(X [][]float64) []float64 {
	dim := len(X[0])
	n := float64(len(X))
	means := make([]float64, dim)
	for _, row := range X {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}

	stds := make([]float64, dim)
	for _, row := range X {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
	}
	return stds
}
