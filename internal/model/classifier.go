// Package model defines the pluggable classifier capability the pipeline
// trains and serves. The core depends only on the Classifier interface; the
// concrete algorithm is a swappable commodity.
package model

import "fmt"

// Classifier is the capability contract for a trainable binary classifier.
// Implementations must be reconstructible from Marshal output via Unmarshal.
type Classifier interface {
	// Fit trains the classifier on a feature matrix and 0/1 labels.
	Fit(X [][]float64, y []int) error
	// Predict returns the predicted class for one feature vector.
	Predict(x []float64) (int, error)
	// PredictProba returns per-class probabilities for one feature vector.
	PredictProba(x []float64) ([]float64, error)
	// FeatureImportance returns one non-negative weight per feature,
	// normalized to sum to 1. A lightweight explainability proxy, not SHAP.
	FeatureImportance() []float64
	// Marshal serializes the trained parameters.
	Marshal() ([]byte, error)
	// Unmarshal restores parameters produced by Marshal.
	Unmarshal(data []byte) error
	// Hyperparameters describes the training configuration for audit records.
	Hyperparameters() map[string]float64
}

// Factory constructs a fresh, untrained classifier for each retrain cycle.
type Factory func() Classifier

// PredictAll runs Predict over every row of X.
func PredictAll(c Classifier, X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i, row := range X {
		pred, err := c.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("predict row %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}
