package train

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftwatch/internal/model"
	"driftwatch/internal/stream"
)

// separableSamples builds a linearly separable labeled stream: class 1 sits
// around +2 on every feature, class 0 around -2.
func separableSamples(t *testing.T, n, dim int, seed int64) []stream.Sample {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	out := make([]stream.Sample, 0, n)
	for i := 0; i < n; i++ {
		label := i % 2
		center := -2.0
		if label == 1 {
			center = 2.0
		}
		features := make([]float64, dim)
		for j := range features {
			features[j] = center + rng.NormFloat64()*0.5
		}
		s, err := stream.NewSample(features, &label, dim)
		require.NoError(t, err)
		s.Ts = time.Unix(int64(i), 0)
		out = append(out, s)
	}
	return out
}

func TestTrainProducesAccurateCandidate(t *testing.T) {
	trainer := NewTrainer(Config{}, model.NewFactory(model.LogisticConfig{}))
	samples := separableSamples(t, 500, 3, 1)

	candidate, holdout, err := trainer.Train(samples)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, candidate.Accuracy, 0.95)
	assert.Equal(t, 400, candidate.TrainSamples)
	assert.Equal(t, 100, candidate.HoldoutSamples)
	assert.Len(t, holdout, 100)
	assert.NotEmpty(t, candidate.Hyperparameters)
}

func TestTrainRefusesSmallWindow(t *testing.T) {
	trainer := NewTrainer(Config{}, model.NewFactory(model.LogisticConfig{}))
	samples := separableSamples(t, 50, 3, 1)

	_, _, err := trainer.Train(samples)
	assert.ErrorIs(t, err, stream.ErrInsufficientData)
}

func TestTrainIgnoresUnlabeledSamples(t *testing.T) {
	trainer := NewTrainer(Config{}, model.NewFactory(model.LogisticConfig{}))
	samples := separableSamples(t, 120, 2, 2)
	// Strip labels from 30 samples; only 90 labeled remain, below the floor.
	for i := 0; i < 30; i++ {
		samples[i].Label = nil
	}

	_, _, err := trainer.Train(samples)
	assert.ErrorIs(t, err, stream.ErrInsufficientData)
}

func TestTrainHoldoutIsMostRecent(t *testing.T) {
	trainer := NewTrainer(Config{HoldoutFraction: 0.2}, model.NewFactory(model.LogisticConfig{}))
	samples := separableSamples(t, 200, 2, 3)

	_, holdout, err := trainer.Train(samples)
	require.NoError(t, err)
	require.Len(t, holdout, 40)
	assert.Equal(t, samples[160].Ts, holdout[0].Ts)
	assert.Equal(t, samples[199].Ts, holdout[39].Ts)
}

func TestValidateHealthyCandidatePasses(t *testing.T) {
	trainer := NewTrainer(Config{}, model.NewFactory(model.LogisticConfig{}))
	samples := separableSamples(t, 500, 3, 4)
	candidate, holdout, err := trainer.Train(samples)
	require.NoError(t, err)

	validator := NewValidator(ValidatorConfig{})
	result, err := validator.Validate(candidate, holdout)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Empty(t, result.Failures)
	for _, name := range []string{CheckPerformance, CheckExplainability, CheckFairness, CheckStability} {
		check, ok := result.Checks[name]
		require.True(t, ok, "missing check %s", name)
		assert.True(t, check.Passed, "check %s failed: %s", name, check.Explanation)
	}
}

func TestValidatePerformanceFloor(t *testing.T) {
	trainer := NewTrainer(Config{}, model.NewFactory(model.LogisticConfig{}))
	samples := separableSamples(t, 500, 3, 5)
	candidate, holdout, err := trainer.Train(samples)
	require.NoError(t, err)

	// Floors above anything achievable force a performance failure while the
	// other checks still run and report.
	validator := NewValidator(ValidatorConfig{MinAccuracy: 1.01, MinPrecision: 1.01, MinRecall: 1.01, MinF1: 1.01})
	result, err := validator.Validate(candidate, holdout)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Contains(t, result.Failures, CheckPerformance)
	assert.Len(t, result.Checks, 4)
}

func TestValidateFairnessRejectsCollapsedPredictions(t *testing.T) {
	clf := model.NewLogistic(model.LogisticConfig{})
	// A degenerate training set where every label is 0 collapses predictions
	// to a single class.
	X := make([][]float64, 100)
	y := make([]int, 100)
	rng := rand.New(rand.NewSource(6))
	for i := range X {
		X[i] = []float64{rng.NormFloat64(), rng.NormFloat64()}
	}
	require.NoError(t, clf.Fit(X, y))

	holdout := separableSamples(t, 60, 2, 7)
	candidate := &Candidate{Classifier: clf, Hyperparameters: clf.Hyperparameters()}

	validator := NewValidator(ValidatorConfig{})
	result, err := validator.Validate(candidate, holdout)
	require.NoError(t, err)

	assert.Contains(t, result.Failures, CheckFairness)
	assert.False(t, result.Passed)
}

func TestValidateIsDeterministic(t *testing.T) {
	trainer := NewTrainer(Config{}, model.NewFactory(model.LogisticConfig{}))
	samples := separableSamples(t, 400, 3, 8)
	candidate, holdout, err := trainer.Train(samples)
	require.NoError(t, err)

	validator := NewValidator(ValidatorConfig{})
	first, err := validator.Validate(candidate, holdout)
	require.NoError(t, err)
	second, err := validator.Validate(candidate, holdout)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestValidateNilCandidate(t *testing.T) {
	validator := NewValidator(ValidatorConfig{})
	_, err := validator.Validate(nil, nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, stream.ErrInsufficientData))
}

func TestPrecisionRecallEdgeCases(t *testing.T) {
	// No positive predictions: precision 0, not NaN.
	assert.Equal(t, 0.0, precision([]int{1, 1}, []int{0, 0}))
	// No positive truth: recall 0, not NaN.
	assert.Equal(t, 0.0, recall([]int{0, 0}, []int{1, 1}))
	assert.Equal(t, 1.0, precision([]int{1, 0, 1}, []int{1, 0, 1}))
	assert.Equal(t, 1.0, recall([]int{1, 0, 1}, []int{1, 0, 1}))
}
