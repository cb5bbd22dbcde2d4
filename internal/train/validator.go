package train

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"

	"driftwatch/internal/model"
	"driftwatch/internal/stream"
)

// ErrValidationFailed marks a candidate that trained successfully but did not
// clear the validation checks. Such candidates are kept in the registry for
// provenance but are never promoted.
var ErrValidationFailed = errors.New("candidate failed validation")

// Check names, reported individually and never dropped.
const (
	CheckPerformance    = "performance"
	CheckExplainability = "explainability"
	CheckFairness       = "fairness"
	CheckStability      = "stability"
)

// ValidatorConfig holds the thresholds of the four validation checks.
type ValidatorConfig struct {
	MinAccuracy  float64 `yaml:"minAccuracy"`
	MinPrecision float64 `yaml:"minPrecision"`
	MinRecall    float64 `yaml:"minRecall"`
	MinF1        float64 `yaml:"minF1"`
	// MaxImportanceConcentration fails explainability when a single feature
	// carries more than this share of the importance mass.
	MaxImportanceConcentration float64 `yaml:"maxImportanceConcentration"`
	// MinClassProportion fails fairness when a class is predicted less often
	// than this fraction of the time.
	MinClassProportion float64 `yaml:"minClassProportion"`
	// StabilityTolerance is the maximum fraction of predictions allowed to
	// flip under small Gaussian input perturbations.
	StabilityTolerance float64 `yaml:"stabilityTolerance"`
	// PerturbationScale is the noise standard deviation used by the
	// stability check, as a fraction of each feature's spread.
	PerturbationScale float64 `yaml:"perturbationScale"`
	// Seed fixes the perturbation noise so validation is reproducible.
	Seed int64 `yaml:"seed"`
}

func (c *ValidatorConfig) applyDefaults() {
	if c.MinAccuracy <= 0 {
		c.MinAccuracy = 0.70
	}
	if c.MinPrecision <= 0 {
		c.MinPrecision = 0.65
	}
	if c.MinRecall <= 0 {
		c.MinRecall = 0.65
	}
	if c.MinF1 <= 0 {
		c.MinF1 = 0.65
	}
	if c.MaxImportanceConcentration <= 0 {
		c.MaxImportanceConcentration = 0.80
	}
	if c.MinClassProportion <= 0 {
		c.MinClassProportion = 0.05
	}
	if c.StabilityTolerance <= 0 {
		c.StabilityTolerance = 0.10
	}
	if c.PerturbationScale <= 0 {
		c.PerturbationScale = 0.01
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// CheckResult is the outcome of one validation check.
type CheckResult struct {
	Passed      bool               `json:"passed"`
	Metrics     map[string]float64 `json:"metrics"`
	Explanation string             `json:"explanation"`
}

// ValidationResult aggregates all four checks. Passed is true only when
// every check passed; Failures lists the names of the ones that did not.
type ValidationResult struct {
	Passed   bool                   `json:"passed"`
	Checks   map[string]CheckResult `json:"checks"`
	Failures []string               `json:"failures"`
}

// Validator runs the four-check validation gauntlet on candidates.
type Validator struct {
	cfg ValidatorConfig
}

// NewValidator creates a validator with the given thresholds.
func NewValidator(cfg ValidatorConfig) *Validator {
	cfg.applyDefaults()
	return &Validator{cfg: cfg}
}

// Validate runs every check against the holdout set. All checks always run;
// a failing check is reported, never dropped.
func (v *Validator) Validate(candidate *Candidate, holdout []stream.Sample) (ValidationResult, error) {
	if candidate == nil || candidate.Classifier == nil {
		return ValidationResult{}, fmt.Errorf("nil candidate")
	}
	X, y := split(holdout)
	preds, err := model.PredictAll(candidate.Classifier, X)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("holdout predictions: %w", err)
	}

	result := ValidationResult{
		Passed: true,
		Checks: map[string]CheckResult{},
	}
	record := func(name string, check CheckResult) {
		result.Checks[name] = check
		if !check.Passed {
			result.Passed = false
			result.Failures = append(result.Failures, name)
		}
	}

	record(CheckPerformance, v.checkPerformance(y, preds))
	record(CheckExplainability, v.checkExplainability(candidate.Classifier))
	record(CheckFairness, v.checkFairness(preds))
	record(CheckStability, v.checkStability(candidate.Classifier, X, preds))

	if result.Passed {
		log.Info().Msg("candidate passed all validation checks")
	} else {
		log.Warn().Strs("failures", result.Failures).Msg("candidate failed validation")
	}
	return result, nil
}

func (v *Validator) checkPerformance(truth, preds []int) CheckResult {
	acc := accuracy(truth, preds)
	prec := precision(truth, preds)
	rec := recall(truth, preds)
	f1 := 0.0
	if prec+rec > 0 {
		f1 = 2 * prec * rec / (prec + rec)
	}

	passed := acc >= v.cfg.MinAccuracy &&
		prec >= v.cfg.MinPrecision &&
		rec >= v.cfg.MinRecall &&
		f1 >= v.cfg.MinF1

	explanation := "performance metrics meet all floors"
	if !passed {
		explanation = "one or more performance metrics are below their floor"
	}
	return CheckResult{
		Passed: passed,
		Metrics: map[string]float64{
			"accuracy":  acc,
			"precision": prec,
			"recall":    rec,
			"f1_score":  f1,
		},
		Explanation: explanation,
	}
}

func (v *Validator) checkExplainability(clf model.Classifier) CheckResult {
	importances := clf.FeatureImportance()
	var maxImportance float64
	for _, imp := range importances {
		if imp > maxImportance {
			maxImportance = imp
		}
	}

	passed := maxImportance < v.cfg.MaxImportanceConcentration
	explanation := "feature importance distribution is balanced"
	if !passed {
		explanation = "a single feature dominates the importance distribution"
	}
	return CheckResult{
		Passed: passed,
		Metrics: map[string]float64{
			"max_importance": maxImportance,
			"threshold":      v.cfg.MaxImportanceConcentration,
		},
		Explanation: explanation,
	}
}

func (v *Validator) checkFairness(preds []int) CheckResult {
	if len(preds) == 0 {
		return CheckResult{Explanation: "no predictions to assess"}
	}
	var ones int
	for _, p := range preds {
		if p == 1 {
			ones++
		}
	}
	p1 := float64(ones) / float64(len(preds))
	minProportion := p1
	if 1-p1 < minProportion {
		minProportion = 1 - p1
	}

	passed := minProportion > v.cfg.MinClassProportion
	explanation := "predicted class balance is acceptable"
	if !passed {
		explanation = "predictions are too concentrated on one class"
	}
	return CheckResult{
		Passed: passed,
		Metrics: map[string]float64{
			"min_class_proportion": minProportion,
			"threshold":            v.cfg.MinClassProportion,
		},
		Explanation: explanation,
	}
}

func (v *Validator) checkStability(clf model.Classifier, X [][]float64, basePreds []int) CheckResult {
	if len(X) == 0 {
		return CheckResult{Explanation: "no samples to perturb"}
	}
	rng := rand.New(rand.NewSource(v.cfg.Seed))
	stds := featureSpread(X)

	var flips int
	for i, row := range X {
		perturbed := make([]float64, len(row))
		for j, val := range row {
			perturbed[j] = val + rng.NormFloat64()*v.cfg.PerturbationScale*stds[j]
		}
		pred, err := clf.Predict(perturbed)
		if err != nil {
			return CheckResult{Explanation: fmt.Sprintf("perturbed prediction failed: %v", err)}
		}
		if pred != basePreds[i] {
			flips++
		}
	}

	flipRate := float64(flips) / float64(len(X))
	passed := flipRate <= v.cfg.StabilityTolerance
	explanation := "predictions are stable under small perturbations"
	if !passed {
		explanation = "predictions are too sensitive to input noise"
	}
	return CheckResult{
		Passed: passed,
		Metrics: map[string]float64{
			"flip_rate": flipRate,
			"tolerance": v.cfg.StabilityTolerance,
		},
		Explanation: explanation,
	}
}

// precision and recall are computed for the positive class, returning 0 on
// an empty denominator rather than NaN.
func precision(truth, preds []int) float64 {
	var tp, fp int
	for i := range preds {
		if preds[i] == 1 {
			if truth[i] == 1 {
				tp++
			} else {
				fp++
			}
		}
	}
	if tp+fp == 0 {
		return 0
	}
	return float64(tp) / float64(tp+fp)
}

func recall(truth, preds []int) float64 {
	var tp, fn int
	for i := range truth {
		if truth[i] == 1 {
			if preds[i] == 1 {
				tp++
			} else {
				fn++
			}
		}
	}
	if tp+fn == 0 {
		return 0
	}
	return float64(tp) / float64(tp+fn)
}

func featureSpread(X [][]float64) []float64 {
	stds := columnStdDev(X)
	for i, s := range stds {
		if s == 0 {
			stds[i] = 1
		}
	}
	return stds
}

func columnStdDev(X [][]float64) []float64 {
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
	out := make([]float64, dim)
	for _, row := range X {
		for j, v := range row {
			d := v - means[j]
			out[j] += d * d
		}
	}
	for j := range out {
		out[j] = math.Sqrt(out[j] / n)
	}
	return out
}
