package drift

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"driftwatch/internal/stream"
)

// Severity buckets for the overall drift score.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Type classifies which signal dominates a drift report.
type Type string

const (
	TypeNone       Type = "none"
	TypeData       Type = "data"
	TypeCovariate  Type = "covariate"
	TypePrediction Type = "prediction"
	TypeConcept    Type = "concept"
)

// Severity thresholds over the 0-100 score.
const (
	severityLowFloor      = 20.0
	severityModerateFloor = 40.0
	severityHighFloor     = 70.0
)

// ScoreWeights combines the sub-scores into the overall 0-100 score. Only
// the weights of sub-scores that could actually be computed participate;
// the rest are renormalized away.
type ScoreWeights struct {
	Data       float64 `yaml:"data"`
	Covariate  float64 `yaml:"covariate"`
	Prediction float64 `yaml:"prediction"`
	Concept    float64 `yaml:"concept"`
}

// AnalyzerConfig configures a drift Analyzer.
type AnalyzerConfig struct {
	FeatureNames  []string             `yaml:"featureNames"`
	WindowSize    int                  `yaml:"windowSize"`
	ReferenceSize int                  `yaml:"referenceSize"`
	Bins          int                  `yaml:"bins"`
	KSAlpha       float64              `yaml:"ksAlpha"`
	Weights       ScoreWeights         `yaml:"weights"`
	Detector      AdaptiveWindowConfig `yaml:"detector"`
}

func (c *AnalyzerConfig) applyDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 200
	}
	if c.ReferenceSize <= 0 {
		c.ReferenceSize = 200
	}
	if c.Bins <= 1 {
		c.Bins = defaultBins
	}
	if c.KSAlpha <= 0 || c.KSAlpha >= 1 {
		c.KSAlpha = 0.05
	}
	zero := ScoreWeights{}
	if c.Weights == zero {
		c.Weights = ScoreWeights{Data: 1, Covariate: 1, Prediction: 1, Concept: 1}
	}
}

// FeatureResult holds the per-feature test values of one evaluation.
type FeatureResult struct {
	Name         string  `json:"name"`
	PSI          float64 `json:"psi"`
	KSStatistic  float64 `json:"ks_statistic"`
	KSPValue     float64 `json:"ks_pvalue"`
	KLDivergence float64 `json:"kl_divergence"`
	JSDivergence float64 `json:"js_divergence"`
	AdwinChanged bool    `json:"adwin_changed"`
	Drifted      bool    `json:"drifted"`
}

// Report is the outcome of one drift evaluation. It is a pure function of
// the analyzer's window contents: evaluating twice without an intervening
// ingest yields an identical report.
type Report struct {
	Score            float64         `json:"drift_score"`
	Severity         Severity        `json:"severity"`
	Type             Type            `json:"drift_type"`
	DataScore        float64         `json:"data_score"`
	CovariateScore   float64         `json:"covariate_score"`
	PredictionScore  float64         `json:"prediction_score"`
	ConceptScore     float64         `json:"concept_score"`
	Features         []FeatureResult `json:"features"`
	AffectedFeatures []string        `json:"affected_features"`
	SampleCount      int             `json:"sample_count"`
	Insufficient     bool            `json:"insufficient_data"`
	Recommendation   string          `json:"recommendation"`
}

// observation pairs an ingested sample with the champion's prediction at
// ingest time, -1 when no model was available.
type observation struct {
	sample stream.Sample
	pred   int
}

// Analyzer owns one frozen reference window, a bounded live window, and one
// adaptive detector per monitored signal. All mutation happens under a
// single mutex; evaluation snapshots state under the lock and computes
// outside it.
type Analyzer struct {
	mu  sync.Mutex
	cfg AnalyzerConfig

	reference []observation
	refFrozen bool

	live      *stream.Window
	livePreds []int

	featureDetectors []*AdaptiveWindow
	predDetector     *AdaptiveWindow
	residDetector    *AdaptiveWindow
	adwinFired       []bool
	predFired        bool

	ingests int
}

// NewAnalyzer creates an analyzer for the configured feature set.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	cfg.applyDefaults()
	a := &Analyzer{
		cfg:              cfg,
		live:             stream.NewWindow(cfg.WindowSize),
		livePreds:        make([]int, 0, cfg.WindowSize),
		featureDetectors: make([]*AdaptiveWindow, len(cfg.FeatureNames)),
		adwinFired:       make([]bool, len(cfg.FeatureNames)),
		predDetector:     NewAdaptiveWindow(cfg.Detector),
		residDetector:    NewAdaptiveWindow(cfg.Detector),
	}
	for i := range a.featureDetectors {
		a.featureDetectors[i] = NewAdaptiveWindow(cfg.Detector)
	}
	return a
}

// SetReference freezes an explicit reference window. Predictions for the
// reference samples may be supplied via preds (same length) or nil.
func (a *Analyzer) SetReference(samples []stream.Sample, preds []int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reference = make([]observation, len(samples))
	for i, s := range samples {
		p := -1
		if preds != nil && i < len(preds) {
			p = preds[i]
		}
		a.reference[i] = observation{sample: s, pred: p}
	}
	a.refFrozen = true
	log.Info().Int("samples", len(samples)).Msg("reference window frozen")
}

// AddSample pushes one observation into the live window (or the reference,
// while it is still being auto-captured) and feeds the streaming detectors.
// pred is the champion's predicted class for the sample, -1 when no model
// was available. It returns how many detectors signaled a change on this
// sample. AddSample never triggers retraining.
func (a *Analyzer) AddSample(s stream.Sample, pred int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ingests++

	if !a.refFrozen {
		a.reference = append(a.reference, observation{sample: s, pred: pred})
		if len(a.reference) >= a.cfg.ReferenceSize {
			a.refFrozen = true
			log.Info().Int("samples", len(a.reference)).Msg("reference window auto-captured")
		}
		return 0
	}

	a.live.Push(s)
	if len(a.livePreds) == a.cfg.WindowSize {
		copy(a.livePreds, a.livePreds[1:])
		a.livePreds = a.livePreds[:len(a.livePreds)-1]
	}
	a.livePreds = append(a.livePreds, pred)

	cuts := 0
	for i, det := range a.featureDetectors {
		if i < len(s.Features) && det.Update(s.Features[i]) {
			a.adwinFired[i] = true
			cuts++
		}
	}
	if pred >= 0 {
		if a.predDetector.Update(float64(pred)) {
			a.predFired = true
			cuts++
		}
		if s.Labeled() {
			residual := 0.0
			if pred != s.IntLabel() {
				residual = 1.0
			}
			if a.residDetector.Update(residual) {
				cuts++
			}
		}
	}
	return cuts
}

// LiveLen returns the current live window occupancy.
func (a *Analyzer) LiveLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live.Len()
}

// LiveCap returns the configured live window capacity.
func (a *Analyzer) LiveCap() int { return a.cfg.WindowSize }

// ReferenceReady reports whether the reference window is frozen.
func (a *Analyzer) ReferenceReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refFrozen
}

// TrainingWindow returns up to n of the most recent labeled live samples,
// falling back to labeled reference samples when the live window alone is
// too small. Used by the retrain pipeline as its data supply.
func (a *Analyzer) TrainingWindow(n int) []stream.Sample {
	a.mu.Lock()
	defer a.mu.Unlock()

	labeled := a.live.Labeled()
	if len(labeled) < n {
		refLabeled := make([]stream.Sample, 0, len(a.reference))
		for _, o := range a.reference {
			if o.sample.Labeled() {
				refLabeled = append(refLabeled, o.sample)
			}
		}
		labeled = append(refLabeled, labeled...)
	}
	if len(labeled) > n {
		labeled = labeled[len(labeled)-n:]
	}
	return labeled
}

// Reset clears the live window and all detectors, keeping the frozen
// reference. The analyzer is restartable afterwards.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.live = stream.NewWindow(a.cfg.WindowSize)
	a.livePreds = a.livePreds[:0]
	for i, det := range a.featureDetectors {
		det.Reset()
		a.adwinFired[i] = false
	}
	a.predDetector.Reset()
	a.residDetector.Reset()
	a.predFired = false
	log.Info().Msg("drift analyzer reset")
}

// snapshot captures a consistent view of the analyzer state.
type snapshot struct {
	reference  []observation
	live       []stream.Sample
	livePreds  []int
	adwinFired []bool
	predFired  bool
	refFrozen  bool
}

func (a *Analyzer) snapshot() snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := snapshot{
		reference:  a.reference,
		live:       a.live.Snapshot(),
		livePreds:  append([]int(nil), a.livePreds...),
		adwinFired: append([]bool(nil), a.adwinFired...),
		predFired:  a.predFired,
		refFrozen:  a.refFrozen,
	}
	return snap
}

// Evaluate recomputes a fresh drift report from the current windows. Below
// the minimum sample floor it returns an explicit insufficient-data report
// that downstream policy must not read as zero drift.
func (a *Analyzer) Evaluate() Report {
	snap := a.snapshot()

	if !snap.refFrozen || len(snap.live) < MinTestSamples {
		return Report{
			Severity:       SeverityNone,
			Type:           TypeNone,
			SampleCount:    len(snap.live),
			Insufficient:   true,
			Recommendation: "Insufficient data: keep ingesting before acting on drift",
		}
	}

	report := Report{
		Severity:    SeverityNone,
		Type:        TypeNone,
		SampleCount: len(snap.live),
		Features:    make([]FeatureResult, 0, len(a.cfg.FeatureNames)),
	}

	// Per-feature tests against the frozen reference.
	var psiSum float64
	var ksDrifted int
	refSamples := make([]stream.Sample, len(snap.reference))
	for i, o := range snap.reference {
		refSamples[i] = o.sample
	}
	for i, name := range a.cfg.FeatureNames {
		ref := stream.FeatureColumn(refSamples, i)
		cur := stream.FeatureColumn(snap.live, i)

		psi, err := PSI(ref, cur, a.cfg.Bins)
		if err != nil {
			continue
		}
		ksStat, ksP, _ := KS(ref, cur)
		kl, _ := KLDivergence(ref, cur, a.cfg.Bins)
		js, _ := JSDivergence(ref, cur, a.cfg.Bins)

		fr := FeatureResult{
			Name:         name,
			PSI:          psi,
			KSStatistic:  ksStat,
			KSPValue:     ksP,
			KLDivergence: kl,
			JSDivergence: js,
			AdwinChanged: snap.adwinFired[i],
		}
		fr.Drifted = psi > PSISignificant || ksP < a.cfg.KSAlpha || fr.AdwinChanged
		if fr.Drifted {
			report.AffectedFeatures = append(report.AffectedFeatures, name)
		}
		report.Features = append(report.Features, fr)

		psiSum += psi
		if ksP < a.cfg.KSAlpha {
			ksDrifted++
		}
	}

	if len(report.Features) == 0 {
		report.Insufficient = true
		report.Recommendation = "Insufficient data: keep ingesting before acting on drift"
		return report
	}

	n := float64(len(report.Features))
	report.DataScore = clampScore(psiSum / n / PSISignificant * 50)
	report.CovariateScore = clampScore(float64(ksDrifted) / n * 100)

	predScore, conceptScore, havePred, haveConcept := a.outcomeScores(snap)
	report.PredictionScore = predScore
	report.ConceptScore = conceptScore

	report.Score = a.combine(report, havePred, haveConcept)
	report.Severity = classifySeverity(report.Score)
	report.Type = classifyType(report, havePred, haveConcept)
	report.Recommendation = recommend(report.Severity)

	log.Debug().
		Float64("score", report.Score).
		Str("severity", string(report.Severity)).
		Str("type", string(report.Type)).
		Int("affected", len(report.AffectedFeatures)).
		Msg("drift evaluation complete")

	return report
}

// outcomeScores derives the prediction and concept sub-scores from predicted
// classes and label agreement, when both sides carry enough of them.
func (a *Analyzer) outcomeScores(snap snapshot) (pred, concept float64, havePred, haveConcept bool) {
	refPreds := make([]int, 0, len(snap.reference))
	for _, o := range snap.reference {
		if o.pred >= 0 {
			refPreds = append(refPreds, o.pred)
		}
	}
	livePreds := make([]int, 0, len(snap.livePreds))
	for _, p := range snap.livePreds {
		if p >= 0 {
			livePreds = append(livePreds, p)
		}
	}

	if len(refPreds) >= MinTestSamples && len(livePreds) >= MinTestSamples {
		havePred = true
		catPSI := categoricalPSI(refPreds, livePreds)
		pred = clampScore(catPSI / PSISignificant * 50)
		if snap.predFired {
			pred = math.Max(pred, severityHighFloor)
		}
	}

	refAcc, refN := agreement(snap.reference)
	liveAcc, liveN := liveAgreement(snap.live, snap.livePreds)
	if refN >= MinTestSamples && liveN >= MinTestSamples {
		haveConcept = true
		drop := refAcc - liveAcc
		if drop < 0 {
			drop = 0
		}
		concept = clampScore(drop * 250)
	}
	return pred, concept, havePred, haveConcept
}

// combine produces the weighted overall score over the available sub-scores.
func (a *Analyzer) combine(r Report, havePred, haveConcept bool) float64 {
	w := a.cfg.Weights
	total := w.Data + w.Covariate
	sum := r.DataScore*w.Data + r.CovariateScore*w.Covariate
	if havePred {
		total += w.Prediction
		sum += r.PredictionScore * w.Prediction
	}
	if haveConcept {
		total += w.Concept
		sum += r.ConceptScore * w.Concept
	}
	if total == 0 {
		return 0
	}
	return clampScore(sum / total)
}

func classifySeverity(score float64) Severity {
	switch {
	case score >= severityHighFloor:
		return SeverityHigh
	case score >= severityModerateFloor:
		return SeverityModerate
	case score >= severityLowFloor:
		return SeverityLow
	default:
		return SeverityNone
	}
}

func classifyType(r Report, havePred, haveConcept bool) Type {
	if r.Score < severityLowFloor {
		return TypeNone
	}
	best, bestScore := TypeData, r.DataScore
	if r.CovariateScore > bestScore {
		best, bestScore = TypeCovariate, r.CovariateScore
	}
	if havePred && r.PredictionScore > bestScore {
		best, bestScore = TypePrediction, r.PredictionScore
	}
	if haveConcept && r.ConceptScore > bestScore {
		best = TypeConcept
	}
	return best
}

func recommend(s Severity) string {
	switch s {
	case SeverityHigh:
		return "URGENT: trigger immediate retraining"
	case SeverityModerate:
		return "Schedule retraining within 24 hours"
	case SeverityLow:
		return "Monitor closely, consider retraining if the trend persists"
	default:
		return "No action required"
	}
}

func clampScore(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

// categoricalPSI computes PSI directly over class proportions, since
// predicted classes are categorical rather than continuous.
func categoricalPSI(reference, current []int) float64 {
	seen := map[int]struct{}{}
	var classes []int
	for _, v := range reference {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			classes = append(classes, v)
		}
	}
	for _, v := range current {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			classes = append(classes, v)
		}
	}
	sort.Ints(classes)

	var psi float64
	for _, c := range classes {
		r := math.Max(classProportion(reference, c), propEpsilon)
		q := math.Max(classProportion(current, c), propEpsilon)
		psi += (q - r) * math.Log(q/r)
	}
	return psi
}

func classProportion(values []int, class int) float64 {
	if len(values) == 0 {
		return 0
	}
	var n int
	for _, v := range values {
		if v == class {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

// agreement returns the fraction of labeled reference observations whose
// prediction matched the label, and how many such observations exist.
func agreement(obs []observation) (float64, int) {
	var correct, n int
	for _, o := range obs {
		if o.pred < 0 || !o.sample.Labeled() {
			continue
		}
		n++
		if o.pred == o.sample.IntLabel() {
			correct++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return float64(correct) / float64(n), n
}

func liveAgreement(samples []stream.Sample, preds []int) (float64, int) {
	var correct, n int
	for i, s := range samples {
		if i >= len(preds) || preds[i] < 0 || !s.Labeled() {
			continue
		}
		n++
		if preds[i] == s.IntLabel() {
			correct++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return float64(correct) / float64(n), n
}
