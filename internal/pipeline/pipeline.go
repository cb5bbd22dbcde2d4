// Package pipeline wires the drift analyzer, the trainer/validator pair, and
// the model registry into one monitoring loop: samples flow in, drift is
// scored periodically, and retraining fires when the trigger policy says so.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"driftwatch/internal/drift"
	"driftwatch/internal/metrics"
	"driftwatch/internal/model"
	"driftwatch/internal/registry"
	"driftwatch/internal/stream"
	"driftwatch/internal/train"
)

// ErrNoChampion is returned by Predict when no model has been promoted yet.
var ErrNoChampion = errors.New("no champion model available")

// Config aggregates the configuration of every pipeline stage.
type Config struct {
	Analyzer     drift.AnalyzerConfig  `yaml:"analyzer"`
	Trainer      train.Config          `yaml:"trainer"`
	Validator    train.ValidatorConfig `yaml:"validator"`
	Orchestrator OrchestratorConfig    `yaml:"orchestrator"`
	// EvalInterval is how often the background loop scores drift and checks
	// the retraining triggers.
	EvalInterval time.Duration `yaml:"evalInterval"`
}

func (c *Config) applyDefaults() {
	if c.EvalInterval <= 0 {
		c.EvalInterval = 30 * time.Second
	}
	if len(c.Orchestrator.FeatureNames) == 0 {
		c.Orchestrator.FeatureNames = c.Analyzer.FeatureNames
	}
	c.Orchestrator.applyDefaults()
}

// champion is the cached incumbent: the deserialized classifier plus the
// registry metadata the trigger policy needs.
type champion struct {
	clf       model.Classifier
	version   string
	accuracy  float64
	createdAt time.Time
}

// Pipeline is the top-level monitoring service. All methods are safe for
// concurrent use.
type Pipeline struct {
	cfg      Config
	analyzer *drift.Analyzer
	orch     *Orchestrator
	store    *registry.Store
	factory  model.Factory
	mx       *metrics.Wrapper

	mu    sync.RWMutex
	champ *champion

	subMu   sync.Mutex
	subs    map[int]chan drift.Report
	nextSub int
}

// New builds a pipeline around an open registry. If a champion was promoted
// in a previous run it is loaded immediately, so predictions survive
// restarts.
func New(cfg Config, store *registry.Store, factory model.Factory, mx *metrics.Wrapper) (*Pipeline, error) {
	cfg.applyDefaults()
	p := &Pipeline{
		cfg:      cfg,
		analyzer: drift.NewAnalyzer(cfg.Analyzer),
		store:    store,
		factory:  factory,
		mx:       mx,
		subs:     map[int]chan drift.Report{},
	}
	p.orch = NewOrchestrator(cfg.Orchestrator, train.NewTrainer(cfg.Trainer, factory), train.NewValidator(cfg.Validator), store, mx)

	if err := p.reloadChampion(); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("load champion: %w", err)
	}
	return p, nil
}

// reloadChampion refreshes the cached classifier from the registry pointer.
func (p *Pipeline) reloadChampion() error {
	artifact, err := p.store.Champion()
	if err != nil {
		return err
	}

	clf := p.factory()
	if err := clf.Unmarshal(artifact.Payload); err != nil {
		return fmt.Errorf("deserialize champion %s: %w", artifact.Version, err)
	}

	p.mu.Lock()
	p.champ = &champion{
		clf:       clf,
		version:   artifact.Version,
		accuracy:  artifact.Accuracy,
		createdAt: artifact.CreatedAt,
	}
	p.mu.Unlock()

	p.mx.ChampionAccuracy().Set(artifact.Accuracy)
	log.Info().
		Str("version", artifact.Version).
		Float64("accuracy", artifact.Accuracy).
		Msg("champion model loaded")
	return nil
}

func (p *Pipeline) championView() championView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.champ == nil {
		return championView{}
	}
	return championView{
		exists:    true,
		version:   p.champ.version,
		accuracy:  p.champ.accuracy,
		createdAt: p.champ.createdAt,
	}
}

// Ingest validates one sample and feeds it to the drift analyzer, tagging it
// with the champion's prediction when a champion exists.
func (p *Pipeline) Ingest(features []float64, label *int) error {
	dim := len(p.cfg.Analyzer.FeatureNames)
	sample, err := stream.NewSample(features, label, dim)
	if err != nil {
		p.mx.SamplesRejected().Inc()
		return err
	}

	pred := -1
	p.mu.RLock()
	if p.champ != nil {
		if v, err := p.champ.clf.Predict(sample.Features); err == nil {
			pred = v
		}
	}
	p.mu.RUnlock()

	if cuts := p.analyzer.AddSample(sample, pred); cuts > 0 {
		p.mx.AdwinDetections().Add(float64(cuts))
	}
	p.mx.SamplesIngested().Inc()
	return nil
}

// Predict serves a prediction from the cached champion.
func (p *Pipeline) Predict(features []float64) (int, []float64, error) {
	dim := len(p.cfg.Analyzer.FeatureNames)
	if len(features) != dim {
		p.mx.PredictionFailures().Inc()
		return 0, nil, fmt.Errorf("feature count mismatch: got %d, want %d", len(features), dim)
	}

	p.mu.RLock()
	champ := p.champ
	p.mu.RUnlock()
	if champ == nil {
		p.mx.PredictionFailures().Inc()
		return 0, nil, ErrNoChampion
	}

	started := time.Now()
	class, err := champ.clf.Predict(features)
	if err != nil {
		p.mx.PredictionFailures().Inc()
		return 0, nil, err
	}
	proba, err := champ.clf.PredictProba(features)
	if err != nil {
		p.mx.PredictionFailures().Inc()
		return 0, nil, err
	}

	p.mx.PredictionLatency().Observe(time.Since(started).Seconds())
	p.mx.Predictions().Inc()
	return class, proba, nil
}

// ChampionVersion returns the cached champion's version, or empty when none
// is promoted.
func (p *Pipeline) ChampionVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.champ == nil {
		return ""
	}
	return p.champ.version
}

// LiveSamples reports how many samples the live window currently holds.
func (p *Pipeline) LiveSamples() int { return p.analyzer.LiveLen() }

// ReferenceReady reports whether the reference window is frozen.
func (p *Pipeline) ReferenceReady() bool { return p.analyzer.ReferenceReady() }

// EvaluateDrift scores the live window against the reference and publishes
// the report to subscribers.
func (p *Pipeline) EvaluateDrift() drift.Report {
	report := p.analyzer.Evaluate()

	p.mx.DriftEvaluations().Inc()
	if !report.Insufficient {
		p.mx.DriftScore().Set(report.Score)
	}
	if champ := p.championView(); champ.exists {
		p.mx.ModelAge().Set(time.Since(champ.createdAt).Seconds())
	}

	p.publish(report)
	return report
}

// ForceRetrain runs one retraining attempt immediately, regardless of the
// trigger policy. It still refuses to overlap a running attempt. reason is
// free-form operator context carried into the result, history, and artifact;
// driftScore, when non-nil, overrides the evaluated score in those records.
func (p *Pipeline) ForceRetrain(reason string, driftScore *float64) (*RetrainResult, error) {
	report := p.analyzer.Evaluate()
	if driftScore != nil {
		report.Score = *driftScore
	}
	return p.retrain(TriggerManual, reason, report)
}

func (p *Pipeline) retrain(trigger, reason string, report drift.Report) (*RetrainResult, error) {
	samples := p.analyzer.TrainingWindow(p.cfg.Orchestrator.TrainWindow)
	result, err := p.orch.Retrain(trigger, reason, report, samples, p.championView())
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomePromoted {
		if err := p.reloadChampion(); err != nil {
			log.Error().Err(err).Msg("failed to reload champion after promotion")
			p.mx.ErrorsTotal().Inc()
		}
	}
	return result, nil
}

// Champion returns the promoted artifact's metadata with the payload
// stripped, or registry.ErrNotFound when nothing is promoted.
func (p *Pipeline) Champion() (registry.Artifact, error) {
	artifact, err := p.store.Champion()
	if err != nil {
		return registry.Artifact{}, err
	}
	artifact.Payload = nil
	return artifact, nil
}

// ListModels returns every registered artifact with payloads stripped.
func (p *Pipeline) ListModels() ([]registry.Artifact, error) {
	artifacts, err := p.store.List()
	if err != nil {
		return nil, err
	}
	for i := range artifacts {
		artifacts[i].Payload = nil
	}
	return artifacts, nil
}

// History returns the most recent retraining records, newest first.
func (p *Pipeline) History(limit int) ([]registry.RetrainRecord, error) {
	return p.store.RetrainHistory(limit)
}

// AuditTrail returns the most recent audit events, newest first.
func (p *Pipeline) AuditTrail(limit int) ([]registry.AuditEvent, error) {
	return p.store.AuditTrail(limit)
}

// Rollback re-promotes a stored version and swaps the cached champion.
func (p *Pipeline) Rollback(version string) error {
	if err := p.store.Rollback(version, time.Now()); err != nil {
		return err
	}
	return p.reloadChampion()
}

// Subscribe registers a drift report listener. The returned cancel function
// must be called to release the subscription. Slow subscribers miss reports
// rather than blocking the pipeline.
func (p *Pipeline) Subscribe() (<-chan drift.Report, func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan drift.Report, 4)
	p.subs[id] = ch

	cancel := func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (p *Pipeline) publish(report drift.Report) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- report:
		default:
		}
	}
}

// Run drives the periodic evaluation loop until the context is canceled.
// When the trigger policy fires, retraining runs in the background so the
// loop keeps evaluating; overlapping triggers coalesce into the running
// attempt.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.EvalInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", p.cfg.EvalInterval).Msg("drift evaluation loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("drift evaluation loop stopped")
			return
		case <-ticker.C:
			report := p.EvaluateDrift()
			if ok, trigger := p.orch.ShouldRetrain(report, p.championView(), time.Now()); ok {
				go func() {
					if _, err := p.retrain(trigger, "", report); err != nil && !errors.Is(err, ErrRetrainInProgress) {
						log.Error().Err(err).Msg("background retraining failed")
						p.mx.ErrorsTotal().Inc()
					}
				}()
			}
		}
	}
}
