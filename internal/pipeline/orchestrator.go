package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"driftwatch/internal/drift"
	"driftwatch/internal/metrics"
	"driftwatch/internal/registry"
	"driftwatch/internal/stream"
	"driftwatch/internal/train"
)

// ErrRetrainInProgress is returned when a retraining attempt is requested
// while another one is still running.
var ErrRetrainInProgress = errors.New("retraining already in progress")

// Retraining outcomes recorded in the history.
const (
	OutcomePromoted = "promoted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Retraining triggers.
const (
	TriggerDriftScore = "drift_score"
	TriggerAccuracy   = "accuracy_floor"
	TriggerModelAge   = "model_age"
	TriggerManual     = "manual"
	TriggerBootstrap  = "bootstrap"
)

// OrchestratorConfig holds the retraining trigger and promotion policy.
type OrchestratorConfig struct {
	// ScoreThreshold is the drift score at or above which retraining is
	// triggered automatically.
	ScoreThreshold float64 `yaml:"scoreThreshold"`
	// MinChampionAccuracy triggers retraining when the champion's recorded
	// accuracy falls below it.
	MinChampionAccuracy float64 `yaml:"minChampionAccuracy"`
	// MaxModelAge triggers retraining when the champion is older. Zero
	// disables the age trigger.
	MaxModelAge time.Duration `yaml:"maxModelAge"`
	// ImprovementMargin is how much a candidate must beat the champion's
	// accuracy by to be promoted.
	ImprovementMargin float64 `yaml:"improvementMargin"`
	// TrainWindow is how many recent labeled samples to request for
	// training.
	TrainWindow int `yaml:"trainWindow"`
	// FeatureNames is recorded on every registered artifact so a stored
	// model documents the schema it was trained against.
	FeatureNames []string `yaml:"featureNames"`
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = 70
	}
	if c.MinChampionAccuracy <= 0 {
		c.MinChampionAccuracy = 0.85
	}
	if c.ImprovementMargin <= 0 {
		c.ImprovementMargin = 0.02
	}
	if c.TrainWindow <= 0 {
		c.TrainWindow = 500
	}
}

// RetrainResult is the full outcome of one retraining attempt. Success means
// the attempt ran to completion, even if the candidate was not promoted.
type RetrainResult struct {
	Success         bool                   `json:"success"`
	Promoted        bool                   `json:"promoted"`
	Outcome         string                 `json:"outcome"`
	Trigger         string                 `json:"trigger"`
	Reason          string                 `json:"reason,omitempty"`
	Candidate       *train.Candidate       `json:"-"`
	Version         string                 `json:"new_version,omitempty"`
	OldAccuracy     float64                `json:"old_accuracy"`
	NewAccuracy     float64                `json:"new_accuracy"`
	Improvement     float64                `json:"improvement"`
	DurationSeconds float64                `json:"duration_seconds"`
	Validation      train.ValidationResult `json:"validation"`
	Detail          string                 `json:"reason_if_failed,omitempty"`
	Duration        time.Duration          `json:"-"`
}

// championView is what the orchestrator needs to know about the incumbent
// when deciding triggers and promotion.
type championView struct {
	exists    bool
	version   string
	accuracy  float64
	createdAt time.Time
}

// Orchestrator drives the retraining loop: it decides when to retrain,
// trains and validates candidates, compares them against the champion, and
// records every attempt. Only one attempt runs at a time.
type Orchestrator struct {
	cfg       OrchestratorConfig
	trainer   *train.Trainer
	validator *train.Validator
	store     *registry.Store
	mx        *metrics.Wrapper

	mu       sync.Mutex
	inFlight bool
}

// NewOrchestrator wires the retraining loop together. The metrics wrapper
// may be nil.
func NewOrchestrator(cfg OrchestratorConfig, trainer *train.Trainer, validator *train.Validator, store *registry.Store, mx *metrics.Wrapper) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:       cfg,
		trainer:   trainer,
		validator: validator,
		store:     store,
		mx:        mx,
	}
}

// ShouldRetrain evaluates the trigger policy against the latest drift report
// and the champion's state. A report flagged as insufficient never triggers.
func (o *Orchestrator) ShouldRetrain(report drift.Report, champ championView, now time.Time) (bool, string) {
	if report.Insufficient {
		return false, ""
	}
	if report.Score >= o.cfg.ScoreThreshold {
		return true, TriggerDriftScore
	}
	if champ.exists && champ.accuracy < o.cfg.MinChampionAccuracy {
		return true, TriggerAccuracy
	}
	if champ.exists && o.cfg.MaxModelAge > 0 && now.Sub(champ.createdAt) > o.cfg.MaxModelAge {
		return true, TriggerModelAge
	}
	if !champ.exists {
		return true, TriggerBootstrap
	}
	return false, ""
}

// Retrain runs one full attempt: train, validate, compare, and either
// promote or reject. Every attempt, including a failed one, is persisted in
// the retraining history and audit trail. reason is free-form operator
// context on manual triggers, empty otherwise. A second concurrent call
// returns ErrRetrainInProgress without touching the running attempt.
func (o *Orchestrator) Retrain(trigger, reason string, report drift.Report, samples []stream.Sample, champ championView) (*RetrainResult, error) {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil, ErrRetrainInProgress
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	o.mx.RetrainAttempts().Inc()
	started := time.Now()

	result := o.attempt(trigger, reason, report, samples, champ)
	result.Trigger = trigger
	result.Reason = reason
	result.Success = result.Outcome != OutcomeFailed
	result.Promoted = result.Outcome == OutcomePromoted
	result.OldAccuracy = champ.accuracy
	if result.Candidate != nil {
		result.NewAccuracy = result.Candidate.Accuracy
		result.Improvement = result.NewAccuracy - result.OldAccuracy
	}
	result.Duration = time.Since(started)
	result.DurationSeconds = result.Duration.Seconds()
	o.mx.RetrainDuration().Observe(result.Duration.Seconds())

	record := registry.RetrainRecord{
		Ts:                started,
		Trigger:           trigger,
		Reason:            reason,
		Outcome:           result.Outcome,
		CandidateVersion:  result.Version,
		CandidateAccuracy: result.NewAccuracy,
		ChampionAccuracy:  champ.accuracy,
		DriftScore:        report.Score,
		Duration:          result.Duration.Seconds(),
		Detail:            result.Detail,
	}
	if err := o.store.AppendRetrain(record); err != nil {
		log.Error().Err(err).Msg("failed to persist retrain record")
		o.mx.ErrorsTotal().Inc()
	}

	switch result.Outcome {
	case OutcomePromoted:
		o.mx.RetrainPromotions().Inc()
	default:
		o.mx.RetrainRejections().Inc()
		// Rejections and failures still leave an audit trace; promotions are
		// audited by the registry transaction itself.
		event := registry.AuditEvent{
			Ts:      started,
			Action:  "retrain_" + result.Outcome,
			Version: result.Version,
			Detail:  result.Detail,
		}
		if err := o.store.AppendAudit(event); err != nil {
			log.Error().Err(err).Msg("failed to persist audit event")
			o.mx.ErrorsTotal().Inc()
		}
	}

	log.Info().
		Str("trigger", trigger).
		Str("outcome", result.Outcome).
		Str("version", result.Version).
		Dur("duration", result.Duration).
		Msg("retraining attempt finished")

	return result, nil
}

// attempt contains the fallible middle of a retraining run. A panic in the
// classifier surfaces as a failed result rather than killing the service.
func (o *Orchestrator) attempt(trigger, reason string, report drift.Report, samples []stream.Sample, champ championView) (result *RetrainResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("retraining attempt panicked")
			result = &RetrainResult{
				Outcome: OutcomeFailed,
				Detail:  fmt.Sprintf("panic during retraining: %v", r),
			}
		}
	}()

	candidate, holdout, err := o.trainer.Train(samples)
	if err != nil {
		return &RetrainResult{
			Outcome: OutcomeFailed,
			Detail:  fmt.Sprintf("training: %v", err),
		}
	}

	validation, err := o.validator.Validate(candidate, holdout)
	if err != nil {
		return &RetrainResult{
			Outcome:   OutcomeFailed,
			Candidate: candidate,
			Detail:    fmt.Sprintf("validation: %v", err),
		}
	}
	promote := validation.Passed &&
		(!champ.exists || candidate.Accuracy >= champ.accuracy+o.cfg.ImprovementMargin)

	detail := ""
	switch {
	case !validation.Passed:
		detail = fmt.Sprintf("%v: %v", train.ErrValidationFailed, validation.Failures)
	case !promote:
		detail = fmt.Sprintf("candidate accuracy %.4f did not beat champion %.4f by margin %.4f",
			candidate.Accuracy, champ.accuracy, o.cfg.ImprovementMargin)
	}

	payload, err := candidate.Classifier.Marshal()
	if err != nil {
		return &RetrainResult{
			Outcome:    OutcomeFailed,
			Candidate:  candidate,
			Validation: validation,
			Detail:     fmt.Sprintf("serialize candidate: %v", err),
		}
	}

	now := time.Now()
	artifact := registry.Artifact{
		Version:         o.store.NextVersion(now),
		CreatedAt:       now,
		Checksum:        registry.Checksum(payload),
		Payload:         payload,
		Accuracy:        candidate.Accuracy,
		TrainSamples:    candidate.TrainSamples,
		DriftScore:      report.Score,
		FeatureNames:    o.cfg.FeatureNames,
		Hyperparameters: candidate.Hyperparameters,
		Reason:          trigger,
	}
	if reason != "" {
		artifact.Reason = reason
	}
	if err := o.store.Register(artifact, promote); err != nil {
		return &RetrainResult{
			Outcome:    OutcomeFailed,
			Candidate:  candidate,
			Validation: validation,
			Detail:     fmt.Sprintf("register candidate: %v", err),
		}
	}

	outcome := OutcomePromoted
	if !promote {
		outcome = OutcomeRejected
	}
	return &RetrainResult{
		Outcome:    outcome,
		Candidate:  candidate,
		Version:    artifact.Version,
		Validation: validation,
		Detail:     detail,
	}
}
