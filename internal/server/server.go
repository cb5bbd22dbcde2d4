// Package server exposes the monitoring pipeline over HTTP: sample
// ingestion, prediction serving, drift reports, retraining control, and the
// model registry, plus Prometheus metrics and a WebSocket feed of drift
// reports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"driftwatch/internal/metrics"
	"driftwatch/internal/pipeline"
	"driftwatch/internal/registry"
)

// Server provides the HTTP API for the drift monitoring pipeline.
type Server struct {
	pipe     *pipeline.Pipeline
	mx       *metrics.Wrapper
	apiKey   string
	server   *http.Server
	upgrader websocket.Upgrader
}

// IngestRequest carries one sample into the live window.
type IngestRequest struct {
	Features []float64 `json:"features"`
	Label    *int      `json:"label,omitempty"`
}

// PredictRequest asks the champion for a classification.
type PredictRequest struct {
	Features  []float64 `json:"features"`
	RequestID string    `json:"request_id,omitempty"`
}

// PredictResponse is the prediction result.
type PredictResponse struct {
	Class         int       `json:"class"`
	Probabilities []float64 `json:"probabilities"`
	ModelVersion  string    `json:"model_version"`
	RequestID     string    `json:"request_id,omitempty"`
	Latency       float64   `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// RetrainRequest optionally annotates a forced retraining run. DriftScore,
// when set, is recorded in place of the freshly evaluated score.
type RetrainRequest struct {
	Reason     string   `json:"reason,omitempty"`
	DriftScore *float64 `json:"drift_score,omitempty"`
}

// RollbackRequest names the version to re-promote.
type RollbackRequest struct {
	Version string `json:"version"`
}

// New creates the HTTP server. An empty apiKey disables authentication.
func New(pipe *pipeline.Pipeline, port int, apiKey string, mx *metrics.Wrapper) *Server {
	s := &Server{
		pipe:     pipe,
		mx:       mx,
		apiKey:   apiKey,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ingest", s.auth(s.handleIngest))
	mux.HandleFunc("/api/predict", s.auth(s.handlePredict))
	mux.HandleFunc("/api/drift", s.auth(s.handleDrift))
	mux.HandleFunc("/api/retrain", s.auth(s.handleRetrain))
	mux.HandleFunc("/api/models", s.auth(s.handleModels))
	mux.HandleFunc("/api/models/champion", s.auth(s.handleChampion))
	mux.HandleFunc("/api/rollback", s.auth(s.handleRollback))
	mux.HandleFunc("/api/history", s.auth(s.handleHistory))
	mux.HandleFunc("/api/audit", s.auth(s.handleAudit))
	mux.HandleFunc("/ws/drift", s.auth(s.handleDriftWS))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// auth enforces the API key when one is configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.apiKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.pipe.Ingest(req.Features, req.Label); err != nil {
		http.Error(w, fmt.Sprintf("ingest failed: %v", err), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Features) == 0 {
		http.Error(w, "features cannot be empty", http.StatusBadRequest)
		return
	}

	class, proba, err := s.pipe.Predict(req.Features)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoChampion) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, fmt.Sprintf("prediction failed: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, PredictResponse{
		Class:         class,
		Probabilities: proba,
		ModelVersion:  s.pipe.ChampionVersion(),
		RequestID:     req.RequestID,
		Latency:       float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:     time.Now(),
	})
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.pipe.EvaluateDrift())
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The body is optional; a bare POST retrains with no annotation.
	var req RetrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := s.pipe.ForceRetrain(req.Reason, req.DriftScore)
	if err != nil {
		if errors.Is(err, pipeline.ErrRetrainInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		log.Error().Err(err).Msg("forced retraining failed")
		http.Error(w, fmt.Sprintf("retraining failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	artifacts, err := s.pipe.ListModels()
	if err != nil {
		http.Error(w, fmt.Sprintf("list models: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, artifacts)
}

func (s *Server) handleChampion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	artifact, err := s.pipe.Champion()
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			http.Error(w, "no champion promoted", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("load champion: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, artifact)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Version == "" {
		http.Error(w, "version is required", http.StatusBadRequest)
		return
	}

	if err := s.pipe.Rollback(req.Version); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			http.Error(w, fmt.Sprintf("unknown version %s", req.Version), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("rollback failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "rolled back", "version": req.Version})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.pipe.History(queryLimit(r, 50))
	if err != nil {
		http.Error(w, fmt.Sprintf("history: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.pipe.AuditTrail(queryLimit(r, 50))
	if err != nil {
		http.Error(w, fmt.Sprintf("audit trail: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":           "ok",
		"champion_version": s.pipe.ChampionVersion(),
		"live_samples":     s.pipe.LiveSamples(),
		"reference_ready":  s.pipe.ReferenceReady(),
		"timestamp":        time.Now(),
	})
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return def
	}
	return limit
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
