package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"driftwatch/internal/cfg"
	"driftwatch/internal/drift"
	"driftwatch/internal/metrics"
	"driftwatch/internal/model"
	"driftwatch/internal/pipeline"
	"driftwatch/internal/registry"
	"driftwatch/internal/server"
	"driftwatch/internal/train"
)

func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store := openRegistry(c)
	defer store.Close()

	pipe, err := pipeline.New(pipelineConfig(c), store, model.NewFactory(model.LogisticConfig{}), mw)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline initialization failed")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipe.Run(ctx)
	}()

	srv := server.New(pipe, c.Port, c.APIKey, mw)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, &wg, srv)
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func openRegistry(c cfg.Settings) *registry.Store {
	if err := os.MkdirAll(c.DataPath, 0o750); err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("failed to create data directory")
	}
	store, err := registry.Open(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("failed to open model registry")
	}
	return store
}

func pipelineConfig(c cfg.Settings) pipeline.Config {
	return pipeline.Config{
		Analyzer: drift.AnalyzerConfig{
			FeatureNames:  c.FeatureNames,
			WindowSize:    c.WindowSize,
			ReferenceSize: c.ReferenceSize,
		},
		Trainer: train.Config{
			MinTrainSamples: c.MinTrainSamples,
		},
		Orchestrator: pipeline.OrchestratorConfig{
			ScoreThreshold:      c.ScoreThreshold,
			MinChampionAccuracy: c.MinChampionAccuracy,
			MaxModelAge:         c.MaxModelAge,
			ImprovementMargin:   c.ImprovementMargin,
			TrainWindow:         c.TrainWindow,
		},
		EvalInterval: c.EvalInterval,
	}
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, srv *server.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown API server")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
