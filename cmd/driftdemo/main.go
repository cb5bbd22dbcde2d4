// driftdemo drives a running driftwatch instance through a complete drift
// scenario: it streams clean samples, lets a first champion train, injects a
// sudden distribution shift, and reports how the service reacts.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"driftwatch/internal/stream"
)

type ingestRequest struct {
	Features []float64 `json:"features"`
	Label    *int      `json:"label,omitempty"`
}

type driftReport struct {
	Score          float64 `json:"drift_score"`
	Severity       string  `json:"severity"`
	Type           string  `json:"drift_type"`
	Insufficient   bool    `json:"insufficient_data"`
	Recommendation string  `json:"recommendation"`
}

type retrainResult struct {
	Success  bool    `json:"success"`
	Promoted bool    `json:"promoted"`
	Outcome  string  `json:"outcome"`
	Version  string  `json:"new_version"`
	Duration float64 `json:"duration_seconds"`
	Detail   string  `json:"reason_if_failed"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8000", "driftwatch base URL")
		apiKey   = flag.String("api-key", "", "API key, if the server requires one")
		features = flag.Int("features", 4, "feature dimensionality (must match server config)")
		seed     = flag.Int64("seed", 42, "simulator seed")
		clean    = flag.Int("clean", 600, "clean samples to stream before the shift")
		shifted  = flag.Int("shifted", 300, "shifted samples to stream after the shift")
		shift    = flag.Float64("shift", 3.0, "magnitude of the sudden mean shift")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(10 * time.Second)
	if *apiKey != "" {
		client.SetHeader("X-API-Key", *apiKey)
	}

	sim := stream.NewSimulator(*features, *seed)

	fmt.Println("=== Drift Scenario ===")
	fmt.Printf("Target:          %s\n", *baseURL)
	fmt.Printf("Clean samples:   %d\n", *clean)
	fmt.Printf("Shifted samples: %d (shift %.1f)\n", *shifted, *shift)
	fmt.Println("======================")

	log.Info().Msg("phase 1: streaming clean samples")
	streamSamples(client, sim, *clean)
	printDrift(client)

	log.Info().Msg("phase 2: forcing initial training")
	forceRetrain(client, "demo bootstrap")

	log.Info().Float64("shift", *shift).Msg("phase 3: injecting sudden drift")
	sim.ShiftSudden(*shift)
	streamSamples(client, sim, *shifted)
	report := printDrift(client)

	if report != nil && report.Score >= 70 {
		log.Info().Msg("phase 4: drift detected, forcing retraining")
		forceRetrain(client, "demo drift response")
		printDrift(client)
	} else {
		log.Warn().Msg("drift score stayed below the retraining threshold")
	}
}

func streamSamples(client *resty.Client, sim *stream.Simulator, n int) {
	for i := 0; i < n; i++ {
		sample := sim.Next()
		req := ingestRequest{Features: sample.Features, Label: sample.Label}

		resp, err := client.R().SetBody(req).Post("/api/ingest")
		if err != nil {
			log.Fatal().Err(err).Msg("ingest request failed")
		}
		if resp.IsError() {
			log.Fatal().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("ingest rejected")
		}
	}
	log.Info().Int("count", n).Msg("samples streamed")
}

func printDrift(client *resty.Client) *driftReport {
	report := &driftReport{}
	resp, err := client.R().SetResult(report).Get("/api/drift")
	if err != nil {
		log.Fatal().Err(err).Msg("drift request failed")
	}
	if resp.IsError() {
		log.Fatal().Int("status", resp.StatusCode()).Msg("drift request rejected")
	}

	if report.Insufficient {
		fmt.Println("drift: insufficient data")
		return report
	}
	fmt.Printf("drift: score=%.1f severity=%s type=%s\n", report.Score, report.Severity, report.Type)
	fmt.Printf("       %s\n", report.Recommendation)
	return report
}

func forceRetrain(client *resty.Client, reason string) {
	result := &retrainResult{}
	resp, err := client.R().
		SetBody(map[string]string{"reason": reason}).
		SetResult(result).
		Post("/api/retrain")
	if err != nil {
		log.Fatal().Err(err).Msg("retrain request failed")
	}
	if resp.IsError() {
		log.Fatal().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("retrain rejected")
	}

	fmt.Printf("retrain: outcome=%s promoted=%t version=%s duration=%.2fs\n",
		result.Outcome, result.Promoted, result.Version, result.Duration)
	if result.Detail != "" {
		fmt.Printf("         %s\n", result.Detail)
	}
}
