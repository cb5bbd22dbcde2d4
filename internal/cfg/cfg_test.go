package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"CONFIG_FILE", "FEATURE_NAMES", "WINDOW_SIZE", "REFERENCE_SIZE",
	"EVAL_INTERVAL", "SCORE_THRESHOLD", "MIN_CHAMPION_ACCURACY",
	"IMPROVEMENT_MARGIN", "MAX_MODEL_AGE", "MIN_TRAIN_SAMPLES",
	"TRAIN_WINDOW", "DATA_PATH", "PORT", "API_KEY", "LOG_LEVEL",
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults with no environment",
			envVars: map[string]string{},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if len(settings.FeatureNames) != 4 || settings.FeatureNames[0] != "f0" {
					t.Errorf("expected default feature names [f0 f1 f2 f3], got %v", settings.FeatureNames)
				}
				if settings.WindowSize != 200 {
					t.Errorf("expected default WindowSize 200, got %d", settings.WindowSize)
				}
				if settings.EvalInterval != 30*time.Second {
					t.Errorf("expected default EvalInterval 30s, got %v", settings.EvalInterval)
				}
				if settings.ScoreThreshold != 70 {
					t.Errorf("expected default ScoreThreshold 70, got %f", settings.ScoreThreshold)
				}
				if settings.ImprovementMargin != 0.02 {
					t.Errorf("expected default ImprovementMargin 0.02, got %f", settings.ImprovementMargin)
				}
				if settings.Port != 8000 {
					t.Errorf("expected default Port 8000, got %d", settings.Port)
				}
				if settings.DataPath != "data" {
					t.Errorf("expected default DataPath 'data', got %s", settings.DataPath)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"FEATURE_NAMES":     "latency, throughput ,errors",
				"WINDOW_SIZE":       "500",
				"EVAL_INTERVAL":     "10s",
				"SCORE_THRESHOLD":   "60",
				"MAX_MODEL_AGE":     "24h",
				"MIN_TRAIN_SAMPLES": "200",
				"TRAIN_WINDOW":      "1000",
				"PORT":              "9090",
				"API_KEY":           "secret",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				want := []string{"latency", "throughput", "errors"}
				if len(settings.FeatureNames) != len(want) {
					t.Fatalf("expected %d feature names, got %v", len(want), settings.FeatureNames)
				}
				for i, name := range want {
					if settings.FeatureNames[i] != name {
						t.Errorf("expected feature %s at index %d, got %s", name, i, settings.FeatureNames[i])
					}
				}
				if settings.WindowSize != 500 {
					t.Errorf("expected WindowSize 500, got %d", settings.WindowSize)
				}
				if settings.EvalInterval != 10*time.Second {
					t.Errorf("expected EvalInterval 10s, got %v", settings.EvalInterval)
				}
				if settings.MaxModelAge != 24*time.Hour {
					t.Errorf("expected MaxModelAge 24h, got %v", settings.MaxModelAge)
				}
				if settings.APIKey != "secret" {
					t.Errorf("expected APIKey 'secret', got %s", settings.APIKey)
				}
			},
		},
		{
			name:    "window size below floor",
			envVars: map[string]string{"WINDOW_SIZE": "10"},
			wantErr: true,
		},
		{
			name:    "score threshold out of range",
			envVars: map[string]string{"SCORE_THRESHOLD": "150"},
			wantErr: true,
		},
		{
			name:    "train window smaller than min samples",
			envVars: map[string]string{"TRAIN_WINDOW": "50"},
			wantErr: true,
		},
		{
			name:    "privileged port rejected",
			envVars: map[string]string{"PORT": "80"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearTestEnv(t)

	configYAML := `
monitor:
  featureNames: ["cpu", "memory"]
  windowSize: 400
  referenceSize: 300
  evalInterval: 15s
retrain:
  scoreThreshold: 65
  minChampionAccuracy: 0.8
  improvementMargin: 0.05
  maxModelAge: 12h
  minTrainSamples: 150
  trainWindow: 800
system:
  dataPath: /tmp/driftwatch-test
  port: 9000
  logLevel: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(settings.FeatureNames) != 2 || settings.FeatureNames[0] != "cpu" {
		t.Errorf("expected feature names [cpu memory], got %v", settings.FeatureNames)
	}
	if settings.WindowSize != 400 {
		t.Errorf("expected WindowSize 400, got %d", settings.WindowSize)
	}
	if settings.ReferenceSize != 300 {
		t.Errorf("expected ReferenceSize 300, got %d", settings.ReferenceSize)
	}
	if settings.EvalInterval != 15*time.Second {
		t.Errorf("expected EvalInterval 15s, got %v", settings.EvalInterval)
	}
	if settings.MaxModelAge != 12*time.Hour {
		t.Errorf("expected MaxModelAge 12h, got %v", settings.MaxModelAge)
	}
	if settings.Port != 9000 {
		t.Errorf("expected Port 9000, got %d", settings.Port)
	}
	if settings.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %s", settings.LogLevel)
	}
}

func TestLoadFromYAML_EnvOverrides(t *testing.T) {
	clearTestEnv(t)

	configYAML := `
monitor:
  windowSize: 400
system:
  port: 9000
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WINDOW_SIZE", "600")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if settings.WindowSize != 600 {
		t.Errorf("expected env override WindowSize 600, got %d", settings.WindowSize)
	}
	if settings.Port != 9000 {
		t.Errorf("expected YAML Port 9000, got %d", settings.Port)
	}
}

func TestLoadFromYAML_MissingFile(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	if _, err := Load(); err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoadFromYAML_Malformed(t *testing.T) {
	clearTestEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("monitor: [not a map"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Error("Expected error for malformed config file, got nil")
	}
}

func TestValidateSettings_DuplicateFeatures(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("FEATURE_NAMES", "a,b,a")

	if _, err := Load(); err == nil {
		t.Error("Expected error for duplicate feature names, got nil")
	}
}
