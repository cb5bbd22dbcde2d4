package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	FeatureNames  []string
	WindowSize    int
	ReferenceSize int
	EvalInterval  time.Duration

	ScoreThreshold      float64
	MinChampionAccuracy float64
	ImprovementMargin   float64
	MaxModelAge         time.Duration
	MinTrainSamples     int
	TrainWindow         int

	DataPath string
	Port     int
	APIKey   string
	LogLevel string
}

type ConfigFile struct {
	Monitor struct {
		FeatureNames  []string `yaml:"featureNames"`
		WindowSize    int      `yaml:"windowSize"`
		ReferenceSize int      `yaml:"referenceSize"`
		EvalInterval  string   `yaml:"evalInterval"`
	} `yaml:"monitor"`

	Retrain struct {
		ScoreThreshold      float64 `yaml:"scoreThreshold"`
		MinChampionAccuracy float64 `yaml:"minChampionAccuracy"`
		ImprovementMargin   float64 `yaml:"improvementMargin"`
		MaxModelAge         string  `yaml:"maxModelAge"`
		MinTrainSamples     int     `yaml:"minTrainSamples"`
		TrainWindow         int     `yaml:"trainWindow"`
	} `yaml:"retrain"`

	System struct {
		DataPath string `yaml:"dataPath"`
		Port     int    `yaml:"port"`
		APIKey   string `yaml:"apiKey"`
		LogLevel string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	evalInterval, err := time.ParseDuration(config.Monitor.EvalInterval)
	if err != nil {
		evalInterval = 30 * time.Second
	}

	maxModelAge := time.Duration(0)
	if config.Retrain.MaxModelAge != "" {
		if d, err := time.ParseDuration(config.Retrain.MaxModelAge); err == nil {
			maxModelAge = d
		}
	}

	settings := Settings{
		FeatureNames:        getFeaturesFromEnvOrConfig(config.Monitor.FeatureNames),
		WindowSize:          getIntFromEnvOrConfig("WINDOW_SIZE", config.Monitor.WindowSize, 200),
		ReferenceSize:       getIntFromEnvOrConfig("REFERENCE_SIZE", config.Monitor.ReferenceSize, 200),
		EvalInterval:        getDurationOrDefault("EVAL_INTERVAL", evalInterval),
		ScoreThreshold:      getFloatFromEnvOrConfig("SCORE_THRESHOLD", config.Retrain.ScoreThreshold, 70),
		MinChampionAccuracy: getFloatFromEnvOrConfig("MIN_CHAMPION_ACCURACY", config.Retrain.MinChampionAccuracy, 0.85),
		ImprovementMargin:   getFloatFromEnvOrConfig("IMPROVEMENT_MARGIN", config.Retrain.ImprovementMargin, 0.02),
		MaxModelAge:         getDurationOrDefault("MAX_MODEL_AGE", maxModelAge),
		MinTrainSamples:     getIntFromEnvOrConfig("MIN_TRAIN_SAMPLES", config.Retrain.MinTrainSamples, 100),
		TrainWindow:         getIntFromEnvOrConfig("TRAIN_WINDOW", config.Retrain.TrainWindow, 500),
		DataPath:            getEnvOrDefault("DATA_PATH", config.System.DataPath),
		Port:                getIntFromEnvOrConfig("PORT", config.System.Port, 8000),
		APIKey:              getEnvOrDefault("API_KEY", config.System.APIKey),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", config.System.LogLevel),
	}
	if settings.DataPath == "" {
		settings.DataPath = "data"
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		FeatureNames:        splitOrDefault(os.Getenv("FEATURE_NAMES"), []string{"f0", "f1", "f2", "f3"}),
		WindowSize:          getIntOrDefault("WINDOW_SIZE", 200),
		ReferenceSize:       getIntOrDefault("REFERENCE_SIZE", 200),
		EvalInterval:        getDurationOrDefault("EVAL_INTERVAL", 30*time.Second),
		ScoreThreshold:      getFloatOrDefault("SCORE_THRESHOLD", 70),
		MinChampionAccuracy: getFloatOrDefault("MIN_CHAMPION_ACCURACY", 0.85),
		ImprovementMargin:   getFloatOrDefault("IMPROVEMENT_MARGIN", 0.02),
		MaxModelAge:         getDurationOrDefault("MAX_MODEL_AGE", 0),
		MinTrainSamples:     getIntOrDefault("MIN_TRAIN_SAMPLES", 100),
		TrainWindow:         getIntOrDefault("TRAIN_WINDOW", 500),
		DataPath:            getEnvOrDefault("DATA_PATH", "data"),
		Port:                getIntOrDefault("PORT", 8000),
		APIKey:              os.Getenv("API_KEY"), // optional
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getFeaturesFromEnvOrConfig(configFeatures []string) []string {
	if env := os.Getenv("FEATURE_NAMES"); env != "" {
		return splitOrDefault(env, nil)
	}
	if len(configFeatures) > 0 {
		return configFeatures
	}
	return []string{"f0", "f1", "f2", "f3"}
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if len(settings.FeatureNames) == 0 {
		return fmt.Errorf("at least one feature name must be specified")
	}
	seen := map[string]bool{}
	for _, name := range settings.FeatureNames {
		if name == "" {
			return fmt.Errorf("feature names cannot be empty")
		}
		if seen[name] {
			return fmt.Errorf("duplicate feature name %q", name)
		}
		seen[name] = true
	}

	if settings.WindowSize < 30 || settings.WindowSize > 100000 {
		return fmt.Errorf("window size must be between 30 and 100000, got %d", settings.WindowSize)
	}
	if settings.ReferenceSize < 30 || settings.ReferenceSize > 100000 {
		return fmt.Errorf("reference size must be between 30 and 100000, got %d", settings.ReferenceSize)
	}
	if settings.EvalInterval < time.Second || settings.EvalInterval > time.Hour {
		return fmt.Errorf("evaluation interval must be between 1s and 1h, got %v", settings.EvalInterval)
	}

	if settings.ScoreThreshold < 1 || settings.ScoreThreshold > 100 {
		return fmt.Errorf("score threshold must be between 1 and 100, got %f", settings.ScoreThreshold)
	}
	if settings.MinChampionAccuracy <= 0 || settings.MinChampionAccuracy >= 1 {
		return fmt.Errorf("minimum champion accuracy must be between 0 and 1, got %f", settings.MinChampionAccuracy)
	}
	if settings.ImprovementMargin <= 0 || settings.ImprovementMargin > 0.5 {
		return fmt.Errorf("improvement margin must be between 0 and 0.5, got %f", settings.ImprovementMargin)
	}
	if settings.MaxModelAge < 0 {
		return fmt.Errorf("max model age cannot be negative, got %v", settings.MaxModelAge)
	}
	if settings.MinTrainSamples < 30 || settings.MinTrainSamples > 100000 {
		return fmt.Errorf("minimum training samples must be between 30 and 100000, got %d", settings.MinTrainSamples)
	}
	if settings.TrainWindow < settings.MinTrainSamples {
		return fmt.Errorf("training window %d is smaller than minimum training samples %d", settings.TrainWindow, settings.MinTrainSamples)
	}

	if settings.Port < 1024 || settings.Port > 65535 {
		return fmt.Errorf("port must be between 1024 and 65535, got %d", settings.Port)
	}
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}

	return nil
}
