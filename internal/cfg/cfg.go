package cfg

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"labelfix/internal/common"
)

// Settings is the resolved runtime configuration for the correction engine.
type Settings struct {
	ModelName   string
	ModelParams map[string]float64

	ConfidenceThreshold  float64
	AnomalyContamination float64

	ConfidenceWeight float64
	AnomalyWeight    float64

	RejectThreshold float64
	TestSize        float64

	DataPath    string
	ExportDir   string
	ListenPort  int
	HTTPTimeout time.Duration
}

// ReviewThreshold is derived, not configured: half of the reject threshold.
func (s *Settings) ReviewThreshold() float64 {
	return s.RejectThreshold / 2
}

type ConfigFile struct {
	Model struct {
		Name   string             `yaml:"name"`
		Params map[string]float64 `yaml:"params"`
	} `yaml:"model"`

	Signals struct {
		ConfidenceThreshold  float64 `yaml:"confidenceThreshold"`
		AnomalyContamination float64 `yaml:"anomalyContamination"`
	} `yaml:"signals"`

	Fusion struct {
		ConfidenceWeight float64 `yaml:"confidenceWeight"`
		AnomalyWeight    float64 `yaml:"anomalyWeight"`
	} `yaml:"fusion"`

	Decision struct {
		RejectThreshold float64 `yaml:"rejectThreshold"`
	} `yaml:"decision"`

	System struct {
		DataPath    string  `yaml:"dataPath"`
		ExportDir   string  `yaml:"exportDir"`
		ListenPort  int     `yaml:"listenPort"`
		TestSize    float64 `yaml:"testSize"`
		HTTPTimeout string  `yaml:"httpTimeout"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
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

	httpTimeout, err := time.ParseDuration(config.System.HTTPTimeout)
	if err != nil {
		httpTimeout = 30 * time.Second
	}

	settings := Settings{
		ModelName:            getEnvOrDefault(common.EnvModelName, stringOrDefault(config.Model.Name, common.DefaultModelName)),
		ModelParams:          config.Model.Params,
		ConfidenceThreshold:  getFloatFromEnvOrConfig(common.EnvConfidenceThreshold, config.Signals.ConfidenceThreshold, common.DefaultConfidenceThreshold),
		AnomalyContamination: getFloatFromEnvOrConfig(common.EnvAnomalyContamination, config.Signals.AnomalyContamination, common.DefaultAnomalyContamination),
		ConfidenceWeight:     getFloatFromEnvOrConfig(common.EnvConfidenceWeight, config.Fusion.ConfidenceWeight, common.DefaultConfidenceWeight),
		AnomalyWeight:        getFloatFromEnvOrConfig(common.EnvAnomalyWeight, config.Fusion.AnomalyWeight, common.DefaultAnomalyWeight),
		RejectThreshold:      getFloatFromEnvOrConfig(common.EnvRejectThreshold, config.Decision.RejectThreshold, common.DefaultRejectThreshold),
		TestSize:             getFloatFromEnvOrConfig(common.EnvTestSize, config.System.TestSize, common.DefaultTestSize),
		DataPath:             getEnvOrDefault(common.EnvDataPath, stringOrDefault(config.System.DataPath, common.DefaultDataPath)),
		ExportDir:            getEnvOrDefault(common.EnvExportDir, stringOrDefault(config.System.ExportDir, common.DefaultExportDir)),
		ListenPort:           getIntFromEnvOrConfig(common.EnvListenPort, config.System.ListenPort, common.DefaultListenPort),
		HTTPTimeout:          httpTimeout,
	}

	if settings.ModelParams == nil {
		settings.ModelParams = defaultModelParams()
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelName:            getEnvOrDefault(common.EnvModelName, common.DefaultModelName),
		ModelParams:          defaultModelParams(),
		ConfidenceThreshold:  getFloatOrDefault(common.EnvConfidenceThreshold, common.DefaultConfidenceThreshold),
		AnomalyContamination: getFloatOrDefault(common.EnvAnomalyContamination, common.DefaultAnomalyContamination),
		ConfidenceWeight:     getFloatOrDefault(common.EnvConfidenceWeight, common.DefaultConfidenceWeight),
		AnomalyWeight:        getFloatOrDefault(common.EnvAnomalyWeight, common.DefaultAnomalyWeight),
		RejectThreshold:      getFloatOrDefault(common.EnvRejectThreshold, common.DefaultRejectThreshold),
		TestSize:             getFloatOrDefault(common.EnvTestSize, common.DefaultTestSize),
		DataPath:             getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		ExportDir:            getEnvOrDefault(common.EnvExportDir, common.DefaultExportDir),
		ListenPort:           getIntOrDefault(common.EnvListenPort, common.DefaultListenPort),
		HTTPTimeout:          getDurationOrDefault(common.EnvHTTPTimeout, 30*time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func defaultModelParams() map[string]float64 {
	return map[string]float64{
		"n_estimators": 100,
		"random_state": common.DefaultRandomState,
	}
}

func stringOrDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
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
	if settings.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	if settings.ConfidenceThreshold < 0 || settings.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1, got %f", settings.ConfidenceThreshold)
	}
	if settings.AnomalyContamination <= 0 || settings.AnomalyContamination >= 0.5 {
		return fmt.Errorf("anomaly contamination must be in (0, 0.5), got %f", settings.AnomalyContamination)
	}

	if settings.ConfidenceWeight < 0 || settings.ConfidenceWeight > 1 {
		return fmt.Errorf("confidence weight must be between 0 and 1, got %f", settings.ConfidenceWeight)
	}
	if settings.AnomalyWeight < 0 || settings.AnomalyWeight > 1 {
		return fmt.Errorf("anomaly weight must be between 0 and 1, got %f", settings.AnomalyWeight)
	}
	if math.Abs(settings.ConfidenceWeight+settings.AnomalyWeight-1.0) > common.WeightSumTolerance {
		return fmt.Errorf("fusion weights must sum to 1.0, got %f + %f",
			settings.ConfidenceWeight, settings.AnomalyWeight)
	}

	if settings.RejectThreshold <= 0 || settings.RejectThreshold > 1 {
		return fmt.Errorf("reject threshold must be in (0, 1], got %f", settings.RejectThreshold)
	}

	if settings.TestSize <= 0 || settings.TestSize >= 1 {
		return fmt.Errorf("test size must be in (0, 1), got %f", settings.TestSize)
	}

	if settings.ListenPort < common.MinListenPort || settings.ListenPort > common.MaxListenPort {
		return fmt.Errorf("listen port must be between %d and %d, got %d",
			common.MinListenPort, common.MaxListenPort, settings.ListenPort)
	}

	if settings.HTTPTimeout < time.Second || settings.HTTPTimeout > 10*time.Minute {
		return fmt.Errorf("HTTP timeout must be between 1s and 10m, got %v", settings.HTTPTimeout)
	}

	return nil
}
