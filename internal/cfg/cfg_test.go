package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
model:
  name: logistic
  params:
    max_iter: 500
    random_state: 7
signals:
  confidenceThreshold: 0.8
  anomalyContamination: 0.05
fusion:
  confidenceWeight: 0.7
  anomalyWeight: 0.3
decision:
  rejectThreshold: 0.9
system:
  dataPath: /tmp/labelfix
  listenPort: 9090
  testSize: 0.25
  httpTimeout: 45s
`)

	t.Setenv("CONFIG_FILE", path)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.ModelName != "logistic" {
		t.Errorf("expected model logistic, got %s", s.ModelName)
	}
	if s.ModelParams["max_iter"] != 500 {
		t.Errorf("expected max_iter 500, got %v", s.ModelParams["max_iter"])
	}
	if s.ConfidenceThreshold != 0.8 {
		t.Errorf("expected confidence threshold 0.8, got %f", s.ConfidenceThreshold)
	}
	if s.AnomalyContamination != 0.05 {
		t.Errorf("expected contamination 0.05, got %f", s.AnomalyContamination)
	}
	if s.ConfidenceWeight != 0.7 || s.AnomalyWeight != 0.3 {
		t.Errorf("unexpected fusion weights: %f/%f", s.ConfidenceWeight, s.AnomalyWeight)
	}
	if s.RejectThreshold != 0.9 {
		t.Errorf("expected reject threshold 0.9, got %f", s.RejectThreshold)
	}
	if s.ReviewThreshold() != 0.45 {
		t.Errorf("expected review threshold 0.45, got %f", s.ReviewThreshold())
	}
	if s.ListenPort != 9090 {
		t.Errorf("expected port 9090, got %d", s.ListenPort)
	}
	if s.HTTPTimeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", s.HTTPTimeout)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATA_PATH", "")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.ModelName != "random_forest" {
		t.Errorf("expected default model random_forest, got %s", s.ModelName)
	}
	if s.ConfidenceThreshold != 0.7 {
		t.Errorf("expected default confidence threshold 0.7, got %f", s.ConfidenceThreshold)
	}
	if s.ConfidenceWeight != 0.6 || s.AnomalyWeight != 0.4 {
		t.Errorf("unexpected default weights: %f/%f", s.ConfidenceWeight, s.AnomalyWeight)
	}
	if s.RejectThreshold != 0.8 {
		t.Errorf("expected default reject threshold 0.8, got %f", s.RejectThreshold)
	}
	if s.ReviewThreshold() != 0.4 {
		t.Errorf("expected derived review threshold 0.4, got %f", s.ReviewThreshold())
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
model:
  name: random_forest
signals:
  confidenceThreshold: 0.7
`)

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MODEL_NAME", "margin")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.85")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.ModelName != "margin" {
		t.Errorf("env override lost: expected margin, got %s", s.ModelName)
	}
	if s.ConfidenceThreshold != 0.85 {
		t.Errorf("env override lost: expected 0.85, got %f", s.ConfidenceThreshold)
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	valid := Settings{
		ModelName:            "random_forest",
		ConfidenceThreshold:  0.7,
		AnomalyContamination: 0.1,
		ConfidenceWeight:     0.6,
		AnomalyWeight:        0.4,
		RejectThreshold:      0.8,
		TestSize:             0.2,
		ListenPort:           8080,
		HTTPTimeout:          30 * time.Second,
	}

	if err := validateSettings(&valid); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty model name", func(s *Settings) { s.ModelName = "" }},
		{"confidence threshold above 1", func(s *Settings) { s.ConfidenceThreshold = 1.5 }},
		{"contamination zero", func(s *Settings) { s.AnomalyContamination = 0 }},
		{"contamination at half", func(s *Settings) { s.AnomalyContamination = 0.5 }},
		{"weights not summing to 1", func(s *Settings) { s.ConfidenceWeight = 0.6; s.AnomalyWeight = 0.6 }},
		{"reject threshold zero", func(s *Settings) { s.RejectThreshold = 0 }},
		{"test size one", func(s *Settings) { s.TestSize = 1.0 }},
		{"privileged port", func(s *Settings) { s.ListenPort = 80 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid
			tt.mutate(&s)
			if err := validateSettings(&s); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestWeightSumTolerance(t *testing.T) {
	t.Parallel()

	s := Settings{
		ModelName:            "random_forest",
		ConfidenceThreshold:  0.7,
		AnomalyContamination: 0.1,
		ConfidenceWeight:     0.6004,
		AnomalyWeight:        0.4,
		RejectThreshold:      0.8,
		TestSize:             0.2,
		ListenPort:           8080,
		HTTPTimeout:          30 * time.Second,
	}

	// Within the 1e-3 tolerance
	if err := validateSettings(&s); err != nil {
		t.Errorf("weights within tolerance rejected: %v", err)
	}

	s.ConfidenceWeight = 0.61
	if err := validateSettings(&s); err == nil {
		t.Error("weights outside tolerance accepted")
	}
}
