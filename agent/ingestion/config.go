package ingestion

import (
	"fmt"
	"time"
)

// Config holds the reduction and signal thresholds.
type Config struct {
	InteractionWindow time.Duration `json:"interaction_window" yaml:"interaction_window"`
	LogWindow         time.Duration `json:"log_window" yaml:"log_window"`
	MetricThreshold   float64       `json:"metric_threshold" yaml:"metric_threshold"`

	// HallucinationThreshold is carried for confidence-based scorers; the
	// built-in detectors do not filter on it.
	HallucinationThreshold float64       `json:"hallucination_threshold" yaml:"hallucination_threshold"`
	PromptDriftThreshold   float64       `json:"prompt_drift_threshold" yaml:"prompt_drift_threshold"`
	DataDriftThreshold     float64       `json:"data_drift_threshold" yaml:"data_drift_threshold"`
	BaselineWindow         time.Duration `json:"baseline_window" yaml:"baseline_window"`

	// LockTTL bounds how long a crashed pass can hold a user's lock.
	LockTTL time.Duration `json:"lock_ttl" yaml:"lock_ttl"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		InteractionWindow:      300 * time.Second,
		LogWindow:              60 * time.Second,
		MetricThreshold:        0.1,
		HallucinationThreshold: 0.7,
		PromptDriftThreshold:   0.3,
		DataDriftThreshold:     0.2,
		BaselineWindow:         7 * 24 * time.Hour,
		LockTTL:                5 * time.Minute,
	}
}

// Validate checks the windows and thresholds.
func (c Config) Validate() error {
	if c.InteractionWindow <= 0 || c.LogWindow <= 0 || c.BaselineWindow <= 0 {
		return fmt.Errorf("windows must be positive")
	}
	if c.MetricThreshold < 0 {
		return fmt.Errorf("metric threshold must not be negative")
	}
	return nil
}
