package cfg

import (
	"testing"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func baseConfig() *Cfg {
	return &Cfg{
		WorkerCount:       5,
		HashCount:         128,
		DedupBands:        16,
		DedupRows:         8,
		DedupThreshold:    0.8,
		ScheduleJitter:    0.1,
		BackoffBase:       60,
		BackoffMax:        3600,
		LanguageThreshold: 0.5,
	}
}

func TestValidate(t *testing.T) {
	if err := validate(baseConfig()); err != nil {
		t.Fatalf("Expected valid configuration, got: %v", err)
	}
}

func TestValidateBandPartitioning(t *testing.T) {
	cfg := baseConfig()
	cfg.DedupBands = 10
	cfg.DedupRows = 10

	if err := validate(cfg); err == nil {
		t.Error("Expected error when bands*rows does not equal hash count")
	}
}

func TestValidateThresholdRange(t *testing.T) {
	cfg := baseConfig()
	cfg.DedupThreshold = 1.5

	if err := validate(cfg); err == nil {
		t.Error("Expected error for threshold above 1")
	}

	cfg.DedupThreshold = 0
	if err := validate(cfg); err == nil {
		t.Error("Expected error for zero threshold")
	}
}

func TestValidateWorkerCount(t *testing.T) {
	cfg := baseConfig()
	cfg.WorkerCount = 0

	if err := validate(cfg); err == nil {
		t.Error("Expected error for zero worker count")
	}
}

func TestValidateBackoff(t *testing.T) {
	cfg := baseConfig()
	cfg.BackoffBase = 600
	cfg.BackoffMax = 60

	if err := validate(cfg); err == nil {
		t.Error("Expected error when backoff max is below backoff base")
	}
}

func TestValidateJitterRange(t *testing.T) {
	cfg := baseConfig()
	cfg.ScheduleJitter = 1.0

	if err := validate(cfg); err == nil {
		t.Error("Expected error for jitter of 1 or above")
	}
}

func TestValidateBoilerplatePatterns(t *testing.T) {
	cfg := baseConfig()
	cfg.ExtraBoilerplate = []string{`(?i)^download our app\b`}

	if err := validate(cfg); err != nil {
		t.Errorf("Expected valid pattern to pass, got: %v", err)
	}

	cfg.ExtraBoilerplate = []string{`[invalid`}
	if err := validate(cfg); err == nil {
		t.Error("Expected error for pattern that does not compile")
	}
}
