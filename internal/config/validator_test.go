package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "orchestrator.max_parallel",
		Value:   0,
		Message: "must be at least 1",
	}

	expected := "orchestrator.max_parallel: must be at least 1 (got: 0)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidateOrchestrator(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "max_parallel below 1",
			mutate:    func(c *Config) { c.Orchestrator.MaxParallel = 0 },
			wantField: "orchestrator.max_parallel",
		},
		{
			name:      "max_parallel above limit",
			mutate:    func(c *Config) { c.Orchestrator.MaxParallel = 1001 },
			wantField: "orchestrator.max_parallel",
		},
		{
			name:      "task timeout below 1",
			mutate:    func(c *Config) { c.Orchestrator.TaskTimeoutSeconds = 0 },
			wantField: "orchestrator.task_timeout_seconds",
		},
		{
			name:      "sync timeout below 1",
			mutate:    func(c *Config) { c.Orchestrator.SyncTimeoutSeconds = -5 },
			wantField: "orchestrator.sync_timeout_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasFieldError(errs, tt.wantField) {
				t.Errorf("Validate() = %v, want error on field %q", errs, tt.wantField)
			}
		})
	}
}

func TestValidateAssignment(t *testing.T) {
	cfg := Default()
	cfg.Assignment.Strategy = "best_effort"
	if !hasFieldError(cfg.Validate(), "assignment.strategy") {
		t.Error("unknown strategy should fail validation")
	}

	// Strategy names are matched case-insensitively
	cfg = Default()
	cfg.Assignment.Strategy = "ROUND_ROBIN"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("uppercase strategy should validate, got: %v", errs)
	}

	// Empty strategy defers to whatever the caller wires
	cfg = Default()
	cfg.Assignment.Strategy = ""
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("empty strategy should validate, got: %v", errs)
	}

	cfg = Default()
	cfg.Assignment.Preferences = map[string]string{"task_001": ""}
	if !hasFieldError(cfg.Validate(), "assignment.preferences") {
		t.Error("preference with empty device ID should fail validation")
	}
}

func TestValidateWatch(t *testing.T) {
	cfg := Default()
	cfg.Watch.DebounceMs = -1
	if !hasFieldError(cfg.Validate(), "watch.debounce_ms") {
		t.Error("negative debounce should fail validation")
	}

	cfg = Default()
	cfg.Watch.DebounceMs = 60000
	if !hasFieldError(cfg.Validate(), "watch.debounce_ms") {
		t.Error("excessive debounce should fail validation")
	}

	cfg = Default()
	cfg.Watch.DebounceMs = 0
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("zero debounce is valid (apply immediately), got: %v", errs)
	}
}

func TestValidateLogging(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "unknown level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
		{
			name:      "max size below 1",
			mutate:    func(c *Config) { c.Logging.MaxSizeMB = 0 },
			wantField: "logging.max_size_mb",
		},
		{
			name:      "max size above limit",
			mutate:    func(c *Config) { c.Logging.MaxSizeMB = 2000 },
			wantField: "logging.max_size_mb",
		},
		{
			name:      "negative backups",
			mutate:    func(c *Config) { c.Logging.MaxBackups = -1 },
			wantField: "logging.max_backups",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if !hasFieldError(cfg.Validate(), tt.wantField) {
				t.Errorf("want error on field %q", tt.wantField)
			}
		})
	}

	// Level matching is case-insensitive
	cfg := Default()
	cfg.Logging.Level = "WARN"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("uppercase level should validate, got: %v", errs)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{{Field: "logging.level", Value: "x", Message: "bad"}}
		got := errs.Error()
		if !strings.Contains(got, "logging.level") {
			t.Errorf("single error should mention the field, got %q", got)
		}
		if strings.Contains(got, "validation errors") {
			t.Errorf("single error should not use the multi-error header, got %q", got)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
			{Field: "b", Value: 2, Message: "worse"},
		}
		got := errs.Error()
		if !strings.Contains(got, "2 validation errors") {
			t.Errorf("multi error header missing, got %q", got)
		}
		if !strings.Contains(got, "a:") || !strings.Contains(got, "b:") {
			t.Errorf("multi error should list every field, got %q", got)
		}
	})
}

func TestMultipleErrorsCollected(t *testing.T) {
	cfg := Default()
	cfg.Orchestrator.MaxParallel = 0
	cfg.Logging.Level = "nope"
	cfg.Watch.DebounceMs = -1

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("Validate() collected %d errors, want 3: %v", len(errs), errs)
	}
}

func TestValidStrategiesMatchesDevicePackage(t *testing.T) {
	// The list is duplicated here to avoid importing internal/device from
	// the config layer; this pins the contract.
	want := []string{"capability_match", "load_balance", "round_robin"}
	got := ValidStrategies()
	if len(got) != len(want) {
		t.Fatalf("ValidStrategies() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ValidStrategies()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func hasFieldError(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
