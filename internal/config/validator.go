package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "orchestrator.max_parallel")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidStrategies returns the list of valid assignment strategy names.
// These must match the strategies registered in internal/device.
func ValidStrategies() []string {
	return []string{"capability_match", "load_balance", "round_robin"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateOrchestrator()...)
	errors = append(errors, c.validateAssignment()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateOrchestrator validates the OrchestratorConfig
func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	if c.Orchestrator.MaxParallel < 1 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel",
			Value:   c.Orchestrator.MaxParallel,
			Message: "must be at least 1",
		})
	}

	// Upper bound: each in-flight task holds a goroutine and a device slot
	const maxParallelLimit = 1000
	if c.Orchestrator.MaxParallel > maxParallelLimit {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel",
			Value:   c.Orchestrator.MaxParallel,
			Message: fmt.Sprintf("exceeds maximum of %d", maxParallelLimit),
		})
	}

	if c.Orchestrator.TaskTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.task_timeout_seconds",
			Value:   c.Orchestrator.TaskTimeoutSeconds,
			Message: "must be at least 1 second",
		})
	}

	if c.Orchestrator.SyncTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.sync_timeout_seconds",
			Value:   c.Orchestrator.SyncTimeoutSeconds,
			Message: "must be at least 1 second",
		})
	}

	return errors
}

// validateAssignment validates the AssignmentConfig
func (c *Config) validateAssignment() []ValidationError {
	var errors []ValidationError

	if c.Assignment.Strategy != "" && !slices.Contains(ValidStrategies(), strings.ToLower(c.Assignment.Strategy)) {
		errors = append(errors, ValidationError{
			Field:   "assignment.strategy",
			Value:   c.Assignment.Strategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStrategies(), ", ")),
		})
	}

	for taskID, deviceID := range c.Assignment.Preferences {
		if taskID == "" || deviceID == "" {
			errors = append(errors, ValidationError{
				Field:   "assignment.preferences",
				Value:   fmt.Sprintf("%q: %q", taskID, deviceID),
				Message: "task and device IDs must be non-empty",
			})
		}
	}

	return errors
}

// validateWatch validates the WatchConfig
func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	if c.Watch.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: "must be non-negative",
		})
	}

	// A debounce above a few seconds means edits sit unapplied while the
	// orchestrator keeps scheduling against the stale plan
	const maxDebounceMs = 10000
	if c.Watch.DebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxDebounceMs),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1 MB",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %d MB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	const maxBackupsLimit = 100
	if c.Logging.MaxBackups > maxBackupsLimit {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: fmt.Sprintf("exceeds maximum of %d", maxBackupsLimit),
		})
	}

	return errors
}
