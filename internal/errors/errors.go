// Package errors provides centralized error definitions and error handling utilities
// for the Starweaver codebase. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - InvariantError: a constellation invariant was broken by a mutation
//   - StateError: an operation was attempted in an incompatible lifecycle state
//   - AssignmentError: a task could not be matched to a device
//   - TransportError: communication with a device failed
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or structure
//   - TimeoutError: operation timed out
//   - CancelledError: operation cancelled before completion
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewStateError("cannot remove task", errors.ErrTaskRunning)
//
//	// Semantic error
//	err := errors.NewNotFoundError("task", "task_001")
//
//	// With context wrapping
//	err := errors.NewAssignmentError("no eligible device", errors.ErrNoDevicesConnected).WithTaskID("task_001")
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrDependencyCycle) { ... }
//
//	// Check for error types
//	var stateErr *errors.StateError
//	if errors.As(err, &stateErr) { ... }
//
//	// Use classification helpers
//	if errors.IsRetryable(err) { ... }
//	if errors.IsUserFacing(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Constellation-related sentinel errors
var (
	// ErrTaskNotFound indicates that a task could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrLineNotFound indicates that a dependency line could not be found.
	ErrLineNotFound = New("line not found")
	// ErrDependencyCycle indicates a circular dependency between tasks.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrTaskRunning indicates that a task is running and cannot be mutated.
	ErrTaskRunning = New("task is running")
	// ErrConstellationInvalid indicates that a constellation failed validation.
	ErrConstellationInvalid = New("constellation is invalid")
	// ErrEmptyConstellation indicates an operation that requires at least one task.
	ErrEmptyConstellation = New("constellation has no tasks")
)

// Editor-related sentinel errors
var (
	// ErrUnknownCommand indicates that no command is registered under a name.
	ErrUnknownCommand = New("unknown command")
	// ErrNothingToUndo indicates that the undo stack is empty.
	ErrNothingToUndo = New("nothing to undo")
	// ErrNothingToRedo indicates that the redo stack is empty.
	ErrNothingToRedo = New("nothing to redo")
	// ErrRevertFailed indicates that rolling back a failed command did not restore state.
	ErrRevertFailed = New("command revert failed")
)

// Device-related sentinel errors
var (
	// ErrDeviceNotFound indicates that a device could not be found.
	ErrDeviceNotFound = New("device not found")
	// ErrNoDevicesConnected indicates that no devices are available for assignment.
	ErrNoDevicesConnected = New("no devices connected")
	// ErrUnknownStrategy indicates an unrecognized assignment strategy name.
	ErrUnknownStrategy = New("unknown assignment strategy")
	// ErrDeviceUnreachable indicates a communication failure with a device.
	ErrDeviceUnreachable = New("device unreachable")
)

// Orchestrator-related sentinel errors
var (
	// ErrExecutionCancelled indicates that a constellation run was cancelled.
	ErrExecutionCancelled = New("execution cancelled")
	// ErrTaskFailed indicates that a task execution failed.
	ErrTaskFailed = New("task failed")
	// ErrRetriesExhausted indicates that a task failed on its final retry attempt.
	ErrRetriesExhausted = New("retries exhausted")
	// ErrSyncTimeout indicates that waiting on pending plan modifications timed out.
	ErrSyncTimeout = New("modification sync timed out")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = New("operation cancelled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrOperationFailed indicates a general operation failure.
	ErrOperationFailed = New("operation failed")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// StarweaverError is the base interface for all Starweaver errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type StarweaverError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// InvariantError represents a constellation invariant broken by a mutation.
// The editor raises it when post-apply validation fails and the command has
// been reverted; callers should treat it as a bug in the issuing planner.
//
// Example:
//
//	err := errors.NewInvariantError("add_dependency produced a cycle", errors.ErrDependencyCycle)
//	err = err.WithConstellationID("constellation_a1b2c3d4_1712000000").WithCommand("add_dependency")
type InvariantError struct {
	baseError
	ConstellationID string
	Command         string
}

// NewInvariantError creates a new InvariantError.
func NewInvariantError(message string, cause error) *InvariantError {
	return &InvariantError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: false,
		},
	}
}

// WithConstellationID adds a constellation ID to the error context.
func (e *InvariantError) WithConstellationID(id string) *InvariantError {
	e.ConstellationID = id
	return e
}

// WithCommand adds the offending command name to the error context.
func (e *InvariantError) WithCommand(name string) *InvariantError {
	e.Command = name
	return e
}

// WithSeverity sets the error severity.
func (e *InvariantError) WithSeverity(s Severity) *InvariantError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *InvariantError) Error() string {
	var parts []string
	if e.ConstellationID != "" {
		parts = append(parts, fmt.Sprintf("constellation=%s", e.ConstellationID))
	}
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%s", e.Command))
	}

	prefix := "invariant error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("invariant error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *InvariantError) Is(target error) bool {
	if _, ok := target.(*InvariantError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StateError represents an operation attempted in an incompatible lifecycle
// state, such as removing a task that is currently running.
//
// Example:
//
//	err := errors.NewStateError("cannot update task", errors.ErrTaskRunning)
//	err = err.WithResource("task", "task_003").WithState("RUNNING")
type StateError struct {
	baseError
	ResourceType string
	ResourceID   string
	State        string
	Operation    string
}

// NewStateError creates a new StateError.
func NewStateError(message string, cause error) *StateError {
	return &StateError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithResource adds the resource type and ID to the error context.
func (e *StateError) WithResource(resourceType, resourceID string) *StateError {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithState adds the current lifecycle state to the error context.
func (e *StateError) WithState(state string) *StateError {
	e.State = state
	return e
}

// WithOperation adds the attempted operation to the error context.
func (e *StateError) WithOperation(op string) *StateError {
	e.Operation = op
	return e
}

// WithSeverity sets the error severity.
func (e *StateError) WithSeverity(s Severity) *StateError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *StateError) Error() string {
	var parts []string
	if e.ResourceType != "" && e.ResourceID != "" {
		parts = append(parts, fmt.Sprintf("%s=%s", e.ResourceType, e.ResourceID))
	}
	if e.State != "" {
		parts = append(parts, fmt.Sprintf("state=%s", e.State))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}

	prefix := "state error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("state error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StateError) Is(target error) bool {
	if _, ok := target.(*StateError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AssignmentError represents a task that could not be matched to a device.
//
// Example:
//
//	err := errors.NewAssignmentError("no device of required type", errors.ErrNoDevicesConnected)
//	err = err.WithTaskID("task_002").WithStrategy("capability_match").WithDeviceType("ANDROID")
type AssignmentError struct {
	baseError
	TaskID     string
	Strategy   string
	DeviceType string
}

// NewAssignmentError creates a new AssignmentError.
func NewAssignmentError(message string, cause error) *AssignmentError {
	return &AssignmentError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *AssignmentError) WithTaskID(id string) *AssignmentError {
	e.TaskID = id
	return e
}

// WithStrategy adds the strategy name to the error context.
func (e *AssignmentError) WithStrategy(name string) *AssignmentError {
	e.Strategy = name
	return e
}

// WithDeviceType adds the required device type to the error context.
func (e *AssignmentError) WithDeviceType(deviceType string) *AssignmentError {
	e.DeviceType = deviceType
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *AssignmentError) WithRetryable(r bool) *AssignmentError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *AssignmentError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Strategy != "" {
		parts = append(parts, fmt.Sprintf("strategy=%s", e.Strategy))
	}
	if e.DeviceType != "" {
		parts = append(parts, fmt.Sprintf("device_type=%s", e.DeviceType))
	}

	prefix := "assignment error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("assignment error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *AssignmentError) Is(target error) bool {
	if _, ok := target.(*AssignmentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TransportError represents a communication failure with a device.
// Transport failures are transient by default and count against the
// owning task's retry budget.
//
// Example:
//
//	err := errors.NewTransportError("assign RPC failed", errors.ErrDeviceUnreachable)
//	err = err.WithTaskID("task_004").WithDeviceID("android-7")
type TransportError struct {
	baseError
	TaskID   string
	DeviceID string
}

// NewTransportError creates a new TransportError.
func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *TransportError) WithTaskID(id string) *TransportError {
	e.TaskID = id
	return e
}

// WithDeviceID adds a device ID to the error context.
func (e *TransportError) WithDeviceID(id string) *TransportError {
	e.DeviceID = id
	return e
}

// WithRetryable sets whether the error is retryable (default true for transport).
func (e *TransportError) WithRetryable(r bool) *TransportError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.DeviceID != "" {
		parts = append(parts, fmt.Sprintf("device=%s", e.DeviceID))
	}

	prefix := "transport error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("transport error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TransportError) Is(target error) bool {
	if _, ok := target.(*TransportError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("task", "task_001")
//	fmt.Println(err) // "task 'task_001' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	switch e.ResourceType {
	case "task":
		if errors.Is(target, ErrTaskNotFound) {
			return true
		}
	case "line":
		if errors.Is(target, ErrLineNotFound) {
			return true
		}
	case "device":
		if errors.Is(target, ErrDeviceNotFound) {
			return true
		}
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
//
// Example:
//
//	err := errors.NewAlreadyExistsError("task", "task_001")
//	fmt.Println(err) // "task 'task_001' already exists"
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' already exists: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or structure.
//
// Example:
//
//	err := errors.NewValidationError("task ID cannot be empty")
//	err = err.WithField("task_id").WithValue("")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for task execution", 1000*time.Second)
//	fmt.Println(err) // "timeout error: waiting for task execution (timeout: 16m40s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// CancelledError represents an operation cancelled before completion.
// Cancellation is a normal outcome, not a failure: severity is Info and
// the error is never retryable.
//
// Example:
//
//	err := errors.NewCancelledError("constellation execution")
//	fmt.Println(err) // "cancelled: constellation execution"
type CancelledError struct {
	baseError
	Operation string
	Reason    string
}

// NewCancelledError creates a new CancelledError.
func NewCancelledError(operation string) *CancelledError {
	return &CancelledError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: true,
		},
		Operation: operation,
	}
}

// WithReason adds a cancellation reason to the error context.
func (e *CancelledError) WithReason(reason string) *CancelledError {
	e.Reason = reason
	return e
}

// WithCause adds a cause to the error.
func (e *CancelledError) WithCause(cause error) *CancelledError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *CancelledError) Error() string {
	base := fmt.Sprintf("cancelled: %s", e.Operation)
	if e.Reason != "" {
		base = fmt.Sprintf("%s (reason: %s)", base, e.Reason)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *CancelledError) Is(target error) bool {
	if _, ok := target.(*CancelledError); ok {
		return true
	}
	if errors.Is(target, ErrCancelled) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing StarweaverError with IsRetryable() returning true
//   - TimeoutError and TransportError instances
//   - Errors wrapping ErrTimeout or ErrDeviceUnreachable
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    task.CurrentRetry++
//	    return retry(operation)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check if error implements StarweaverError
	var swErr StarweaverError
	if As(err, &swErr) {
		return swErr.IsRetryable()
	}

	// Check for known retryable sentinel errors
	if Is(err, ErrTimeout) || Is(err, ErrDeviceUnreachable) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
// This checks for:
//   - Errors implementing StarweaverError with IsUserFacing() returning true
//   - Semantic errors (NotFoundError, AlreadyExistsError, ValidationError,
//     TimeoutError, CancelledError)
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    displayToUser(err.Error())
//	} else {
//	    displayToUser("An internal error occurred")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	// Check if error implements StarweaverError
	var swErr StarweaverError
	if As(err, &swErr) {
		return swErr.IsUserFacing()
	}

	// Semantic errors are always user-facing
	var notFound *NotFoundError
	var alreadyExists *AlreadyExistsError
	var validation *ValidationError
	var timeout *TimeoutError
	var cancelled *CancelledError

	if As(err, &notFound) || As(err, &alreadyExists) ||
		As(err, &validation) || As(err, &timeout) || As(err, &cancelled) {
		return true
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement StarweaverError.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    alertOnCall(err)
//	case errors.SeverityError:
//	    log.Error("error occurred", "err", err)
//	case errors.SeverityWarning:
//	    log.Warn("warning", "err", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	// Check if error implements StarweaverError
	var swErr StarweaverError
	if As(err, &swErr) {
		return swErr.Severity()
	}

	// Default to Error severity for unknown errors
	return SeverityError
}

// IsDomainError returns true if the error is a domain-specific error
// (InvariantError, StateError, AssignmentError, or TransportError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var invariantErr *InvariantError
	var stateErr *StateError
	var assignmentErr *AssignmentError
	var transportErr *TransportError

	return As(err, &invariantErr) || As(err, &stateErr) ||
		As(err, &assignmentErr) || As(err, &transportErr)
}

// IsSemanticError returns true if the error is a semantic error
// (NotFoundError, AlreadyExistsError, ValidationError, TimeoutError,
// or CancelledError).
func IsSemanticError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	var alreadyExists *AlreadyExistsError
	var validation *ValidationError
	var timeout *TimeoutError
	var cancelled *CancelledError

	return As(err, &notFound) || As(err, &alreadyExists) ||
		As(err, &validation) || As(err, &timeout) || As(err, &cancelled)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the StarweaverError interface.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to apply command")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to start task %s", taskID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
