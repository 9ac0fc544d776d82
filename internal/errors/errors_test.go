package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// InvariantError Tests
// -----------------------------------------------------------------------------

func TestNewInvariantError(t *testing.T) {
	cause := ErrDependencyCycle
	err := NewInvariantError("command broke the graph", cause)

	if err.message != "command broke the graph" {
		t.Errorf("message = %q, want %q", err.message, "command broke the graph")
	}
	if err.cause != cause {
		t.Errorf("cause = %v, want %v", err.cause, cause)
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if err.IsUserFacing() {
		t.Error("IsUserFacing() = true, want false")
	}
}

func TestInvariantError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *InvariantError
		want string
	}{
		{
			name: "basic error",
			err:  NewInvariantError("validation failed after apply", nil),
			want: "invariant error: validation failed after apply",
		},
		{
			name: "with cause",
			err:  NewInvariantError("validation failed after apply", ErrDependencyCycle),
			want: "invariant error: validation failed after apply: dependency cycle detected",
		},
		{
			name: "with constellation and command",
			err: NewInvariantError("validation failed after apply", nil).
				WithConstellationID("constellation_abcd1234_20260401_120000").
				WithCommand("add_dependency"),
			want: "invariant error [constellation=constellation_abcd1234_20260401_120000, command=add_dependency]: validation failed after apply",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInvariantError_Is(t *testing.T) {
	err := NewInvariantError("test", ErrDependencyCycle)

	if !Is(err, &InvariantError{}) {
		t.Error("Is(InvariantError{}) = false, want true")
	}
	if !Is(err, ErrDependencyCycle) {
		t.Error("Is(ErrDependencyCycle) = false, want true")
	}
	if Is(err, ErrTaskNotFound) {
		t.Error("Is(ErrTaskNotFound) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// StateError Tests
// -----------------------------------------------------------------------------

func TestNewStateError(t *testing.T) {
	cause := ErrTaskRunning
	err := NewStateError("cannot remove task", cause)

	if err.message != "cannot remove task" {
		t.Errorf("message = %q, want %q", err.message, "cannot remove task")
	}
	if err.cause != cause {
		t.Errorf("cause = %v, want %v", err.cause, cause)
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestStateError_WithMethods(t *testing.T) {
	err := NewStateError("test", nil).
		WithResource("task", "task_003").
		WithState("RUNNING").
		WithOperation("remove_task").
		WithSeverity(SeverityCritical)

	if err.ResourceType != "task" || err.ResourceID != "task_003" {
		t.Errorf("resource = %s/%s, want task/task_003", err.ResourceType, err.ResourceID)
	}
	if err.State != "RUNNING" {
		t.Errorf("State = %q, want %q", err.State, "RUNNING")
	}
	if err.Operation != "remove_task" {
		t.Errorf("Operation = %q, want %q", err.Operation, "remove_task")
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
}

func TestStateError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *StateError
		want string
	}{
		{
			name: "basic error",
			err:  NewStateError("test error", nil),
			want: "state error: test error",
		},
		{
			name: "with resource and state",
			err:  NewStateError("cannot mutate", ErrTaskRunning).WithResource("task", "task_001").WithState("RUNNING"),
			want: "state error [task=task_001, state=RUNNING]: cannot mutate: task is running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStateError_Is(t *testing.T) {
	err := NewStateError("test", ErrTaskRunning)

	if !Is(err, &StateError{}) {
		t.Error("Is(StateError{}) = false, want true")
	}
	if !Is(err, ErrTaskRunning) {
		t.Error("Is(ErrTaskRunning) = false, want true")
	}
	if Is(err, &InvariantError{}) {
		t.Error("Is(InvariantError{}) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// AssignmentError Tests
// -----------------------------------------------------------------------------

func TestNewAssignmentError(t *testing.T) {
	cause := ErrNoDevicesConnected
	err := NewAssignmentError("no eligible device", cause)

	if err.message != "no eligible device" {
		t.Errorf("message = %q, want %q", err.message, "no eligible device")
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
}

func TestAssignmentError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AssignmentError
		want string
	}{
		{
			name: "basic error",
			err:  NewAssignmentError("test error", nil),
			want: "assignment error: test error",
		},
		{
			name: "with all fields",
			err: NewAssignmentError("no device of required type", ErrNoDevicesConnected).
				WithTaskID("task_002").
				WithStrategy("capability_match").
				WithDeviceType("ANDROID"),
			want: "assignment error [task=task_002, strategy=capability_match, device_type=ANDROID]: no device of required type: no devices connected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssignmentError_Is(t *testing.T) {
	err := NewAssignmentError("test", ErrUnknownStrategy)

	if !Is(err, &AssignmentError{}) {
		t.Error("Is(AssignmentError{}) = false, want true")
	}
	if !Is(err, ErrUnknownStrategy) {
		t.Error("Is(ErrUnknownStrategy) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// TransportError Tests
// -----------------------------------------------------------------------------

func TestNewTransportError(t *testing.T) {
	err := NewTransportError("assign RPC failed", ErrDeviceUnreachable)

	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
}

func TestTransportError_Error(t *testing.T) {
	err := NewTransportError("assign RPC failed", ErrDeviceUnreachable).
		WithTaskID("task_004").
		WithDeviceID("android-7")

	want := "transport error [task=task_004, device=android-7]: assign RPC failed: device unreachable"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransportError_WithRetryable(t *testing.T) {
	err := NewTransportError("permanent protocol mismatch", nil).WithRetryable(false)
	if err.IsRetryable() {
		t.Error("IsRetryable() = true after WithRetryable(false)")
	}
}

// -----------------------------------------------------------------------------
// NotFoundError Tests
// -----------------------------------------------------------------------------

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("task", "task_001")

	if err.ResourceType != "task" {
		t.Errorf("ResourceType = %q, want %q", err.ResourceType, "task")
	}
	if err.ResourceID != "task_001" {
		t.Errorf("ResourceID = %q, want %q", err.ResourceID, "task_001")
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
}

func TestNotFoundError_Error(t *testing.T) {
	err := NewNotFoundError("task", "task_001")
	want := "task 'task_001' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withCause := NewNotFoundError("line", "line_042").WithCause(ErrOperationFailed)
	want = "line 'line_042' not found: operation failed"
	if got := withCause.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNotFoundError_Is(t *testing.T) {
	taskErr := NewNotFoundError("task", "task_001")
	if !Is(taskErr, &NotFoundError{}) {
		t.Error("Is(NotFoundError{}) = false, want true")
	}
	if !Is(taskErr, ErrTaskNotFound) {
		t.Error("task NotFoundError should match ErrTaskNotFound")
	}
	if Is(taskErr, ErrLineNotFound) {
		t.Error("task NotFoundError should not match ErrLineNotFound")
	}

	lineErr := NewNotFoundError("line", "line_001")
	if !Is(lineErr, ErrLineNotFound) {
		t.Error("line NotFoundError should match ErrLineNotFound")
	}

	deviceErr := NewNotFoundError("device", "d-1")
	if !Is(deviceErr, ErrDeviceNotFound) {
		t.Error("device NotFoundError should match ErrDeviceNotFound")
	}
}

// -----------------------------------------------------------------------------
// AlreadyExistsError Tests
// -----------------------------------------------------------------------------

func TestNewAlreadyExistsError(t *testing.T) {
	err := NewAlreadyExistsError("task", "task_001")

	want := "task 'task_001' already exists"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, &AlreadyExistsError{}) {
		t.Error("Is(AlreadyExistsError{}) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// ValidationError Tests
// -----------------------------------------------------------------------------

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("task ID cannot be empty")

	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "basic error",
			err:  NewValidationError("bad input"),
			want: "validation error: bad input",
		},
		{
			name: "with field and value",
			err:  NewValidationError("unknown device type").WithField("device_type").WithValue("VAX"),
			want: "validation error [field=device_type, value=VAX]: unknown device type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Is(t *testing.T) {
	err := NewValidationError("bad input")

	if !Is(err, &ValidationError{}) {
		t.Error("Is(ValidationError{}) = false, want true")
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("Is(ErrInvalidInput) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// TimeoutError Tests
// -----------------------------------------------------------------------------

func TestNewTimeoutError(t *testing.T) {
	err := NewTimeoutError("waiting for task execution", 30*time.Second)

	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}

	want := "timeout error: waiting for task execution (timeout: 30s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTimeoutError_Is(t *testing.T) {
	err := NewTimeoutError("op", time.Second)

	if !Is(err, &TimeoutError{}) {
		t.Error("Is(TimeoutError{}) = false, want true")
	}
	if !Is(err, ErrTimeout) {
		t.Error("Is(ErrTimeout) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// CancelledError Tests
// -----------------------------------------------------------------------------

func TestNewCancelledError(t *testing.T) {
	err := NewCancelledError("constellation execution")

	if err.Severity() != SeverityInfo {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityInfo)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}

	want := "cancelled: constellation execution"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCancelledError_WithReason(t *testing.T) {
	err := NewCancelledError("task task_005").WithReason("user request")
	want := "cancelled: task task_005 (reason: user request)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCancelledError_Is(t *testing.T) {
	err := NewCancelledError("op")

	if !Is(err, &CancelledError{}) {
		t.Error("Is(CancelledError{}) = false, want true")
	}
	if !Is(err, ErrCancelled) {
		t.Error("Is(ErrCancelled) = false, want true")
	}
	if Is(err, ErrTimeout) {
		t.Error("Is(ErrTimeout) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// Classification Helper Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"plain error", errors.New("some error"), false},
		{"timeout error", NewTimeoutError("op", time.Second), true},
		{"transport error", NewTransportError("rpc failed", nil), true},
		{"transport marked permanent", NewTransportError("rpc failed", nil).WithRetryable(false), false},
		{"validation error", NewValidationError("bad"), false},
		{"cancelled error", NewCancelledError("op"), false},
		{"wrapped ErrTimeout", fmt.Errorf("outer: %w", ErrTimeout), true},
		{"wrapped ErrDeviceUnreachable", fmt.Errorf("outer: %w", ErrDeviceUnreachable), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"plain error", errors.New("internal"), false},
		{"not found", NewNotFoundError("task", "t1"), true},
		{"validation", NewValidationError("bad"), true},
		{"cancelled", NewCancelledError("op"), true},
		{"invariant is internal", NewInvariantError("broken", nil), false},
		{"state error", NewStateError("bad state", nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil error", nil, SeverityDebug},
		{"plain error", errors.New("x"), SeverityError},
		{"invariant error", NewInvariantError("x", nil), SeverityCritical},
		{"cancelled error", NewCancelledError("x"), SeverityInfo},
		{"validation error", NewValidationError("x"), SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDomainError(t *testing.T) {
	if !IsDomainError(NewInvariantError("x", nil)) {
		t.Error("InvariantError should be a domain error")
	}
	if !IsDomainError(NewStateError("x", nil)) {
		t.Error("StateError should be a domain error")
	}
	if !IsDomainError(NewAssignmentError("x", nil)) {
		t.Error("AssignmentError should be a domain error")
	}
	if !IsDomainError(NewTransportError("x", nil)) {
		t.Error("TransportError should be a domain error")
	}
	if IsDomainError(NewNotFoundError("task", "t1")) {
		t.Error("NotFoundError should not be a domain error")
	}
	if IsDomainError(nil) {
		t.Error("nil should not be a domain error")
	}
}

func TestIsSemanticError(t *testing.T) {
	if !IsSemanticError(NewNotFoundError("task", "t1")) {
		t.Error("NotFoundError should be a semantic error")
	}
	if !IsSemanticError(NewAlreadyExistsError("task", "t1")) {
		t.Error("AlreadyExistsError should be a semantic error")
	}
	if !IsSemanticError(NewCancelledError("op")) {
		t.Error("CancelledError should be a semantic error")
	}
	if IsSemanticError(NewInvariantError("x", nil)) {
		t.Error("InvariantError should not be a semantic error")
	}
}

// -----------------------------------------------------------------------------
// Wrap Tests
// -----------------------------------------------------------------------------

func TestWrap(t *testing.T) {
	base := ErrTaskNotFound
	wrapped := Wrap(base, "loading constellation")

	want := "loading constellation: task not found"
	if got := wrapped.Error(); got != want {
		t.Errorf("Wrap() = %q, want %q", got, want)
	}
	if !Is(wrapped, ErrTaskNotFound) {
		t.Error("wrapped error should match ErrTaskNotFound")
	}

	if Wrap(nil, "anything") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapf(t *testing.T) {
	base := ErrDeviceUnreachable
	wrapped := Wrapf(base, "assigning task %s", "task_007")

	want := "assigning task task_007: device unreachable"
	if got := wrapped.Error(); got != want {
		t.Errorf("Wrapf() = %q, want %q", got, want)
	}
	if !Is(wrapped, ErrDeviceUnreachable) {
		t.Error("wrapped error should match ErrDeviceUnreachable")
	}

	if Wrapf(nil, "anything %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}
