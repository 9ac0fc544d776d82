package constellation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-set/v2"

	"github.com/starweaver/starweaver/internal/errors"
)

// Status represents the execution state of a task.
type Status string

const (
	// StatusPending indicates the task has not started yet.
	StatusPending Status = "PENDING"

	// StatusRunning indicates the task is executing on a device.
	StatusRunning Status = "RUNNING"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed indicates the task failed with no retries left.
	StatusFailed Status = "FAILED"

	// StatusCancelled indicates the task was cancelled before completion.
	StatusCancelled Status = "CANCELLED"

	// StatusWaitingDependency is a presentation alias for a pending task whose
	// dependency set is non-empty. It is never stored; Task.EffectiveStatus
	// and the serialized form surface it.
	StatusWaitingDependency Status = "WAITING_DEPENDENCY"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus converts a string to a Status, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusRunning:
		return StatusRunning, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusWaitingDependency:
		// Stored as pending; the alias is reconstructed from the dependency set.
		return StatusPending, nil
	default:
		return "", errors.NewValidationError("unknown task status").
			WithField("status").WithValue(s)
	}
}

// Priority controls scheduling order within the ready set.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String returns the canonical name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// Valid reports whether the priority is one of the defined levels.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority accepts a priority as its canonical name (case-insensitive),
// its integer form (1..4), or a Priority value.
func ParsePriority(v any) (Priority, error) {
	switch value := v.(type) {
	case Priority:
		if value.Valid() {
			return value, nil
		}
	case int:
		p := Priority(value)
		if p.Valid() {
			return p, nil
		}
	case int64:
		p := Priority(value)
		if p.Valid() {
			return p, nil
		}
	case float64:
		p := Priority(int(value))
		if float64(int(value)) == value && p.Valid() {
			return p, nil
		}
	case string:
		switch strings.ToUpper(strings.TrimSpace(value)) {
		case "LOW":
			return PriorityLow, nil
		case "MEDIUM":
			return PriorityMedium, nil
		case "HIGH":
			return PriorityHigh, nil
		case "CRITICAL":
			return PriorityCritical, nil
		}
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			p := Priority(n)
			if p.Valid() {
				return p, nil
			}
		}
	}
	return 0, errors.NewValidationError("unknown priority").
		WithField("priority").WithValue(v)
}

// DeviceType classifies the kind of device a task targets.
type DeviceType string

// The closed set of device types.
const (
	DeviceWindows DeviceType = "WINDOWS"
	DeviceMacOS   DeviceType = "MACOS"
	DeviceLinux   DeviceType = "LINUX"
	DeviceAndroid DeviceType = "ANDROID"
	DeviceIOS     DeviceType = "IOS"
	DeviceWeb     DeviceType = "WEB"
	DeviceAPI     DeviceType = "API"
)

// String returns the string representation of the device type.
func (d DeviceType) String() string {
	return string(d)
}

// ParseDeviceType converts a string to a DeviceType, case-insensitively.
// An empty string is valid and means "no preference".
func ParseDeviceType(s string) (DeviceType, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return "", nil
	}
	switch DeviceType(trimmed) {
	case DeviceWindows, DeviceMacOS, DeviceLinux, DeviceAndroid, DeviceIOS, DeviceWeb, DeviceAPI:
		return DeviceType(trimmed), nil
	default:
		return "", errors.NewValidationError("unknown device type").
			WithField("device_type").WithValue(s)
	}
}

// Task is a single unit of work in a constellation. The constellation owns
// every task: the dependency and dependent sets are denormalized views of the
// line set and are rebuilt by the constellation, never by callers.
type Task struct {
	// ID uniquely identifies the task within its constellation.
	ID string

	// Name is a short human-readable label.
	Name string

	// Description explains the work in natural language; it is what gets
	// handed to the device.
	Description string

	// Tips are optional hints forwarded to the device alongside the description.
	Tips []string

	// TargetDeviceID pins the task to a specific device. Empty means the
	// assignment pass picks one.
	TargetDeviceID string

	// DeviceType restricts which devices are eligible. Empty means any.
	DeviceType DeviceType

	// Priority orders the task within the ready set.
	Priority Priority

	// Status is the current execution state.
	Status Status

	// Result holds the device-reported value after a successful run.
	Result any

	// Error describes the failure after an unsuccessful run.
	Error string

	// Timeout bounds a single execution attempt. Zero means the
	// orchestrator's default applies.
	Timeout time.Duration

	// RetryCount is the retry budget; CurrentRetry counts attempts used.
	RetryCount   int
	CurrentRetry int

	// TaskData is a free-form payload passed to the device.
	TaskData map[string]any

	// ExpectedOutputType optionally tags what kind of result the planner expects.
	ExpectedOutputType string

	// CreatedAt and UpdatedAt are maintained by the constellation; UpdatedAt
	// refreshes on any mutation.
	CreatedAt time.Time
	UpdatedAt time.Time

	// ExecutionStart and ExecutionEnd stamp the most recent attempt.
	ExecutionStart *time.Time
	ExecutionEnd   *time.Time

	// deps holds the IDs of prerequisite tasks with at least one unsatisfied
	// incoming line; dependents holds every task this one is a prerequisite
	// for. Both are owned by the constellation.
	deps       *set.Set[string]
	dependents *set.Set[string]
}

// NewTask creates a pending task with the given ID, name, and description.
func NewTask(id, name, description string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          id,
		Name:        name,
		Description: description,
		Priority:    PriorityMedium,
		Status:      StatusPending,
		TaskData:    make(map[string]any),
		CreatedAt:   now,
		UpdatedAt:   now,
		deps:        set.New[string](0),
		dependents:  set.New[string](0),
	}
}

// EffectiveStatus returns the status with the WAITING_DEPENDENCY alias applied:
// a pending task with a non-empty dependency set reports as waiting.
func (t *Task) EffectiveStatus() Status {
	if t.Status == StatusPending && t.deps != nil && t.deps.Size() > 0 {
		return StatusWaitingDependency
	}
	return t.Status
}

// IsTerminal returns true if the task reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Dependencies returns the IDs of prerequisite tasks that still gate this
// one, in sorted order.
func (t *Task) Dependencies() []string {
	if t.deps == nil {
		return nil
	}
	ids := t.deps.Slice()
	sort.Strings(ids)
	return ids
}

// Dependents returns the IDs of tasks this one is a prerequisite for, in
// sorted order.
func (t *Task) Dependents() []string {
	if t.dependents == nil {
		return nil
	}
	ids := t.dependents.Slice()
	sort.Strings(ids)
	return ids
}

// HasDependencies reports whether any prerequisite still gates this task.
func (t *Task) HasDependencies() bool {
	return t.deps != nil && t.deps.Size() > 0
}

// CanRetry reports whether the retry budget allows another attempt.
func (t *Task) CanRetry() bool {
	return t.CurrentRetry < t.RetryCount
}

// ExecutionDuration returns the measured duration of the most recent attempt,
// or zero if the task has not both started and ended.
func (t *Task) ExecutionDuration() time.Duration {
	if t.ExecutionStart == nil || t.ExecutionEnd == nil {
		return 0
	}
	return t.ExecutionEnd.Sub(*t.ExecutionStart)
}

// Clone returns a deep copy of the task. The constellation hands out clones
// so callers can never mutate owned state.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Tips != nil {
		cp.Tips = append([]string(nil), t.Tips...)
	}
	if t.TaskData != nil {
		cp.TaskData = make(map[string]any, len(t.TaskData))
		for k, v := range t.TaskData {
			cp.TaskData[k] = v
		}
	}
	if t.ExecutionStart != nil {
		start := *t.ExecutionStart
		cp.ExecutionStart = &start
	}
	if t.ExecutionEnd != nil {
		end := *t.ExecutionEnd
		cp.ExecutionEnd = &end
	}
	if t.deps != nil {
		cp.deps = set.From(t.deps.Slice())
	} else {
		cp.deps = set.New[string](0)
	}
	if t.dependents != nil {
		cp.dependents = set.From(t.dependents.Slice())
	} else {
		cp.dependents = set.New[string](0)
	}
	return &cp
}

// touch refreshes the task's UpdatedAt stamp.
func (t *Task) touch() {
	t.UpdatedAt = time.Now().UTC()
}

// ensureSets initializes the denormalized sets if absent. Tasks built by
// callers (struct literals, decoded documents) may arrive without them.
func (t *Task) ensureSets() {
	if t.deps == nil {
		t.deps = newStringSet()
	}
	if t.dependents == nil {
		t.dependents = newStringSet()
	}
}

func newStringSet() *set.Set[string] {
	return set.New[string](0)
}
