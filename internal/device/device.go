package device

import (
	"context"
	"time"

	"github.com/starweaver/starweaver/internal/constellation"
)

// Info describes a connected device as reported by the collaborator.
type Info struct {
	// ID uniquely identifies the device within the fleet.
	ID string

	// Type classifies the device (ANDROID, LINUX, ...).
	Type constellation.DeviceType

	// Capabilities lists free-form capability tags (e.g. "camera", "gpu").
	Capabilities []string

	// Metadata carries collaborator-specific annotations.
	Metadata map[string]string
}

// Clone returns a deep copy of the device info.
func (i Info) Clone() Info {
	out := i
	if i.Capabilities != nil {
		out.Capabilities = append([]string(nil), i.Capabilities...)
	}
	if i.Metadata != nil {
		out.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// HasCapability reports whether the device lists the given capability tag.
func (i Info) HasCapability(tag string) bool {
	for _, c := range i.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// ExecutionResult is the device-reported outcome of a single task attempt.
// Success distinguishes task-level failure from transport-level failure:
// a device that ran the work and reported an error returns a result with
// Success false, while a device that could not be reached at all returns
// no result and an error from AssignTask.
type ExecutionResult struct {
	TaskID   string
	DeviceID string

	// Success is true if the device reports the work as done.
	Success bool

	// Result holds the reported value on success.
	Result any

	// Error describes the failure on an unsuccessful attempt.
	Error string

	// StartedAt and EndedAt stamp the attempt on the orchestrator clock.
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration returns the wall-clock time the attempt took.
func (r *ExecutionResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Collaborator is the transport boundary between the orchestrator and a
// fleet of devices. Implementations must be safe for concurrent use: the
// orchestrator issues AssignTask calls from parallel goroutines and may call
// CancelTask from another goroutine while an assignment is in flight.
type Collaborator interface {
	// ListConnected returns the devices currently reachable, in a stable
	// order. An empty slice means no device can accept work.
	ListConnected() []Info

	// GetInfo returns the info for a connected device. Unknown or
	// disconnected IDs yield an error matching errors.ErrDeviceNotFound.
	GetInfo(id string) (Info, error)

	// AssignTask sends the task to the device and blocks until the device
	// reports an outcome, the timeout elapses, the context is cancelled, or
	// CancelTask aborts it. Task-level failures come back as a result with
	// Success false; only transport-level problems return an error.
	AssignTask(ctx context.Context, taskID, deviceID, description string, payload map[string]any, timeout time.Duration) (*ExecutionResult, error)

	// CancelTask aborts an in-flight assignment. Unknown task IDs are a
	// no-op; the call is idempotent.
	CancelTask(taskID string) error
}
