// Package event defines lifecycle events for decoupling Starweaver components.
// The orchestrator, planner bridge, and synchronizer communicate through these
// events without requiring direct dependencies.
package event

import "time"

// Type identifies a kind of event. Values follow the "category.action"
// convention, e.g. "task.completed".
type Type string

// The closed set of event types published during constellation execution.
const (
	TypeConstellationStarted   Type = "constellation.started"
	TypeConstellationCompleted Type = "constellation.completed"
	TypeConstellationFailed    Type = "constellation.failed"
	TypeConstellationCancelled Type = "constellation.cancelled"
	TypeConstellationModified  Type = "constellation.modified"

	TypeTaskReady     Type = "task.ready"
	TypeTaskStarted   Type = "task.started"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskFailed    Type = "task.failed"
	TypeTaskCancelled Type = "task.cancelled"
)

// Event is the interface that all events must implement.
// It provides the shared header: type, source, and timestamp.
type Event interface {
	// EventType returns the identifier for this event type.
	EventType() Type

	// SourceID identifies the constellation the event belongs to.
	SourceID() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType Type
	sourceID  string
	timestamp time.Time
}

func (e baseEvent) EventType() Type      { return e.eventType }
func (e baseEvent) SourceID() string     { return e.sourceID }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType Type, sourceID string) baseEvent {
	return baseEvent{
		eventType: eventType,
		sourceID:  sourceID,
		timestamp: time.Now().UTC(),
	}
}

// -----------------------------------------------------------------------------
// Constellation Lifecycle Events
// -----------------------------------------------------------------------------

// ConstellationStartedEvent is emitted when execution of a constellation begins.
type ConstellationStartedEvent struct {
	baseEvent
	ConstellationID string // Constellation entering execution
	Name            string // Human-readable constellation name
	TaskCount       int    // Number of tasks at execution start
}

// NewConstellationStartedEvent creates a ConstellationStartedEvent.
func NewConstellationStartedEvent(constellationID, name string, taskCount int) ConstellationStartedEvent {
	return ConstellationStartedEvent{
		baseEvent:       newBaseEvent(TypeConstellationStarted, constellationID),
		ConstellationID: constellationID,
		Name:            name,
		TaskCount:       taskCount,
	}
}

// ConstellationCompletedEvent is emitted when every task reached a terminal
// status and the failed/completed mix still counts as a successful run.
type ConstellationCompletedEvent struct {
	baseEvent
	ConstellationID string        // Constellation that finished
	State           string        // Final derived state (COMPLETED or PARTIALLY_FAILED)
	TaskCount       int           // Number of tasks at execution end
	Duration        time.Duration // Wall-clock execution time
}

// NewConstellationCompletedEvent creates a ConstellationCompletedEvent.
func NewConstellationCompletedEvent(constellationID, state string, taskCount int, duration time.Duration) ConstellationCompletedEvent {
	return ConstellationCompletedEvent{
		baseEvent:       newBaseEvent(TypeConstellationCompleted, constellationID),
		ConstellationID: constellationID,
		State:           state,
		TaskCount:       taskCount,
		Duration:        duration,
	}
}

// ConstellationFailedEvent is emitted when execution ends with every task
// failed or an unrecoverable orchestration error.
type ConstellationFailedEvent struct {
	baseEvent
	ConstellationID string // Constellation that failed
	Reason          string // Failure description
}

// NewConstellationFailedEvent creates a ConstellationFailedEvent.
func NewConstellationFailedEvent(constellationID, reason string) ConstellationFailedEvent {
	return ConstellationFailedEvent{
		baseEvent:       newBaseEvent(TypeConstellationFailed, constellationID),
		ConstellationID: constellationID,
		Reason:          reason,
	}
}

// ConstellationCancelledEvent is emitted when execution stops on request.
type ConstellationCancelledEvent struct {
	baseEvent
	ConstellationID string // Constellation that was cancelled
	Reason          string // Cancellation reason (e.g. "user request")
}

// NewConstellationCancelledEvent creates a ConstellationCancelledEvent.
func NewConstellationCancelledEvent(constellationID, reason string) ConstellationCancelledEvent {
	return ConstellationCancelledEvent{
		baseEvent:       newBaseEvent(TypeConstellationCancelled, constellationID),
		ConstellationID: constellationID,
		Reason:          reason,
	}
}

// ConstellationModifiedEvent is emitted after an editor command mutated the
// constellation. OnTaskID carries the task whose completion triggered the
// modification so the synchronizer can clear its pending entry; it is empty
// for edits made outside the completion flow.
type ConstellationModifiedEvent struct {
	baseEvent
	ConstellationID string // Constellation that was modified
	OnTaskID        string // Task whose completion prompted the edit, if any
	Command         string // Editor command name (e.g. "add_task")
}

// NewConstellationModifiedEvent creates a ConstellationModifiedEvent.
func NewConstellationModifiedEvent(constellationID, onTaskID, command string) ConstellationModifiedEvent {
	return ConstellationModifiedEvent{
		baseEvent:       newBaseEvent(TypeConstellationModified, constellationID),
		ConstellationID: constellationID,
		OnTaskID:        onTaskID,
		Command:         command,
	}
}

// -----------------------------------------------------------------------------
// Task Lifecycle Events
// -----------------------------------------------------------------------------

// TaskReadyEvent is emitted when a task's dependencies are all satisfied and
// it enters the ready set.
type TaskReadyEvent struct {
	baseEvent
	ConstellationID string // Owning constellation
	TaskID          string // Task that became ready
	Priority        int    // Scheduling priority (1=LOW .. 4=CRITICAL)
}

// NewTaskReadyEvent creates a TaskReadyEvent.
func NewTaskReadyEvent(constellationID, taskID string, priority int) TaskReadyEvent {
	return TaskReadyEvent{
		baseEvent:       newBaseEvent(TypeTaskReady, constellationID),
		ConstellationID: constellationID,
		TaskID:          taskID,
		Priority:        priority,
	}
}

// TaskStartedEvent is emitted when a task transitions to RUNNING.
type TaskStartedEvent struct {
	baseEvent
	ConstellationID string // Owning constellation
	TaskID          string // Task that started
	DeviceID        string // Device the task was assigned to
}

// NewTaskStartedEvent creates a TaskStartedEvent.
func NewTaskStartedEvent(constellationID, taskID, deviceID string) TaskStartedEvent {
	return TaskStartedEvent{
		baseEvent:       newBaseEvent(TypeTaskStarted, constellationID),
		ConstellationID: constellationID,
		TaskID:          taskID,
		DeviceID:        deviceID,
	}
}

// TaskCompletedEvent is emitted when a task finishes successfully. NewlyReady
// lists the dependents unblocked by this completion, in insertion order.
type TaskCompletedEvent struct {
	baseEvent
	ConstellationID string        // Owning constellation
	TaskID          string        // Task that completed
	DeviceID        string        // Device that executed the task
	Result          any           // Result value reported by the device
	Duration        time.Duration // Measured execution time
	NewlyReady      []string      // Dependents whose last gate just cleared
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(constellationID, taskID, deviceID string, result any, duration time.Duration, newlyReady []string) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent:       newBaseEvent(TypeTaskCompleted, constellationID),
		ConstellationID: constellationID,
		TaskID:          taskID,
		DeviceID:        deviceID,
		Result:          result,
		Duration:        duration,
		NewlyReady:      newlyReady,
	}
}

// TaskFailedEvent is emitted when a task fails with its retry budget spent.
// Attempts the orchestrator retries internally produce no event.
type TaskFailedEvent struct {
	baseEvent
	ConstellationID string // Owning constellation
	TaskID          string // Task that failed
	DeviceID        string // Device that executed the task (empty if never assigned)
	Error           string // Failure description
	Attempts        int    // Total attempts made, including the first
}

// NewTaskFailedEvent creates a TaskFailedEvent.
func NewTaskFailedEvent(constellationID, taskID, deviceID, errMsg string, attempts int) TaskFailedEvent {
	return TaskFailedEvent{
		baseEvent:       newBaseEvent(TypeTaskFailed, constellationID),
		ConstellationID: constellationID,
		TaskID:          taskID,
		DeviceID:        deviceID,
		Error:           errMsg,
		Attempts:        attempts,
	}
}

// TaskCancelledEvent is emitted when a task is cancelled before completion.
type TaskCancelledEvent struct {
	baseEvent
	ConstellationID string // Owning constellation
	TaskID          string // Task that was cancelled
	Reason          string // Cancellation reason
}

// NewTaskCancelledEvent creates a TaskCancelledEvent.
func NewTaskCancelledEvent(constellationID, taskID, reason string) TaskCancelledEvent {
	return TaskCancelledEvent{
		baseEvent:       newBaseEvent(TypeTaskCancelled, constellationID),
		ConstellationID: constellationID,
		TaskID:          taskID,
		Reason:          reason,
	}
}
