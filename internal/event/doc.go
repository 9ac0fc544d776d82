// Package event provides an asynchronous pub-sub event bus for decoupled
// inter-component communication in Starweaver.
//
// This package enables loose coupling between the Orchestrator, the planner
// bridge, the modification synchronizer, and observers by allowing them to
// communicate through events rather than direct method calls. Components can
// publish events without knowing who will receive them, and subscribe to
// events without knowing who will produce them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType(), SourceID() and Timestamp()
//   - [Bus]: Asynchronous pub-sub event dispatcher with per-subscriber delivery goroutines
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// The package defines two categories of events:
//
// Constellation Lifecycle:
//   - [ConstellationStartedEvent]: Emitted when execution of a constellation begins
//   - [ConstellationCompletedEvent]: Emitted when every task reached a terminal status
//   - [ConstellationFailedEvent]: Emitted when execution ends in failure
//   - [ConstellationCancelledEvent]: Emitted when execution stops on request
//   - [ConstellationModifiedEvent]: Emitted after an editor command mutated the graph
//
// Task Lifecycle:
//   - [TaskReadyEvent]: Emitted when a task's dependencies are all satisfied
//   - [TaskStartedEvent]: Emitted when a task transitions to RUNNING
//   - [TaskCompletedEvent]: Emitted when a task finishes successfully
//   - [TaskFailedEvent]: Emitted when a task fails
//   - [TaskCancelledEvent]: Emitted when a task is cancelled
//
// # Delivery Semantics
//
// [Bus.Publish] never runs handlers on the publisher's goroutine. Each
// subscription owns a queue and a delivery goroutine; events from a single
// publishing goroutine reach each subscriber in publish order, while ordering
// between subscribers is not guaranteed. A panicking handler is recovered and
// logged without affecting other subscribers. Handlers may publish further
// events; those are queued, never dispatched recursively.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	// Subscribe to specific event types
//	id, err := bus.Subscribe("task.completed", func(e event.Event) {
//	    completed := e.(event.TaskCompletedEvent)
//	    logger.Info("task finished", "task_id", completed.TaskID)
//	})
//
//	// Subscribe to a category via glob pattern
//	bus.Subscribe("constellation.*", handleConstellationEvents)
//
//	// Subscribe to all events (useful for logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    logger.Debug("event", "type", string(e.EventType()))
//	})
//
//	// Publish events
//	bus.Publish(event.NewTaskStartedEvent("constellation_a1b2c3d4_20260515_io1200", "task_001", "device-07"))
//
//	// Wait for queued deliveries, e.g. before asserting in tests
//	bus.Drain()
//
//	// Unsubscribe when done
//	bus.Unsubscribe(id)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - constellation.started, constellation.completed, constellation.failed,
//     constellation.cancelled, constellation.modified
//   - task.ready, task.started, task.completed, task.failed, task.cancelled
package event
