package orchestrator

import (
	"time"

	"github.com/starweaver/starweaver/internal/device"
	"github.com/starweaver/starweaver/internal/event"
	"github.com/starweaver/starweaver/internal/logging"
	"github.com/starweaver/starweaver/internal/plansync"
)

// Defaults for the scheduling loop's tunables.
const (
	// DefaultMaxParallel caps in-flight task executions per constellation.
	DefaultMaxParallel = 10

	// DefaultTaskTimeout bounds a single execution attempt when the task
	// itself does not carry a timeout.
	DefaultTaskTimeout = 1000 * time.Second

	// DefaultSyncTimeout bounds how long the loop waits for outstanding
	// planner edits before proceeding on a best-effort basis.
	DefaultSyncTimeout = 30 * time.Second
)

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithBus sets the event bus lifecycle events are published to. Without it
// the orchestrator creates its own.
func WithBus(bus *event.Bus) Option {
	return func(o *Orchestrator) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// WithSynchronizer wires the planner-edit gate into the loop. Without a
// synchronizer the orchestrator never waits on planner edits; wire one
// whenever a planning agent subscribes to completion events.
func WithSynchronizer(s *plansync.Synchronizer) Option {
	return func(o *Orchestrator) {
		o.sync = s
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxParallel caps concurrent in-flight tasks per constellation.
// Non-positive values keep the default.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithTaskTimeout sets the fallback per-attempt timeout for tasks that carry
// none. Non-positive values keep the default.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

// WithSyncTimeout bounds each wait on the planner-edit gate. Non-positive
// values keep the default.
func WithSyncTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.syncTimeout = d
		}
	}
}

// WithStrategy sets the automatic device assignment strategy. A nil strategy
// keeps the assigner's default.
func WithStrategy(s device.Strategy) Option {
	return func(o *Orchestrator) {
		o.strategy = s
	}
}

// WithPreferences seeds task-to-device preferences consulted by the
// assignment pass. Preferences are honored only while the preferred device is
// connected.
func WithPreferences(prefs map[string]string) Option {
	return func(o *Orchestrator) {
		if o.prefs == nil {
			o.prefs = make(map[string]string, len(prefs))
		}
		for taskID, deviceID := range prefs {
			o.prefs[taskID] = deviceID
		}
	}
}

// ExecOption adjusts a single Execute call.
type ExecOption func(*execConfig)

type execConfig struct {
	assignments map[string]string
}

// WithAssignments pins tasks to devices for this run before the automatic
// assignment pass fills the rest. Pins are written to the constellation and
// trusted as given.
func WithAssignments(assignments map[string]string) ExecOption {
	return func(cfg *execConfig) {
		if cfg.assignments == nil {
			cfg.assignments = make(map[string]string, len(assignments))
		}
		for taskID, deviceID := range assignments {
			cfg.assignments[taskID] = deviceID
		}
	}
}
