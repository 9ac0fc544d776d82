package planner

import (
	"context"
	"strings"
	"sync"

	"github.com/starweaver/starweaver/internal/editor"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/event"
	"github.com/starweaver/starweaver/internal/logging"
)

// Bridge feeds task settlements to a planning agent and lands the agent's
// edits on the constellation. It subscribes to task.completed and
// task.failed for one constellation, consults the agent with a graph
// snapshot, applies the returned edits through the editor, and acknowledges
// the settlement with constellation.modified whatever the agent did.
//
// Settlements arrive on the bus's delivery goroutine in publish order, so
// agent calls for one constellation never overlap.
type Bridge struct {
	agent  Agent
	ed     *editor.Editor
	bus    *event.Bus
	logger *logging.Logger

	mu      sync.Mutex
	started bool
	subID   string
	ctx     context.Context
	cancel  context.CancelFunc
	stats   Stats
}

// Stats is a point-in-time snapshot of bridge activity.
type Stats struct {
	// Settled counts the settlements the agent was consulted about.
	Settled int

	// Applied counts the edits the editor accepted.
	Applied int

	// Rejected counts the edits the editor refused.
	Rejected int

	// AgentErrors counts settlements where the agent itself failed.
	AgentErrors int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge's logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBridge creates a bridge between the agent and the editor's
// constellation. Events are consumed from and acknowledgements published to
// the given bus, which must be the one the orchestrator publishes on.
func NewBridge(agent Agent, ed *editor.Editor, bus *event.Bus, opts ...Option) (*Bridge, error) {
	if agent == nil {
		return nil, errors.NewValidationError("planning agent is required").
			WithField("agent")
	}
	if ed == nil {
		return nil, errors.NewValidationError("editor is required").
			WithField("editor")
	}
	if bus == nil {
		return nil, errors.NewValidationError("event bus is required").
			WithField("bus")
	}

	b := &Bridge{
		agent:  agent,
		ed:     ed,
		bus:    bus,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("planner").
		WithConstellation(ed.Constellation().ID())
	return b, nil
}

// Start subscribes to settlement events. The context bounds every agent
// call; Stop cancels it.
func (b *Bridge) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.NewStateError("bridge is already started", errors.ErrOperationFailed).
			WithResource("constellation", b.ed.Constellation().ID()).
			WithOperation("start")
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	subID, err := b.bus.SubscribeTypes(b.onSettled, event.TypeTaskCompleted, event.TypeTaskFailed)
	if err != nil {
		b.cancel()
		return err
	}
	b.subID = subID
	b.started = true
	return nil
}

// Stop unsubscribes and cancels in-flight agent calls. It is idempotent and
// safe to call before Start.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.bus.Unsubscribe(b.subID)
	b.cancel()
	b.started = false
}

// Running reports whether the bridge is started.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Stats returns a snapshot of bridge activity.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// onSettled handles one settlement event end to end. The acknowledgement at
// the bottom is unconditional: the orchestrator's synchronizer waits for a
// modified event naming the settled task, agent trouble included.
func (b *Bridge) onSettled(e event.Event) {
	var taskID string
	var success bool
	switch ev := e.(type) {
	case event.TaskCompletedEvent:
		taskID, success = ev.TaskID, true
	case event.TaskFailedEvent:
		taskID, success = ev.TaskID, false
	default:
		return
	}

	c := b.ed.Constellation()
	if e.SourceID() != c.ID() {
		return
	}

	// Start assigns the context under the same lock before the subscription
	// goes live, so a delivery never observes it unset. After Stop it is the
	// cancelled context, which is what in-flight agent calls should see.
	b.mu.Lock()
	ctx := b.ctx
	b.stats.Settled++
	b.mu.Unlock()

	edits, err := b.agent.OnTaskSettled(ctx, c.ToDocument(), taskID, success)
	if err != nil {
		b.logger.Warn("planning agent failed",
			"task_id", taskID, "success", success, "error", err)
		b.mu.Lock()
		b.stats.AgentErrors++
		b.mu.Unlock()
		b.bus.Publish(event.NewConstellationModifiedEvent(c.ID(), taskID, "noop"))
		return
	}

	applied := make([]string, 0, len(edits))
	for _, edit := range edits {
		if _, err := b.ed.ApplyNamed(edit.Command, edit.Params); err != nil {
			b.logger.Warn("planner edit rejected",
				"task_id", taskID, "command", edit.Command, "error", err)
			b.mu.Lock()
			b.stats.Rejected++
			b.mu.Unlock()
			continue
		}
		applied = append(applied, edit.Command)
	}

	command := "noop"
	if len(applied) > 0 {
		command = strings.Join(applied, ",")
		b.mu.Lock()
		b.stats.Applied += len(applied)
		b.mu.Unlock()
		b.logger.Info("plan updated",
			"task_id", taskID, "commands", command)
	}
	b.bus.Publish(event.NewConstellationModifiedEvent(c.ID(), taskID, command))
}
