package planner

import (
	"context"
	"sync"

	"github.com/starweaver/starweaver/internal/constellation"
)

// EditRequest is one graph mutation the agent wants applied: a registered
// editor command name and its parameter record, exactly as the editor's
// ApplyNamed expects them.
type EditRequest struct {
	Command string
	Params  map[string]any
}

// Agent is the planning side of the bridge contract. OnTaskSettled is called
// once per task that reaches COMPLETED or FAILED, with a snapshot of the
// graph as it stood at that moment. The returned edits are applied in order
// through the editor; returning an empty list means the plan stands.
//
// The snapshot is a detached copy. Mutating it has no effect on the run;
// all changes go through the returned edits.
type Agent interface {
	OnTaskSettled(ctx context.Context, snapshot *constellation.Document, taskID string, success bool) ([]EditRequest, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, snapshot *constellation.Document, taskID string, success bool) ([]EditRequest, error)

// OnTaskSettled calls the function.
func (f AgentFunc) OnTaskSettled(ctx context.Context, snapshot *constellation.Document, taskID string, success bool) ([]EditRequest, error) {
	return f(ctx, snapshot, taskID, success)
}

// -----------------------------------------------------------------------------
// Scripted agent
// -----------------------------------------------------------------------------

// Settlement records one OnTaskSettled call.
type Settlement struct {
	TaskID  string
	Success bool
}

// ScriptedAgent is an Agent with canned responses keyed by task ID. Tasks
// without a script settle with no edits. It records every settlement it is
// consulted about, in order.
type ScriptedAgent struct {
	mu    sync.Mutex
	edits map[string][]EditRequest
	errs  map[string]error
	seen  []Settlement
}

// NewScriptedAgent creates an empty ScriptedAgent.
func NewScriptedAgent() *ScriptedAgent {
	return &ScriptedAgent{
		edits: make(map[string][]EditRequest),
		errs:  make(map[string]error),
	}
}

// Script sets the edits returned when the given task settles.
func (a *ScriptedAgent) Script(taskID string, edits ...EditRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edits[taskID] = edits
}

// ScriptError makes the agent fail when the given task settles.
func (a *ScriptedAgent) ScriptError(taskID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[taskID] = err
}

// Settlements returns the calls seen so far, in order.
func (a *ScriptedAgent) Settlements() []Settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Settlement(nil), a.seen...)
}

// OnTaskSettled implements Agent.
func (a *ScriptedAgent) OnTaskSettled(_ context.Context, _ *constellation.Document, taskID string, success bool) ([]EditRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, Settlement{TaskID: taskID, Success: success})
	if err := a.errs[taskID]; err != nil {
		return nil, err
	}
	return append([]EditRequest(nil), a.edits[taskID]...), nil
}
