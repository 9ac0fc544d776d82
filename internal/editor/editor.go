package editor

import (
	"sync"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/logging"
)

// DefaultMaxDepth bounds the undo and redo stacks. Once a stack is full the
// oldest entry is discarded to admit the newest.
const DefaultMaxDepth = 100

// Observer is notified after every successful apply, undo, or redo. The
// result is whatever the command's Apply returned; undo notifications carry
// a nil result.
type Observer func(command string, result any)

// Editor is the supported write path for a constellation once execution may
// be underway. Every mutation is a [Command]; after each apply the editor
// re-validates the full DAG and reverts the command if validation fails, so
// a constellation reachable through an editor is always structurally sound.
type Editor struct {
	mu        sync.Mutex
	c         *constellation.Constellation
	undo      []Command
	redo      []Command
	maxDepth  int
	observers []Observer
	logger    *logging.Logger
}

// Option configures an Editor.
type Option func(*Editor)

// WithMaxDepth bounds the undo/redo stacks. Values below one are ignored.
func WithMaxDepth(n int) Option {
	return func(e *Editor) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithLogger sets the editor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an editor for the given constellation.
func New(c *constellation.Constellation, opts ...Option) (*Editor, error) {
	if c == nil {
		return nil, errors.NewValidationError("constellation is required").
			WithField("constellation")
	}
	e := &Editor{
		c:        c,
		maxDepth: DefaultMaxDepth,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("editor")
	return e, nil
}

// Constellation returns the constellation this editor mutates.
func (e *Editor) Constellation() *constellation.Constellation {
	return e.c
}

// Observe registers an observer. Observers run outside the editor's lock, in
// registration order, on the goroutine that applied the command.
func (e *Editor) Observe(fn Observer) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// Apply runs a command against the constellation. On success the command is
// pushed onto the undo stack and the redo stack is cleared. If the command
// leaves the constellation structurally invalid it is reverted and an
// InvariantError is returned.
func (e *Editor) Apply(cmd Command) (any, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command is required").WithField("command")
	}

	e.mu.Lock()
	result, err := cmd.Apply(e.c)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if verr := e.checkInvariants(cmd); verr != nil {
		if rerr := cmd.Revert(e.c); rerr != nil {
			e.logger.Error("revert after failed validation",
				"command", cmd.Name(), "error", rerr)
		}
		e.mu.Unlock()
		return nil, verr
	}
	e.undo = pushBounded(e.undo, cmd, e.maxDepth)
	e.redo = nil
	obs := e.observerSnapshot()
	e.mu.Unlock()

	e.logger.Debug("command applied", "command", cmd.Name(), "constellation", e.c.ID())
	notify(obs, cmd.Name(), result)
	return result, nil
}

// ApplyNamed builds a registered command from a parameter record and applies it.
func (e *Editor) ApplyNamed(name string, params map[string]any) (any, error) {
	cmd, err := Build(name, params)
	if err != nil {
		return nil, err
	}
	return e.Apply(cmd)
}

// Undo reverts the most recently applied command and moves it onto the redo
// stack. Returns the undone command's name. A failed revert leaves both
// stacks unchanged.
func (e *Editor) Undo() (string, error) {
	e.mu.Lock()
	if len(e.undo) == 0 {
		e.mu.Unlock()
		return "", errors.NewStateError("nothing to undo", errors.ErrNothingToUndo).
			WithResource("constellation", e.c.ID()).WithOperation("undo")
	}
	cmd := e.undo[len(e.undo)-1]
	if err := cmd.Revert(e.c); err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = pushBounded(e.redo, cmd, e.maxDepth)
	obs := e.observerSnapshot()
	e.mu.Unlock()

	e.logger.Debug("command undone", "command", cmd.Name(), "constellation", e.c.ID())
	notify(obs, cmd.Name(), nil)
	return cmd.Name(), nil
}

// Redo re-applies the most recently undone command. If the constellation has
// diverged and the command no longer applies, the entry is dropped from the
// redo stack and the error returned.
func (e *Editor) Redo() (any, error) {
	e.mu.Lock()
	if len(e.redo) == 0 {
		e.mu.Unlock()
		return nil, errors.NewStateError("nothing to redo", errors.ErrNothingToRedo).
			WithResource("constellation", e.c.ID()).WithOperation("redo")
	}
	cmd := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]

	result, err := cmd.Apply(e.c)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if verr := e.checkInvariants(cmd); verr != nil {
		if rerr := cmd.Revert(e.c); rerr != nil {
			e.logger.Error("revert after failed validation",
				"command", cmd.Name(), "error", rerr)
		}
		e.mu.Unlock()
		return nil, verr
	}
	e.undo = pushBounded(e.undo, cmd, e.maxDepth)
	obs := e.observerSnapshot()
	e.mu.Unlock()

	e.logger.Debug("command redone", "command", cmd.Name(), "constellation", e.c.ID())
	notify(obs, cmd.Name(), result)
	return result, nil
}

// CanUndo reports whether the undo stack is non-empty.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (e *Editor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo) > 0
}

// UndoDepth returns the number of commands available to undo.
func (e *Editor) UndoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo)
}

// RedoDepth returns the number of commands available to redo.
func (e *Editor) RedoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo)
}

// checkInvariants runs the post-apply validation: structural DAG checks plus
// the rule that only commands marked as emptiers may leave the task set empty.
func (e *Editor) checkInvariants(cmd Command) error {
	if err := e.c.Validate(); err != nil {
		return errors.NewInvariantError("command left constellation invalid", err).
			WithCommand(cmd.Name()).WithConstellationID(e.c.ID())
	}
	if e.c.TaskCount() == 0 {
		if _, ok := cmd.(emptier); !ok {
			return errors.NewInvariantError("command left constellation empty", errors.ErrConstellationInvalid).
				WithCommand(cmd.Name()).WithConstellationID(e.c.ID())
		}
	}
	return nil
}

// emptier marks commands permitted to leave the task set empty.
type emptier interface {
	emptiesConstellation()
}

func (e *Editor) observerSnapshot() []Observer {
	return append([]Observer(nil), e.observers...)
}

func notify(obs []Observer, command string, result any) {
	for _, fn := range obs {
		fn(command, result)
	}
}

// pushBounded appends cmd, discarding the oldest entry once the stack is full.
func pushBounded(stack []Command, cmd Command, depth int) []Command {
	if len(stack) >= depth {
		copy(stack, stack[1:])
		stack[len(stack)-1] = cmd
		return stack
	}
	return append(stack, cmd)
}
