package constellation

import (
	"strings"
	"sync"
	"time"

	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/ids"
)

// State is the lifecycle state of a constellation, derived from its tasks.
type State string

const (
	// StateCreated means the constellation holds no tasks yet.
	StateCreated State = "CREATED"

	// StateReady means every task is pending and none has run.
	StateReady State = "READY"

	// StateExecuting means at least one task is running or some tasks have
	// settled while others remain, or execution has been formally started.
	StateExecuting State = "EXECUTING"

	// StateCompleted means every executed task completed successfully.
	StateCompleted State = "COMPLETED"

	// StateFailed means every executed task failed.
	StateFailed State = "FAILED"

	// StatePartiallyFailed means executed tasks are a mix of completed and failed.
	StatePartiallyFailed State = "PARTIALLY_FAILED"

	// StateCancelled means execution was cancelled; cancellation dominates
	// any completed/failed mix.
	StateCancelled State = "CANCELLED"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true once the constellation has finished executing.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StatePartiallyFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ParseState converts a string to a State, case-insensitively.
func ParseState(s string) (State, error) {
	switch State(strings.ToUpper(strings.TrimSpace(s))) {
	case StateCreated:
		return StateCreated, nil
	case StateReady:
		return StateReady, nil
	case StateExecuting:
		return StateExecuting, nil
	case StateCompleted:
		return StateCompleted, nil
	case StateFailed:
		return StateFailed, nil
	case StatePartiallyFailed:
		return StatePartiallyFailed, nil
	case StateCancelled:
		return StateCancelled, nil
	default:
		return "", errors.NewValidationError("unknown constellation state").
			WithField("state").WithValue(s)
	}
}

// Constellation is a DAG of tasks joined by dependency lines. It exclusively
// owns its tasks and lines: callers receive clones, and every mutation flows
// through a method that maintains the denormalized dependency sets, the
// updated-at stamps, and the derived state. All methods are safe for
// concurrent use via a single internal mutex.
type Constellation struct {
	mu sync.RWMutex

	id       string
	name     string
	state    State
	metadata map[string]any

	tasks     map[string]*Task
	lines     map[string]*Line
	taskOrder []string // insertion order, drives readiness tie-breaking
	lineOrder []string

	createdAt time.Time
	updatedAt time.Time
	execStart *time.Time
	execEnd   *time.Time
	executing bool

	alloc ids.Allocator
}

// Option configures a Constellation at construction.
type Option func(*Constellation)

// WithAllocator injects the ID allocator. Tests use private managers so
// parallel tests never share counters.
func WithAllocator(a ids.Allocator) Option {
	return func(c *Constellation) {
		if a != nil {
			c.alloc = a
		}
	}
}

// WithID uses a caller-supplied constellation ID instead of allocating one.
func WithID(id string) Option {
	return func(c *Constellation) {
		if id != "" {
			c.id = id
		}
	}
}

// New creates an empty constellation with the given name.
func New(name string, opts ...Option) *Constellation {
	now := time.Now().UTC()
	c := &Constellation{
		name:      name,
		state:     StateCreated,
		metadata:  make(map[string]any),
		tasks:     make(map[string]*Task),
		lines:     make(map[string]*Line),
		createdAt: now,
		updatedAt: now,
		alloc:     ids.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = c.alloc.NewConstellationID()
	}
	return c
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// ID returns the constellation's identifier.
func (c *Constellation) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Name returns the constellation's human-readable name.
func (c *Constellation) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Rename sets the constellation's name.
func (c *Constellation) Rename(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.touchLocked()
}

// State returns the current derived state.
func (c *Constellation) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Metadata returns a copy of the constellation's metadata map.
func (c *Constellation) Metadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata stores a metadata entry.
func (c *Constellation) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
	c.touchLocked()
}

// CreatedAt returns the creation timestamp.
func (c *Constellation) CreatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.createdAt
}

// UpdatedAt returns the last-mutation timestamp.
func (c *Constellation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// ExecutionStartTime returns when StartExecution was called, if it was.
func (c *Constellation) ExecutionStartTime() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTime(c.execStart)
}

// ExecutionEndTime returns when CompleteExecution was called, if it was.
func (c *Constellation) ExecutionEndTime() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTime(c.execEnd)
}

// ExecutionDuration returns the wall-clock execution time, or zero if the
// constellation has not both started and finished.
func (c *Constellation) ExecutionDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.execStart == nil || c.execEnd == nil {
		return 0
	}
	return c.execEnd.Sub(*c.execStart)
}

// TaskCount returns the number of tasks.
func (c *Constellation) TaskCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

// LineCount returns the number of dependency lines.
func (c *Constellation) LineCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines)
}

// HasTask reports whether a task with the given ID exists.
func (c *Constellation) HasTask(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tasks[id]
	return ok
}

// Task returns a clone of the task with the given ID.
func (c *Constellation) Task(id string) (*Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", id)
	}
	return t.Clone(), nil
}

// Tasks returns clones of all tasks in insertion order.
func (c *Constellation) Tasks() []*Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Task, 0, len(c.taskOrder))
	for _, id := range c.taskOrder {
		out = append(out, c.tasks[id].Clone())
	}
	return out
}

// TaskIDs returns all task IDs in insertion order.
func (c *Constellation) TaskIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.taskOrder...)
}

// Line returns a clone of the line with the given ID.
func (c *Constellation) Line(id string) (*Line, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lines[id]
	if !ok {
		return nil, errors.NewNotFoundError("line", id)
	}
	return l.Clone(), nil
}

// Lines returns clones of all lines in insertion order.
func (c *Constellation) Lines() []*Line {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Line, 0, len(c.lineOrder))
	for _, id := range c.lineOrder {
		out = append(out, c.lines[id].Clone())
	}
	return out
}

// LineIDs returns all line IDs in insertion order.
func (c *Constellation) LineIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.lineOrder...)
}

// NextTaskID mints a fresh task ID in this constellation's namespace.
func (c *Constellation) NextTaskID() string {
	return c.alloc.NextTaskID(c.ID())
}

// NextLineID mints a fresh line ID in this constellation's namespace.
func (c *Constellation) NextLineID() string {
	return c.alloc.NextLineID(c.ID())
}

// StatusCounts returns the number of tasks per status.
func (c *Constellation) StatusCounts() map[Status]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[Status]int)
	for _, t := range c.tasks {
		counts[t.Status]++
	}
	return counts
}

// AllTerminal reports whether every task reached a terminal status. An empty
// constellation counts as terminal.
func (c *Constellation) AllTerminal() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tasks {
		if !t.IsTerminal() {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Task mutations
// -----------------------------------------------------------------------------

// AddTask adds a task to the constellation. An empty task ID gets a minted
// one; a supplied ID is registered with the allocator so sequential minting
// never collides with it. Fails with AlreadyExists if the ID is taken.
func (c *Constellation) AddTask(t *Task) error {
	if t == nil {
		return errors.NewValidationError("task must not be nil").WithField("task")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t.ID == "" {
		t.ID = c.alloc.NextTaskID(c.id)
	} else {
		if _, exists := c.tasks[t.ID]; exists {
			return errors.NewAlreadyExistsError("task", t.ID)
		}
		// The allocator may have seen this ID in a previous life of the
		// constellation (load after remove); that is fine, it only needs to
		// know the ID is spoken for.
		_ = c.alloc.Register(c.id, t.ID)
	}

	t.ensureSets()
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == 0 {
		t.Priority = PriorityMedium
	}
	if t.TaskData == nil {
		t.TaskData = make(map[string]any)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.touch()

	c.tasks[t.ID] = t
	c.taskOrder = append(c.taskOrder, t.ID)
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// RemoveTask removes a task and every incident line. Fails if the task is
// absent or currently running.
func (c *Constellation) RemoveTask(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return errors.NewNotFoundError("task", id)
	}
	if t.Status == StatusRunning {
		return errors.NewStateError("cannot remove task", errors.ErrTaskRunning).
			WithResource("task", id).WithState(string(t.Status)).WithOperation("remove_task")
	}

	// Cascade: drop incident lines and refresh the far endpoints.
	var incident []string
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		if l.FromTaskID == id || l.ToTaskID == id {
			incident = append(incident, lineID)
		}
	}
	for _, lineID := range incident {
		c.removeLineLocked(lineID)
	}

	delete(c.tasks, id)
	c.taskOrder = removeString(c.taskOrder, id)
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// MutateTask runs fn against the owned task under the write lock. It refuses
// to touch a running task: while RUNNING only the completion and cancellation
// paths may mutate. The editor's update command is built on this.
func (c *Constellation) MutateTask(id string, fn func(*Task) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return errors.NewNotFoundError("task", id)
	}
	if t.Status == StatusRunning {
		return errors.NewStateError("cannot modify task", errors.ErrTaskRunning).
			WithResource("task", id).WithState(string(t.Status)).WithOperation("update_task")
	}
	if err := fn(t); err != nil {
		return err
	}
	t.touch()
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// SetTaskDevice records the device a task will execute on. Used by the
// assignment pass before the scheduling loop; refuses running tasks.
func (c *Constellation) SetTaskDevice(id, deviceID string) error {
	return c.MutateTask(id, func(t *Task) error {
		t.TargetDeviceID = deviceID
		return nil
	})
}

// -----------------------------------------------------------------------------
// Line mutations
// -----------------------------------------------------------------------------

// AddLine adds a dependency line. Fails if either endpoint is missing, if an
// equivalent line (same endpoints and kind) exists, or if the line would
// create a cycle. A line whose upstream task is already terminal is evaluated
// immediately so late-added dependencies never gate on settled work.
func (c *Constellation) AddLine(l *Line) error {
	if l == nil {
		return errors.NewValidationError("line must not be nil").WithField("line")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	from, ok := c.tasks[l.FromTaskID]
	if !ok {
		return errors.NewNotFoundError("task", l.FromTaskID)
	}
	if _, ok := c.tasks[l.ToTaskID]; !ok {
		return errors.NewNotFoundError("task", l.ToTaskID)
	}
	if l.FromTaskID == l.ToTaskID {
		return errors.NewInvariantError("task cannot depend on itself", errors.ErrDependencyCycle).
			WithConstellationID(c.id)
	}
	for _, existingID := range c.lineOrder {
		if c.lines[existingID].equivalent(l) {
			return errors.NewAlreadyExistsError("line", existingID)
		}
	}
	if c.wouldCycleLocked(l.FromTaskID, l.ToTaskID) {
		return errors.NewInvariantError("dependency would create a cycle", errors.ErrDependencyCycle).
			WithConstellationID(c.id)
	}

	if l.ID == "" {
		l.ID = c.alloc.NextLineID(c.id)
	} else {
		if _, exists := c.lines[l.ID]; exists {
			return errors.NewAlreadyExistsError("line", l.ID)
		}
		_ = c.alloc.Register(c.id, l.ID)
	}
	if l.Kind == "" {
		l.Kind = KindUnconditional
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	l.UpdatedAt = time.Now().UTC()

	c.lines[l.ID] = l
	c.lineOrder = append(c.lineOrder, l.ID)

	if from.IsTerminal() {
		l.Evaluate(from)
	}
	c.refreshDependencyEntryLocked(l.FromTaskID, l.ToTaskID)
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// RemoveLine removes a dependency line and refreshes both endpoints'
// denormalized sets. Removing an absent line is a no-op.
func (c *Constellation) RemoveLine(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lines[id]; !ok {
		return nil
	}
	c.removeLineLocked(id)
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// MutateLine runs fn against the owned line under the write lock and then
// refreshes the endpoints' denormalized sets, since a kind or predicate
// change can alter satisfaction.
func (c *Constellation) MutateLine(id string, fn func(*Line) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lines[id]
	if !ok {
		return errors.NewNotFoundError("line", id)
	}
	if err := fn(l); err != nil {
		return err
	}
	l.UpdatedAt = time.Now().UTC()

	// Re-evaluate immediately if the upstream task has already settled.
	if from, ok := c.tasks[l.FromTaskID]; ok && from.IsTerminal() && !l.Satisfied {
		l.Evaluate(from)
	}
	c.refreshDependencyEntryLocked(l.FromTaskID, l.ToTaskID)
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// removeLineLocked drops the line and refreshes the endpoints. Callers hold
// the write lock.
func (c *Constellation) removeLineLocked(id string) {
	l := c.lines[id]
	delete(c.lines, id)
	c.lineOrder = removeString(c.lineOrder, id)
	c.refreshDependencyEntryLocked(l.FromTaskID, l.ToTaskID)
}

// -----------------------------------------------------------------------------
// Execution transitions
// -----------------------------------------------------------------------------

// StartTask transitions a pending task with no outstanding dependencies to
// RUNNING and stamps the attempt's start time. Unsatisfied incoming lines
// that can now be satisfied are re-evaluated first, so callers that skip
// ReadyTasks still see fresh readiness.
func (c *Constellation) StartTask(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return errors.NewNotFoundError("task", id)
	}
	if t.Status != StatusPending {
		return errors.NewStateError("cannot start task", errors.ErrOperationFailed).
			WithResource("task", id).WithState(string(t.Status)).WithOperation("start_task")
	}

	c.refreshIncomingLocked(t)
	if t.deps.Size() > 0 {
		return errors.NewStateError("task has unsatisfied dependencies", errors.ErrOperationFailed).
			WithResource("task", id).WithState(string(t.EffectiveStatus())).WithOperation("start_task")
	}

	now := time.Now().UTC()
	t.Status = StatusRunning
	t.ExecutionStart = &now
	t.ExecutionEnd = nil
	t.touch()
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// CompleteTask settles a task with the given outcome. It requires RUNNING but
// tolerates a direct call on a pending task by auto-starting it first. Every
// outgoing line is evaluated against the outcome; dependents whose gating
// entries all cleared are returned as newly ready, in insertion order.
func (c *Constellation) CompleteTask(id string, success bool, result any, errMsg string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", id)
	}
	switch t.Status {
	case StatusRunning:
	case StatusPending:
		// Direct completion without StartTask: stamp the start implicitly.
		now := time.Now().UTC()
		t.ExecutionStart = &now
	default:
		return nil, errors.NewStateError("cannot complete task", errors.ErrOperationFailed).
			WithResource("task", id).WithState(string(t.Status)).WithOperation("complete_task")
	}

	now := time.Now().UTC()
	t.ExecutionEnd = &now
	if success {
		t.Status = StatusCompleted
		t.Result = result
		t.Error = ""
	} else {
		t.Status = StatusFailed
		t.Error = errMsg
		if result != nil {
			t.Result = result
		}
	}
	t.touch()

	newlyReady := c.settleLocked(t)
	c.touchLocked()
	c.recomputeStateLocked()
	return newlyReady, nil
}

// RetryTask returns a task to PENDING for another attempt, consuming one unit
// of retry budget. Allowed from RUNNING (the orchestrator's internal retry,
// which never surfaces a failure event) and from FAILED (a direct caller
// reviving a settled task). Each attempt stamps its own start and end.
func (c *Constellation) RetryTask(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return errors.NewNotFoundError("task", id)
	}
	if t.Status != StatusRunning && t.Status != StatusFailed {
		return errors.NewStateError("cannot retry task", errors.ErrOperationFailed).
			WithResource("task", id).WithState(string(t.Status)).WithOperation("retry_task")
	}
	if !t.CanRetry() {
		return errors.NewStateError("retry budget exhausted", errors.ErrRetriesExhausted).
			WithResource("task", id).WithState(string(t.Status)).WithOperation("retry_task")
	}

	t.CurrentRetry++
	t.Status = StatusPending
	t.Result = nil
	t.Error = ""
	t.ExecutionStart = nil
	t.ExecutionEnd = nil
	t.touch()
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// CancelTask moves any non-terminal task to CANCELLED. Outgoing lines are
// still evaluated (an UNCONDITIONAL line is satisfied by cancellation) and
// newly ready dependents are returned.
func (c *Constellation) CancelTask(id, reason string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", id)
	}
	if t.IsTerminal() {
		return nil, errors.NewStateError("cannot cancel task", errors.ErrOperationFailed).
			WithResource("task", id).WithState(string(t.Status)).WithOperation("cancel_task")
	}

	now := time.Now().UTC()
	if t.Status == StatusRunning {
		t.ExecutionEnd = &now
	}
	t.Status = StatusCancelled
	if reason != "" {
		t.Error = reason
	}
	t.touch()

	newlyReady := c.settleLocked(t)
	c.touchLocked()
	c.recomputeStateLocked()
	return newlyReady, nil
}

// StartExecution marks the constellation as executing and stamps the start.
func (c *Constellation) StartExecution() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	c.execStart = &now
	c.execEnd = nil
	c.executing = true
	c.state = StateExecuting
	c.touchLocked()
}

// CompleteExecution stamps the end of execution and settles the final state.
// Pending tasks that could never become ready (stranded behind unsatisfied
// conditional lines) are ignored by the final derivation: a run whose
// executed tasks all completed is COMPLETED even if it skipped work.
func (c *Constellation) CompleteExecution() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	c.execEnd = &now
	c.executing = false
	c.state = c.finalStateLocked()
	c.touchLocked()
	return c.state
}

// -----------------------------------------------------------------------------
// Readiness
// -----------------------------------------------------------------------------

// ReadyTasks returns clones of every task that may start now: pending, no
// gating dependency entries, and every incoming line satisfied. Unsatisfied
// lines are lazily re-evaluated first. The result is sorted by priority
// descending with insertion order preserved within a priority.
func (c *Constellation) ReadyTasks() []*Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ready []*Task
	for _, id := range c.taskOrder {
		t := c.tasks[id]
		if c.isReadyLocked(t) {
			ready = append(ready, t.Clone())
		}
	}

	// Insertion sort by priority descending: stable, and these slices are
	// small enough that anything fancier is noise.
	for i := 1; i < len(ready); i++ {
		j := i
		for j > 0 && ready[j-1].Priority < ready[j].Priority {
			ready[j-1], ready[j] = ready[j], ready[j-1]
			j--
		}
	}
	return ready
}

// ReadyTaskIDs returns the IDs of ready tasks in scheduling order.
func (c *Constellation) ReadyTaskIDs() []string {
	ready := c.ReadyTasks()
	ids := make([]string, len(ready))
	for i, t := range ready {
		ids[i] = t.ID
	}
	return ids
}

// isReadyLocked applies the readiness rule to an owned task, lazily
// re-evaluating unsatisfied incoming lines. Callers hold the write lock.
func (c *Constellation) isReadyLocked(t *Task) bool {
	if t.Status != StatusPending {
		return false
	}
	c.refreshIncomingLocked(t)
	if t.deps.Size() > 0 {
		return false
	}
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		if l.ToTaskID == t.ID && !l.Satisfied {
			return false
		}
	}
	return true
}

// refreshIncomingLocked re-evaluates the task's unsatisfied incoming lines
// and refreshes its dependency entries. Callers hold the write lock.
func (c *Constellation) refreshIncomingLocked(t *Task) {
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		if l.ToTaskID != t.ID || l.Satisfied {
			continue
		}
		from, ok := c.tasks[l.FromTaskID]
		if !ok {
			continue
		}
		if l.Evaluate(from) {
			c.refreshDependencyEntryLocked(l.FromTaskID, t.ID)
		}
	}
}

// settleLocked propagates a task's terminal status: evaluates its outgoing
// lines, refreshes the dependents' gating entries, and returns the dependents
// that became ready, in insertion order. Callers hold the write lock.
func (c *Constellation) settleLocked(t *Task) []string {
	dependents := make(map[string]bool)
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		if l.FromTaskID != t.ID {
			continue
		}
		l.Evaluate(t)
		dependents[l.ToTaskID] = true
	}
	for depID := range dependents {
		c.refreshDependencyEntryLocked(t.ID, depID)
	}

	var newlyReady []string
	for _, id := range c.taskOrder {
		if !dependents[id] {
			continue
		}
		if c.isReadyLocked(c.tasks[id]) {
			newlyReady = append(newlyReady, id)
		}
	}
	return newlyReady
}

// refreshDependencyEntryLocked re-derives the denormalized entries for the
// (from, to) pair: `from` gates `to` while any unsatisfied from->to line
// exists, and `to` is a dependent of `from` while any from->to line exists
// at all. Callers hold the write lock.
func (c *Constellation) refreshDependencyEntryLocked(fromID, toID string) {
	var anyLine, anyUnsatisfied bool
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		if l.FromTaskID != fromID || l.ToTaskID != toID {
			continue
		}
		anyLine = true
		if !l.Satisfied {
			anyUnsatisfied = true
			break
		}
	}

	if to, ok := c.tasks[toID]; ok {
		if anyUnsatisfied {
			to.deps.Insert(fromID)
		} else {
			to.deps.Remove(fromID)
		}
	}
	if from, ok := c.tasks[fromID]; ok {
		if anyLine {
			from.dependents.Insert(toID)
		} else {
			from.dependents.Remove(toID)
		}
	}
}

// rebuildDenormalizedLocked recomputes every task's dependency and dependent
// sets from the line table. Used after bulk mutations (load, merge, clear).
// Callers hold the write lock.
func (c *Constellation) rebuildDenormalizedLocked() {
	for _, t := range c.tasks {
		t.deps = newStringSet()
		t.dependents = newStringSet()
	}
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		from, fromOK := c.tasks[l.FromTaskID]
		to, toOK := c.tasks[l.ToTaskID]
		if fromOK && toOK {
			from.dependents.Insert(l.ToTaskID)
			if !l.Satisfied {
				to.deps.Insert(l.FromTaskID)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Validation and state derivation
// -----------------------------------------------------------------------------

// Validate checks the structural invariants: every line's endpoints exist and
// the line set is acyclic. An empty constellation is structurally valid.
func (c *Constellation) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

func (c *Constellation) validateLocked() error {
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		if _, ok := c.tasks[l.FromTaskID]; !ok {
			return errors.NewInvariantError("line references missing upstream task", errors.ErrConstellationInvalid).
				WithConstellationID(c.id)
		}
		if _, ok := c.tasks[l.ToTaskID]; !ok {
			return errors.NewInvariantError("line references missing downstream task", errors.ErrConstellationInvalid).
				WithConstellationID(c.id)
		}
	}
	if c.hasCycleLocked() {
		return errors.NewInvariantError("dependency cycle detected", errors.ErrDependencyCycle).
			WithConstellationID(c.id)
	}
	return nil
}

// recomputeStateLocked re-derives the state from task statuses. Callers hold
// the write lock.
func (c *Constellation) recomputeStateLocked() {
	c.state = c.deriveStateLocked()
}

// deriveStateLocked is the state function: it depends only on the task
// statuses plus the executing flag set by StartExecution.
func (c *Constellation) deriveStateLocked() State {
	if len(c.tasks) == 0 {
		return StateCreated
	}

	var running, completed, failed, cancelled int
	for _, t := range c.tasks {
		switch t.Status {
		case StatusRunning:
			running++
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		case StatusCancelled:
			cancelled++
		}
	}
	terminal := completed + failed + cancelled

	if terminal == len(c.tasks) {
		switch {
		case cancelled > 0:
			return StateCancelled
		case failed > 0 && completed > 0:
			return StatePartiallyFailed
		case failed > 0:
			return StateFailed
		default:
			return StateCompleted
		}
	}
	if running > 0 || terminal > 0 || c.executing {
		return StateExecuting
	}
	return StateReady
}

// finalStateLocked settles the state at the end of execution. Stranded
// pending tasks are excluded: only tasks that actually executed (or were
// cancelled) vote. Callers hold the write lock.
func (c *Constellation) finalStateLocked() State {
	var running, completed, failed, cancelled int
	for _, t := range c.tasks {
		switch t.Status {
		case StatusRunning:
			running++
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		case StatusCancelled:
			cancelled++
		}
	}
	if running > 0 {
		return StateExecuting
	}
	switch {
	case cancelled > 0:
		return StateCancelled
	case failed > 0 && completed > 0:
		return StatePartiallyFailed
	case failed > 0:
		return StateFailed
	default:
		return StateCompleted
	}
}

// touchLocked refreshes the constellation's UpdatedAt stamp. Callers hold the
// write lock.
func (c *Constellation) touchLocked() {
	c.updatedAt = time.Now().UTC()
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func utcTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := t.UTC()
	return &cp
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
