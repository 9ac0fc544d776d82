package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/device"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/event"
	"github.com/starweaver/starweaver/internal/logging"
	"github.com/starweaver/starweaver/internal/plansync"
)

// Orchestrator drives constellations to completion: it validates the graph,
// fills in device assignments, and runs the scheduling loop that dispatches
// ready tasks to the device collaborator. One orchestrator can execute
// several constellations concurrently; each Execute call owns its
// constellation until it returns.
type Orchestrator struct {
	collab device.Collaborator
	bus    *event.Bus
	sync   *plansync.Synchronizer
	logger *logging.Logger

	maxParallel int
	taskTimeout time.Duration
	syncTimeout time.Duration
	strategy    device.Strategy
	prefs       map[string]string

	// cancelled is the orchestrator-wide stop flag. Cancel sets it along
	// with the per-run flag; it clears once every active run has drained.
	cancelled atomic.Bool

	mu   sync.Mutex
	runs map[string]*run
}

// New creates an Orchestrator dispatching to the given collaborator.
func New(collab device.Collaborator, opts ...Option) (*Orchestrator, error) {
	if collab == nil {
		return nil, errors.NewValidationError("device collaborator is required").
			WithField("collaborator")
	}

	o := &Orchestrator{
		collab:      collab,
		logger:      logging.NopLogger(),
		maxParallel: DefaultMaxParallel,
		taskTimeout: DefaultTaskTimeout,
		syncTimeout: DefaultSyncTimeout,
		runs:        make(map[string]*run),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithComponent("orchestrator")
	if o.bus == nil {
		o.bus = event.NewBus(o.logger)
	}
	return o, nil
}

// Bus returns the event bus lifecycle events are published to.
func (o *Orchestrator) Bus() *event.Bus {
	return o.bus
}

// Synchronizer returns the planner-edit gate, nil when none is wired.
func (o *Orchestrator) Synchronizer() *plansync.Synchronizer {
	return o.sync
}

// -----------------------------------------------------------------------------
// Execute
// -----------------------------------------------------------------------------

// Execute runs the constellation to a terminal state and reports the outcome.
// The constellation is owned by the orchestrator until Execute returns; edits
// may still arrive through the editor, which is how the planning agent
// reshapes the graph mid-run.
//
// Task failures and cancellation are not errors here: they land in the result
// record and the constellation's final state. Execute errors only when the
// run cannot begin, for a graph that fails validation, an assignment pass
// with no devices, or a constellation that is already executing.
func (o *Orchestrator) Execute(ctx context.Context, c *constellation.Constellation, opts ...ExecOption) (*Result, error) {
	if c == nil {
		return nil, errors.NewValidationError("constellation is required").
			WithField("constellation")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cfg execConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := o.assignDevices(c, cfg.assignments); err != nil {
		return nil, err
	}

	r := newRun(o.maxParallel)
	if err := o.register(c.ID(), r); err != nil {
		return nil, err
	}
	defer o.unregister(c.ID())

	c.StartExecution()
	o.bus.Publish(event.NewConstellationStartedEvent(c.ID(), c.Name(), c.TaskCount()))
	o.logger.Info("execution started",
		"constellation_id", c.ID(), "name", c.Name(), "tasks", c.TaskCount())

	o.loop(ctx, r, c)

	final := c.CompleteExecution()
	o.publishFinal(c, final)

	result := buildResult(c, final)
	o.logger.Info("execution finished",
		"constellation_id", c.ID(), "state", final.String(),
		"duration", c.ExecutionDuration().String())
	return result, nil
}

// assignDevices applies per-run pins and then fills every unassigned pending
// task through the strategy.
func (o *Orchestrator) assignDevices(c *constellation.Constellation, pins map[string]string) error {
	ids := make([]string, 0, len(pins))
	for taskID := range pins {
		ids = append(ids, taskID)
	}
	sort.Strings(ids)
	for _, taskID := range ids {
		if err := c.SetTaskDevice(taskID, pins[taskID]); err != nil {
			return err
		}
	}

	assigner, err := device.NewAssigner(o.collab,
		device.WithStrategy(o.strategy),
		device.WithPreferences(o.prefs),
		device.WithLogger(o.logger),
	)
	if err != nil {
		return err
	}
	_, err = assigner.EnsureAssignments(c)
	return err
}

func (o *Orchestrator) register(id string, r *run) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.runs[id]; exists {
		return errors.NewStateError("constellation is already executing", errors.ErrOperationFailed).
			WithResource("constellation", id).WithOperation("execute")
	}
	o.runs[id] = r
	return nil
}

func (o *Orchestrator) unregister(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runs, id)
	if len(o.runs) == 0 {
		// The cancellation episode ends once nothing is running.
		o.cancelled.Store(false)
	}
}

// -----------------------------------------------------------------------------
// Scheduling loop
// -----------------------------------------------------------------------------

// loop is one run's driver. Each iteration re-checks cancellation, lets
// outstanding planner edits land, dispatches as much of the ready set as the
// concurrency cap allows, and then blocks until some in-flight execution
// reports back. It exits when every task is terminal, when the remaining
// pending tasks are stranded behind unsatisfied lines, or on cancellation.
func (o *Orchestrator) loop(ctx context.Context, r *run, c *constellation.Constellation) {
	for _, t := range c.ReadyTasks() {
		o.bus.Publish(event.NewTaskReadyEvent(c.ID(), t.ID, int(t.Priority)))
	}

	for {
		if o.runCancelled(ctx, r) {
			o.drainCancelled(r, c)
			return
		}

		if o.sync != nil {
			if res := o.sync.WaitForPending(o.syncTimeout); res != plansync.WaitOK {
				o.logger.Debug("planner gate released early",
					"constellation_id", c.ID(), "result", res.String())
			}
			// The gate may have parked this goroutine for a while; look
			// again before dispatching.
			if o.runCancelled(ctx, r) {
				o.drainCancelled(r, c)
				return
			}
		}

		o.dispatchReady(ctx, r, c)

		if r.inflightCount() == 0 {
			if c.AllTerminal() {
				return
			}
			// Nothing runs and nothing can become ready: the rest of the
			// graph is stranded behind unsatisfied conditional lines.
			o.logger.Info("no runnable tasks remain",
				"constellation_id", c.ID(), "stranded", nonTerminalIDs(c))
			return
		}

		select {
		case comp := <-r.results:
			o.settle(r, c, comp)
		case <-ctx.Done():
		case <-r.stop:
		}
	}
}

// runCancelled reports whether this run should stop, folding the caller's
// context into the per-run flag.
func (o *Orchestrator) runCancelled(ctx context.Context, r *run) bool {
	if ctx.Err() != nil {
		r.cancelled.Store(true)
	}
	return o.cancelled.Load() || r.cancelled.Load()
}

// dispatchReady starts ready tasks up to the concurrency cap. Each dispatch
// publishes TASK_STARTED before the execution goroutine spawns, so the
// started event always precedes the task's terminal event.
func (o *Orchestrator) dispatchReady(ctx context.Context, r *run, c *constellation.Constellation) {
	for _, t := range c.ReadyTasks() {
		if r.inflightCount() >= o.maxParallel {
			return
		}
		if o.runCancelled(ctx, r) {
			return
		}
		if err := c.StartTask(t.ID); err != nil {
			// The graph moved between the ready snapshot and the start.
			o.logger.Warn("ready task refused start",
				"constellation_id", c.ID(), "task_id", t.ID, "error", err)
			continue
		}
		r.add(t.ID, t.TargetDeviceID)
		o.bus.Publish(event.NewTaskStartedEvent(c.ID(), t.ID, t.TargetDeviceID))
		o.logger.Debug("task dispatched",
			"constellation_id", c.ID(), "task_id", t.ID,
			"device_id", t.TargetDeviceID, "attempt", t.CurrentRetry+1)

		timeout := t.Timeout
		if timeout <= 0 {
			timeout = o.taskTimeout
		}
		go func(taskID, deviceID, description string, payload map[string]any, timeout time.Duration) {
			res, err := o.collab.AssignTask(ctx, taskID, deviceID, description, payload, timeout)
			r.results <- completion{taskID: taskID, deviceID: deviceID, res: res, err: err}
		}(t.ID, t.TargetDeviceID, t.Description, t.TaskData, timeout)
	}
}

// settle records one execution report. Failures consume retry budget silently
// when any remains; the task returns to PENDING and the next iteration
// dispatches a fresh attempt with its own TASK_STARTED.
func (o *Orchestrator) settle(r *run, c *constellation.Constellation, comp completion) {
	r.remove(comp.taskID)

	if comp.err != nil && errors.Is(comp.err, errors.ErrCancelled) {
		o.cancelTask(c, comp.taskID, "execution cancelled")
		return
	}

	success, result, errMsg := comp.outcome()
	if success {
		newlyReady, err := c.CompleteTask(comp.taskID, true, result, "")
		if err != nil {
			o.logger.Warn("cannot settle completed task",
				"constellation_id", c.ID(), "task_id", comp.taskID, "error", err)
			return
		}
		o.registerPending(comp.taskID)
		o.bus.Publish(event.NewTaskCompletedEvent(
			c.ID(), comp.taskID, comp.deviceID, result, taskDuration(c, comp.taskID), newlyReady))
		o.announceReady(c, newlyReady)
		return
	}

	if err := c.RetryTask(comp.taskID); err == nil {
		o.logger.Info("retrying task",
			"constellation_id", c.ID(), "task_id", comp.taskID, "error", errMsg)
		return
	}

	newlyReady, err := c.CompleteTask(comp.taskID, false, result, errMsg)
	if err != nil {
		o.logger.Warn("cannot settle failed task",
			"constellation_id", c.ID(), "task_id", comp.taskID, "error", err)
		return
	}
	o.registerPending(comp.taskID)
	o.bus.Publish(event.NewTaskFailedEvent(
		c.ID(), comp.taskID, comp.deviceID, errMsg, attempts(c, comp.taskID)))
	o.announceReady(c, newlyReady)
}

// drainCancelled tears a cancelled run down: it aborts whatever is still in
// flight at the transport, absorbs every outstanding report, and moves every
// remaining non-terminal task to CANCELLED so the final state reflects the
// aborted run. A report that raced the cancel with a success keeps its honest
// outcome.
func (o *Orchestrator) drainCancelled(r *run, c *constellation.Constellation) {
	for _, taskID := range r.inflightTasks() {
		if err := o.collab.CancelTask(taskID); err != nil {
			o.logger.Warn("transport cancel failed",
				"constellation_id", c.ID(), "task_id", taskID, "error", err)
		}
	}

	for r.inflightCount() > 0 {
		comp := <-r.results
		r.remove(comp.taskID)
		if comp.err == nil && comp.res != nil && comp.res.Success {
			if newlyReady, err := c.CompleteTask(comp.taskID, true, comp.res.Result, ""); err == nil {
				o.bus.Publish(event.NewTaskCompletedEvent(
					c.ID(), comp.taskID, comp.deviceID, comp.res.Result,
					taskDuration(c, comp.taskID), newlyReady))
				continue
			}
		}
		o.cancelTask(c, comp.taskID, "execution cancelled")
	}

	for _, t := range c.Tasks() {
		if !t.Status.IsTerminal() {
			o.cancelTask(c, t.ID, "execution cancelled")
		}
	}
}

func (o *Orchestrator) cancelTask(c *constellation.Constellation, taskID, reason string) {
	if _, err := c.CancelTask(taskID, reason); err != nil {
		// Already terminal: the cancel raced a settlement.
		o.logger.Debug("cancel skipped",
			"constellation_id", c.ID(), "task_id", taskID, "error", err)
		return
	}
	o.bus.Publish(event.NewTaskCancelledEvent(c.ID(), taskID, reason))
}

// registerPending marks a planner edit as outstanding before the completion
// event goes out. Registering ahead of Publish is what keeps the gate
// race-free against the bus's asynchronous delivery.
func (o *Orchestrator) registerPending(taskID string) {
	if o.sync != nil {
		o.sync.RegisterPending(taskID)
	}
}

func (o *Orchestrator) announceReady(c *constellation.Constellation, ids []string) {
	for _, id := range ids {
		t, err := c.Task(id)
		if err != nil {
			continue
		}
		o.bus.Publish(event.NewTaskReadyEvent(c.ID(), id, int(t.Priority)))
	}
}

func (o *Orchestrator) publishFinal(c *constellation.Constellation, final constellation.State) {
	switch final {
	case constellation.StateCancelled:
		o.bus.Publish(event.NewConstellationCancelledEvent(c.ID(), "execution cancelled"))
	case constellation.StateFailed:
		counts := c.StatusCounts()
		reason := fmt.Sprintf("%d of %d tasks failed",
			counts[constellation.StatusFailed], c.TaskCount())
		o.bus.Publish(event.NewConstellationFailedEvent(c.ID(), reason))
	default:
		o.bus.Publish(event.NewConstellationCompletedEvent(
			c.ID(), final.String(), c.TaskCount(), c.ExecutionDuration()))
	}
}

// -----------------------------------------------------------------------------
// Cancel
// -----------------------------------------------------------------------------

// Cancel aborts an executing constellation. It sets the orchestrator-wide
// and per-run stop flags, invokes the transport-level cancellation for every
// in-flight execution, wakes the planner gate, and blocks until the in-flight
// table is empty. It reports whether the ID named an active run; unknown IDs
// are a no-op. Cancel is idempotent.
func (o *Orchestrator) Cancel(constellationID string) bool {
	// The flags are set under the same lock that guards run membership, so a
	// run finishing concurrently cannot unregister between the lookup and the
	// store and leave a stale orchestrator-wide flag behind.
	o.mu.Lock()
	r, ok := o.runs[constellationID]
	if ok {
		o.cancelled.Store(true)
		r.cancelled.Store(true)
	}
	o.mu.Unlock()
	if !ok {
		return false
	}

	r.signalStop()
	o.logger.Info("cancelling execution", "constellation_id", constellationID)

	for _, taskID := range r.inflightTasks() {
		if err := o.collab.CancelTask(taskID); err != nil {
			o.logger.Warn("transport cancel failed",
				"constellation_id", constellationID, "task_id", taskID, "error", err)
		}
	}
	if o.sync != nil {
		o.sync.Wake()
	}

	r.awaitDrain()
	return true
}

// -----------------------------------------------------------------------------
// Run bookkeeping
// -----------------------------------------------------------------------------

// completion is one execution goroutine's report back to the loop.
type completion struct {
	taskID   string
	deviceID string
	res      *device.ExecutionResult
	err      error
}

// outcome flattens the report into the task-level verdict. Transport errors
// and missing results count as failures; the cancellation case is handled
// before this is consulted.
func (comp completion) outcome() (success bool, result any, errMsg string) {
	switch {
	case comp.err != nil:
		return false, nil, comp.err.Error()
	case comp.res == nil:
		return false, nil, "device returned no result"
	case comp.res.Success:
		return true, comp.res.Result, ""
	case comp.res.Error != "":
		return false, comp.res.Result, comp.res.Error
	default:
		return false, comp.res.Result, "task failed on device"
	}
}

// run tracks one executing constellation: its in-flight table, the report
// channel, and the stop signal.
type run struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inflight map[string]string // task ID -> device ID

	results chan completion
	stop    chan struct{}
	once    sync.Once

	cancelled atomic.Bool
}

func newRun(buffer int) *run {
	r := &run{
		inflight: make(map[string]string, buffer),
		results:  make(chan completion, buffer),
		stop:     make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *run) add(taskID, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[taskID] = deviceID
}

func (r *run) remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, taskID)
	r.cond.Broadcast()
}

func (r *run) inflightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

func (r *run) inflightTasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.inflight))
	for taskID := range r.inflight {
		ids = append(ids, taskID)
	}
	sort.Strings(ids)
	return ids
}

func (r *run) signalStop() {
	r.once.Do(func() { close(r.stop) })
}

// awaitDrain blocks until the in-flight table empties.
func (r *run) awaitDrain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.inflight) > 0 {
		r.cond.Wait()
	}
}

// -----------------------------------------------------------------------------
// Result assembly
// -----------------------------------------------------------------------------

func buildResult(c *constellation.Constellation, final constellation.State) *Result {
	result := &Result{
		ConstellationID: c.ID(),
		Status:          final,
		TaskResults:     make(map[string]TaskResult, c.TaskCount()),
		Metadata:        make(map[string]any),
	}
	if ts := c.ExecutionStartTime(); ts != nil {
		result.StartTime = *ts
	}
	if ts := c.ExecutionEndTime(); ts != nil {
		result.EndTime = *ts
	}

	var completed, failed int
	var skipped []string
	for _, t := range c.Tasks() {
		result.TaskResults[t.ID] = TaskResult{
			Status: t.Status,
			Result: t.Result,
			Error:  t.Error,
			Start:  t.ExecutionStart,
			End:    t.ExecutionEnd,
		}
		switch t.Status {
		case constellation.StatusCompleted:
			completed++
		case constellation.StatusFailed:
			failed++
		}
		if !t.Status.IsTerminal() {
			skipped = append(skipped, t.ID)
		}
	}

	if completed+failed > 0 {
		result.Metadata["success_rate"] = float64(completed) / float64(completed+failed)
	}
	if len(skipped) > 0 {
		result.Metadata["skipped_tasks"] = skipped
	}
	result.Metadata["longest_path_length"] = len(c.LongestPath())
	result.Metadata["max_width"] = c.MaxWidth()
	result.Metadata["parallelism_ratio"] = c.ParallelismMetrics().Parallelism
	return result
}

func taskDuration(c *constellation.Constellation, taskID string) time.Duration {
	t, err := c.Task(taskID)
	if err != nil {
		return 0
	}
	return t.ExecutionDuration()
}

func attempts(c *constellation.Constellation, taskID string) int {
	t, err := c.Task(taskID)
	if err != nil {
		return 1
	}
	return t.CurrentRetry + 1
}

func nonTerminalIDs(c *constellation.Constellation) []string {
	var ids []string
	for _, t := range c.Tasks() {
		if !t.Status.IsTerminal() {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
