package editor

import (
	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
)

// -----------------------------------------------------------------------------
// add_task
// -----------------------------------------------------------------------------

// AddTask returns a command that adds a task, wiring an unconditional line
// from each listed upstream task. A task with an empty ID gets a minted one.
func AddTask(t *constellation.Task, upstream ...string) Command {
	return &addTaskCommand{task: t, upstream: upstream}
}

type addTaskCommand struct {
	task     *constellation.Task
	upstream []string
	lineIDs  []string
}

func (cmd *addTaskCommand) Name() string { return CmdAddTask }

func (cmd *addTaskCommand) Apply(c *constellation.Constellation) (any, error) {
	if cmd.task == nil {
		return nil, errors.NewValidationError("task is required").WithField("task")
	}
	if err := c.AddTask(cmd.task); err != nil {
		return nil, err
	}
	cmd.lineIDs = cmd.lineIDs[:0]
	for _, from := range cmd.upstream {
		l := constellation.NewLine("", from, cmd.task.ID, constellation.KindUnconditional)
		if err := c.AddLine(l); err != nil {
			for _, id := range cmd.lineIDs {
				_ = c.RemoveLine(id)
			}
			_ = c.RemoveTask(cmd.task.ID)
			return nil, err
		}
		cmd.lineIDs = append(cmd.lineIDs, l.ID)
	}
	return cmd.task.ID, nil
}

func (cmd *addTaskCommand) Revert(c *constellation.Constellation) error {
	// RemoveTask cascades the lines added alongside the task.
	return c.RemoveTask(cmd.task.ID)
}

// -----------------------------------------------------------------------------
// remove_task
// -----------------------------------------------------------------------------

// RemoveTask returns a command that removes a task and its incident lines.
func RemoveTask(taskID string) Command {
	return &removeTaskCommand{taskID: taskID}
}

type removeTaskCommand struct {
	taskID   string
	snapshot *constellation.Task
	incident []*constellation.Line
}

func (cmd *removeTaskCommand) Name() string { return CmdRemoveTask }

func (cmd *removeTaskCommand) Apply(c *constellation.Constellation) (any, error) {
	t, err := c.Task(cmd.taskID)
	if err != nil {
		return nil, err
	}
	incident := cmd.incident[:0]
	for _, l := range c.Lines() {
		if l.FromTaskID == cmd.taskID || l.ToTaskID == cmd.taskID {
			incident = append(incident, l)
		}
	}
	if err := c.RemoveTask(cmd.taskID); err != nil {
		return nil, err
	}
	cmd.snapshot = t
	cmd.incident = incident
	return cmd.taskID, nil
}

func (cmd *removeTaskCommand) Revert(c *constellation.Constellation) error {
	if cmd.snapshot == nil {
		return errors.NewStateError("nothing to revert", errors.ErrRevertFailed).
			WithResource("task", cmd.taskID).WithOperation(CmdRemoveTask)
	}
	if err := c.AddTask(cmd.snapshot); err != nil {
		return err
	}
	for _, l := range cmd.incident {
		if err := c.AddLine(l); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// update_task
// -----------------------------------------------------------------------------

// UpdateTask returns a command that updates task attributes from a field
// record. Execution-owned fields (status, result, error, retry progress) are
// rejected; those change only through the execution transitions.
func UpdateTask(taskID string, fields map[string]any) Command {
	return &updateTaskCommand{taskID: taskID, fields: fields}
}

type updateTaskCommand struct {
	taskID string
	fields map[string]any
	prev   *constellation.Task
	keys   []string
}

func (cmd *updateTaskCommand) Name() string { return CmdUpdateTask }

func (cmd *updateTaskCommand) Apply(c *constellation.Constellation) (any, error) {
	if len(cmd.fields) == 0 {
		return nil, errors.NewValidationError("no fields to update").WithField("fields")
	}

	// Coerce every value before mutating so a bad field never half-applies.
	setters := make([]taskSetter, 0, len(cmd.fields))
	keys := make([]string, 0, len(cmd.fields))
	for key, value := range cmd.fields {
		setter, err := taskFieldSetter(key, value)
		if err != nil {
			return nil, err
		}
		setters = append(setters, setter)
		keys = append(keys, key)
	}

	prev, err := c.Task(cmd.taskID)
	if err != nil {
		return nil, err
	}
	err = c.MutateTask(cmd.taskID, func(t *constellation.Task) error {
		for _, set := range setters {
			set(t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cmd.prev = prev
	cmd.keys = keys
	return cmd.taskID, nil
}

func (cmd *updateTaskCommand) Revert(c *constellation.Constellation) error {
	if cmd.prev == nil {
		return errors.NewStateError("nothing to revert", errors.ErrRevertFailed).
			WithResource("task", cmd.taskID).WithOperation(CmdUpdateTask)
	}
	return c.MutateTask(cmd.taskID, func(t *constellation.Task) error {
		for _, key := range cmd.keys {
			restoreTaskField(t, cmd.prev, key)
		}
		return nil
	})
}

// -----------------------------------------------------------------------------
// add_dependency
// -----------------------------------------------------------------------------

// AddDependency returns a command that adds the given dependency line. A line
// with an empty ID gets a minted one.
func AddDependency(l *constellation.Line) Command {
	return &addDependencyCommand{line: l}
}

type addDependencyCommand struct {
	line *constellation.Line
}

func (cmd *addDependencyCommand) Name() string { return CmdAddDependency }

func (cmd *addDependencyCommand) Apply(c *constellation.Constellation) (any, error) {
	if cmd.line == nil {
		return nil, errors.NewValidationError("line is required").WithField("line")
	}
	if err := c.AddLine(cmd.line); err != nil {
		return nil, err
	}
	return cmd.line.ID, nil
}

func (cmd *addDependencyCommand) Revert(c *constellation.Constellation) error {
	return c.RemoveLine(cmd.line.ID)
}

// -----------------------------------------------------------------------------
// remove_dependency
// -----------------------------------------------------------------------------

// RemoveDependency returns a command that removes a line by ID.
func RemoveDependency(lineID string) Command {
	return &removeDependencyCommand{lineID: lineID}
}

// RemoveDependencyBetween returns a command that removes every line from one
// task to another, whatever the kind.
func RemoveDependencyBetween(fromTaskID, toTaskID string) Command {
	return &removeDependencyCommand{fromTaskID: fromTaskID, toTaskID: toTaskID}
}

type removeDependencyCommand struct {
	lineID     string
	fromTaskID string
	toTaskID   string
	removed    []*constellation.Line
}

func (cmd *removeDependencyCommand) Name() string { return CmdRemoveDependency }

func (cmd *removeDependencyCommand) Apply(c *constellation.Constellation) (any, error) {
	var targets []*constellation.Line
	if cmd.lineID != "" {
		l, err := c.Line(cmd.lineID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, l)
	} else {
		for _, l := range c.Lines() {
			if l.FromTaskID == cmd.fromTaskID && l.ToTaskID == cmd.toTaskID {
				targets = append(targets, l)
			}
		}
		if len(targets) == 0 {
			return nil, errors.NewNotFoundError("line", cmd.fromTaskID+"->"+cmd.toTaskID)
		}
	}

	for _, l := range targets {
		if err := c.RemoveLine(l.ID); err != nil {
			return nil, err
		}
	}
	cmd.removed = targets

	ids := make([]string, len(targets))
	for i, l := range targets {
		ids[i] = l.ID
	}
	return ids, nil
}

func (cmd *removeDependencyCommand) Revert(c *constellation.Constellation) error {
	for _, l := range cmd.removed {
		if err := c.AddLine(l); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// update_dependency
// -----------------------------------------------------------------------------

// UpdateDependency returns a command that updates line attributes from a
// field record: dependency_type, condition_description, predicate, metadata.
func UpdateDependency(lineID string, fields map[string]any) Command {
	return &updateDependencyCommand{lineID: lineID, fields: fields}
}

type updateDependencyCommand struct {
	lineID string
	fields map[string]any
	prev   *constellation.Line
	keys   []string
}

func (cmd *updateDependencyCommand) Name() string { return CmdUpdateDependency }

func (cmd *updateDependencyCommand) Apply(c *constellation.Constellation) (any, error) {
	if len(cmd.fields) == 0 {
		return nil, errors.NewValidationError("no fields to update").WithField("fields")
	}

	setters := make([]lineSetter, 0, len(cmd.fields))
	keys := make([]string, 0, len(cmd.fields))
	for key, value := range cmd.fields {
		setter, err := lineFieldSetter(key, value)
		if err != nil {
			return nil, err
		}
		setters = append(setters, setter)
		keys = append(keys, key)
	}

	prev, err := c.Line(cmd.lineID)
	if err != nil {
		return nil, err
	}
	err = c.MutateLine(cmd.lineID, func(l *constellation.Line) error {
		for _, set := range setters {
			set(l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cmd.prev = prev
	cmd.keys = keys
	return cmd.lineID, nil
}

func (cmd *updateDependencyCommand) Revert(c *constellation.Constellation) error {
	if cmd.prev == nil {
		return errors.NewStateError("nothing to revert", errors.ErrRevertFailed).
			WithResource("line", cmd.lineID).WithOperation(CmdUpdateDependency)
	}
	return c.MutateLine(cmd.lineID, func(l *constellation.Line) error {
		for _, key := range cmd.keys {
			restoreLineField(l, cmd.prev, key)
		}
		// A kind or predicate change may have re-evaluated the line; put the
		// satisfaction state back the way the snapshot had it.
		l.Satisfied = cmd.prev.Satisfied
		if cmd.prev.LastEvalResult != nil {
			v := *cmd.prev.LastEvalResult
			l.LastEvalResult = &v
		} else {
			l.LastEvalResult = nil
		}
		if cmd.prev.LastEvalTime != nil {
			v := *cmd.prev.LastEvalTime
			l.LastEvalTime = &v
		} else {
			l.LastEvalTime = nil
		}
		return nil
	})
}

// -----------------------------------------------------------------------------
// clear
// -----------------------------------------------------------------------------

// Clear returns a command that removes every task and line.
func Clear() Command {
	return &clearCommand{}
}

type clearCommand struct {
	snapshot *constellation.Document
}

func (cmd *clearCommand) Name() string { return CmdClear }

func (cmd *clearCommand) emptiesConstellation() {}

func (cmd *clearCommand) Apply(c *constellation.Constellation) (any, error) {
	snap := c.ToDocument()
	if err := c.Clear(); err != nil {
		return nil, err
	}
	cmd.snapshot = snap
	return len(snap.TaskRecords), nil
}

func (cmd *clearCommand) Revert(c *constellation.Constellation) error {
	if cmd.snapshot == nil {
		return errors.NewStateError("nothing to revert", errors.ErrRevertFailed).
			WithResource("constellation", c.ID()).WithOperation(CmdClear)
	}
	return c.Restore(cmd.snapshot)
}

// -----------------------------------------------------------------------------
// bulk_build
// -----------------------------------------------------------------------------

// BulkResult lists what a bulk_build added, in input order.
type BulkResult struct {
	TaskIDs []string
	LineIDs []string
}

// BulkBuild returns a command that adds tasks and lines as one transaction:
// on any failure nothing is added.
func BulkBuild(tasks []*constellation.Task, lines []*constellation.Line) Command {
	return &bulkBuildCommand{tasks: tasks, lines: lines}
}

type bulkBuildCommand struct {
	tasks    []*constellation.Task
	lines    []*constellation.Line
	upstream [][]string // per-task upstream IDs, parallel to tasks; builder-set
	taskIDs  []string
	lineIDs  []string
}

func (cmd *bulkBuildCommand) Name() string { return CmdBulkBuild }

func (cmd *bulkBuildCommand) Apply(c *constellation.Constellation) (any, error) {
	taskIDs, lineIDs, err := c.AddBatch(cmd.tasks, cmd.lines)
	if err != nil {
		return nil, err
	}

	// Upstream IDs declared inline on a batch task become unconditional lines
	// once the task has its ID.
	for i, deps := range cmd.upstream {
		for _, from := range deps {
			l := constellation.NewLine("", from, cmd.tasks[i].ID, constellation.KindUnconditional)
			if err := c.AddLine(l); err != nil {
				for j := len(lineIDs) - 1; j >= 0; j-- {
					_ = c.RemoveLine(lineIDs[j])
				}
				for j := len(taskIDs) - 1; j >= 0; j-- {
					_ = c.RemoveTask(taskIDs[j])
				}
				return nil, err
			}
			lineIDs = append(lineIDs, l.ID)
		}
	}

	cmd.taskIDs = taskIDs
	cmd.lineIDs = lineIDs
	return BulkResult{TaskIDs: taskIDs, LineIDs: lineIDs}, nil
}

func (cmd *bulkBuildCommand) Revert(c *constellation.Constellation) error {
	for i := len(cmd.lineIDs) - 1; i >= 0; i-- {
		if err := c.RemoveLine(cmd.lineIDs[i]); err != nil {
			return err
		}
	}
	for i := len(cmd.taskIDs) - 1; i >= 0; i-- {
		if err := c.RemoveTask(cmd.taskIDs[i]); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// merge
// -----------------------------------------------------------------------------

// Merge returns a command that imports another constellation's document,
// rewriting colliding task IDs with the given prefix.
func Merge(doc *constellation.Document, prefix string) Command {
	return &mergeCommand{doc: doc, prefix: prefix}
}

type mergeCommand struct {
	doc      *constellation.Document
	prefix   string
	snapshot *constellation.Document
}

func (cmd *mergeCommand) Name() string { return CmdMerge }

func (cmd *mergeCommand) Apply(c *constellation.Constellation) (any, error) {
	snap := c.ToDocument()
	added, err := c.Merge(cmd.doc, cmd.prefix)
	if err != nil {
		return nil, err
	}
	cmd.snapshot = snap
	return added, nil
}

func (cmd *mergeCommand) Revert(c *constellation.Constellation) error {
	if cmd.snapshot == nil {
		return errors.NewStateError("nothing to revert", errors.ErrRevertFailed).
			WithResource("constellation", c.ID()).WithOperation(CmdMerge)
	}
	return c.Restore(cmd.snapshot)
}

// -----------------------------------------------------------------------------
// subgraph
// -----------------------------------------------------------------------------

// Subgraph returns a command that projects the constellation down to the
// given tasks, keeping only lines with both endpoints inside the subset.
func Subgraph(keep ...string) Command {
	return &subgraphCommand{keep: keep}
}

type subgraphCommand struct {
	keep     []string
	snapshot *constellation.Document
}

func (cmd *subgraphCommand) Name() string { return CmdSubgraph }

func (cmd *subgraphCommand) Apply(c *constellation.Constellation) (any, error) {
	snap := c.ToDocument()
	if err := c.Subgraph(cmd.keep); err != nil {
		return nil, err
	}
	cmd.snapshot = snap
	return append([]string(nil), cmd.keep...), nil
}

func (cmd *subgraphCommand) Revert(c *constellation.Constellation) error {
	if cmd.snapshot == nil {
		return errors.NewStateError("nothing to revert", errors.ErrRevertFailed).
			WithResource("constellation", c.ID()).WithOperation(CmdSubgraph)
	}
	return c.Restore(cmd.snapshot)
}

// -----------------------------------------------------------------------------
// load
// -----------------------------------------------------------------------------

// Load returns a command that replaces the constellation's contents from a
// serialized document. The live constellation keeps its own identity.
func Load(data []byte) Command {
	return &loadCommand{data: data}
}

type loadCommand struct {
	data     []byte
	snapshot *constellation.Document
}

func (cmd *loadCommand) Name() string { return CmdLoad }

func (cmd *loadCommand) Apply(c *constellation.Constellation) (any, error) {
	doc, err := constellation.DecodeDocument(cmd.data)
	if err != nil {
		return nil, err
	}
	snap := c.ToDocument()
	if err := c.Restore(doc); err != nil {
		return nil, err
	}
	cmd.snapshot = snap
	return len(doc.TaskRecords), nil
}

func (cmd *loadCommand) Revert(c *constellation.Constellation) error {
	if cmd.snapshot == nil {
		return errors.NewStateError("nothing to revert", errors.ErrRevertFailed).
			WithResource("constellation", c.ID()).WithOperation(CmdLoad)
	}
	return c.Restore(cmd.snapshot)
}
