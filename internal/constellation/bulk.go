package constellation

import (
	"github.com/starweaver/starweaver/internal/errors"
)

// Clear removes every task and line, returning the constellation to CREATED.
// Refused while any task is running.
func (c *Constellation) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.tasks {
		if t.Status == StatusRunning {
			return errors.NewStateError("cannot clear constellation", errors.ErrTaskRunning).
				WithResource("task", t.ID).WithState(string(t.Status)).WithOperation("clear")
		}
	}
	c.tasks = make(map[string]*Task)
	c.lines = make(map[string]*Line)
	c.taskOrder = nil
	c.lineOrder = nil
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// Subgraph projects the constellation down to the given task subset, keeping
// only lines with both endpoints inside. Every listed ID must exist; removing
// a running task is refused, so an in-flight attempt can never be orphaned.
func (c *Constellation) Subgraph(keep []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		if _, ok := c.tasks[id]; !ok {
			return errors.NewNotFoundError("task", id)
		}
		keepSet[id] = true
	}
	for _, id := range c.taskOrder {
		t := c.tasks[id]
		if !keepSet[id] && t.Status == StatusRunning {
			return errors.NewStateError("cannot project out running task", errors.ErrTaskRunning).
				WithResource("task", id).WithState(string(t.Status)).WithOperation("subgraph")
		}
	}

	newTasks := make(map[string]*Task, len(keepSet))
	var newTaskOrder []string
	for _, id := range c.taskOrder {
		if keepSet[id] {
			newTasks[id] = c.tasks[id]
			newTaskOrder = append(newTaskOrder, id)
		}
	}

	newLines := make(map[string]*Line)
	var newLineOrder []string
	for _, id := range c.lineOrder {
		l := c.lines[id]
		if keepSet[l.FromTaskID] && keepSet[l.ToTaskID] {
			newLines[id] = l
			newLineOrder = append(newLineOrder, id)
		}
	}

	c.tasks = newTasks
	c.lines = newLines
	c.taskOrder = newTaskOrder
	c.lineOrder = newLineOrder
	c.rebuildDenormalizedLocked()
	c.touchLocked()
	c.recomputeStateLocked()
	return nil
}

// AddBatch adds tasks and lines as one transaction: on any failure everything
// already added is rolled back and the constellation is unchanged. Lines may
// reference both batch tasks and existing ones. Returns the added task and
// line IDs in input order.
func (c *Constellation) AddBatch(tasks []*Task, lines []*Line) (taskIDs, lineIDs []string, err error) {
	defer func() {
		if err == nil {
			return
		}
		for i := len(lineIDs) - 1; i >= 0; i-- {
			_ = c.RemoveLine(lineIDs[i])
		}
		for i := len(taskIDs) - 1; i >= 0; i-- {
			_ = c.RemoveTask(taskIDs[i])
		}
		taskIDs, lineIDs = nil, nil
	}()

	for _, t := range tasks {
		if err = c.AddTask(t); err != nil {
			return taskIDs, lineIDs, err
		}
		taskIDs = append(taskIDs, t.ID)
	}
	for _, l := range lines {
		if err = c.AddLine(l); err != nil {
			return taskIDs, lineIDs, err
		}
		lineIDs = append(lineIDs, l.ID)
	}
	return taskIDs, lineIDs, nil
}

// Merge imports another constellation's document into this one. Task IDs
// that collide are rewritten as prefix+ID (line endpoints follow); colliding
// or empty line IDs are minted fresh. The import is transactional. Returns
// the IDs the merged tasks ended up with, in document order.
func (c *Constellation) Merge(d *Document, prefix string) ([]string, error) {
	if d == nil {
		return nil, errors.NewValidationError("document must not be nil").WithField("document")
	}
	if prefix == "" {
		prefix = "merged_"
	}

	idMap := make(map[string]string, len(d.TaskRecords))
	var tasks []*Task
	for _, rec := range d.TaskRecords {
		t := rec.toTask()
		if t.ID == "" {
			t.ID = c.NextTaskID()
		} else if c.HasTask(t.ID) {
			renamed := prefix + t.ID
			if c.HasTask(renamed) {
				return nil, errors.NewAlreadyExistsError("task", renamed)
			}
			t.ID = renamed
		}
		if rec.TaskID != "" {
			idMap[rec.TaskID] = t.ID
		}
		tasks = append(tasks, t)
	}

	var lines []*Line
	for _, rec := range d.LineRecords {
		l := rec.toLine()
		if mapped, ok := idMap[l.FromTaskID]; ok {
			l.FromTaskID = mapped
		}
		if mapped, ok := idMap[l.ToTaskID]; ok {
			l.ToTaskID = mapped
		}
		// Line IDs carry no references, so a fresh ID is always safe.
		if l.ID == "" || c.hasLine(l.ID) {
			l.ID = ""
		}
		lines = append(lines, l)
	}

	addedTasks, _, err := c.AddBatch(tasks, lines)
	if err != nil {
		return nil, err
	}
	return addedTasks, nil
}

func (c *Constellation) hasLine(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.lines[id]
	return ok
}
