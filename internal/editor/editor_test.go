package editor

import (
	"testing"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/ids"
)

func testConstellation(t *testing.T) *constellation.Constellation {
	t.Helper()
	return constellation.New("edit-test", constellation.WithAllocator(ids.NewManager()))
}

func testEditor(t *testing.T, opts ...Option) (*Editor, *constellation.Constellation) {
	t.Helper()
	c := testConstellation(t)
	ed, err := New(c, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ed, c
}

func addTask(t *testing.T, c *constellation.Constellation, id, name string) string {
	t.Helper()
	task := constellation.NewTask(id, name, name)
	if err := c.AddTask(task); err != nil {
		t.Fatalf("AddTask(%s): %v", id, err)
	}
	return task.ID
}

func mustApply(t *testing.T, ed *Editor, cmd Command) any {
	t.Helper()
	result, err := ed.Apply(cmd)
	if err != nil {
		t.Fatalf("Apply(%s): %v", cmd.Name(), err)
	}
	return result
}

func TestNewRequiresConstellation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) succeeded")
	}
}

func TestApplyPushesUndo(t *testing.T) {
	ed, c := testEditor(t)

	result := mustApply(t, ed, AddTask(constellation.NewTask("", "fetch", "fetch the feed")))
	id, ok := result.(string)
	if !ok || id == "" {
		t.Fatalf("add_task result = %#v, want task ID", result)
	}
	if !c.HasTask(id) {
		t.Fatalf("task %s not added", id)
	}
	if !ed.CanUndo() {
		t.Error("CanUndo = false after apply")
	}
	if ed.CanRedo() {
		t.Error("CanRedo = true after apply")
	}
}

func TestApplyNilCommand(t *testing.T) {
	ed, _ := testEditor(t)
	if _, err := ed.Apply(nil); err == nil {
		t.Fatal("Apply(nil) succeeded")
	}
}

func TestApplyRevertsOnFailedValidation(t *testing.T) {
	ed, c := testEditor(t)
	id := addTask(t, c, "", "solo")

	// Removing the last task leaves the constellation empty, which only an
	// explicit clear may do. The command must be rolled back.
	_, err := ed.Apply(RemoveTask(id))
	if err == nil {
		t.Fatal("removing the last task passed validation")
	}
	if !errors.Is(err, errors.ErrConstellationInvalid) {
		t.Errorf("error = %v, want ErrConstellationInvalid", err)
	}
	if !c.HasTask(id) {
		t.Error("task not restored after failed validation")
	}
	if ed.CanUndo() {
		t.Error("failed command landed on the undo stack")
	}
}

func TestClearMayEmptyTheConstellation(t *testing.T) {
	ed, c := testEditor(t)
	addTask(t, c, "", "a")
	addTask(t, c, "", "b")

	result := mustApply(t, ed, Clear())
	if n, ok := result.(int); !ok || n != 2 {
		t.Errorf("clear result = %#v, want 2", result)
	}
	if c.TaskCount() != 0 {
		t.Errorf("TaskCount = %d after clear", c.TaskCount())
	}

	// Undo brings everything back.
	if _, err := ed.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if c.TaskCount() != 2 {
		t.Errorf("TaskCount = %d after undo, want 2", c.TaskCount())
	}
}

func TestUndoRedoWalk(t *testing.T) {
	ed, c := testEditor(t)

	a := mustApply(t, ed, AddTask(constellation.NewTask("", "a", "a"))).(string)
	b := mustApply(t, ed, AddTask(constellation.NewTask("", "b", "b"), a)).(string)

	if c.TaskCount() != 2 || c.LineCount() != 1 {
		t.Fatalf("setup: %d tasks, %d lines", c.TaskCount(), c.LineCount())
	}

	// Undo the dependent add: task b and its line go away together.
	name, err := ed.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if name != CmdAddTask {
		t.Errorf("undone command = %q, want %q", name, CmdAddTask)
	}
	if c.HasTask(b) || c.LineCount() != 0 {
		t.Error("undo left task b or its line behind")
	}
	if !ed.CanRedo() {
		t.Error("CanRedo = false after undo")
	}

	// Redo restores both.
	if _, err := ed.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if !c.HasTask(b) || c.LineCount() != 1 {
		t.Error("redo did not restore task b and its line")
	}
}

func TestUndoRedoEmptyStacks(t *testing.T) {
	ed, _ := testEditor(t)

	if _, err := ed.Undo(); err == nil {
		t.Error("Undo on empty stack succeeded")
	}
	if _, err := ed.Redo(); err == nil {
		t.Error("Redo on empty stack succeeded")
	}
}

func TestApplyClearsRedoStack(t *testing.T) {
	ed, _ := testEditor(t)

	mustApply(t, ed, AddTask(constellation.NewTask("", "a", "a")))
	mustApply(t, ed, AddTask(constellation.NewTask("", "b", "b")))
	if _, err := ed.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if !ed.CanRedo() {
		t.Fatal("CanRedo = false after undo")
	}

	mustApply(t, ed, AddTask(constellation.NewTask("", "c", "c")))
	if ed.CanRedo() {
		t.Error("redo stack survived a fresh apply")
	}
}

func TestUndoStackBounded(t *testing.T) {
	ed, _ := testEditor(t, WithMaxDepth(3))

	for i := 0; i < 5; i++ {
		mustApply(t, ed, AddTask(constellation.NewTask("", "t", "t")))
	}
	if got := ed.UndoDepth(); got != 3 {
		t.Fatalf("UndoDepth = %d, want 3", got)
	}

	for i := 0; i < 3; i++ {
		if _, err := ed.Undo(); err != nil {
			t.Fatalf("Undo %d: %v", i, err)
		}
	}
	if _, err := ed.Undo(); err == nil {
		t.Error("undo succeeded past the bounded history")
	}
}

func TestObserversSeeApplyUndoRedo(t *testing.T) {
	ed, _ := testEditor(t)

	type call struct {
		command string
		result  any
	}
	var calls []call
	ed.Observe(func(command string, result any) {
		calls = append(calls, call{command, result})
	})

	id := mustApply(t, ed, AddTask(constellation.NewTask("", "a", "a"))).(string)
	if _, err := ed.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := ed.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}

	want := []call{
		{CmdAddTask, id},
		{CmdAddTask, nil},
		{CmdAddTask, id},
	}
	if len(calls) != len(want) {
		t.Fatalf("observer calls = %d, want %d", len(calls), len(want))
	}
	for i, w := range want {
		if calls[i] != w {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], w)
		}
	}
}

func TestApplyNamed(t *testing.T) {
	ed, c := testEditor(t)
	a := addTask(t, c, "", "upstream")

	result, err := ed.ApplyNamed(CmdAddTask, map[string]any{
		"name":         "report",
		"description":  "write the report",
		"priority":     "critical",
		"retry_count":  2,
		"dependencies": []string{a},
	})
	if err != nil {
		t.Fatalf("ApplyNamed: %v", err)
	}
	id := result.(string)

	task, err := c.Task(id)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if task.Priority != constellation.PriorityCritical {
		t.Errorf("Priority = %v, want CRITICAL", task.Priority)
	}
	if task.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", task.RetryCount)
	}
	if got := task.Dependencies(); len(got) != 1 || got[0] != a {
		t.Errorf("Dependencies = %v, want [%s]", got, a)
	}
}

func TestApplyNamedUnknownCommand(t *testing.T) {
	ed, _ := testEditor(t)
	if _, err := ed.ApplyNamed("definitely_not_a_command", nil); err == nil {
		t.Fatal("unknown command name accepted")
	}
}

func TestCommandNamesComplete(t *testing.T) {
	names := CommandNames()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{
		CmdAddTask, CmdRemoveTask, CmdUpdateTask,
		CmdAddDependency, CmdRemoveDependency, CmdUpdateDependency,
		CmdClear, CmdBulkBuild, CmdMerge, CmdSubgraph, CmdLoad,
	} {
		if !seen[want] {
			t.Errorf("CommandNames() missing %q", want)
		}
	}
}

func TestRegisterCommandReplaces(t *testing.T) {
	RegisterCommand("custom_noop", func(map[string]any) (Command, error) {
		return Clear(), nil
	})
	if _, ok := LookupCommand("custom_noop"); !ok {
		t.Fatal("custom command not registered")
	}
}
