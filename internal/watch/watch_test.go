package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/editor"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/event"
	"github.com/starweaver/starweaver/internal/ids"
)

// ---- helpers ----

func testConstellation(t *testing.T, name string) *constellation.Constellation {
	t.Helper()
	return constellation.New(name, constellation.WithAllocator(ids.NewManager()))
}

func addTask(t *testing.T, c *constellation.Constellation, id string) {
	t.Helper()
	if err := c.AddTask(constellation.NewTask(id, "task "+id, "do "+id)); err != nil {
		t.Fatalf("AddTask(%s): %v", id, err)
	}
}

func addLine(t *testing.T, c *constellation.Constellation, id, from, to string) {
	t.Helper()
	l := constellation.NewLine(id, from, to, constellation.KindUnconditional)
	if err := c.AddLine(l); err != nil {
		t.Fatalf("AddLine(%s): %v", id, err)
	}
}

func newEditor(t *testing.T, c *constellation.Constellation) *editor.Editor {
	t.Helper()
	ed, err := editor.New(c)
	if err != nil {
		t.Fatalf("editor.New: %v", err)
	}
	return ed
}

// writePlan serializes a constellation built by the callback into path.
func writePlan(t *testing.T, path string, build func(c *constellation.Constellation)) {
	t.Helper()
	plan := testConstellation(t, "plan")
	build(plan)
	data, err := plan.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newWatcher(t *testing.T, path string, ed *editor.Editor, opts ...Option) (*Watcher, *event.Bus, *recorder) {
	t.Helper()
	bus := event.NewBus(nil)
	t.Cleanup(bus.Close)
	rec := record(t, bus)
	w, err := New(path, ed, bus, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, bus, rec
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

// recorder collects constellation.modified events.
type recorder struct {
	mu     sync.Mutex
	events []event.ConstellationModifiedEvent
}

func record(t *testing.T, bus *event.Bus) *recorder {
	t.Helper()
	rec := &recorder{}
	_, err := bus.SubscribeTypes(func(e event.Event) {
		if ev, ok := e.(event.ConstellationModifiedEvent); ok {
			rec.mu.Lock()
			rec.events = append(rec.events, ev)
			rec.mu.Unlock()
		}
	}, event.TypeConstellationModified)
	if err != nil {
		t.Fatalf("SubscribeTypes: %v", err)
	}
	return rec
}

func (rec *recorder) snapshot() []event.ConstellationModifiedEvent {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]event.ConstellationModifiedEvent(nil), rec.events...)
}

// ---- one-shot reconciles ----

func TestSyncAddsTasksAndLines(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")
	addTask(t, c, "B")
	addLine(t, c, "l1", "A", "B")

	path := filepath.Join(t.TempDir(), "plan.json")
	writePlan(t, path, func(plan *constellation.Constellation) {
		addTask(t, plan, "A")
		addTask(t, plan, "B")
		addTask(t, plan, "C")
		addLine(t, plan, "l1", "A", "B")
		addLine(t, plan, "l2", "B", "C")
	})

	w, bus, rec := newWatcher(t, path, newEditor(t, c))
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	bus.Drain()

	if !c.HasTask("C") {
		t.Error("task C not added")
	}
	if _, err := c.Line("l2"); err != nil {
		t.Errorf("line l2 not added: %v", err)
	}

	events := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("modified events = %d, want 1", len(events))
	}
	if events[0].OnTaskID != "" {
		t.Errorf("OnTaskID = %q, want empty for out-of-band edits", events[0].OnTaskID)
	}
	if events[0].Command != editor.CmdMerge {
		t.Errorf("Command = %q, want %q", events[0].Command, editor.CmdMerge)
	}

	stats := w.Stats()
	if stats.Syncs != 1 || stats.Applied != 1 || stats.Rejected != 0 {
		t.Errorf("stats = %+v, want one sync with one applied command", stats)
	}
}

func TestSyncRemovesVanishedItems(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")
	addTask(t, c, "B")
	addTask(t, c, "C")
	addLine(t, c, "l1", "A", "B")
	addLine(t, c, "l2", "B", "C")

	path := filepath.Join(t.TempDir(), "plan.json")
	writePlan(t, path, func(plan *constellation.Constellation) {
		addTask(t, plan, "A")
		addTask(t, plan, "B")
		addLine(t, plan, "l1", "A", "B")
	})

	w, bus, rec := newWatcher(t, path, newEditor(t, c))
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	bus.Drain()

	if c.HasTask("C") {
		t.Error("task C still present")
	}
	if _, err := c.Line("l2"); err == nil {
		t.Error("line l2 still present")
	}
	if !c.HasTask("A") || !c.HasTask("B") {
		t.Error("surviving tasks were removed")
	}

	events := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("modified events = %d, want 1", len(events))
	}
	want := editor.CmdRemoveDependency + "," + editor.CmdRemoveTask
	if events[0].Command != want {
		t.Errorf("Command = %q, want %q", events[0].Command, want)
	}
	if stats := w.Stats(); stats.Applied != 2 {
		t.Errorf("Applied = %d, want 2", stats.Applied)
	}
}

func TestSyncSkipsRunningTaskRemoval(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")
	addTask(t, c, "B")
	if err := c.StartTask("A"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	path := filepath.Join(t.TempDir(), "plan.json")
	writePlan(t, path, func(plan *constellation.Constellation) {
		addTask(t, plan, "B")
	})

	w, bus, rec := newWatcher(t, path, newEditor(t, c))
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	bus.Drain()

	if !c.HasTask("A") {
		t.Error("running task A was removed")
	}
	stats := w.Stats()
	if stats.Rejected != 1 || stats.Applied != 0 {
		t.Errorf("stats = %+v, want the removal rejected", stats)
	}
	if events := rec.snapshot(); len(events) != 0 {
		t.Errorf("modified events = %d, want none when nothing landed", len(events))
	}
}

func TestSyncNoChanges(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")
	addTask(t, c, "B")
	addLine(t, c, "l1", "A", "B")

	path := filepath.Join(t.TempDir(), "plan.json")
	writePlan(t, path, func(plan *constellation.Constellation) {
		addTask(t, plan, "A")
		addTask(t, plan, "B")
		addLine(t, plan, "l1", "A", "B")
	})

	w, bus, rec := newWatcher(t, path, newEditor(t, c))
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	bus.Drain()

	if events := rec.snapshot(); len(events) != 0 {
		t.Errorf("modified events = %d, want none", len(events))
	}
	stats := w.Stats()
	if stats.Syncs != 1 || stats.Applied != 0 || stats.Rejected != 0 {
		t.Errorf("stats = %+v, want a clean no-op sync", stats)
	}
}

func TestSyncRejectsEmptyPlan(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")

	path := filepath.Join(t.TempDir(), "plan.json")
	writePlan(t, path, func(*constellation.Constellation) {})

	w, _, _ := newWatcher(t, path, newEditor(t, c))
	err := w.Sync()
	if !errors.Is(err, errors.ErrEmptyConstellation) {
		t.Fatalf("Sync error = %v, want ErrEmptyConstellation", err)
	}
	if !c.HasTask("A") {
		t.Error("live graph was touched by an empty plan")
	}
	if stats := w.Stats(); stats.LoadErrors != 1 || stats.Syncs != 0 {
		t.Errorf("stats = %+v, want one load error and no syncs", stats)
	}
}

func TestSyncLoadFailures(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		w, _, _ := newWatcher(t, filepath.Join(dir, "absent.json"), newEditor(t, c))
		if err := w.Sync(); err == nil {
			t.Fatal("Sync succeeded on a missing file")
		}
		if stats := w.Stats(); stats.LoadErrors != 1 {
			t.Errorf("LoadErrors = %d, want 1", stats.LoadErrors)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		w, _, _ := newWatcher(t, path, newEditor(t, c))
		if err := w.Sync(); err == nil {
			t.Fatal("Sync succeeded on unparseable JSON")
		}
		if stats := w.Stats(); stats.LoadErrors != 1 {
			t.Errorf("LoadErrors = %d, want 1", stats.LoadErrors)
		}
	})
}

// ---- the watch loop ----

func TestWatcherAppliesWrite(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")

	path := filepath.Join(t.TempDir(), "plan.json")
	w, _, _ := newWatcher(t, path, newEditor(t, c), WithDebounce(20*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)

	// The file appears after the watcher is already running.
	writePlan(t, path, func(plan *constellation.Constellation) {
		addTask(t, plan, "A")
		addTask(t, plan, "C")
		addLine(t, plan, "l2", "A", "C")
	})

	waitFor(t, 3*time.Second, func() bool { return c.HasTask("C") },
		"task C never arrived from the plan file")
	if _, err := c.Line("l2"); err != nil {
		t.Errorf("line l2 not added: %v", err)
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")

	path := filepath.Join(t.TempDir(), "plan.json")
	w, _, _ := newWatcher(t, path, newEditor(t, c), WithDebounce(250*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)

	// Editors fire several events per save; a burst must reconcile once.
	for i := 0; i < 5; i++ {
		writePlan(t, path, func(plan *constellation.Constellation) {
			addTask(t, plan, "A")
			addTask(t, plan, "C")
		})
	}

	waitFor(t, 3*time.Second, func() bool { return c.HasTask("C") },
		"task C never arrived from the plan file")
	if stats := w.Stats(); stats.Syncs > 2 {
		t.Errorf("Syncs = %d after one burst, want the writes coalesced", stats.Syncs)
	}
}

func TestWatcherInitialSync(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")

	path := filepath.Join(t.TempDir(), "plan.json")
	writePlan(t, path, func(plan *constellation.Constellation) {
		addTask(t, plan, "A")
		addTask(t, plan, "C")
	})

	w, _, _ := newWatcher(t, path, newEditor(t, c))
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)

	// The file predates Start, so the reconcile is immediate.
	if !c.HasTask("C") {
		t.Error("existing plan file not applied on Start")
	}
}

func TestWatcherStartStop(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")

	path := filepath.Join(t.TempDir(), "plan.json")
	w, _, _ := newWatcher(t, path, newEditor(t, c))

	w.Stop() // before Start: no-op

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !w.Running() {
		t.Fatal("Running() = false after Start")
	}

	err := w.Start()
	var stateErr *errors.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("second Start error = %v, want StateError", err)
	}

	w.Stop()
	if w.Running() {
		t.Fatal("Running() = true after Stop")
	}
	w.Stop() // idempotent
}

func TestNewValidation(t *testing.T) {
	c := testConstellation(t, "live")
	addTask(t, c, "A")
	ed := newEditor(t, c)
	bus := event.NewBus(nil)
	t.Cleanup(bus.Close)

	tests := []struct {
		name string
		path string
		ed   *editor.Editor
		bus  *event.Bus
	}{
		{"empty path", "", ed, bus},
		{"nil editor", "plan.json", nil, bus},
		{"nil bus", "plan.json", ed, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.path, tc.ed, tc.bus)
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("New error = %v, want ValidationError", err)
			}
		})
	}
}
