package device

import (
	"testing"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/ids"
)

func testConstellation(t *testing.T, taskIDs ...string) *constellation.Constellation {
	t.Helper()
	c := constellation.New("assign-test", constellation.WithAllocator(ids.NewManager()))
	for _, id := range taskIDs {
		task := constellation.NewTask(id, "task "+id, "do "+id)
		if err := c.AddTask(task); err != nil {
			t.Fatalf("AddTask(%s): %v", id, err)
		}
	}
	return c
}

func testFleet(t *testing.T, infos ...Info) *SimManager {
	t.Helper()
	m := NewSimManager()
	for _, info := range infos {
		m.Connect(info)
	}
	return m
}

func TestNewAssignerRequiresCollaborator(t *testing.T) {
	if _, err := NewAssigner(nil); err == nil {
		t.Fatal("NewAssigner(nil) succeeded")
	}
}

func TestEnsureAssignmentsRoundRobin(t *testing.T) {
	fleet := testFleet(t,
		dev("dev-1", constellation.DeviceLinux),
		dev("dev-2", constellation.DeviceLinux),
	)
	a, err := NewAssigner(fleet)
	if err != nil {
		t.Fatalf("NewAssigner: %v", err)
	}

	c := testConstellation(t, "t1", "t2", "t3")
	assigned, err := a.EnsureAssignments(c)
	if err != nil {
		t.Fatalf("EnsureAssignments: %v", err)
	}

	want := map[string]string{"t1": "dev-1", "t2": "dev-2", "t3": "dev-1"}
	if len(assigned) != len(want) {
		t.Fatalf("assigned %d tasks, want %d: %v", len(assigned), len(want), assigned)
	}
	for taskID, deviceID := range want {
		if assigned[taskID] != deviceID {
			t.Errorf("assigned[%s] = %s, want %s", taskID, assigned[taskID], deviceID)
		}
		task, err := c.Task(taskID)
		if err != nil {
			t.Fatalf("Task(%s): %v", taskID, err)
		}
		if task.TargetDeviceID != deviceID {
			t.Errorf("task %s target = %q, want %q", taskID, task.TargetDeviceID, deviceID)
		}
	}
}

func TestEnsureAssignmentsKeepsPins(t *testing.T) {
	fleet := testFleet(t, dev("dev-1", constellation.DeviceLinux))
	a, err := NewAssigner(fleet)
	if err != nil {
		t.Fatalf("NewAssigner: %v", err)
	}

	// The pinned device is not connected; pins are trusted as-is.
	c := testConstellation(t, "t1", "t2")
	if err := c.SetTaskDevice("t2", "offline-9"); err != nil {
		t.Fatalf("SetTaskDevice: %v", err)
	}

	assigned, err := a.EnsureAssignments(c)
	if err != nil {
		t.Fatalf("EnsureAssignments: %v", err)
	}
	if _, ok := assigned["t2"]; ok {
		t.Error("EnsureAssignments should not touch a pinned task")
	}

	task, err := c.Task("t2")
	if err != nil {
		t.Fatalf("Task(t2): %v", err)
	}
	if task.TargetDeviceID != "offline-9" {
		t.Errorf("pin overwritten: target = %q", task.TargetDeviceID)
	}
}

func TestEnsureAssignmentsSkipsTerminalTasks(t *testing.T) {
	fleet := testFleet(t, dev("dev-1", constellation.DeviceLinux))
	a, err := NewAssigner(fleet)
	if err != nil {
		t.Fatalf("NewAssigner: %v", err)
	}

	c := testConstellation(t, "t1", "t2")
	if _, err := c.CancelTask("t2", "operator request"); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}

	assigned, err := a.EnsureAssignments(c)
	if err != nil {
		t.Fatalf("EnsureAssignments: %v", err)
	}
	if _, ok := assigned["t2"]; ok {
		t.Error("EnsureAssignments should skip a cancelled task")
	}

	task, err := c.Task("t2")
	if err != nil {
		t.Fatalf("Task(t2): %v", err)
	}
	if task.TargetDeviceID != "" {
		t.Errorf("cancelled task was assigned device %q", task.TargetDeviceID)
	}
}

func TestPickHonorsPreference(t *testing.T) {
	fleet := testFleet(t,
		dev("dev-1", constellation.DeviceLinux),
		dev("dev-2", constellation.DeviceAndroid),
	)
	a, err := NewAssigner(fleet, WithPreferences(map[string]string{"t1": "dev-2"}))
	if err != nil {
		t.Fatalf("NewAssigner: %v", err)
	}

	picked, err := a.Pick(taskOfType("t1", ""))
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if picked.ID != "dev-2" {
		t.Errorf("Pick = %s, want dev-2", picked.ID)
	}
}

func TestPickIgnoresDisconnectedPreference(t *testing.T) {
	fleet := testFleet(t,
		dev("dev-1", constellation.DeviceLinux),
		dev("dev-2", constellation.DeviceLinux),
	)
	a, err := NewAssigner(fleet)
	if err != nil {
		t.Fatalf("NewAssigner: %v", err)
	}
	a.SetPreference("t1", "ghost-7")

	picked, err := a.Pick(taskOfType("t1", ""))
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if picked.ID != "dev-1" {
		t.Errorf("Pick = %s, want strategy fallback dev-1", picked.ID)
	}
}

func TestPreferenceCountsTowardLoad(t *testing.T) {
	fleet := testFleet(t,
		dev("dev-1", constellation.DeviceLinux),
		dev("dev-2", constellation.DeviceLinux),
	)
	strategy, err := NewStrategy(StrategyLoadBalance)
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	a, err := NewAssigner(fleet,
		WithStrategy(strategy),
		WithPreferences(map[string]string{"t1": "dev-1"}))
	if err != nil {
		t.Fatalf("NewAssigner: %v", err)
	}

	first, err := a.Pick(taskOfType("t1", ""))
	if err != nil {
		t.Fatalf("Pick(t1): %v", err)
	}
	if first.ID != "dev-1" {
		t.Fatalf("Pick(t1) = %s, want preferred dev-1", first.ID)
	}

	// The preference hit counted against dev-1, so the balancer goes elsewhere.
	second, err := a.Pick(taskOfType("t2", ""))
	if err != nil {
		t.Fatalf("Pick(t2): %v", err)
	}
	if second.ID != "dev-2" {
		t.Errorf("Pick(t2) = %s, want dev-2", second.ID)
	}
}

func TestPickNoDevices(t *testing.T) {
	a, err := NewAssigner(NewSimManager())
	if err != nil {
		t.Fatalf("NewAssigner: %v", err)
	}

	_, err = a.Pick(taskOfType("t1", ""))
	if err == nil {
		t.Fatal("Pick with an empty fleet succeeded")
	}
	if !errors.Is(err, errors.ErrNoDevicesConnected) {
		t.Errorf("error should wrap ErrNoDevicesConnected, got %v", err)
	}

	var assignErr *errors.AssignmentError
	if !errors.As(err, &assignErr) {
		t.Fatalf("error should be an AssignmentError, got %T", err)
	}
	if assignErr.TaskID != "t1" {
		t.Errorf("TaskID = %q, want t1", assignErr.TaskID)
	}
}

func TestEnsureAssignmentsNoDevices(t *testing.T) {
	a, err := NewAssigner(NewSimManager())
	if err != nil {
		t.Fatalf("NewAssigner: %v", err)
	}

	c := testConstellation(t, "t1")
	if _, err := a.EnsureAssignments(c); !errors.Is(err, errors.ErrNoDevicesConnected) {
		t.Errorf("EnsureAssignments error = %v, want ErrNoDevicesConnected", err)
	}
}
