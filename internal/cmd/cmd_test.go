package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// captureOutput captures stdout during function execution
func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Command flag variables are package globals, so tests that execute commands
// reset them first to stay order-independent.
func resetRunFlags() {
	runFleet = ""
	runStrategy = ""
	runMaxParallel = 0
	runTaskTimeout = 0
	runAssign = nil
	runWatch = false
	runNoSave = false
	runJSON = false
	runQuiet = false
}

func resetLogsFlags() {
	logsTail = 50
	logsFollow = false
	logsLevel = ""
	logsTask = ""
	logsConstellation = ""
	logsComponent = ""
	logsSince = ""
	logsGrep = ""
	logsExport = ""
	logsFormat = "json"
}

func writePlanFile(t *testing.T, dir string) string {
	t.Helper()

	plan := `{
  "constellation_id": "c-cli-test",
  "name": "cli test plan",
  "tasks": [
    {"task_id": "task_001", "name": "first", "description": "first step", "priority": "HIGH"},
    {"task_id": "task_002", "name": "second", "description": "second step"}
  ],
  "dependencies": [
    {"line_id": "line_001", "from_task_id": "task_001", "to_task_id": "task_002", "dependency_type": "UNCONDITIONAL"}
  ]
}`
	path := filepath.Join(dir, "plan.json")
	if err := os.WriteFile(path, []byte(plan), 0644); err != nil {
		t.Fatalf("failed to write plan file: %v", err)
	}
	return path
}

func writeFleetFile(t *testing.T, dir string) string {
	t.Helper()

	fleet := `devices:
  - id: android-1
    type: ANDROID
    capabilities: [ui, camera]
  - id: linux-1
    type: LINUX
    capabilities: [shell]
`
	path := filepath.Join(dir, "fleet.yaml")
	if err := os.WriteFile(path, []byte(fleet), 0644); err != nil {
		t.Fatalf("failed to write fleet file: %v", err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd is nil")
	}

	if rootCmd.Use != "starweaver" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "starweaver")
	}

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expectedCmds := []string{"run", "validate", "inspect", "devices", "snapshots", "logs"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}

	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	validateJSON = false
	plan := writePlanFile(t, t.TempDir())

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "validate", plan)
	})
	if err != nil {
		t.Fatalf("validate failed: %v\nOutput: %s", err, output)
	}

	if !strings.Contains(output, "OK") {
		t.Errorf("output should contain verdict OK, got: %s", output)
	}
	if !strings.Contains(output, "task_001") || !strings.Contains(output, "task_002") {
		t.Errorf("output should list the execution order, got: %s", output)
	}
}

func TestValidateCommand_JSON(t *testing.T) {
	validateJSON = false
	plan := writePlanFile(t, t.TempDir())

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "validate", plan, "--json")
	})
	if err != nil {
		t.Fatalf("validate --json failed: %v", err)
	}

	var verdict struct {
		Valid bool     `json:"valid"`
		Tasks int      `json:"tasks"`
		Lines int      `json:"lines"`
		Order []string `json:"order"`
	}
	if err := json.Unmarshal([]byte(output), &verdict); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, output)
	}
	if !verdict.Valid {
		t.Error("verdict should be valid")
	}
	if verdict.Tasks != 2 || verdict.Lines != 1 {
		t.Errorf("verdict counts = %d tasks, %d lines, want 2 and 1", verdict.Tasks, verdict.Lines)
	}
	if len(verdict.Order) != 2 || verdict.Order[0] != "task_001" {
		t.Errorf("verdict order = %v, want task_001 first", verdict.Order)
	}
}

func TestValidateCommand_BadPlan(t *testing.T) {
	validateJSON = false
	dir := t.TempDir()

	// A dependency referencing a task that does not exist
	plan := `{
  "constellation_id": "c-bad",
  "name": "bad plan",
  "tasks": [
    {"task_id": "task_001", "name": "only", "description": "only task"}
  ],
  "dependencies": [
    {"line_id": "line_001", "from_task_id": "task_001", "to_task_id": "task_999"}
  ]
}`
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(plan), 0644); err != nil {
		t.Fatalf("failed to write plan: %v", err)
	}

	var err error
	captureOutput(func() {
		_, err = executeCommand(rootCmd, "validate", path)
	})
	if err == nil {
		t.Error("validate should fail for a plan with a dangling dependency")
	}
}

func TestValidateCommand_MissingFile(t *testing.T) {
	validateJSON = false

	var err error
	captureOutput(func() {
		_, err = executeCommand(rootCmd, "validate", filepath.Join(t.TempDir(), "missing.json"))
	})
	if err == nil {
		t.Error("validate should fail for a missing file")
	}
}

func TestInspectCommand(t *testing.T) {
	inspectJSON = false
	plan := writePlanFile(t, t.TempDir())

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "inspect", plan)
	})
	if err != nil {
		t.Fatalf("inspect failed: %v\nOutput: %s", err, output)
	}

	for _, want := range []string{"cli test plan", "task_001", "task_002", "Dependencies", "Graph", "Max width"} {
		if !strings.Contains(output, want) {
			t.Errorf("inspect output missing %q, got: %s", want, output)
		}
	}
}

func TestInspectCommand_JSON(t *testing.T) {
	inspectJSON = false
	plan := writePlanFile(t, t.TempDir())

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "inspect", plan, "--json")
	})
	if err != nil {
		t.Fatalf("inspect --json failed: %v", err)
	}

	// The canonical wire form keys tasks by ID
	var doc struct {
		ConstellationID string         `json:"constellation_id"`
		Tasks           map[string]any `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc.ConstellationID != "c-cli-test" {
		t.Errorf("constellation_id = %q, want c-cli-test", doc.ConstellationID)
	}
	if len(doc.Tasks) != 2 {
		t.Errorf("document has %d tasks, want 2", len(doc.Tasks))
	}
}

func TestDevicesCommand(t *testing.T) {
	devicesFleet = ""
	devicesJSON = false
	fleet := writeFleetFile(t, t.TempDir())

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "devices", "--fleet", fleet)
	})
	if err != nil {
		t.Fatalf("devices failed: %v\nOutput: %s", err, output)
	}

	for _, want := range []string{"android-1", "linux-1", "ANDROID", "camera"} {
		if !strings.Contains(output, want) {
			t.Errorf("devices output missing %q, got: %s", want, output)
		}
	}
}

func TestDevicesCommand_JSON(t *testing.T) {
	devicesFleet = ""
	devicesJSON = false
	fleet := writeFleetFile(t, t.TempDir())

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "devices", "--fleet", fleet, "--json")
	})
	if err != nil {
		t.Fatalf("devices --json failed: %v", err)
	}

	var rows []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(output), &rows); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, output)
	}
	if len(rows) != 2 {
		t.Fatalf("listed %d devices, want 2", len(rows))
	}
	if rows[0].ID != "android-1" || rows[0].Type != "ANDROID" {
		t.Errorf("first device = %+v, want android-1/ANDROID", rows[0])
	}
}

func TestRunCommand(t *testing.T) {
	resetRunFlags()
	dir := t.TempDir()
	plan := writePlanFile(t, dir)
	fleet := writeFleetFile(t, dir)

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "run", plan,
			"--fleet", fleet, "--quiet", "--no-autosave", "--data-dir", dir)
	})
	if err != nil {
		t.Fatalf("run failed: %v\nOutput: %s", err, output)
	}

	if !strings.Contains(output, "Run Summary") {
		t.Errorf("output should contain the summary header, got: %s", output)
	}
	if !strings.Contains(output, "COMPLETED") {
		t.Errorf("run should complete, got: %s", output)
	}
}

func TestRunCommand_JSON(t *testing.T) {
	resetRunFlags()
	dir := t.TempDir()
	plan := writePlanFile(t, dir)
	fleet := writeFleetFile(t, dir)

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "run", plan,
			"--fleet", fleet, "--json", "--no-autosave", "--data-dir", dir)
	})
	if err != nil {
		t.Fatalf("run --json failed: %v\nOutput: %s", err, output)
	}

	var result struct {
		ConstellationID string `json:"constellation_id"`
		Status          string `json:"status"`
		Tasks           map[string]struct {
			Status   string `json:"status"`
			DeviceID string `json:"device_id"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, output)
	}
	if result.Status != "COMPLETED" {
		t.Errorf("status = %q, want COMPLETED", result.Status)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("result has %d tasks, want 2", len(result.Tasks))
	}
	for taskID, tr := range result.Tasks {
		if tr.Status != "COMPLETED" {
			t.Errorf("task %s status = %q, want COMPLETED", taskID, tr.Status)
		}
		if tr.DeviceID == "" {
			t.Errorf("task %s has no device assigned", taskID)
		}
	}
}

func TestRunCommand_PinnedAssignment(t *testing.T) {
	resetRunFlags()
	dir := t.TempDir()
	plan := writePlanFile(t, dir)
	fleet := writeFleetFile(t, dir)

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "run", plan,
			"--fleet", fleet, "--json", "--no-autosave", "--data-dir", dir,
			"--assign", "task_001=linux-1")
	})
	if err != nil {
		t.Fatalf("run with pin failed: %v\nOutput: %s", err, output)
	}

	var result struct {
		Tasks map[string]struct {
			DeviceID string `json:"device_id"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got := result.Tasks["task_001"].DeviceID; got != "linux-1" {
		t.Errorf("task_001 device = %q, want pinned linux-1", got)
	}
}

func TestRunCommand_NoFleet(t *testing.T) {
	resetRunFlags()
	dir := t.TempDir()
	plan := writePlanFile(t, dir)

	var err error
	captureOutput(func() {
		_, err = executeCommand(rootCmd, "run", plan, "--data-dir", dir, "--no-autosave")
	})
	if err == nil {
		t.Error("run without a fleet should fail")
	}
}

func TestSnapshotsCommand(t *testing.T) {
	resetRunFlags()
	snapshotsDelete = false
	snapshotsStore = ""
	dir := t.TempDir()
	plan := writePlanFile(t, dir)
	fleet := writeFleetFile(t, dir)

	// Run with autosave on so the store fills up
	var err error
	captureOutput(func() {
		_, err = executeCommand(rootCmd, "run", plan,
			"--fleet", fleet, "--quiet", "--data-dir", dir)
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	storePath := filepath.Join(dir, "snapshots")
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "snapshots", "--store", storePath)
	})
	if err != nil {
		t.Fatalf("snapshots failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "c-cli-test") {
		t.Errorf("snapshot list should contain the run's constellation, got: %s", output)
	}

	// Dump the snapshot and check it is a loadable document
	output = captureOutput(func() {
		_, err = executeCommand(rootCmd, "snapshots", "c-cli-test", "--store", storePath)
	})
	if err != nil {
		t.Fatalf("snapshot dump failed: %v", err)
	}
	var doc struct {
		ConstellationID string `json:"constellation_id"`
		State           string `json:"state"`
	}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("snapshot dump is not valid JSON: %v", err)
	}
	if doc.ConstellationID != "c-cli-test" {
		t.Errorf("dumped constellation_id = %q, want c-cli-test", doc.ConstellationID)
	}
	if doc.State != "COMPLETED" {
		t.Errorf("dumped state = %q, want COMPLETED", doc.State)
	}

	// Delete it and confirm the store is empty again
	output = captureOutput(func() {
		_, err = executeCommand(rootCmd, "snapshots", "c-cli-test", "--delete", "--store", storePath)
	})
	snapshotsDelete = false
	if err != nil {
		t.Fatalf("snapshot delete failed: %v", err)
	}
	if !strings.Contains(output, "Deleted") {
		t.Errorf("delete should confirm, got: %s", output)
	}

	output = captureOutput(func() {
		_, err = executeCommand(rootCmd, "snapshots", "--store", storePath)
	})
	if err != nil {
		t.Fatalf("snapshots after delete failed: %v", err)
	}
	if !strings.Contains(output, "No snapshots stored") {
		t.Errorf("store should be empty after delete, got: %s", output)
	}
}

func TestLogsCommand_NoLogs(t *testing.T) {
	resetLogsFlags()
	dir := t.TempDir()

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "logs", "--data-dir", dir)
	})
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(output, "No logs found") {
		t.Errorf("logs should report missing log file, got: %s", output)
	}
}

func TestLogsCommand_LevelFilter(t *testing.T) {
	resetLogsFlags()
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		t.Fatalf("failed to create log dir: %v", err)
	}

	lines := `{"time":"2026-08-25T10:00:00Z","level":"INFO","msg":"task started","task_id":"task_001"}
{"time":"2026-08-25T10:00:01Z","level":"ERROR","msg":"task failed","task_id":"task_002"}
`
	if err := os.WriteFile(filepath.Join(logDir, "starweaver.log"), []byte(lines), 0644); err != nil {
		t.Fatalf("failed to write log file: %v", err)
	}

	var err error
	output := captureOutput(func() {
		_, err = executeCommand(rootCmd, "logs", "--data-dir", dir, "--level", "error", "-n", "0")
	})
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(output, "task failed") {
		t.Errorf("error entry should be shown, got: %s", output)
	}
	if strings.Contains(output, "task started") {
		t.Errorf("info entry should be filtered out, got: %s", output)
	}
}

func TestLogsCommand_Export(t *testing.T) {
	resetLogsFlags()
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		t.Fatalf("failed to create log dir: %v", err)
	}

	lines := `{"time":"2026-08-25T10:00:00Z","level":"INFO","msg":"task started","task_id":"task_001"}
{"time":"2026-08-25T10:00:01Z","level":"INFO","msg":"task completed","task_id":"task_001"}
`
	if err := os.WriteFile(filepath.Join(logDir, "starweaver.log"), []byte(lines), 0644); err != nil {
		t.Fatalf("failed to write log file: %v", err)
	}

	exportPath := filepath.Join(dir, "out.json")
	var err error
	captureOutput(func() {
		_, err = executeCommand(rootCmd, "logs", "--data-dir", dir, "--export", exportPath)
	})
	if err != nil {
		t.Fatalf("logs export failed: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	var exported []map[string]any
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(exported) != 2 {
		t.Errorf("exported %d entries, want 2", len(exported))
	}
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "empty",
			pairs: nil,
			want:  nil,
		},
		{
			name:  "single pair",
			pairs: []string{"task_001=pixel-7"},
			want:  map[string]string{"task_001": "pixel-7"},
		},
		{
			name:  "multiple pairs",
			pairs: []string{"task_001=pixel-7", "task_002=linux-1"},
			want:  map[string]string{"task_001": "pixel-7", "task_002": "linux-1"},
		},
		{
			name:    "missing separator",
			pairs:   []string{"task_001"},
			wantErr: true,
		},
		{
			name:    "empty device",
			pairs:   []string{"task_001="},
			wantErr: true,
		},
		{
			name:    "empty task",
			pairs:   []string{"=pixel-7"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d pins, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("pin[%s] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 24); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a very long task name that overflows", 12); got != "a very lo..." {
		t.Errorf("truncate(long) = %q", got)
	}
	if len(truncate("abcdef", 3)) != 3 {
		t.Errorf("truncate should respect tiny limits")
	}
}
