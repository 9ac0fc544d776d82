package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/starweaver/starweaver/internal/config"
	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/device"
	"github.com/starweaver/starweaver/internal/editor"
	"github.com/starweaver/starweaver/internal/event"
	"github.com/starweaver/starweaver/internal/logging"
	"github.com/starweaver/starweaver/internal/orchestrator"
	"github.com/starweaver/starweaver/internal/store"
	"github.com/starweaver/starweaver/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run <plan.json>",
	Short: "Execute a constellation across the device fleet",
	Long: `Execute a constellation plan file against a simulated device fleet.

The plan file is a serialized constellation (see 'starweaver validate').
Devices come from a fleet file, either passed with --fleet or configured
as devices.fleet_file.

Examples:
  # Run a plan with the configured fleet
  starweaver run plan.json

  # Run with an explicit fleet and four tasks in flight at most
  starweaver run plan.json --fleet fleet.yaml --max-parallel 4

  # Pin tasks to devices and pick a strategy for the rest
  starweaver run plan.json --assign task_001=pixel-7 --strategy load_balance

  # Keep the plan file live: edits are reconciled into the running graph
  starweaver run plan.json --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runFleet       string
	runStrategy    string
	runMaxParallel int
	runTaskTimeout int
	runAssign      []string
	runWatch       bool
	runNoSave      bool
	runJSON        bool
	runQuiet       bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFleet, "fleet", "F", "", "fleet file with simulated devices (YAML)")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "assignment strategy: round_robin, capability_match, load_balance")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "maximum tasks in flight (default from config)")
	runCmd.Flags().IntVar(&runTaskTimeout, "task-timeout", 0, "per-task timeout in seconds (default from config)")
	runCmd.Flags().StringArrayVar(&runAssign, "assign", nil, "pin a task to a device as task=device (repeatable)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "watch the plan file and apply edits mid-run")
	runCmd.Flags().BoolVar(&runNoSave, "no-autosave", false, "do not snapshot the run to the store")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "suppress per-event progress output")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	logger, err := buildLogger(cfg, cwd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	planPath := args[0]
	c, err := loadPlan(planPath)
	if err != nil {
		return err
	}

	fleetPath := runFleet
	if fleetPath == "" {
		fleetPath = cfg.Devices.FleetFile
	}
	if fleetPath == "" {
		return fmt.Errorf("no fleet file: pass --fleet or set devices.fleet_file in the config")
	}
	fleet, err := device.LoadFleet(fleetPath, device.WithSimLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to load fleet: %w", err)
	}

	strategyName := runStrategy
	if strategyName == "" {
		strategyName = cfg.Assignment.Strategy
	}
	strategy, err := device.NewStrategy(strategyName)
	if err != nil {
		return fmt.Errorf("failed to select strategy: %w", err)
	}

	bus := event.NewBus(logger)
	defer bus.Close()

	maxParallel := cfg.Orchestrator.MaxParallel
	if runMaxParallel > 0 {
		maxParallel = runMaxParallel
	}
	taskTimeout := cfg.Orchestrator.TaskTimeout()
	if runTaskTimeout > 0 {
		taskTimeout = time.Duration(runTaskTimeout) * time.Second
	}

	orch, err := orchestrator.New(fleet,
		orchestrator.WithBus(bus),
		orchestrator.WithLogger(logger),
		orchestrator.WithStrategy(strategy),
		orchestrator.WithPreferences(cfg.Assignment.Preferences),
		orchestrator.WithMaxParallel(maxParallel),
		orchestrator.WithTaskTimeout(taskTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if runWatch {
		ed, err := editor.New(c, editor.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create editor: %w", err)
		}
		watcher, err := watch.New(planPath, ed, bus,
			watch.WithDebounce(cfg.Watch.Debounce()),
			watch.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer watcher.Stop()
	}

	if cfg.Store.Autosave && !runNoSave {
		st, err := store.Open(cfg.ResolveStorePath(cwd), store.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer func() { _ = st.Close() }()

		saver, err := store.NewAutoSaver(st, c, bus)
		if err != nil {
			return fmt.Errorf("failed to create autosaver: %w", err)
		}
		if err := saver.Start(); err != nil {
			return fmt.Errorf("failed to start autosaver: %w", err)
		}
		defer saver.Stop()
	}

	if !runQuiet && !runJSON {
		_, _ = bus.SubscribeAll(printEvent)
	}

	pins, err := parseAssignments(runAssign)
	if err != nil {
		return err
	}
	var execOpts []orchestrator.ExecOption
	if len(pins) > 0 {
		execOpts = append(execOpts, orchestrator.WithAssignments(pins))
	}

	// Ctrl+C cancels the run; in-flight tasks are aborted at the transport.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orch.Execute(ctx, c, execOpts...)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	// Let subscribers (progress output, autosaver) see the final events
	// before the summary prints.
	bus.Drain()

	if runJSON {
		if err := printResultJSON(result, c); err != nil {
			return err
		}
	} else {
		printResultSummary(result, c)
	}

	switch result.Status {
	case constellation.StateFailed, constellation.StatePartiallyFailed:
		return fmt.Errorf("run finished in state %s", result.Status)
	case constellation.StateCancelled:
		return fmt.Errorf("run was cancelled")
	}
	return nil
}

// buildLogger creates the run logger from config, honoring logging.enabled.
func buildLogger(cfg *config.Config, baseDir string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLoggerWithRotation(
		cfg.Paths.LogDir(baseDir),
		cfg.Logging.Level,
		logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// loadPlan reads and deserializes a constellation plan file.
func loadPlan(path string) (*constellation.Constellation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	c, err := constellation.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", path, err)
	}
	return c, nil
}

// parseAssignments turns repeated task=device flags into a pin map.
func parseAssignments(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	pins := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		taskID, deviceID, ok := strings.Cut(pair, "=")
		if !ok || taskID == "" || deviceID == "" {
			return nil, fmt.Errorf("invalid --assign value %q, expected task=device", pair)
		}
		pins[taskID] = deviceID
	}
	return pins, nil
}

// printEvent writes one progress line per lifecycle event.
func printEvent(e event.Event) {
	switch ev := e.(type) {
	case event.ConstellationStartedEvent:
		fmt.Printf("run started: %s (%d tasks)\n", ev.Name, ev.TaskCount)
	case event.TaskStartedEvent:
		fmt.Printf("  [%s] started on %s\n", ev.TaskID, ev.DeviceID)
	case event.TaskCompletedEvent:
		fmt.Printf("  [%s] completed in %s\n", ev.TaskID, ev.Duration.Round(time.Millisecond))
	case event.TaskFailedEvent:
		fmt.Printf("  [%s] failed after %d attempt(s): %s\n", ev.TaskID, ev.Attempts, ev.Error)
	case event.TaskCancelledEvent:
		fmt.Printf("  [%s] cancelled: %s\n", ev.TaskID, ev.Reason)
	case event.ConstellationModifiedEvent:
		fmt.Printf("  plan modified (%s)\n", ev.Command)
	}
}

func printResultSummary(result *orchestrator.Result, c *constellation.Constellation) {
	fmt.Println()
	fmt.Println(strings.Repeat("─", 50))
	fmt.Println("Run Summary")
	fmt.Println(strings.Repeat("─", 50))

	fmt.Printf("Constellation: %s (%s)\n", c.Name(), result.ConstellationID)
	fmt.Printf("Status:        %s\n", result.Status)
	fmt.Printf("Duration:      %s\n", result.Duration().Round(time.Millisecond))

	counts := result.Counts()
	fmt.Printf("Tasks:         %d total, %d completed, %d failed, %d cancelled\n",
		len(result.TaskResults),
		counts[constellation.StatusCompleted],
		counts[constellation.StatusFailed],
		counts[constellation.StatusCancelled])

	if rate, ok := result.SuccessRate(); ok {
		fmt.Printf("Success rate:  %.1f%%\n", rate*100)
	}
	if skipped := result.Skipped(); len(skipped) > 0 {
		fmt.Printf("Skipped:       %s\n", strings.Join(skipped, ", "))
	}

	fmt.Println()
	for _, taskID := range sortedTaskIDs(result) {
		tr := result.TaskResults[taskID]
		line := fmt.Sprintf("  %-12s %s", tr.Status, taskID)
		if deviceID := taskDeviceID(c, taskID); deviceID != "" {
			line += fmt.Sprintf("  device=%s", deviceID)
		}
		if tr.Start != nil && tr.End != nil {
			line += fmt.Sprintf("  duration=%s", tr.End.Sub(*tr.Start).Round(time.Millisecond))
		}
		if tr.Error != "" {
			line += fmt.Sprintf("  error=%q", tr.Error)
		}
		fmt.Println(line)
	}
	fmt.Println(strings.Repeat("─", 50))
}

func printResultJSON(result *orchestrator.Result, c *constellation.Constellation) error {
	tasks := make(map[string]map[string]any, len(result.TaskResults))
	for taskID, tr := range result.TaskResults {
		entry := map[string]any{
			"status": tr.Status,
		}
		if deviceID := taskDeviceID(c, taskID); deviceID != "" {
			entry["device_id"] = deviceID
		}
		if tr.Result != nil {
			entry["result"] = tr.Result
		}
		if tr.Error != "" {
			entry["error"] = tr.Error
		}
		if tr.Start != nil && tr.End != nil {
			entry["duration_ms"] = tr.End.Sub(*tr.Start).Milliseconds()
		}
		tasks[taskID] = entry
	}

	out := map[string]any{
		"constellation_id": result.ConstellationID,
		"name":             c.Name(),
		"status":           result.Status,
		"duration_ms":      result.Duration().Milliseconds(),
		"tasks":            tasks,
		"metadata":         result.Metadata,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func sortedTaskIDs(result *orchestrator.Result) []string {
	ids := make([]string, 0, len(result.TaskResults))
	for id := range result.TaskResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func taskDeviceID(c *constellation.Constellation, taskID string) string {
	t, err := c.Task(taskID)
	if err != nil {
		return ""
	}
	return t.TargetDeviceID
}
