package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/starweaver/starweaver/internal/constellation"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <plan.json>",
	Short: "Show the tasks, dependencies, and graph shape of a plan",
	Long: `Inspect a constellation plan file: its tasks, dependency lines, and
derived graph metrics (longest path, maximum width, parallelism).`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var inspectJSON bool

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the normalized plan document as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	c, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	if inspectJSON {
		data, err := c.Serialize()
		if err != nil {
			return fmt.Errorf("failed to serialize plan: %w", err)
		}
		var indented bytes.Buffer
		if err := json.Indent(&indented, data, "", "  "); err != nil {
			return fmt.Errorf("failed to format plan: %w", err)
		}
		fmt.Println(indented.String())
		return nil
	}

	printHeader(fmt.Sprintf("Constellation: %s (%s)", c.Name(), c.ID()))
	fmt.Printf("State:    %s\n", c.State())
	fmt.Printf("Created:  %s\n", c.CreatedAt().Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", c.UpdatedAt().Format(time.RFC3339))
	fmt.Printf("Tasks:    %d%s\n", c.TaskCount(), statusBreakdown(c))
	fmt.Printf("Lines:    %d\n", c.LineCount())

	if tasks := c.Tasks(); len(tasks) > 0 {
		fmt.Println()
		printHeader("Tasks")
		for _, t := range tasks {
			fmt.Printf("  %-12s %-24s %-10s priority=%s", t.ID, truncate(t.Name, 24), t.Status, t.Priority)
			if t.DeviceType != "" {
				fmt.Printf(" device_type=%s", t.DeviceType)
			}
			if t.TargetDeviceID != "" {
				fmt.Printf(" device=%s", t.TargetDeviceID)
			}
			if t.RetryCount > 0 {
				fmt.Printf(" retries=%d", t.RetryCount)
			}
			fmt.Println()
		}
	}

	if lines := c.Lines(); len(lines) > 0 {
		fmt.Println()
		printHeader("Dependencies")
		for _, l := range lines {
			fmt.Printf("  %-12s %s -> %s  (%s", l.ID, l.FromTaskID, l.ToTaskID, strings.ToLower(string(l.Kind)))
			if l.Predicate != "" {
				fmt.Printf(", predicate=%s", l.Predicate)
			}
			fmt.Print(")")
			if l.Satisfied {
				fmt.Print("  satisfied")
			}
			fmt.Println()
		}
	}

	fmt.Println()
	printHeader("Graph")
	longest := c.LongestPath()
	fmt.Printf("  Longest path: %d task(s)", len(longest))
	if len(longest) > 0 {
		fmt.Printf("  (%s)", strings.Join(longest, " -> "))
	}
	fmt.Println()
	fmt.Printf("  Max width:    %d\n", c.MaxWidth())

	metrics := c.ParallelismMetrics()
	switch metrics.Mode {
	case constellation.MetricsByTime:
		fmt.Printf("  Critical path: %.2fs measured\n", metrics.CriticalPathLength)
		fmt.Printf("  Total work:    %.2fs\n", metrics.TotalWork)
	default:
		fmt.Printf("  Critical path: %.0f task(s) by shape\n", metrics.CriticalPathLength)
		fmt.Printf("  Total work:    %.0f task(s)\n", metrics.TotalWork)
	}
	fmt.Printf("  Parallelism:   %.2f\n", metrics.Parallelism)

	return nil
}

func printHeader(title string) {
	fmt.Println(strings.Repeat("─", 50))
	fmt.Println(title)
	fmt.Println(strings.Repeat("─", 50))
}

func statusBreakdown(c *constellation.Constellation) string {
	counts := c.StatusCounts()
	if len(counts) == 0 {
		return ""
	}
	order := []constellation.Status{
		constellation.StatusPending,
		constellation.StatusRunning,
		constellation.StatusCompleted,
		constellation.StatusFailed,
		constellation.StatusCancelled,
	}
	var parts []string
	for _, status := range order {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(status))))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf(" (%s)", strings.Join(parts, ", "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
