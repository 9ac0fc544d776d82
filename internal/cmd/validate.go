package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/starweaver/starweaver/internal/errors"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.json>",
	Short: "Validate a constellation plan file",
	Long: `Validate a constellation plan file without executing it.

Checks the JSON schema, referential integrity (every line endpoint names
an existing task), acyclicity, and status consistency, then prints the
execution order a run would follow.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var validateJSON bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the verdict as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	planPath := args[0]

	c, err := loadPlan(planPath)
	if err != nil {
		if validateJSON {
			printVerdictJSON(planPath, err)
		} else {
			fmt.Printf("%s: INVALID\n", planPath)
			fmt.Printf("  %v\n", err)
			if errors.Is(err, errors.ErrDependencyCycle) {
				fmt.Println("  hint: remove one line of the cycle, or point it the other way")
			}
		}
		return fmt.Errorf("plan is invalid")
	}

	order, err := c.TopologicalOrder()
	if err != nil {
		// Deserialize already rejects cycles, so this indicates a bug
		// rather than a bad plan file.
		return fmt.Errorf("failed to order plan: %w", err)
	}

	if validateJSON {
		out := map[string]any{
			"valid": true,
			"id":    c.ID(),
			"name":  c.Name(),
			"tasks": c.TaskCount(),
			"lines": c.LineCount(),
			"order": order,
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode verdict: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%s: OK\n", planPath)
	fmt.Printf("  Constellation: %s (%s)\n", c.Name(), c.ID())
	fmt.Printf("  Tasks:         %d\n", c.TaskCount())
	fmt.Printf("  Lines:         %d\n", c.LineCount())
	fmt.Printf("  State:         %s\n", c.State())
	if len(order) > 0 {
		fmt.Println("  Execution order:")
		for i, taskID := range order {
			fmt.Printf("    %2d. %s\n", i+1, taskID)
		}
	}
	return nil
}

func printVerdictJSON(planPath string, cause error) {
	out := map[string]any{
		"valid": false,
		"plan":  planPath,
		"error": cause.Error(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(data))
}
