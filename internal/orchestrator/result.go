package orchestrator

import (
	"time"

	"github.com/starweaver/starweaver/internal/constellation"
)

// TaskResult captures one task's final outcome for the run report.
type TaskResult struct {
	// Status is the task's status when the run ended. Tasks the run never
	// reached keep PENDING.
	Status constellation.Status

	// Result is the device-reported value of the final successful attempt.
	Result any

	// Error describes the final failure or cancellation, empty on success.
	Error string

	// Start and End stamp the final attempt. Nil when the task never ran.
	Start *time.Time
	End   *time.Time
}

// Result is the record Execute returns for a finished run. Cancellation and
// task failures are reflected here rather than surfaced as errors.
type Result struct {
	// ConstellationID identifies the executed constellation.
	ConstellationID string

	// Status is the constellation's final state.
	Status constellation.State

	// TaskResults maps every task ID to its outcome.
	TaskResults map[string]TaskResult

	// Metadata carries derived figures about the run:
	//
	//	success_rate        completed / (completed+failed), present only
	//	                    when at least one task settled either way
	//	skipped_tasks       IDs of tasks left non-terminal by a stranded
	//	                    exit, in graph insertion order
	//	longest_path_length node count of the longest dependency chain
	//	max_width           widest antichain of the dependency graph
	//	parallelism_ratio   total work over critical path length
	Metadata map[string]any

	// StartTime and EndTime stamp the run.
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the wall-clock span of the run.
func (r *Result) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// SuccessRate returns the completed fraction among settled tasks. The second
// return is false when no task ran, in which case the rate is undefined.
func (r *Result) SuccessRate() (float64, bool) {
	rate, ok := r.Metadata["success_rate"].(float64)
	return rate, ok
}

// Skipped returns the IDs of tasks the run never executed because no path
// could make them ready.
func (r *Result) Skipped() []string {
	skipped, _ := r.Metadata["skipped_tasks"].([]string)
	return skipped
}

// Counts tallies task outcomes by status.
func (r *Result) Counts() map[constellation.Status]int {
	counts := make(map[constellation.Status]int)
	for _, tr := range r.TaskResults {
		counts[tr.Status]++
	}
	return counts
}
