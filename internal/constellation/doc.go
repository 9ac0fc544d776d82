// Package constellation provides the task DAG at the heart of Starweaver.
//
// A [Constellation] is a directed acyclic graph of [Task] nodes joined by
// [Line] dependency edges. The constellation exclusively owns its tasks and
// lines: accessors return clones, and every mutation flows through a method
// that maintains the denormalized dependency sets, the derived lifecycle
// state, and acyclicity.
//
// # Main Types
//
// Graph elements:
//   - [Task]: A unit of work with status, priority, device targeting, retry
//     budget, and execution stamps
//   - [Line]: A dependency edge with a satisfaction rule ([DependencyKind])
//   - [Constellation]: The DAG plus lifecycle state and metadata
//
// Satisfaction rules:
//   - [KindUnconditional]: upstream reached any terminal status
//   - [KindSuccessOnly]: upstream completed successfully
//   - [KindCompletionOnly]: upstream completed or failed (not cancelled)
//   - [KindConditional]: a named [Predicate] over the upstream outcome holds
//
// Serialization:
//   - [Document]: The canonical JSON form; [Constellation.ToDocument] and
//     [FromDocument] convert losslessly (the denormalized sets are rebuilt)
//
// # Dependency Bookkeeping
//
// Each task carries two derived sets. The dependency set holds the IDs of
// upstream tasks with at least one unsatisfied line into this task; a task
// is ready exactly when it is pending and this set is empty. The dependent
// set holds every downstream task regardless of satisfaction. Both are
// rebuilt from the line table, never written by callers.
//
// Lines latch: once satisfied, a line stays satisfied, so a retried upstream
// task cannot revoke readiness that was already observed downstream.
//
// # State Derivation
//
// The constellation state is a pure function of its task statuses: CREATED
// with no tasks, READY before anything runs, EXECUTING while work is in
// flight, and a terminal state once every task settles. Cancellation
// dominates; a mix of completed and failed tasks is PARTIALLY_FAILED. At the
// end of a run, pending tasks that were stranded behind unsatisfiable
// dependencies do not vote.
//
// # Basic Usage
//
//	c := constellation.New("nightly-build")
//	a := constellation.NewTask("", "compile", "compile the tree")
//	b := constellation.NewTask("", "test", "run the test suite")
//	_ = c.AddTask(a)
//	_ = c.AddTask(b)
//	_ = c.AddLine(constellation.NewLine("", a.ID, b.ID, constellation.KindSuccessOnly))
//
//	_ = c.StartTask(a.ID)
//	newlyReady, _ := c.CompleteTask(a.ID, true, "ok", "")
//	// newlyReady == [b.ID]
//
// # Thread Safety
//
// All [Constellation] methods are safe for concurrent use via an internal
// sync.RWMutex. Tasks and lines returned from accessors are deep copies.
package constellation
