// Package orchestrator executes constellations: it validates the dependency
// graph, assigns devices, and schedules ready tasks onto the device
// collaborator until every task is terminal.
//
// [Orchestrator.Execute] owns a constellation for the length of the run. The
// scheduling loop dispatches the priority-sorted ready set up to a
// concurrency cap, awaits the first completion, and settles it: successes
// complete the task and publish TASK_COMPLETED with the newly ready
// dependents; failures consume retry budget silently while any remains, and
// only an exhausted task publishes TASK_FAILED. Every attempt gets its own
// TASK_STARTED.
//
// When a planning agent is wired in, a [plansync.Synchronizer] gates each
// iteration: the loop registers an expected edit before publishing a
// completion event and waits for the planner's CONSTELLATION_MODIFIED before
// computing the next ready set, so edits land on the graph the scheduler
// actually reads.
//
// [Orchestrator.Cancel] aborts a run by ID: in-flight executions are
// cancelled at the transport, remaining tasks move to CANCELLED, and the
// call blocks until the in-flight table drains. Cancellation is never an
// error for Execute; it is reflected in the final state and the [Result].
package orchestrator
