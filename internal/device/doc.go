// Package device connects the orchestrator to a fleet of task-executing
// devices.
//
// The [Collaborator] interface is the transport boundary: listing connected
// devices, sending a task to one of them, and aborting an in-flight
// assignment. Task-level failures travel inside [ExecutionResult]; only
// transport-level problems (unreachable device, timeout, cancellation)
// surface as errors.
//
// The [Assigner] fills in task-to-device assignments ahead of execution
// using a [Strategy]: round_robin walks the fleet cyclically,
// capability_match matches the task's device type, and load_balance picks
// the least-loaded device. Explicit per-task preferences beat the strategy
// while the preferred device is connected.
//
// [SimManager] is an in-process collaborator for tests and demo runs, with
// per-device latency and scripted per-task outcomes. A simulated fleet can
// be declared in YAML and loaded with [LoadFleet].
package device
