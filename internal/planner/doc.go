// Package planner connects an external planning agent to a running
// constellation.
//
// The planning agent is whatever decides how the graph should change as
// results come in. This package pins down the contract between that agent
// and the execution core without the core ever importing the agent:
//
//   - [Agent] is consulted once per settled task (completed or failed) with
//     a snapshot of the current graph.
//   - [Bridge] subscribes to task.completed and task.failed, invokes the
//     agent, applies the returned [EditRequest] list through the editor,
//     and then publishes constellation.modified naming the settled task.
//
// The final publish is unconditional: it happens when the agent returns no
// edits, when it returns an error, and when the editor rejects an edit.
// The orchestrator's synchronizer holds dispatch until a modified event
// names each settled task, so a bridge that stayed silent would stall every
// completion until the synchronizer timed out.
//
// One bridge serves one constellation. Settlement events from other
// constellations on the same bus are ignored, so an orchestrator paired
// with a synchronizer needs a bridge per constellation it executes.
//
// # Basic Usage
//
//	ed, _ := editor.New(c)
//	bridge, _ := planner.NewBridge(agent, ed, bus)
//	if err := bridge.Start(ctx); err != nil {
//	    return err
//	}
//	defer bridge.Stop()
//
// [ScriptedAgent] is an in-process Agent with canned responses, used in
// tests and demo runs the same way device.SimManager stands in for a fleet.
package planner
