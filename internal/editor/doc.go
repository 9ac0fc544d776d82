// Package editor provides the command-based write path for constellations.
//
// Every mutation is a [Command] with Apply and Revert. The [Editor] runs
// commands one at a time, re-validates the full DAG after each apply, and
// reverts a command whose result fails validation, so editing can never leave
// a constellation cyclic, dangling, or (outside an explicit clear) empty.
//
// Successful applies land on a bounded undo stack; [Editor.Undo] and
// [Editor.Redo] walk it in the usual way. Observers registered with
// [Editor.Observe] see every successful apply, undo, and redo, which is how
// the planner bridge learns that a modification it requested has landed.
//
// Commands exist in two forms: typed constructors ([AddTask], [Merge], ...)
// for Go callers, and a name-keyed registry of builders ([Build],
// [RegisterCommand]) that turns plain parameter records into commands, used
// by the watch and replay paths. Builders coerce enum-valued parameters from
// their canonical string forms case-insensitively.
package editor
