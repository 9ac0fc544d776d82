// Package watch synchronizes a live constellation with a plan file edited
// out of process.
//
// Some planners do not link against the editor: they rewrite a constellation
// document on disk and expect the running graph to follow. [Watcher] covers
// that handoff. It watches the file's directory (atomic saves replace the
// file, so watching the file itself would follow the dead inode), debounces
// the event bursts editors produce for a single save, and reconciles on the
// quiet edge:
//
//   - tasks and lines in the file but not in the graph are added, as one
//     transactional merge
//   - lines and then tasks missing from the file are removed one by one,
//     so a refused removal (a task mid-execution) skips without blocking
//     the rest
//
// The diff is by ID only. Field changes to existing tasks are the editing
// planner's business to express as remove/add pairs; execution-owned fields
// could not be safely overwritten mid-run anyway.
//
// Every reconcile that changed the graph publishes constellation.modified
// with an empty on_task_id, marking an edit from outside the completion
// flow. A file with no tasks is rejected outright: truncated writes must
// not dissolve a running constellation.
package watch
