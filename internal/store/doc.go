// Package store persists constellation snapshots in a local LevelDB
// database so runs survive process restarts and finished runs stay
// inspectable.
//
// Each constellation occupies two keys: its full serialized document and a
// small manifest row (name, state, task count, updated_at). List scans only
// the manifest rows, so browsing a store never decodes documents.
//
// Save is a whole-document overwrite. The document format is the same one
// Serialize produces and the plan-file watcher consumes, so a stored
// snapshot can be revived with Load, inspected as a raw Document, or
// exported to a plan file unchanged.
//
// AutoSaver couples a store to a live constellation through the event bus:
// every constellation.* lifecycle event sourced by that constellation
// triggers a save. Saves run on the bus's delivery goroutine, one at a
// time, so the last write always reflects the newest state the saver saw.
//
// LevelDB is single-writer. Two processes cannot share one store
// directory; the second Open fails.
package store
