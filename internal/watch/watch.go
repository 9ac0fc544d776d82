package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/editor"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/event"
	"github.com/starweaver/starweaver/internal/logging"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before reconciling. Editors commonly emit several events per save.
const DefaultDebounce = 50 * time.Millisecond

// Watcher keeps one constellation in sync with a plan file.
type Watcher struct {
	path string
	ed   *editor.Editor
	bus  *event.Bus

	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}

	// stats has its own lock: Sync runs on the watch loop while Stop holds
	// mu waiting for that loop to exit.
	statsMu sync.Mutex
	stats   Stats
}

// Stats is a point-in-time snapshot of watcher activity.
type Stats struct {
	// Syncs counts reconcile passes that loaded the file.
	Syncs int

	// Applied counts editor commands the reconcile landed.
	Applied int

	// Rejected counts editor commands that were refused.
	Rejected int

	// LoadErrors counts file versions that could not be read or decoded.
	LoadErrors int
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a reconcile. Values at or below
// zero keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher reconciling the editor's constellation against the
// given plan file. The file does not have to exist yet; its directory does.
func New(path string, ed *editor.Editor, bus *event.Bus, opts ...Option) (*Watcher, error) {
	if path == "" {
		return nil, errors.NewValidationError("plan file path is required").
			WithField("path")
	}
	if ed == nil {
		return nil, errors.NewValidationError("editor is required").
			WithField("editor")
	}
	if bus == nil {
		return nil, errors.NewValidationError("event bus is required").
			WithField("bus")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create filesystem watcher")
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		ed:       ed,
		bus:      bus,
		fs:       fs,
		debounce: DefaultDebounce,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watch").
		WithConstellation(ed.Constellation().ID())
	return w, nil
}

// Start watches the plan file's directory and reconciles after each quiet
// period. If the file already exists an initial reconcile runs immediately.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.NewStateError("watcher is already started", errors.ErrOperationFailed).
			WithResource("path", w.path).WithOperation("start")
	}

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(w.path))
	}

	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.started = true
	go w.watchLoop()

	if _, err := os.Stat(w.path); err == nil {
		if err := w.Sync(); err != nil {
			w.logger.Warn("initial plan sync failed", "path", w.path, "error", err)
		}
	}
	return nil
}

// Stop ends watching and waits for the watch loop to exit. It is idempotent
// and safe to call before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	close(w.stopCh)
	_ = w.fs.Close()
	<-w.done
	w.started = false
}

// Running reports whether the watcher is started.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// watchLoop coalesces filesystem events and reconciles on the quiet edge.
func (w *Watcher) watchLoop() {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			pending = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := w.Sync(); err != nil {
				w.logger.Warn("plan file sync failed", "path", w.path, "error", err)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "path", w.path, "error", err)
		}
	}
}

// relevant reports whether the event is a content change of the plan file.
// Atomic saves surface as Create or Rename of the target name.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(ev.Name) == w.path
}

// Sync reconciles the constellation against the plan file once. It loads and
// decodes the file, diffs task and line IDs against the live graph, applies
// the delta through the editor, and publishes constellation.modified when
// anything changed. Safe to call directly alongside a running watch loop;
// the editor serializes the commands.
func (w *Watcher) Sync() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.count(func(s *Stats) { s.LoadErrors++ })
		return errors.Wrapf(err, "read plan file %s", w.path)
	}
	doc, err := constellation.DecodeDocument(data)
	if err != nil {
		w.count(func(s *Stats) { s.LoadErrors++ })
		return err
	}
	if len(doc.TaskRecords) == 0 {
		w.count(func(s *Stats) { s.LoadErrors++ })
		return errors.NewValidationError("plan file has no tasks").
			WithCause(errors.ErrEmptyConstellation).
			WithField("path").WithValue(w.path)
	}
	for _, warning := range doc.Warnings {
		w.logger.Warn("plan file anomaly", "path", w.path, "warning", warning)
	}
	w.count(func(s *Stats) { s.Syncs++ })

	c := w.ed.Constellation()
	applied := w.reconcile(c, doc)
	if len(applied) == 0 {
		return nil
	}

	command := strings.Join(applied, ",")
	w.bus.Publish(event.NewConstellationModifiedEvent(c.ID(), "", command))
	w.logger.Info("plan file applied", "path", w.path, "commands", command)
	return nil
}

// reconcile applies the ID-level delta and returns the names of the commands
// that landed, in apply order.
func (w *Watcher) reconcile(c *constellation.Constellation, doc *constellation.Document) []string {
	var applied []string

	// Additions first, as one transactional merge: new lines may attach new
	// tasks to existing ones in either direction.
	sub := w.newItems(c, doc)
	if sub != nil {
		if _, err := w.ed.Apply(editor.Merge(sub, "")); err != nil {
			w.logger.Warn("plan additions rejected", "path", w.path, "error", err)
			w.count(func(s *Stats) { s.Rejected++ })
		} else {
			applied = append(applied, editor.CmdMerge)
			w.count(func(s *Stats) { s.Applied++ })
		}
	}

	docLines := make(map[string]bool, len(doc.LineRecords))
	for _, rec := range doc.LineRecords {
		docLines[rec.LineID] = true
	}
	for _, lineID := range c.LineIDs() {
		if docLines[lineID] {
			continue
		}
		if _, err := w.ed.Apply(editor.RemoveDependency(lineID)); err != nil {
			// Already gone when a removed task cascaded its lines.
			if !errors.Is(err, errors.ErrLineNotFound) {
				w.logger.Warn("line removal rejected",
					"path", w.path, "line_id", lineID, "error", err)
				w.count(func(s *Stats) { s.Rejected++ })
			}
			continue
		}
		applied = append(applied, editor.CmdRemoveDependency)
		w.count(func(s *Stats) { s.Applied++ })
	}

	docTasks := make(map[string]bool, len(doc.TaskRecords))
	for _, rec := range doc.TaskRecords {
		docTasks[rec.TaskID] = true
	}
	for _, taskID := range c.TaskIDs() {
		if docTasks[taskID] {
			continue
		}
		if _, err := w.ed.Apply(editor.RemoveTask(taskID)); err != nil {
			// Running tasks stay; the next save retries once they settle.
			w.logger.Warn("task removal rejected",
				"path", w.path, "task_id", taskID, "error", err)
			w.count(func(s *Stats) { s.Rejected++ })
			continue
		}
		applied = append(applied, editor.CmdRemoveTask)
		w.count(func(s *Stats) { s.Applied++ })
	}

	return applied
}

// newItems builds a document holding only the file's tasks and lines the
// graph does not have yet, nil when there are none. Records without an ID
// are skipped: the diff is by ID, and a minted ID would re-add the record
// on every save.
func (w *Watcher) newItems(c *constellation.Constellation, doc *constellation.Document) *constellation.Document {
	sub := &constellation.Document{}
	for _, rec := range doc.TaskRecords {
		if rec.TaskID == "" {
			w.logger.Warn("plan file task without an ID skipped",
				"path", w.path, "name", rec.Name)
			continue
		}
		if !c.HasTask(rec.TaskID) {
			sub.TaskRecords = append(sub.TaskRecords, rec)
		}
	}
	liveLines := make(map[string]bool)
	for _, lineID := range c.LineIDs() {
		liveLines[lineID] = true
	}
	for _, rec := range doc.LineRecords {
		if rec.LineID == "" {
			w.logger.Warn("plan file dependency without an ID skipped",
				"path", w.path, "from", rec.FromTaskID, "to", rec.ToTaskID)
			continue
		}
		if !liveLines[rec.LineID] {
			sub.LineRecords = append(sub.LineRecords, rec)
		}
	}
	if len(sub.TaskRecords) == 0 && len(sub.LineRecords) == 0 {
		return nil
	}
	return sub
}

func (w *Watcher) count(fn func(*Stats)) {
	w.statsMu.Lock()
	fn(&w.stats)
	w.statsMu.Unlock()
}
