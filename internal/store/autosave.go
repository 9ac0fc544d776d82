package store

import (
	"sync"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/event"
	"github.com/starweaver/starweaver/internal/logging"
)

// AutoSaver checkpoints one constellation into a store whenever a
// constellation.* lifecycle event for it crosses the bus. Start writes an
// immediate snapshot, so the constellation is recoverable before its run
// begins.
type AutoSaver struct {
	st     *Store
	c      *constellation.Constellation
	bus    *event.Bus
	logger *logging.Logger

	mu      sync.Mutex
	started bool
	subID   string
	stats   Stats
}

// Stats is a point-in-time snapshot of auto-save activity.
type Stats struct {
	// Saves counts snapshots written, the initial one included.
	Saves int

	// Failures counts saves that did not land.
	Failures int
}

// NewAutoSaver couples the constellation to the store through the bus.
func NewAutoSaver(st *Store, c *constellation.Constellation, bus *event.Bus) (*AutoSaver, error) {
	if st == nil {
		return nil, errors.NewValidationError("store is required").
			WithField("store")
	}
	if c == nil {
		return nil, errors.NewValidationError("constellation is required").
			WithField("constellation")
	}
	if bus == nil {
		return nil, errors.NewValidationError("event bus is required").
			WithField("bus")
	}
	return &AutoSaver{
		st:     st,
		c:      c,
		bus:    bus,
		logger: st.logger.WithConstellation(c.ID()),
	}, nil
}

// Start writes an initial snapshot and subscribes to the constellation's
// lifecycle events.
func (a *AutoSaver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.NewStateError("auto-saver is already started", errors.ErrOperationFailed).
			WithResource("constellation", a.c.ID()).WithOperation("start")
	}

	subID, err := a.bus.Subscribe("constellation.*", a.onEvent)
	if err != nil {
		return err
	}
	a.subID = subID
	a.started = true
	a.saveLocked("start")
	return nil
}

// Stop unsubscribes. Saves already queued on the bus may still land. It is
// idempotent and safe to call before Start.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	a.bus.Unsubscribe(a.subID)
	a.started = false
}

// Running reports whether the auto-saver is started.
func (a *AutoSaver) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Stats returns a snapshot of auto-save activity.
func (a *AutoSaver) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *AutoSaver) onEvent(e event.Event) {
	if e.SourceID() != a.c.ID() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saveLocked(string(e.EventType()))
}

func (a *AutoSaver) saveLocked(trigger string) {
	if err := a.st.Save(a.c); err != nil {
		a.stats.Failures++
		a.logger.Warn("auto-save failed", "trigger", trigger, "error", err)
		return
	}
	a.stats.Saves++
}
