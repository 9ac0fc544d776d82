// Package plansync serializes the orchestrator's scheduling loop against the
// planning agent's edits. When a task settles, the planner may react by
// mutating the constellation; until that edit lands the graph the orchestrator
// would schedule from is stale. The Synchronizer tracks which tasks have
// planner edits outstanding and lets the orchestrator block until the table
// drains or a timeout passes.
package plansync

import (
	"sort"
	"sync"
	"time"

	"github.com/starweaver/starweaver/internal/event"
	"github.com/starweaver/starweaver/internal/logging"
)

// DefaultTimeout is the wait budget used when WaitForPending is called with a
// non-positive timeout.
const DefaultTimeout = 30 * time.Second

// WaitResult reports how a WaitForPending call ended.
type WaitResult int

const (
	// WaitOK means the pending table drained before the deadline.
	WaitOK WaitResult = iota

	// WaitTimedOut means the deadline passed with entries still pending.
	// The table has been cleared so the orchestrator can proceed.
	WaitTimedOut

	// WaitClosed means the synchronizer was closed while waiting.
	WaitClosed

	// WaitWoken means Wake interrupted the wait with entries still pending.
	// The table is untouched; the caller re-checks its own stop conditions.
	WaitWoken
)

// String returns the string representation of the wait result.
func (r WaitResult) String() string {
	switch r {
	case WaitOK:
		return "ok"
	case WaitTimedOut:
		return "timed-out"
	case WaitClosed:
		return "closed"
	case WaitWoken:
		return "woken"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of the synchronizer's counters, surfaced for tests and
// the inspect command.
type Stats struct {
	Registered int      // pending modifications ever registered
	Completed  int      // pending modifications cleared by an edit
	TimedOut   int      // WaitForPending calls that hit their deadline
	Pending    []string // task IDs currently awaiting a planner edit, sorted
}

// Synchronizer gates scheduling on outstanding planner edits. All methods are
// safe for concurrent use. Waiters are woken through a broadcast channel that
// is replaced on every state change, which gives the condition-variable
// pattern a timeout the stdlib Cond lacks.
type Synchronizer struct {
	mu         sync.Mutex
	pending    map[string]time.Time // task ID -> registration time
	wake       chan struct{}        // closed and replaced on every change
	timeout    time.Duration
	closed     bool
	interrupts uint64 // bumped by Wake; waiters return WaitWoken on change

	registered int
	completed  int
	timedOut   int

	logger *logging.Logger
}

// New creates a Synchronizer with the given default timeout. A non-positive
// timeout falls back to DefaultTimeout.
func New(timeout time.Duration, logger *logging.Logger) *Synchronizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Synchronizer{
		pending: make(map[string]time.Time),
		wake:    make(chan struct{}),
		timeout: timeout,
		logger:  logger.WithComponent("plansync"),
	}
}

// RegisterPending records that a planner edit for the given task is expected.
// Registering the same task twice refreshes its timestamp but counts once.
func (s *Synchronizer) RegisterPending(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, exists := s.pending[taskID]; !exists {
		s.registered++
	}
	s.pending[taskID] = time.Now().UTC()
	s.logger.Debug("registered pending modification", "task_id", taskID, "pending", len(s.pending))
}

// CompletePending clears the pending entry for the given task. Unknown task
// IDs are accepted and ignored, so a planner edit referencing a task the
// orchestrator never registered (or a duplicate notification) is a no-op.
func (s *Synchronizer) CompletePending(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[taskID]; !exists {
		return
	}
	delete(s.pending, taskID)
	s.completed++
	s.logger.Debug("completed pending modification", "task_id", taskID, "pending", len(s.pending))
	s.broadcast()
}

// WaitForPending blocks until the pending table is empty, the timeout passes,
// or the synchronizer is closed. A non-positive timeout uses the configured
// default. On timeout the table is cleared so the orchestrator can proceed on
// a best-effort basis; the dropped entries are logged.
func (s *Synchronizer) WaitForPending(timeout time.Duration) WaitResult {
	if timeout <= 0 {
		timeout = s.timeout
	}

	s.mu.Lock()
	if len(s.pending) == 0 {
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return WaitClosed
		}
		return WaitOK
	}
	startInterrupts := s.interrupts
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return WaitClosed
		}
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return WaitOK
		}
		if s.interrupts != startInterrupts {
			s.mu.Unlock()
			return WaitWoken
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
			// State changed; re-check.
		case <-timer.C:
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				return WaitOK
			}
			dropped := make([]string, 0, len(s.pending))
			for id := range s.pending {
				dropped = append(dropped, id)
			}
			sort.Strings(dropped)
			s.pending = make(map[string]time.Time)
			s.timedOut++
			s.broadcast()
			s.mu.Unlock()

			s.logger.Warn("timed out waiting for planner edits; proceeding",
				"timeout", timeout.String(), "dropped", dropped)
			return WaitTimedOut
		}
	}
}

// Wake interrupts current waiters, whose WaitForPending calls return
// WaitWoken with the pending table untouched. The orchestrator's cancellation
// path uses this so a cancel does not sit behind a stuck planner.
func (s *Synchronizer) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupts++
	s.broadcast()
}

// Close clears the table and permanently wakes all waiters. Registrations
// after Close are ignored.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.pending = make(map[string]time.Time)
	s.broadcast()
}

// Stats returns a snapshot of the synchronizer's counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]string, 0, len(s.pending))
	for id := range s.pending {
		pending = append(pending, id)
	}
	sort.Strings(pending)

	return Stats{
		Registered: s.registered,
		Completed:  s.completed,
		TimedOut:   s.timedOut,
		Pending:    pending,
	}
}

// PendingCount returns the number of outstanding pending entries.
func (s *Synchronizer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Attach subscribes the synchronizer to a bus so CONSTELLATION_MODIFIED
// events clear their originating pending entries. Registration is not driven
// by the bus: the orchestrator registers synchronously before publishing a
// completion event, which is what makes the gate race-free. Returns the
// subscription ID.
func (s *Synchronizer) Attach(bus *event.Bus) (string, error) {
	return bus.Subscribe(string(event.TypeConstellationModified), func(e event.Event) {
		modified, ok := e.(event.ConstellationModifiedEvent)
		if !ok {
			return
		}
		if modified.OnTaskID == "" {
			return
		}
		s.CompletePending(modified.OnTaskID)
	})
}

// broadcast wakes all waiters. Callers must hold s.mu.
func (s *Synchronizer) broadcast() {
	close(s.wake)
	s.wake = make(chan struct{})
}
