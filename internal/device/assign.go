package device

import (
	"sync"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/logging"
)

// Assigner matches tasks to connected devices ahead of execution. Explicit
// per-task preferences beat the strategy, but only while the preferred
// device is connected; a preference for an absent device falls through to
// the strategy silently.
type Assigner struct {
	mu       sync.Mutex
	collab   Collaborator
	strategy Strategy
	prefs    map[string]string
	logger   *logging.Logger
}

// AssignerOption configures an Assigner.
type AssignerOption func(*Assigner)

// WithStrategy selects the assignment strategy. The default is round_robin.
func WithStrategy(s Strategy) AssignerOption {
	return func(a *Assigner) {
		if s != nil {
			a.strategy = s
		}
	}
}

// WithPreferences seeds task-to-device preferences. The map is copied.
func WithPreferences(prefs map[string]string) AssignerOption {
	return func(a *Assigner) {
		for taskID, deviceID := range prefs {
			a.prefs[taskID] = deviceID
		}
	}
}

// WithLogger sets the logger used for assignment decisions.
func WithLogger(l *logging.Logger) AssignerOption {
	return func(a *Assigner) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAssigner creates an assigner backed by the given collaborator.
func NewAssigner(collab Collaborator, opts ...AssignerOption) (*Assigner, error) {
	if collab == nil {
		return nil, errors.NewValidationError("collaborator is required").WithField("collaborator")
	}
	a := &Assigner{
		collab:   collab,
		strategy: &roundRobin{},
		prefs:    make(map[string]string),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("assigner")
	return a, nil
}

// Strategy returns the active assignment strategy.
func (a *Assigner) Strategy() Strategy {
	return a.strategy
}

// SetPreference records a task-to-device preference for future picks.
func (a *Assigner) SetPreference(taskID, deviceID string) {
	a.mu.Lock()
	a.prefs[taskID] = deviceID
	a.mu.Unlock()
}

// Pick chooses a device for the task. A connected preferred device wins;
// otherwise the strategy decides. Returns an AssignmentError wrapping
// ErrNoDevicesConnected when the fleet is empty.
func (a *Assigner) Pick(t *constellation.Task) (Info, error) {
	if t == nil {
		return Info{}, errors.NewValidationError("task is required").WithField("task")
	}

	devices := a.collab.ListConnected()
	if len(devices) == 0 {
		return Info{}, errNoDevices(a.strategy.Name(), t)
	}

	a.mu.Lock()
	pref, hasPref := a.prefs[t.ID]
	a.mu.Unlock()

	if hasPref {
		for _, d := range devices {
			if d.ID == pref {
				a.strategy.Observe(d.ID)
				return d, nil
			}
		}
		a.logger.Debug("preferred device not connected, using strategy",
			"task_id", t.ID,
			"device_id", pref)
	}

	return a.strategy.Pick(t, devices)
}

// EnsureAssignments fills in a target device for every pending task that
// does not have one. Tasks already pinned to a device keep their pin even if
// that device is not currently connected; running and terminal tasks are
// left alone. Returns the choices made, keyed by task ID.
func (a *Assigner) EnsureAssignments(c *constellation.Constellation) (map[string]string, error) {
	if c == nil {
		return nil, errors.NewValidationError("constellation is required").WithField("constellation")
	}

	assigned := make(map[string]string)
	for _, id := range c.TaskIDs() {
		t, err := c.Task(id)
		if err != nil {
			return assigned, err
		}
		if t.Status != constellation.StatusPending || t.TargetDeviceID != "" {
			continue
		}

		info, err := a.Pick(t)
		if err != nil {
			return assigned, err
		}
		if err := c.SetTaskDevice(id, info.ID); err != nil {
			return assigned, err
		}
		assigned[id] = info.ID

		a.logger.Debug("assigned device",
			"task_id", id,
			"device_id", info.ID,
			"strategy", a.strategy.Name())
	}
	return assigned, nil
}
