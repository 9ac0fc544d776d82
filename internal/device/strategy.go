package device

import (
	"strings"
	"sync"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
)

// Names of the built-in assignment strategies.
const (
	StrategyRoundRobin      = "round_robin"
	StrategyCapabilityMatch = "capability_match"
	StrategyLoadBalance     = "load_balance"
)

// Strategy picks a device for a task from the currently connected fleet.
// Pick is only called with a non-empty device list by the assigner, but
// implementations still reject an empty one. Stateful strategies carry their
// state across calls for the lifetime of one assignment pass or run.
type Strategy interface {
	// Name returns the strategy's registered name.
	Name() string

	// Pick chooses a device for the task.
	Pick(t *constellation.Task, devices []Info) (Info, error)

	// Observe records an assignment made outside Pick (a preference hit)
	// so stateful strategies can account for it.
	Observe(deviceID string)
}

// NewStrategy returns the built-in strategy with the given name, matched
// case-insensitively. Unknown names yield an AssignmentError wrapping
// ErrUnknownStrategy.
func NewStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyRoundRobin:
		return &roundRobin{}, nil
	case StrategyCapabilityMatch:
		return &capabilityMatch{}, nil
	case StrategyLoadBalance:
		return &loadBalance{loads: make(map[string]int)}, nil
	default:
		return nil, errors.NewAssignmentError("unknown assignment strategy", errors.ErrUnknownStrategy).
			WithStrategy(name)
	}
}

// StrategyNames returns the built-in strategy names in sorted order.
func StrategyNames() []string {
	return []string{StrategyCapabilityMatch, StrategyLoadBalance, StrategyRoundRobin}
}

func errNoDevices(strategy string, t *constellation.Task) *errors.AssignmentError {
	e := errors.NewAssignmentError("no devices connected", errors.ErrNoDevicesConnected).
		WithStrategy(strategy)
	if t != nil {
		e = e.WithTaskID(t.ID)
	}
	return e
}

// ---- round_robin ----

// roundRobin walks the connected device list cyclically. The cursor advances
// on every pick, so consecutive tasks land on consecutive devices even as
// the fleet grows or shrinks between calls.
type roundRobin struct {
	mu   sync.Mutex
	next int
}

func (s *roundRobin) Name() string { return StrategyRoundRobin }

func (s *roundRobin) Pick(t *constellation.Task, devices []Info) (Info, error) {
	if len(devices) == 0 {
		return Info{}, errNoDevices(s.Name(), t)
	}
	s.mu.Lock()
	idx := s.next % len(devices)
	s.next++
	s.mu.Unlock()
	return devices[idx], nil
}

func (s *roundRobin) Observe(string) {}

// ---- capability_match ----

// capabilityMatch picks the first device whose type equals the task's device
// type. A task without a device type, or a fleet with no matching device,
// falls back to the first connected device.
type capabilityMatch struct{}

func (s *capabilityMatch) Name() string { return StrategyCapabilityMatch }

func (s *capabilityMatch) Pick(t *constellation.Task, devices []Info) (Info, error) {
	if len(devices) == 0 {
		return Info{}, errNoDevices(s.Name(), t)
	}
	if t != nil && t.DeviceType != "" {
		for _, d := range devices {
			if d.Type == t.DeviceType {
				return d, nil
			}
		}
	}
	return devices[0], nil
}

func (s *capabilityMatch) Observe(string) {}

// ---- load_balance ----

// loadBalance tracks how many assignments each device has received and picks
// the least loaded connected device, breaking ties in list order. Preference
// hits reported through Observe count against the preferred device.
type loadBalance struct {
	mu    sync.Mutex
	loads map[string]int
}

func (s *loadBalance) Name() string { return StrategyLoadBalance }

func (s *loadBalance) Pick(t *constellation.Task, devices []Info) (Info, error) {
	if len(devices) == 0 {
		return Info{}, errNoDevices(s.Name(), t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	best := devices[0]
	for _, d := range devices[1:] {
		if s.loads[d.ID] < s.loads[best.ID] {
			best = d
		}
	}
	s.loads[best.ID]++
	return best, nil
}

func (s *loadBalance) Observe(deviceID string) {
	s.mu.Lock()
	s.loads[deviceID]++
	s.mu.Unlock()
}
