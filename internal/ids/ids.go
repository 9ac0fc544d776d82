// Package ids issues stable, human-readable identifiers for constellations
// and the tasks and lines inside them. Task and line IDs are sequential per
// constellation so plans stay legible; constellation IDs carry a random hex
// component so concurrent runs never collide.
package ids

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starweaver/starweaver/internal/errors"
)

// Allocator issues identifiers scoped to a single constellation namespace.
// Implementations must be safe for concurrent use.
type Allocator interface {
	// NewConstellationID creates a fresh constellation identifier and opens
	// its namespace.
	NewConstellationID() string

	// NextTaskID returns the next sequential task ID for the constellation.
	NextTaskID(constellationID string) string

	// NextLineID returns the next sequential line ID for the constellation.
	NextLineID(constellationID string) string

	// Register records a caller-supplied ID in the constellation's namespace
	// so later allocations skip it. Registering an ID twice fails.
	Register(constellationID, id string) error

	// Release discards the constellation's namespace and counters.
	Release(constellationID string)
}

// namespace tracks the IDs issued under one constellation.
type namespace struct {
	taskCounter int
	lineCounter int
	issued      map[string]struct{}
}

func newNamespace() *namespace {
	return &namespace{issued: make(map[string]struct{})}
}

// Manager is the standard Allocator. A single mutex guards every namespace;
// allocation is cheap enough that finer locking buys nothing.
type Manager struct {
	mu             sync.Mutex
	namespaces     map[string]*namespace
	constellations map[string]struct{}
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		namespaces:     make(map[string]*namespace),
		constellations: make(map[string]struct{}),
	}
}

var (
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the process-wide Manager shared by all constellations.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}

// NewConstellationID creates a constellation ID of the form
// constellation_<8hex>_<yyyymmdd_hhmmss> and opens its namespace.
func (m *Manager) NewConstellationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamp := time.Now().UTC().Format("20060102_150405")
	for {
		id := fmt.Sprintf("constellation_%s_%s", randomHex(), stamp)
		if _, taken := m.constellations[id]; taken {
			continue
		}
		m.constellations[id] = struct{}{}
		m.namespaces[id] = newNamespace()
		return id
	}
}

// NextTaskID returns the next free task_NNN in the constellation, skipping
// any ID a caller registered ahead of time.
func (m *Manager) NextTaskID(constellationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.namespace(constellationID)
	for {
		ns.taskCounter++
		id := fmt.Sprintf("task_%03d", ns.taskCounter)
		if _, taken := ns.issued[id]; !taken {
			ns.issued[id] = struct{}{}
			return id
		}
	}
}

// NextLineID returns the next free line_NNN in the constellation.
func (m *Manager) NextLineID(constellationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.namespace(constellationID)
	for {
		ns.lineCounter++
		id := fmt.Sprintf("line_%03d", ns.lineCounter)
		if _, taken := ns.issued[id]; !taken {
			ns.issued[id] = struct{}{}
			return id
		}
	}
}

// Register records a caller-supplied ID so sequential allocation never
// re-issues it. Returns an AlreadyExists error on collision.
func (m *Manager) Register(constellationID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.namespace(constellationID)
	if _, taken := ns.issued[id]; taken {
		return errors.NewAlreadyExistsError("id", id)
	}
	ns.issued[id] = struct{}{}
	return nil
}

// Release drops the constellation's namespace. Subsequent allocations under
// the same constellation ID start from fresh counters.
func (m *Manager) Release(constellationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.namespaces, constellationID)
	delete(m.constellations, constellationID)
}

// namespace returns the constellation's namespace, creating it on first use.
// Callers must hold m.mu.
func (m *Manager) namespace(constellationID string) *namespace {
	ns, ok := m.namespaces[constellationID]
	if !ok {
		ns = newNamespace()
		m.namespaces[constellationID] = ns
	}
	return ns
}

// randomHex returns 8 random hex characters.
// Falls back to a timestamp-derived value if the UUID source fails.
func randomHex() string {
	id, err := uuid.NewRandom()
	if err != nil {
		// Better than a constant, which would collide immediately.
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}
	return hex.EncodeToString(id[:4])
}
