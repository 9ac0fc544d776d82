package device

import (
	"context"
	"sync"
	"time"

	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/logging"
)

// Outcome scripts one simulated execution attempt.
type Outcome struct {
	// Success reports whether the attempt completes or fails.
	Success bool

	// Result is the value reported when Success is true.
	Result any

	// Error is the failure description reported when Success is false.
	Error string
}

// SimManager is an in-process Collaborator backed by simulated devices. It
// drives tests and fleet-free demo runs: devices connect and disconnect on
// demand, execution latency is configurable per device, and per-task outcome
// scripts decide what each attempt reports. Unscripted tasks always succeed.
type SimManager struct {
	mu       sync.Mutex
	devices  map[string]Info
	order    []string
	latency  map[string]time.Duration
	scripts  map[string][]Outcome
	cursors  map[string]int
	inflight map[string]chan struct{}
	load     map[string]int
	logger   *logging.Logger
}

var _ Collaborator = (*SimManager)(nil)

// SimOption configures a SimManager.
type SimOption func(*SimManager)

// WithSimLogger sets the logger used for simulated executions.
func WithSimLogger(l *logging.Logger) SimOption {
	return func(m *SimManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewSimManager creates a simulated fleet with no devices connected.
func NewSimManager(opts ...SimOption) *SimManager {
	m := &SimManager{
		devices:  make(map[string]Info),
		latency:  make(map[string]time.Duration),
		scripts:  make(map[string][]Outcome),
		cursors:  make(map[string]int),
		inflight: make(map[string]chan struct{}),
		load:     make(map[string]int),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("sim_devices")
	return m
}

// ---- fleet control ----

// Connect adds a device to the fleet, or updates its info if the ID is
// already connected. List order follows first connection.
func (m *SimManager) Connect(info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[info.ID]; !ok {
		m.order = append(m.order, info.ID)
	}
	m.devices[info.ID] = info.Clone()
}

// Disconnect removes a device from the fleet. Executions already in flight
// on the device run to completion.
func (m *SimManager) Disconnect(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return
	}
	delete(m.devices, id)
	for i, d := range m.order {
		if d == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SetLatency fixes the simulated execution time for a device. Zero reports
// outcomes immediately.
func (m *SimManager) SetLatency(id string, d time.Duration) {
	m.mu.Lock()
	m.latency[id] = d
	m.mu.Unlock()
}

// Latency returns the configured execution latency for a device.
func (m *SimManager) Latency(id string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency[id]
}

// Script sets the outcome sequence for a task. Attempts consume outcomes in
// order; once the sequence is exhausted the last outcome repeats. Calling
// with no outcomes restores the default always-succeed behavior.
func (m *SimManager) Script(taskID string, outcomes ...Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(outcomes) == 0 {
		delete(m.scripts, taskID)
		delete(m.cursors, taskID)
		return
	}
	m.scripts[taskID] = append([]Outcome(nil), outcomes...)
	m.cursors[taskID] = 0
}

// Load returns the number of assignments currently in flight on a device.
func (m *SimManager) Load(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load[deviceID]
}

// ---- Collaborator ----

// ListConnected returns the connected devices in connection order.
func (m *SimManager) ListConnected() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.devices[id].Clone())
	}
	return out
}

// GetInfo returns the info for a connected device.
func (m *SimManager) GetInfo(id string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.devices[id]
	if !ok {
		return Info{}, errors.NewNotFoundError("device", id).WithCause(errors.ErrDeviceNotFound)
	}
	return info.Clone(), nil
}

// AssignTask simulates one execution attempt. The attempt consumes the
// task's next scripted outcome after the device's configured latency; the
// context, the timeout, and CancelTask each abort it early.
func (m *SimManager) AssignTask(ctx context.Context, taskID, deviceID, description string, payload map[string]any, timeout time.Duration) (*ExecutionResult, error) {
	m.mu.Lock()
	if _, ok := m.devices[deviceID]; !ok {
		m.mu.Unlock()
		return nil, errors.NewTransportError("device not connected", errors.ErrDeviceNotFound).
			WithTaskID(taskID).WithDeviceID(deviceID)
	}
	latency := m.latency[deviceID]
	outcome := m.nextOutcomeLocked(taskID, deviceID)
	abort := make(chan struct{})
	m.inflight[taskID] = abort
	m.load[deviceID]++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if cur, ok := m.inflight[taskID]; ok && cur == abort {
			delete(m.inflight, taskID)
		}
		m.load[deviceID]--
		m.mu.Unlock()
	}()

	start := time.Now().UTC()

	work := time.NewTimer(latency)
	defer work.Stop()

	var deadline <-chan time.Time
	if timeout > 0 {
		dt := time.NewTimer(timeout)
		defer dt.Stop()
		deadline = dt.C
	}

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("simulated execution", timeout).WithCause(ctx.Err())
		}
		return nil, errors.NewCancelledError("simulated execution").
			WithReason("context cancelled").WithCause(ctx.Err())
	case <-abort:
		return nil, errors.NewCancelledError("simulated execution").
			WithReason("cancelled by collaborator").WithCause(errors.ErrExecutionCancelled)
	case <-deadline:
		return nil, errors.NewTimeoutError("simulated execution", timeout)
	case <-work.C:
	}

	end := time.Now().UTC()
	m.logger.Debug("simulated execution finished",
		"task_id", taskID,
		"device_id", deviceID,
		"success", outcome.Success,
		"duration", end.Sub(start))

	return &ExecutionResult{
		TaskID:    taskID,
		DeviceID:  deviceID,
		Success:   outcome.Success,
		Result:    outcome.Result,
		Error:     outcome.Error,
		StartedAt: start,
		EndedAt:   end,
	}, nil
}

// CancelTask aborts an in-flight simulated execution. Unknown task IDs are
// accepted and ignored.
func (m *SimManager) CancelTask(taskID string) error {
	m.mu.Lock()
	abort, ok := m.inflight[taskID]
	if ok {
		delete(m.inflight, taskID)
	}
	m.mu.Unlock()
	if ok {
		close(abort)
	}
	return nil
}

// nextOutcomeLocked consumes the task's next scripted outcome. Unscripted
// tasks succeed with a small echo payload.
func (m *SimManager) nextOutcomeLocked(taskID, deviceID string) Outcome {
	seq := m.scripts[taskID]
	if len(seq) == 0 {
		return Outcome{
			Success: true,
			Result:  map[string]any{"device_id": deviceID, "simulated": true},
		}
	}
	i := m.cursors[taskID]
	if i >= len(seq) {
		i = len(seq) - 1
	}
	m.cursors[taskID] = i + 1
	return seq[i]
}
