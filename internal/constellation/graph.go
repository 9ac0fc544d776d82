package constellation

import (
	"time"

	"github.com/starweaver/starweaver/internal/errors"
)

// MetricsMode tags which measurement a Metrics value was computed in.
type MetricsMode string

const (
	// MetricsByTime means durations were measured from executed tasks.
	MetricsByTime MetricsMode = "time"

	// MetricsByNodes means the graph shape stood in for durations because
	// not every task has executed yet.
	MetricsByNodes MetricsMode = "nodes"
)

// Metrics summarizes the parallelism profile of a constellation. In time mode
// CriticalPathLength and TotalWork are seconds; in node mode they are task
// counts. Parallelism is TotalWork divided by CriticalPathLength.
type Metrics struct {
	Mode               MetricsMode `json:"mode"`
	CriticalPathLength float64     `json:"critical_path_length"`
	TotalWork          float64     `json:"total_work"`
	Parallelism        float64     `json:"parallelism"`
}

// wouldCycleLocked reports whether adding a line fromID -> toID would close a
// cycle: DFS from toID over outgoing lines looking for fromID. Callers hold
// at least the read lock.
func (c *Constellation) wouldCycleLocked(fromID, toID string) bool {
	visited := make(map[string]bool)
	stack := []string{toID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == fromID {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, lineID := range c.lineOrder {
			l := c.lines[lineID]
			if l.FromTaskID == cur {
				stack = append(stack, l.ToTaskID)
			}
		}
	}
	return false
}

// hasCycleLocked reports whether the current line set contains a cycle.
// Callers hold at least the read lock.
func (c *Constellation) hasCycleLocked() bool {
	_, ok := c.topoOrderLocked()
	return !ok
}

// topoOrderLocked runs Kahn's algorithm over the line set. The frontier is
// seeded and drained in insertion order, so the result is deterministic.
// Returns ok=false when a cycle leaves residual nodes. Callers hold at least
// the read lock.
func (c *Constellation) topoOrderLocked() ([]string, bool) {
	indegree := make(map[string]int, len(c.tasks))
	for _, id := range c.taskOrder {
		indegree[id] = 0
	}
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		if _, ok := c.tasks[l.FromTaskID]; !ok {
			continue
		}
		if _, ok := c.tasks[l.ToTaskID]; !ok {
			continue
		}
		indegree[l.ToTaskID]++
	}

	var queue []string
	for _, id := range c.taskOrder {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(c.tasks))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, lineID := range c.lineOrder {
			l := c.lines[lineID]
			if l.FromTaskID != cur {
				continue
			}
			if _, ok := c.tasks[l.ToTaskID]; !ok {
				continue
			}
			indegree[l.ToTaskID]--
			if indegree[l.ToTaskID] == 0 {
				queue = append(queue, l.ToTaskID)
			}
		}
	}
	return order, len(order) == len(c.tasks)
}

// TopologicalOrder returns every task ID in dependency order. Ties follow
// insertion order. Fails if the line set contains a cycle.
func (c *Constellation) TopologicalOrder() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order, ok := c.topoOrderLocked()
	if !ok {
		return nil, errors.NewInvariantError("topological order impossible", errors.ErrDependencyCycle).
			WithConstellationID(c.id)
	}
	return order, nil
}

// LongestPath returns the longest chain of task IDs by node count, root to
// leaf. Ties break toward earlier insertion. Empty when the constellation has
// no tasks or the line set is cyclic.
func (c *Constellation) LongestPath() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order, ok := c.topoOrderLocked()
	if !ok || len(order) == 0 {
		return nil
	}

	dist := make(map[string]int, len(order))
	parent := make(map[string]string, len(order))
	for _, id := range order {
		dist[id] = 1
	}
	for _, v := range order {
		for _, lineID := range c.lineOrder {
			l := c.lines[lineID]
			if l.ToTaskID != v {
				continue
			}
			if _, okFrom := c.tasks[l.FromTaskID]; !okFrom {
				continue
			}
			if dist[l.FromTaskID]+1 > dist[v] {
				dist[v] = dist[l.FromTaskID] + 1
				parent[v] = l.FromTaskID
			}
		}
	}

	end, best := "", 0
	for _, id := range c.taskOrder {
		if dist[id] > best {
			best = dist[id]
			end = id
		}
	}

	path := make([]string, 0, best)
	for cur := end; cur != ""; cur = parent[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// CriticalPath returns the heaviest root-to-leaf chain weighted by measured
// execution durations, along with its total duration. It requires every task
// to have reached a terminal status, since durations only exist after
// execution.
func (c *Constellation) CriticalPath() (time.Duration, []string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.tasks {
		if !t.IsTerminal() {
			return 0, nil, errors.NewStateError("critical path requires all tasks terminal", errors.ErrOperationFailed).
				WithResource("constellation", c.id).WithState(string(c.state)).WithOperation("critical_path")
		}
	}

	order, ok := c.topoOrderLocked()
	if !ok || len(order) == 0 {
		return 0, nil, nil
	}

	dist := make(map[string]time.Duration, len(order))
	parent := make(map[string]string, len(order))
	for _, id := range order {
		dist[id] = c.tasks[id].ExecutionDuration()
	}
	for _, v := range order {
		own := c.tasks[v].ExecutionDuration()
		for _, lineID := range c.lineOrder {
			l := c.lines[lineID]
			if l.ToTaskID != v {
				continue
			}
			if _, okFrom := c.tasks[l.FromTaskID]; !okFrom {
				continue
			}
			if dist[l.FromTaskID]+own > dist[v] {
				dist[v] = dist[l.FromTaskID] + own
				parent[v] = l.FromTaskID
			}
		}
	}

	end, best := "", time.Duration(-1)
	for _, id := range c.taskOrder {
		if dist[id] > best {
			best = dist[id]
			end = id
		}
	}

	path := make([]string, 0, len(order))
	for cur := end; cur != ""; cur = parent[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return best, path, nil
}

// MaxWidth returns the size of the largest BFS frontier: the most tasks that
// could ever run at once given the dependency shape.
func (c *Constellation) MaxWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	indegree := make(map[string]int, len(c.tasks))
	for _, id := range c.taskOrder {
		indegree[id] = 0
	}
	for _, lineID := range c.lineOrder {
		l := c.lines[lineID]
		if _, ok := c.tasks[l.FromTaskID]; !ok {
			continue
		}
		if _, ok := c.tasks[l.ToTaskID]; !ok {
			continue
		}
		indegree[l.ToTaskID]++
	}

	remaining := make(map[string]bool, len(c.tasks))
	for _, id := range c.taskOrder {
		remaining[id] = true
	}

	width := 0
	for len(remaining) > 0 {
		var frontier []string
		for _, id := range c.taskOrder {
			if remaining[id] && indegree[id] == 0 {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			// Cyclic remainder; the reachable part already set the width.
			break
		}
		if len(frontier) > width {
			width = len(frontier)
		}
		for _, id := range frontier {
			delete(remaining, id)
			for _, lineID := range c.lineOrder {
				l := c.lines[lineID]
				if l.FromTaskID == id {
					indegree[l.ToTaskID]--
				}
			}
		}
	}
	return width
}

// ParallelismMetrics reports how parallel the constellation is. Once every
// task is terminal the measurement uses real durations (critical path time
// against total work time); before that the graph shape stands in (longest
// path against task count).
func (c *Constellation) ParallelismMetrics() Metrics {
	c.mu.RLock()
	allTerminal := len(c.tasks) > 0
	for _, t := range c.tasks {
		if !t.IsTerminal() {
			allTerminal = false
			break
		}
	}
	c.mu.RUnlock()

	if allTerminal {
		critical, _, err := c.CriticalPath()
		if err == nil {
			var total time.Duration
			c.mu.RLock()
			for _, t := range c.tasks {
				total += t.ExecutionDuration()
			}
			c.mu.RUnlock()

			m := Metrics{
				Mode:               MetricsByTime,
				CriticalPathLength: critical.Seconds(),
				TotalWork:          total.Seconds(),
			}
			if m.CriticalPathLength > 0 {
				m.Parallelism = m.TotalWork / m.CriticalPathLength
			}
			return m
		}
	}

	c.mu.RLock()
	taskCount := len(c.tasks)
	c.mu.RUnlock()

	m := Metrics{
		Mode:               MetricsByNodes,
		CriticalPathLength: float64(len(c.LongestPath())),
		TotalWork:          float64(taskCount),
	}
	if m.CriticalPathLength > 0 {
		m.Parallelism = m.TotalWork / m.CriticalPathLength
	}
	return m
}
