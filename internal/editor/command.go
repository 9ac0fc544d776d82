package editor

import (
	"sort"
	"sync"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
)

// Command is a single reversible mutation of a constellation. Apply performs
// the mutation and records whatever state Revert needs to restore the fields
// it touched; commands are atomic, so a failed Apply leaves the constellation
// unchanged.
type Command interface {
	// Name returns the registry name, e.g. "add_task".
	Name() string

	// Apply performs the mutation and returns a command-specific result.
	Apply(c *constellation.Constellation) (any, error)

	// Revert undoes the most recent Apply.
	Revert(c *constellation.Constellation) error
}

// Builder constructs a command from a plain parameter record. Enum-valued
// parameters accept either the enum value or its canonical string form,
// case-insensitively; integer-valued enums also accept their numeric form.
type Builder func(params map[string]any) (Command, error)

// The registry names of the standard commands.
const (
	CmdAddTask          = "add_task"
	CmdRemoveTask       = "remove_task"
	CmdUpdateTask       = "update_task"
	CmdAddDependency    = "add_dependency"
	CmdRemoveDependency = "remove_dependency"
	CmdUpdateDependency = "update_dependency"
	CmdClear            = "clear"
	CmdBulkBuild        = "bulk_build"
	CmdMerge            = "merge"
	CmdSubgraph         = "subgraph"
	CmdLoad             = "load"
)

var (
	registryOnce sync.Once
	registryMu   sync.RWMutex
	registry     map[string]Builder
)

func ensureRegistry() {
	registryOnce.Do(func() {
		registry = map[string]Builder{
			CmdAddTask:          buildAddTask,
			CmdRemoveTask:       buildRemoveTask,
			CmdUpdateTask:       buildUpdateTask,
			CmdAddDependency:    buildAddDependency,
			CmdRemoveDependency: buildRemoveDependency,
			CmdUpdateDependency: buildUpdateDependency,
			CmdClear:            buildClear,
			CmdBulkBuild:        buildBulkBuild,
			CmdMerge:            buildMerge,
			CmdSubgraph:         buildSubgraph,
			CmdLoad:             buildLoad,
		}
	})
}

// RegisterCommand installs a builder under the given name, replacing any
// previous registration.
func RegisterCommand(name string, b Builder) {
	ensureRegistry()
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = b
}

// LookupCommand returns the builder registered under the given name.
func LookupCommand(name string) (Builder, bool) {
	ensureRegistry()
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[name]
	return b, ok
}

// Build constructs a command by registry name.
func Build(name string, params map[string]any) (Command, error) {
	b, ok := LookupCommand(name)
	if !ok {
		return nil, errors.NewNotFoundError("command", name).
			WithCause(errors.ErrUnknownCommand)
	}
	return b(params)
}

// CommandNames returns every registered command name, sorted.
func CommandNames() []string {
	ensureRegistry()
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// -----------------------------------------------------------------------------
// Builders for the standard commands
// -----------------------------------------------------------------------------

func buildAddTask(p map[string]any) (Command, error) {
	t, upstream, err := taskFromParams(p)
	if err != nil {
		return nil, err
	}
	return AddTask(t, upstream...), nil
}

func buildRemoveTask(p map[string]any) (Command, error) {
	id, err := requiredString(p, "task_id")
	if err != nil {
		return nil, err
	}
	return RemoveTask(id), nil
}

func buildUpdateTask(p map[string]any) (Command, error) {
	id, err := requiredString(p, "task_id")
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(p))
	for key, value := range p {
		if key == "task_id" {
			continue
		}
		fields[key] = value
	}
	return UpdateTask(id, fields), nil
}

func buildAddDependency(p map[string]any) (Command, error) {
	l, err := lineFromParams(p)
	if err != nil {
		return nil, err
	}
	return AddDependency(l), nil
}

func buildRemoveDependency(p map[string]any) (Command, error) {
	lineID, err := optionalString(p, "line_id")
	if err != nil {
		return nil, err
	}
	if lineID != "" {
		return RemoveDependency(lineID), nil
	}
	from, err := requiredString(p, "from_task_id")
	if err != nil {
		return nil, err
	}
	to, err := requiredString(p, "to_task_id")
	if err != nil {
		return nil, err
	}
	return RemoveDependencyBetween(from, to), nil
}

func buildUpdateDependency(p map[string]any) (Command, error) {
	id, err := requiredString(p, "line_id")
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(p))
	for key, value := range p {
		if key == "line_id" {
			continue
		}
		fields[key] = value
	}
	return UpdateDependency(id, fields), nil
}

func buildClear(map[string]any) (Command, error) {
	return Clear(), nil
}

func buildBulkBuild(p map[string]any) (Command, error) {
	rawTasks, ok := p["tasks"]
	if !ok || rawTasks == nil {
		return nil, errors.NewValidationError("required parameter missing").WithField("tasks")
	}
	taskRecords, err := recordSlice("tasks", rawTasks)
	if err != nil {
		return nil, err
	}

	tasks := make([]*constellation.Task, 0, len(taskRecords))
	upstream := make([][]string, 0, len(taskRecords))
	for _, rec := range taskRecords {
		t, deps, err := taskFromParams(rec)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
		upstream = append(upstream, deps)
	}

	var lines []*constellation.Line
	if rawLines, ok := p["dependencies"]; ok && rawLines != nil {
		lineRecords, err := recordSlice("dependencies", rawLines)
		if err != nil {
			return nil, err
		}
		for _, rec := range lineRecords {
			l, err := lineFromParams(rec)
			if err != nil {
				return nil, err
			}
			lines = append(lines, l)
		}
	}

	return &bulkBuildCommand{tasks: tasks, lines: lines, upstream: upstream}, nil
}

func buildMerge(p map[string]any) (Command, error) {
	prefix, err := optionalString(p, "prefix")
	if err != nil {
		return nil, err
	}
	doc, err := documentParam(p)
	if err != nil {
		return nil, err
	}
	return Merge(doc, prefix), nil
}

func buildSubgraph(p map[string]any) (Command, error) {
	raw, ok := p["task_ids"]
	if !ok || raw == nil {
		return nil, errors.NewValidationError("required parameter missing").WithField("task_ids")
	}
	keep, err := stringSliceValue("task_ids", raw)
	if err != nil {
		return nil, err
	}
	return Subgraph(keep...), nil
}

func buildLoad(p map[string]any) (Command, error) {
	raw, ok := p["data"]
	if !ok || raw == nil {
		return nil, errors.NewValidationError("required parameter missing").WithField("data")
	}
	switch v := raw.(type) {
	case []byte:
		return Load(v), nil
	case string:
		return Load([]byte(v)), nil
	}
	return nil, errors.NewValidationError("expected serialized JSON").
		WithField("data").WithValue(raw)
}
