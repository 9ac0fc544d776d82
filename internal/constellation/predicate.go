package constellation

import (
	"fmt"
	"sync"
)

// Outcome is what a conditional line's predicate inspects: the upstream
// task's terminal result or error.
type Outcome struct {
	TaskID  string
	Success bool
	Result  any
	Error   string
}

// Predicate decides whether a conditional line is satisfied by an upstream
// outcome. Predicates are pure functions registered by name; lines persist
// only the name, which keeps serialized constellations free of callables.
type Predicate func(Outcome) bool

var (
	predicateMu  sync.RWMutex
	predicates   = make(map[string]Predicate)
	predicatesWG sync.Once
)

// RegisterPredicate makes a predicate available to conditional lines under
// the given name. Re-registering a name replaces the previous predicate;
// registration normally happens once at startup.
func RegisterPredicate(name string, fn Predicate) {
	if name == "" || fn == nil {
		return
	}
	predicateMu.Lock()
	defer predicateMu.Unlock()
	predicates[name] = fn
}

// LookupPredicate returns the predicate registered under the given name.
func LookupPredicate(name string) (Predicate, bool) {
	if name == "" {
		return nil, false
	}
	registerBuiltins()
	predicateMu.RLock()
	defer predicateMu.RUnlock()
	fn, ok := predicates[name]
	return fn, ok
}

// PredicateNames returns the registered predicate names.
func PredicateNames() []string {
	registerBuiltins()
	predicateMu.RLock()
	defer predicateMu.RUnlock()
	names := make([]string, 0, len(predicates))
	for name := range predicates {
		names = append(names, name)
	}
	return names
}

// registerBuiltins installs the stock predicates on first use.
func registerBuiltins() {
	predicatesWG.Do(func() {
		predicateMu.Lock()
		defer predicateMu.Unlock()
		predicates["always"] = func(Outcome) bool { return true }
		predicates["never"] = func(Outcome) bool { return false }
		predicates["on_success"] = func(o Outcome) bool { return o.Success }
		predicates["on_failure"] = func(o Outcome) bool { return !o.Success }
	})
}

// ResultField extracts a named field from a map-shaped task result. It is a
// convenience for writing predicates against device payloads, which arrive
// as map[string]any after JSON decoding.
func ResultField(result any, field string) (any, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

// ResultFieldNumber extracts a numeric field from a map-shaped task result.
// JSON decoding produces float64 for all numbers; integer results from
// in-process devices are widened.
func ResultFieldNumber(result any, field string) (float64, bool) {
	v, ok := ResultField(result, field)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// MustLookupPredicate returns the named predicate or panics. Intended for
// wiring code that registers its predicates immediately beforehand.
func MustLookupPredicate(name string) Predicate {
	fn, ok := LookupPredicate(name)
	if !ok {
		panic(fmt.Sprintf("predicate %q is not registered", name))
	}
	return fn
}
