package constellation

import (
	"strings"
	"time"

	"github.com/starweaver/starweaver/internal/errors"
)

// DependencyKind selects the satisfaction rule for a line.
type DependencyKind string

const (
	// KindUnconditional is satisfied once the upstream task reaches any
	// terminal status, including cancellation.
	KindUnconditional DependencyKind = "UNCONDITIONAL"

	// KindSuccessOnly is satisfied only by a completed upstream task.
	KindSuccessOnly DependencyKind = "SUCCESS_ONLY"

	// KindCompletionOnly is satisfied once the upstream task has been
	// executed to an outcome: completed or failed, but not cancelled.
	KindCompletionOnly DependencyKind = "COMPLETION_ONLY"

	// KindConditional is satisfied when the named predicate, applied to the
	// upstream task's outcome, returns true. A line with no (or an
	// unregistered) predicate degrades to SUCCESS_ONLY.
	KindConditional DependencyKind = "CONDITIONAL"
)

// String returns the string representation of the kind.
func (k DependencyKind) String() string {
	return string(k)
}

// ParseDependencyKind converts a string to a DependencyKind, case-insensitively.
// An empty string defaults to UNCONDITIONAL.
func ParseDependencyKind(s string) (DependencyKind, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return KindUnconditional, nil
	}
	switch DependencyKind(trimmed) {
	case KindUnconditional, KindSuccessOnly, KindCompletionOnly, KindConditional:
		return DependencyKind(trimmed), nil
	default:
		return "", errors.NewValidationError("unknown dependency kind").
			WithField("dependency_type").WithValue(s)
	}
}

// Line is a directed dependency between two tasks. The downstream task
// (ToTaskID) may not start until the line is satisfied. Lines carry no
// callable state: conditional lines reference a predicate by name so a
// serialized constellation round-trips cleanly.
type Line struct {
	// ID uniquely identifies the line within its constellation.
	ID string

	// FromTaskID is the upstream (prerequisite) task.
	FromTaskID string

	// ToTaskID is the downstream (dependent) task.
	ToTaskID string

	// Kind selects the satisfaction rule.
	Kind DependencyKind

	// Condition is a human-readable description of a conditional line's gate.
	Condition string

	// Predicate names the registered predicate a CONDITIONAL line evaluates.
	Predicate string

	// Metadata is free-form annotation on the line.
	Metadata map[string]any

	// Satisfied latches true once the rule has held. LastEvalResult and
	// LastEvalTime record the most recent evaluation even when it failed.
	Satisfied      bool
	LastEvalResult *bool
	LastEvalTime   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLine creates a line of the given kind between two tasks.
func NewLine(id, fromTaskID, toTaskID string, kind DependencyKind) *Line {
	now := time.Now().UTC()
	return &Line{
		ID:         id,
		FromTaskID: fromTaskID,
		ToTaskID:   toTaskID,
		Kind:       kind,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Evaluate applies the line's satisfaction rule to the upstream task and
// records the outcome. Once satisfied a line stays satisfied; re-evaluation
// is a no-op so a retried upstream task cannot revoke downstream readiness
// that was already published.
func (l *Line) Evaluate(from *Task) bool {
	if l.Satisfied {
		return true
	}

	result := l.ruleHolds(from)
	now := time.Now().UTC()
	l.LastEvalResult = &result
	l.LastEvalTime = &now
	if result {
		l.Satisfied = true
		l.UpdatedAt = now
	}
	return result
}

// ruleHolds checks the line's rule against the upstream task without
// recording anything.
func (l *Line) ruleHolds(from *Task) bool {
	switch l.Kind {
	case KindUnconditional:
		return from.Status.IsTerminal()
	case KindSuccessOnly:
		return from.Status == StatusCompleted
	case KindCompletionOnly:
		return from.Status == StatusCompleted || from.Status == StatusFailed
	case KindConditional:
		if !from.Status.IsTerminal() {
			return false
		}
		pred, ok := LookupPredicate(l.Predicate)
		if !ok {
			// No usable predicate: degrade to SUCCESS_ONLY.
			return from.Status == StatusCompleted
		}
		return pred(Outcome{
			TaskID:  from.ID,
			Success: from.Status == StatusCompleted,
			Result:  from.Result,
			Error:   from.Error,
		})
	default:
		return false
	}
}

// Clone returns a deep copy of the line.
func (l *Line) Clone() *Line {
	cp := *l
	if l.Metadata != nil {
		cp.Metadata = make(map[string]any, len(l.Metadata))
		for k, v := range l.Metadata {
			cp.Metadata[k] = v
		}
	}
	if l.LastEvalResult != nil {
		v := *l.LastEvalResult
		cp.LastEvalResult = &v
	}
	if l.LastEvalTime != nil {
		ts := *l.LastEvalTime
		cp.LastEvalTime = &ts
	}
	return &cp
}

// equivalent reports whether two lines express the same dependency: same
// endpoints and same kind. AddLine rejects duplicates by this rule.
func (l *Line) equivalent(other *Line) bool {
	return l.FromTaskID == other.FromTaskID &&
		l.ToTaskID == other.ToTaskID &&
		l.Kind == other.Kind
}
