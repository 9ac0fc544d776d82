package editor

import (
	"encoding/json"
	"time"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
)

// taskSetter applies one coerced field value to a task.
type taskSetter func(*constellation.Task)

// lineSetter applies one coerced field value to a line.
type lineSetter func(*constellation.Line)

// taskFieldSetter coerces a single task field value and returns a setter for
// it. Field names follow the serialized form. Execution-owned fields are not
// accepted.
func taskFieldSetter(key string, value any) (taskSetter, error) {
	switch key {
	case "name":
		s, err := stringValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.Name = s }, nil
	case "description":
		s, err := stringValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.Description = s }, nil
	case "tips":
		tips, err := stringSliceValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.Tips = tips }, nil
	case "target_device_id":
		s, err := stringValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.TargetDeviceID = s }, nil
	case "device_type":
		dt, err := deviceTypeValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.DeviceType = dt }, nil
	case "priority":
		p, err := constellation.ParsePriority(value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.Priority = p }, nil
	case "timeout":
		d, err := durationValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.Timeout = d }, nil
	case "retry_count":
		n, err := intValue(key, value)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, errors.NewValidationError("retry count must not be negative").
				WithField(key).WithValue(value)
		}
		return func(t *constellation.Task) { t.RetryCount = n }, nil
	case "task_data":
		m, err := mapValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.TaskData = m }, nil
	case "expected_output_type":
		s, err := stringValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(t *constellation.Task) { t.ExpectedOutputType = s }, nil
	default:
		return nil, errors.NewValidationError("unknown or immutable task field").
			WithField(key).WithValue(value)
	}
}

// restoreTaskField copies one field from a snapshot back onto the owned task.
func restoreTaskField(dst, src *constellation.Task, key string) {
	switch key {
	case "name":
		dst.Name = src.Name
	case "description":
		dst.Description = src.Description
	case "tips":
		dst.Tips = append([]string(nil), src.Tips...)
	case "target_device_id":
		dst.TargetDeviceID = src.TargetDeviceID
	case "device_type":
		dst.DeviceType = src.DeviceType
	case "priority":
		dst.Priority = src.Priority
	case "timeout":
		dst.Timeout = src.Timeout
	case "retry_count":
		dst.RetryCount = src.RetryCount
	case "task_data":
		m := make(map[string]any, len(src.TaskData))
		for k, v := range src.TaskData {
			m[k] = v
		}
		dst.TaskData = m
	case "expected_output_type":
		dst.ExpectedOutputType = src.ExpectedOutputType
	}
}

// lineFieldSetter coerces a single line field value and returns a setter.
func lineFieldSetter(key string, value any) (lineSetter, error) {
	switch key {
	case "dependency_type":
		kind, err := kindValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(l *constellation.Line) { l.Kind = kind }, nil
	case "condition_description":
		s, err := stringValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(l *constellation.Line) { l.Condition = s }, nil
	case "predicate":
		s, err := stringValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(l *constellation.Line) { l.Predicate = s }, nil
	case "metadata":
		m, err := mapValue(key, value)
		if err != nil {
			return nil, err
		}
		return func(l *constellation.Line) { l.Metadata = m }, nil
	default:
		return nil, errors.NewValidationError("unknown or immutable dependency field").
			WithField(key).WithValue(value)
	}
}

// restoreLineField copies one field from a snapshot back onto the owned line.
func restoreLineField(dst, src *constellation.Line, key string) {
	switch key {
	case "dependency_type":
		dst.Kind = src.Kind
	case "condition_description":
		dst.Condition = src.Condition
	case "predicate":
		dst.Predicate = src.Predicate
	case "metadata":
		m := make(map[string]any, len(src.Metadata))
		for k, v := range src.Metadata {
			m[k] = v
		}
		dst.Metadata = m
	}
}

// taskFromParams builds a task from a parameter record. The optional
// "dependencies" key lists upstream task IDs and is returned separately.
func taskFromParams(p map[string]any) (*constellation.Task, []string, error) {
	name, err := requiredString(p, "name")
	if err != nil {
		return nil, nil, err
	}
	description, err := optionalString(p, "description")
	if err != nil {
		return nil, nil, err
	}
	id, err := optionalString(p, "task_id")
	if err != nil {
		return nil, nil, err
	}
	t := constellation.NewTask(id, name, description)

	var upstream []string
	for key, value := range p {
		switch key {
		case "task_id", "name", "description":
			continue
		case "dependencies":
			upstream, err = stringSliceValue(key, value)
			if err != nil {
				return nil, nil, err
			}
		default:
			setter, err := taskFieldSetter(key, value)
			if err != nil {
				return nil, nil, err
			}
			setter(t)
		}
	}
	return t, upstream, nil
}

// lineFromParams builds a line from a parameter record.
func lineFromParams(p map[string]any) (*constellation.Line, error) {
	for key := range p {
		switch key {
		case "line_id", "from_task_id", "to_task_id", "dependency_type",
			"condition_description", "predicate", "metadata":
		default:
			return nil, errors.NewValidationError("unknown dependency field").WithField(key)
		}
	}

	from, err := requiredString(p, "from_task_id")
	if err != nil {
		return nil, err
	}
	to, err := requiredString(p, "to_task_id")
	if err != nil {
		return nil, err
	}
	id, err := optionalString(p, "line_id")
	if err != nil {
		return nil, err
	}
	kind := constellation.KindUnconditional
	if raw, ok := p["dependency_type"]; ok && raw != nil {
		kind, err = kindValue("dependency_type", raw)
		if err != nil {
			return nil, err
		}
	}

	l := constellation.NewLine(id, from, to, kind)
	if s, err := optionalString(p, "condition_description"); err != nil {
		return nil, err
	} else if s != "" {
		l.Condition = s
	}
	if s, err := optionalString(p, "predicate"); err != nil {
		return nil, err
	} else if s != "" {
		l.Predicate = s
	}
	if raw, ok := p["metadata"]; ok && raw != nil {
		m, err := mapValue("metadata", raw)
		if err != nil {
			return nil, err
		}
		l.Metadata = m
	}
	return l, nil
}

// documentParam reads a constellation document given either as an object
// ("document") or as serialized JSON ("data").
func documentParam(p map[string]any) (*constellation.Document, error) {
	if raw, ok := p["document"]; ok && raw != nil {
		switch v := raw.(type) {
		case *constellation.Document:
			return v, nil
		case map[string]any:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, errors.NewValidationError("document is not serializable").
					WithField("document").WithCause(err)
			}
			return constellation.DecodeDocument(data)
		}
		return nil, errors.NewValidationError("expected a document").
			WithField("document").WithValue(raw)
	}
	if raw, ok := p["data"]; ok && raw != nil {
		switch v := raw.(type) {
		case []byte:
			return constellation.DecodeDocument(v)
		case string:
			return constellation.DecodeDocument([]byte(v))
		}
		return nil, errors.NewValidationError("expected serialized JSON").
			WithField("data").WithValue(raw)
	}
	return nil, errors.NewValidationError("required parameter missing").WithField("document")
}

// -----------------------------------------------------------------------------
// Scalar coercions
// -----------------------------------------------------------------------------

func stringValue(key string, v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.NewValidationError("expected a string").WithField(key).WithValue(v)
}

func optionalString(p map[string]any, key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	return stringValue(key, v)
}

func requiredString(p map[string]any, key string) (string, error) {
	s, err := optionalString(p, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", errors.NewValidationError("required parameter missing").WithField(key)
	}
	return s, nil
}

func stringSliceValue(key string, v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, errors.NewValidationError("expected a list of strings").
					WithField(key).WithValue(item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, errors.NewValidationError("expected a list of strings").
		WithField(key).WithValue(v)
}

func mapValue(key string, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.NewValidationError("expected an object").WithField(key).WithValue(v)
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out, nil
}

// recordSlice coerces a parameter to a list of records.
func recordSlice(key string, v any) ([]map[string]any, error) {
	switch list := v.(type) {
	case []map[string]any:
		return list, nil
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, errors.NewValidationError("expected a list of objects").
					WithField(key).WithValue(item)
			}
			out = append(out, rec)
		}
		return out, nil
	}
	return nil, errors.NewValidationError("expected a list of objects").
		WithField(key).WithValue(v)
}

func intValue(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if float64(int(n)) == n {
			return int(n), nil
		}
	}
	return 0, errors.NewValidationError("expected an integer").WithField(key).WithValue(v)
}

// durationValue coerces a timeout given in seconds (any numeric form) or
// directly as a time.Duration.
func durationValue(key string, v any) (time.Duration, error) {
	switch n := v.(type) {
	case time.Duration:
		return n, nil
	case int:
		return time.Duration(n) * time.Second, nil
	case int64:
		return time.Duration(n) * time.Second, nil
	case float64:
		return time.Duration(n * float64(time.Second)), nil
	}
	return 0, errors.NewValidationError("expected a duration in seconds").
		WithField(key).WithValue(v)
}

func deviceTypeValue(key string, v any) (constellation.DeviceType, error) {
	switch dv := v.(type) {
	case constellation.DeviceType:
		return constellation.ParseDeviceType(string(dv))
	case string:
		return constellation.ParseDeviceType(dv)
	}
	return "", errors.NewValidationError("expected a device type").
		WithField(key).WithValue(v)
}

func kindValue(key string, v any) (constellation.DependencyKind, error) {
	switch kv := v.(type) {
	case constellation.DependencyKind:
		return constellation.ParseDependencyKind(string(kv))
	case string:
		return constellation.ParseDependencyKind(kv)
	}
	return "", errors.NewValidationError("expected a dependency kind").
		WithField(key).WithValue(v)
}
