package constellation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starweaver/starweaver/internal/errors"
)

// -----------------------------------------------------------------------------
// Enum JSON forms
// -----------------------------------------------------------------------------

// MarshalJSON emits the canonical name; the integer form is accepted on input
// only.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts "HIGH", "high", or 3.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*p = PriorityMedium
		return nil
	}
	parsed, err := ParsePriority(v)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalJSON accepts any casing and maps WAITING_DEPENDENCY back to the
// stored PENDING.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if strings.TrimSpace(v) == "" {
		*s = StatusPending
		return nil
	}
	parsed, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalJSON accepts any casing; empty and null mean "no preference".
func (d *DeviceType) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseDeviceType(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON accepts any casing; empty and null default to UNCONDITIONAL.
func (k *DependencyKind) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseDependencyKind(v)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalJSON accepts any casing; empty and null leave the state unset so
// the loader derives it.
func (s *State) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if strings.TrimSpace(v) == "" {
		*s = ""
		return nil
	}
	parsed, err := ParseState(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Wire records
// -----------------------------------------------------------------------------

// TaskRecord is the serialized form of a task. The dependencies and
// dependents fields are denormalized views; the loader rebuilds them from the
// line table and ignores their input values.
type TaskRecord struct {
	TaskID             string         `json:"task_id"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	Tips               []string       `json:"tips,omitempty"`
	TargetDeviceID     string         `json:"target_device_id,omitempty"`
	DeviceType         DeviceType     `json:"device_type,omitempty"`
	Priority           Priority       `json:"priority"`
	Status             Status         `json:"status"`
	Result             any            `json:"result,omitempty"`
	Error              string         `json:"error,omitempty"`
	Timeout            *float64       `json:"timeout,omitempty"`
	RetryCount         int            `json:"retry_count"`
	CurrentRetry       int            `json:"current_retry"`
	TaskData           map[string]any `json:"task_data,omitempty"`
	ExpectedOutputType string         `json:"expected_output_type,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ExecutionStart     *time.Time     `json:"execution_start_time,omitempty"`
	ExecutionEnd       *time.Time     `json:"execution_end_time,omitempty"`
	ExecutionDuration  *float64       `json:"execution_duration,omitempty"`
	Dependencies       []string       `json:"dependencies"`
	Dependents         []string       `json:"dependents"`
}

var taskRecordFields = map[string]bool{
	"task_id": true, "name": true, "description": true, "tips": true,
	"target_device_id": true, "device_type": true, "priority": true,
	"status": true, "result": true, "error": true, "timeout": true,
	"retry_count": true, "current_retry": true, "task_data": true,
	"expected_output_type": true, "created_at": true, "updated_at": true,
	"execution_start_time": true, "execution_end_time": true,
	"execution_duration": true, "dependencies": true, "dependents": true,
}

// UnmarshalJSON decodes the record and folds unknown fields into task_data
// rather than dropping them, unless the key is already taken.
func (r *TaskRecord) UnmarshalJSON(data []byte) error {
	type plain TaskRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = TaskRecord(p)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for key, msg := range raw {
		if taskRecordFields[key] {
			continue
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			continue
		}
		if r.TaskData == nil {
			r.TaskData = make(map[string]any)
		}
		if _, taken := r.TaskData[key]; !taken {
			r.TaskData[key] = v
		}
	}
	return nil
}

// toTask converts a decoded record into an owned Task. The loader assigns
// IDs and timestamps it finds missing.
func (r *TaskRecord) toTask() *Task {
	t := &Task{
		ID:                 r.TaskID,
		Name:               r.Name,
		Description:        r.Description,
		TargetDeviceID:     r.TargetDeviceID,
		DeviceType:         r.DeviceType,
		Priority:           r.Priority,
		Status:             r.Status,
		Result:             r.Result,
		Error:              r.Error,
		RetryCount:         r.RetryCount,
		CurrentRetry:       r.CurrentRetry,
		ExpectedOutputType: r.ExpectedOutputType,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
	if r.Tips != nil {
		t.Tips = append([]string(nil), r.Tips...)
	}
	if r.TaskData != nil {
		t.TaskData = make(map[string]any, len(r.TaskData))
		for k, v := range r.TaskData {
			t.TaskData[k] = v
		}
	} else {
		t.TaskData = make(map[string]any)
	}
	if r.Timeout != nil {
		t.Timeout = time.Duration(*r.Timeout * float64(time.Second))
	}
	if r.ExecutionStart != nil {
		start := r.ExecutionStart.UTC()
		t.ExecutionStart = &start
	}
	if r.ExecutionEnd != nil {
		end := r.ExecutionEnd.UTC()
		t.ExecutionEnd = &end
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if !t.Priority.Valid() {
		t.Priority = PriorityMedium
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	t.ensureSets()
	return t
}

// taskRecordFromTask builds the wire form. The status field surfaces the
// WAITING_DEPENDENCY alias; duration and timeout are emitted in seconds.
func taskRecordFromTask(t *Task) *TaskRecord {
	r := &TaskRecord{
		TaskID:             t.ID,
		Name:               t.Name,
		Description:        t.Description,
		TargetDeviceID:     t.TargetDeviceID,
		DeviceType:         t.DeviceType,
		Priority:           t.Priority,
		Status:             t.EffectiveStatus(),
		Result:             t.Result,
		Error:              t.Error,
		RetryCount:         t.RetryCount,
		CurrentRetry:       t.CurrentRetry,
		ExpectedOutputType: t.ExpectedOutputType,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		ExecutionStart:     cloneTime(t.ExecutionStart),
		ExecutionEnd:       cloneTime(t.ExecutionEnd),
		Dependencies:       t.Dependencies(),
		Dependents:         t.Dependents(),
	}
	if r.Dependencies == nil {
		r.Dependencies = []string{}
	}
	if r.Dependents == nil {
		r.Dependents = []string{}
	}
	if t.Tips != nil {
		r.Tips = append([]string(nil), t.Tips...)
	}
	if len(t.TaskData) > 0 {
		r.TaskData = make(map[string]any, len(t.TaskData))
		for k, v := range t.TaskData {
			r.TaskData[k] = v
		}
	}
	if t.Timeout > 0 {
		sec := t.Timeout.Seconds()
		r.Timeout = &sec
	}
	if t.ExecutionStart != nil && t.ExecutionEnd != nil {
		sec := t.ExecutionDuration().Seconds()
		r.ExecutionDuration = &sec
	}
	return r
}

// LineRecord is the serialized form of a dependency line.
type LineRecord struct {
	LineID         string         `json:"line_id"`
	FromTaskID     string         `json:"from_task_id"`
	ToTaskID       string         `json:"to_task_id"`
	DependencyType DependencyKind `json:"dependency_type"`
	Condition      string         `json:"condition_description,omitempty"`
	Predicate      string         `json:"predicate,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Satisfied      bool           `json:"is_satisfied"`
	LastEvalResult *bool          `json:"last_evaluation_result,omitempty"`
	LastEvalTime   *time.Time     `json:"last_evaluation_time,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

var lineRecordFields = map[string]bool{
	"line_id": true, "from_task_id": true, "to_task_id": true,
	"dependency_type": true, "condition_description": true, "predicate": true,
	"metadata": true, "is_satisfied": true, "last_evaluation_result": true,
	"last_evaluation_time": true, "created_at": true, "updated_at": true,
}

// UnmarshalJSON decodes the record and folds unknown fields into metadata.
func (r *LineRecord) UnmarshalJSON(data []byte) error {
	type plain LineRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = LineRecord(p)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for key, msg := range raw {
		if lineRecordFields[key] {
			continue
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			continue
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]any)
		}
		if _, taken := r.Metadata[key]; !taken {
			r.Metadata[key] = v
		}
	}
	return nil
}

// toLine converts a decoded record into an owned Line.
func (r *LineRecord) toLine() *Line {
	l := &Line{
		ID:         r.LineID,
		FromTaskID: r.FromTaskID,
		ToTaskID:   r.ToTaskID,
		Kind:       r.DependencyType,
		Condition:  r.Condition,
		Predicate:  r.Predicate,
		Satisfied:  r.Satisfied,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.Metadata != nil {
		l.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			l.Metadata[k] = v
		}
	}
	if r.LastEvalResult != nil {
		v := *r.LastEvalResult
		l.LastEvalResult = &v
	}
	if r.LastEvalTime != nil {
		ts := r.LastEvalTime.UTC()
		l.LastEvalTime = &ts
	}
	if l.Kind == "" {
		l.Kind = KindUnconditional
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}
	return l
}

func lineRecordFromLine(l *Line) *LineRecord {
	r := &LineRecord{
		LineID:         l.ID,
		FromTaskID:     l.FromTaskID,
		ToTaskID:       l.ToTaskID,
		DependencyType: l.Kind,
		Condition:      l.Condition,
		Predicate:      l.Predicate,
		Satisfied:      l.Satisfied,
		LastEvalTime:   cloneTime(l.LastEvalTime),
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
	if l.Metadata != nil {
		r.Metadata = make(map[string]any, len(l.Metadata))
		for k, v := range l.Metadata {
			r.Metadata[k] = v
		}
	}
	if l.LastEvalResult != nil {
		v := *l.LastEvalResult
		r.LastEvalResult = &v
	}
	return r
}

// -----------------------------------------------------------------------------
// Document
// -----------------------------------------------------------------------------

// Document is the canonical serialized form of a constellation. Tasks and
// dependencies are emitted as objects keyed by ID in insertion order; both
// accept array form on input. Unknown top-level fields are preserved in
// Metadata when the key is free, otherwise dropped with a warning.
type Document struct {
	ConstellationID    string
	Name               string
	State              State
	TaskRecords        []*TaskRecord
	LineRecords        []*LineRecord
	Metadata           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ExecutionStartTime *time.Time
	ExecutionEndTime   *time.Time
	ExecutionDuration  *float64

	// Warnings collects recoverable parse anomalies for the caller to log.
	Warnings []string
}

var documentFields = map[string]bool{
	"constellation_id": true, "name": true, "state": true, "tasks": true,
	"dependencies": true, "metadata": true, "created_at": true,
	"updated_at": true, "execution_start_time": true,
	"execution_end_time": true, "execution_duration": true,
}

// TaskIDs returns the document's task IDs in document order.
func (d *Document) TaskIDs() []string {
	out := make([]string, 0, len(d.TaskRecords))
	for _, r := range d.TaskRecords {
		out = append(out, r.TaskID)
	}
	return out
}

// LineIDs returns the document's line IDs in document order.
func (d *Document) LineIDs() []string {
	out := make([]string, 0, len(d.LineRecords))
	for _, r := range d.LineRecords {
		out = append(out, r.LineID)
	}
	return out
}

// TaskRecord returns the record with the given ID, or nil.
func (d *Document) TaskRecord(id string) *TaskRecord {
	for _, r := range d.TaskRecords {
		if r.TaskID == id {
			return r
		}
	}
	return nil
}

// LineRecord returns the record with the given ID, or nil.
func (d *Document) LineRecord(id string) *LineRecord {
	for _, r := range d.LineRecords {
		if r.LineID == id {
			return r
		}
	}
	return nil
}

// orderedRecords emits a JSON object whose keys appear in slice order, since
// a plain map would randomize them.
type orderedRecords struct {
	keys   []string
	values map[string]any
}

func (o orderedRecords) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type documentWire struct {
	ConstellationID    string         `json:"constellation_id"`
	Name               string         `json:"name"`
	State              State          `json:"state"`
	Tasks              any            `json:"tasks"`
	Dependencies       any            `json:"dependencies"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ExecutionStartTime *time.Time     `json:"execution_start_time"`
	ExecutionEndTime   *time.Time     `json:"execution_end_time"`
	ExecutionDuration  *float64       `json:"execution_duration"`
}

// MarshalJSON emits the canonical keyed-by-ID object form. A record without
// an ID forces the table into array form, since it cannot be keyed.
func (d *Document) MarshalJSON() ([]byte, error) {
	w := documentWire{
		ConstellationID:    d.ConstellationID,
		Name:               d.Name,
		State:              d.State,
		Metadata:           d.Metadata,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
		ExecutionStartTime: d.ExecutionStartTime,
		ExecutionEndTime:   d.ExecutionEndTime,
		ExecutionDuration:  d.ExecutionDuration,
	}

	tasks := orderedRecords{values: make(map[string]any, len(d.TaskRecords))}
	keyed := true
	for _, r := range d.TaskRecords {
		if r.TaskID == "" {
			keyed = false
			break
		}
		tasks.keys = append(tasks.keys, r.TaskID)
		tasks.values[r.TaskID] = r
	}
	if keyed {
		w.Tasks = tasks
	} else {
		w.Tasks = d.TaskRecords
	}

	lines := orderedRecords{values: make(map[string]any, len(d.LineRecords))}
	keyed = true
	for _, r := range d.LineRecords {
		if r.LineID == "" {
			keyed = false
			break
		}
		lines.keys = append(lines.keys, r.LineID)
		lines.values[r.LineID] = r
	}
	if keyed {
		w.Dependencies = lines
	} else {
		w.Dependencies = d.LineRecords
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes both the object and array table forms, preserving
// key order from the raw bytes.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	stringField := func(key string, dst *string) error {
		msg, ok := raw[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(msg, dst)
	}
	if err := stringField("constellation_id", &d.ConstellationID); err != nil {
		return err
	}
	if err := stringField("name", &d.Name); err != nil {
		return err
	}
	if msg, ok := raw["state"]; ok {
		if err := json.Unmarshal(msg, &d.State); err != nil {
			return err
		}
	}
	if msg, ok := raw["metadata"]; ok && !bytes.Equal(msg, []byte("null")) {
		if err := json.Unmarshal(msg, &d.Metadata); err != nil {
			return err
		}
	}
	if msg, ok := raw["created_at"]; ok && !bytes.Equal(msg, []byte("null")) {
		if err := json.Unmarshal(msg, &d.CreatedAt); err != nil {
			return err
		}
	}
	if msg, ok := raw["updated_at"]; ok && !bytes.Equal(msg, []byte("null")) {
		if err := json.Unmarshal(msg, &d.UpdatedAt); err != nil {
			return err
		}
	}
	if msg, ok := raw["execution_start_time"]; ok {
		if err := json.Unmarshal(msg, &d.ExecutionStartTime); err != nil {
			return err
		}
	}
	if msg, ok := raw["execution_end_time"]; ok {
		if err := json.Unmarshal(msg, &d.ExecutionEndTime); err != nil {
			return err
		}
	}
	if msg, ok := raw["execution_duration"]; ok {
		if err := json.Unmarshal(msg, &d.ExecutionDuration); err != nil {
			return err
		}
	}

	if msg, ok := raw["tasks"]; ok {
		records, warnings, err := decodeTaskTable(msg)
		if err != nil {
			return err
		}
		d.TaskRecords = records
		d.Warnings = append(d.Warnings, warnings...)
	}
	if msg, ok := raw["dependencies"]; ok {
		records, warnings, err := decodeLineTable(msg)
		if err != nil {
			return err
		}
		d.LineRecords = records
		d.Warnings = append(d.Warnings, warnings...)
	}

	// Unknown top-level fields ride along in metadata when the key is free.
	for key, msg := range raw {
		if documentFields[key] {
			continue
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			d.Warnings = append(d.Warnings, fmt.Sprintf("unknown field %q dropped: not valid JSON", key))
			continue
		}
		if d.Metadata == nil {
			d.Metadata = make(map[string]any)
		}
		if _, taken := d.Metadata[key]; taken {
			d.Warnings = append(d.Warnings, fmt.Sprintf("unknown field %q dropped: metadata key taken", key))
			continue
		}
		d.Metadata[key] = v
	}
	return nil
}

// decodeTaskTable accepts both table forms. Object form walks the raw tokens
// so key order survives; array form keeps element order.
func decodeTaskTable(msg json.RawMessage) ([]*TaskRecord, []string, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, nil
	}

	var records []*TaskRecord
	var warnings []string
	switch trimmed[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := dec.Token(); err != nil {
			return nil, nil, err
		}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, nil, err
			}
			key, _ := keyTok.(string)
			var rec TaskRecord
			if err := dec.Decode(&rec); err != nil {
				return nil, nil, err
			}
			if rec.TaskID == "" {
				rec.TaskID = key
			} else if key != "" && rec.TaskID != key {
				warnings = append(warnings, fmt.Sprintf("task key %q disagrees with task_id %q; using key", key, rec.TaskID))
				rec.TaskID = key
			}
			records = append(records, &rec)
		}
	case '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, errors.NewValidationError("tasks must be an object or array").WithField("tasks")
	}
	return records, warnings, nil
}

// decodeLineTable mirrors decodeTaskTable for the dependency table.
func decodeLineTable(msg json.RawMessage) ([]*LineRecord, []string, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, nil
	}

	var records []*LineRecord
	var warnings []string
	switch trimmed[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := dec.Token(); err != nil {
			return nil, nil, err
		}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, nil, err
			}
			key, _ := keyTok.(string)
			var rec LineRecord
			if err := dec.Decode(&rec); err != nil {
				return nil, nil, err
			}
			if rec.LineID == "" {
				rec.LineID = key
			} else if key != "" && rec.LineID != key {
				warnings = append(warnings, fmt.Sprintf("dependency key %q disagrees with line_id %q; using key", key, rec.LineID))
				rec.LineID = key
			}
			records = append(records, &rec)
		}
	case '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, errors.NewValidationError("dependencies must be an object or array").WithField("dependencies")
	}
	return records, warnings, nil
}

// DecodeDocument parses a serialized constellation.
func DecodeDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.NewValidationError("malformed constellation document").WithCause(err)
	}
	return &d, nil
}

// Encode serializes the document with stable two-space indentation.
func (d *Document) Encode() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// -----------------------------------------------------------------------------
// Constellation <-> Document
// -----------------------------------------------------------------------------

// ToDocument snapshots the constellation into its serialized form.
func (c *Constellation) ToDocument() *Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := &Document{
		ConstellationID:    c.id,
		Name:               c.name,
		State:              c.state,
		CreatedAt:          c.createdAt,
		UpdatedAt:          c.updatedAt,
		ExecutionStartTime: cloneTime(c.execStart),
		ExecutionEndTime:   cloneTime(c.execEnd),
	}
	if len(c.metadata) > 0 {
		d.Metadata = make(map[string]any, len(c.metadata))
		for k, v := range c.metadata {
			d.Metadata[k] = v
		}
	}
	if c.execStart != nil && c.execEnd != nil {
		sec := c.execEnd.Sub(*c.execStart).Seconds()
		d.ExecutionDuration = &sec
	}
	for _, id := range c.taskOrder {
		d.TaskRecords = append(d.TaskRecords, taskRecordFromTask(c.tasks[id]))
	}
	for _, id := range c.lineOrder {
		d.LineRecords = append(d.LineRecords, lineRecordFromLine(c.lines[id]))
	}
	return d
}

// Serialize is ToDocument plus Encode.
func (c *Constellation) Serialize() ([]byte, error) {
	return c.ToDocument().Encode()
}

// FromDocument builds a constellation from its serialized form. The
// document's denormalized dependency fields are ignored and rebuilt; its
// state is re-derived from task statuses.
func FromDocument(d *Document, opts ...Option) (*Constellation, error) {
	if d == nil {
		return nil, errors.NewValidationError("document must not be nil").WithField("document")
	}
	all := append([]Option{WithID(d.ConstellationID)}, opts...)
	c := New(d.Name, all...)
	if err := c.Restore(d); err != nil {
		return nil, err
	}
	return c, nil
}

// Deserialize parses and builds in one step.
func Deserialize(data []byte, opts ...Option) (*Constellation, error) {
	d, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return FromDocument(d, opts...)
}

// Restore replaces the constellation's contents with the document's. The
// constellation keeps its own ID; everything else, including timestamps,
// comes from the document so a serialize/load round trip is lossless. A bad
// document leaves the constellation untouched.
func (c *Constellation) Restore(d *Document) error {
	if d == nil {
		return errors.NewValidationError("document must not be nil").WithField("document")
	}

	cid := c.ID()

	// Stage everything before touching live state.
	tasks := make(map[string]*Task, len(d.TaskRecords))
	var taskOrder []string
	for _, rec := range d.TaskRecords {
		t := rec.toTask()
		if t.ID == "" {
			t.ID = c.alloc.NextTaskID(cid)
		}
		if _, dup := tasks[t.ID]; dup {
			return errors.NewAlreadyExistsError("task", t.ID)
		}
		tasks[t.ID] = t
		taskOrder = append(taskOrder, t.ID)
	}

	lines := make(map[string]*Line, len(d.LineRecords))
	var lineOrder []string
	for _, rec := range d.LineRecords {
		l := rec.toLine()
		if l.ID == "" {
			l.ID = c.alloc.NextLineID(cid)
		}
		if _, dup := lines[l.ID]; dup {
			return errors.NewAlreadyExistsError("line", l.ID)
		}
		if _, ok := tasks[l.FromTaskID]; !ok {
			return errors.NewInvariantError("line references missing upstream task", errors.ErrConstellationInvalid).
				WithConstellationID(cid)
		}
		if _, ok := tasks[l.ToTaskID]; !ok {
			return errors.NewInvariantError("line references missing downstream task", errors.ErrConstellationInvalid).
				WithConstellationID(cid)
		}
		lines[l.ID] = l
		lineOrder = append(lineOrder, l.ID)
	}

	// Cycle-check the staged graph with a scratch value before committing.
	scratch := &Constellation{tasks: tasks, lines: lines, taskOrder: taskOrder, lineOrder: lineOrder}
	if scratch.hasCycleLocked() {
		return errors.NewInvariantError("dependency cycle detected", errors.ErrDependencyCycle).
			WithConstellationID(cid)
	}

	metadata := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		metadata[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.name = d.Name
	c.tasks = tasks
	c.lines = lines
	c.taskOrder = taskOrder
	c.lineOrder = lineOrder
	c.metadata = metadata
	if !d.CreatedAt.IsZero() {
		c.createdAt = d.CreatedAt.UTC()
	}
	if !d.UpdatedAt.IsZero() {
		c.updatedAt = d.UpdatedAt.UTC()
	}
	c.execStart = utcTime(d.ExecutionStartTime)
	c.execEnd = utcTime(d.ExecutionEndTime)
	c.executing = d.State == StateExecuting

	for id := range tasks {
		_ = c.alloc.Register(c.id, id)
	}
	for id := range lines {
		_ = c.alloc.Register(c.id, id)
	}

	c.rebuildDenormalizedLocked()
	c.recomputeStateLocked()
	return nil
}
