package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed line of the JSON log stream. Fields the logger
// writes through the With* helpers surface as typed fields; everything else
// lands in Attrs.
type LogEntry struct {
	Timestamp       time.Time      `json:"time"`
	Level           string         `json:"level"`
	Message         string         `json:"msg"`
	ConstellationID string         `json:"constellation_id,omitempty"`
	TaskID          string         `json:"task_id,omitempty"`
	Component       string         `json:"component,omitempty"`
	Attrs           map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects entries for display or export. Zero-valued fields do not
// filter; set fields combine with AND.
type LogFilter struct {
	// Level keeps entries at or above this severity.
	Level string

	// StartTime and EndTime bound the entry timestamps, inclusive.
	StartTime time.Time
	EndTime   time.Time

	// TaskID, Component, and ConstellationID match their typed fields
	// exactly.
	TaskID          string
	Component       string
	ConstellationID string

	// MessageContains matches a substring of the message.
	MessageContains string
}

// levelRank orders severities for threshold filtering. Unknown levels rank
// negative and are never filtered out.
func levelRank(level string) int {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return -1
	}
}

// matches reports whether the entry passes every set criterion.
func (f LogFilter) matches(e *LogEntry) bool {
	if f.Level != "" {
		want, got := levelRank(f.Level), levelRank(e.Level)
		if want >= 0 && got >= 0 && got < want {
			return false
		}
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.ConstellationID != "" && e.ConstellationID != f.ConstellationID {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(e.Message, f.MessageContains) {
		return false
	}
	return true
}

// AggregateLogs parses every line of {logDir}/starweaver.log into entries
// sorted by timestamp. Blank and unparseable lines are skipped, so a log
// truncated mid-write still aggregates. A missing file reports an error
// matching os.ErrNotExist.
func AggregateLogs(logDir string) ([]LogEntry, error) {
	path := filepath.Join(logDir, "starweaver.log")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file at %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	// Result payloads can make single lines long.
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// typedKeys are the JSON keys that map onto LogEntry's own fields rather
// than Attrs.
var typedKeys = map[string]bool{
	"time": true, "level": true, "msg": true,
	"constellation_id": true, "task_id": true, "component": true,
}

// parseLogEntry decodes one slog JSON line. The typed fields decode through
// the struct tags; whatever keys remain become Attrs.
func parseLogEntry(line string) (LogEntry, error) {
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return LogEntry{}, fmt.Errorf("invalid log line: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid log line: %w", err)
	}
	for key := range typedKeys {
		delete(raw, key)
	}
	delete(raw, "attrs")
	if len(raw) > 0 {
		entry.Attrs = raw
	}
	return entry, nil
}

// ParseLogLine decodes one log line the way AggregateLogs does, for callers
// tailing the stream themselves.
func ParseLogLine(line string) (LogEntry, error) {
	return parseLogEntry(line)
}

// FilterLogs returns the entries matching the filter, preserving order.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	var kept []LogEntry
	for i := range entries {
		if filter.matches(&entries[i]) {
			kept = append(kept, entries[i])
		}
	}
	return kept
}

// ExportLogs aggregates a log directory and writes every entry to
// outputPath. Formats: "json", "text", "csv".
func ExportLogs(logDir, outputPath, format string) error {
	entries, err := AggregateLogs(logDir)
	if err != nil {
		return fmt.Errorf("failed to aggregate logs: %w", err)
	}
	return ExportLogEntries(entries, outputPath, format)
}

// ExportLogEntries writes already-aggregated (and usually filtered) entries
// to outputPath. Formats: "json", "text", "csv".
func ExportLogEntries(entries []LogEntry, outputPath, format string) error {
	var write func(io.Writer, []LogEntry) error
	switch strings.ToLower(format) {
	case "json":
		write = writeJSON
	case "text":
		write = writeText
	case "csv":
		write = writeCSV
	default:
		return fmt.Errorf("unsupported export format %q (json, text, csv)", format)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := write(f, entries); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, entries []LogEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func writeText(w io.Writer, entries []LogEntry) error {
	for i := range entries {
		e := &entries[i]
		var b strings.Builder
		b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05.000"))
		b.WriteString(" [")
		b.WriteString(e.Level)
		b.WriteString("] ")
		b.WriteString(e.Message)
		if e.ConstellationID != "" {
			fmt.Fprintf(&b, " constellation_id=%s", e.ConstellationID)
		}
		if e.TaskID != "" {
			fmt.Fprintf(&b, " task_id=%s", e.TaskID)
		}
		if e.Component != "" {
			fmt.Fprintf(&b, " component=%s", e.Component)
		}
		for key, value := range e.Attrs {
			fmt.Fprintf(&b, " %s=%v", key, value)
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(w, b.String()); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	header := []string{"timestamp", "level", "message", "constellation_id", "task_id", "component", "attrs"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		attrs := ""
		if len(e.Attrs) > 0 {
			if data, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(data)
			}
		}
		record := []string{
			e.Timestamp.Format(time.RFC3339Nano),
			e.Level, e.Message,
			e.ConstellationID, e.TaskID, e.Component,
			attrs,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
