// Package logging provides structured logging for Starweaver runs.
// It wraps Go's log/slog package to provide JSON-formatted logs with
// context propagation support for debugging and post-hoc analysis.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// slogLevels maps level strings to their slog equivalents.
var slogLevels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// Logger writes JSON-formatted log records with persistent context
// attributes. Child loggers created through the With* methods share the
// parent's output and add their own attributes. Safe for concurrent use.
type Logger struct {
	logger   *slog.Logger
	file     *os.File
	rotation *RotatingWriter
	mu       sync.Mutex
}

// NewLogger creates a Logger writing to {logDir}/starweaver.log, creating
// the directory if needed. Records below the given level are dropped; an
// unrecognized level falls back to INFO. An empty logDir sends records to
// stderr instead, for commands that run without a data directory.
func NewLogger(logDir string, level string) (*Logger, error) {
	if logDir == "" {
		return &Logger{logger: newSlog(os.Stderr, level)}, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(logDir, "starweaver.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &Logger{logger: newSlog(file, level), file: file}, nil
}

// NewLoggerWithRotation is NewLogger writing through a RotatingWriter, so
// {logDir}/starweaver.log is rotated once it exceeds the configured size.
func NewLoggerWithRotation(logDir string, level string, config RotationConfig) (*Logger, error) {
	if logDir == "" {
		return NewLogger("", level)
	}

	rotator, err := NewRotatingWriter(filepath.Join(logDir, "starweaver.log"), config)
	if err != nil {
		return nil, err
	}
	return &Logger{logger: newSlog(rotator, level), rotation: rotator}, nil
}

func newSlog(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// parseLevel converts a level string to its slog.Level, defaulting to INFO.
func parseLevel(level string) slog.Level {
	if lv, ok := slogLevels[strings.ToUpper(level)]; ok {
		return lv
	}
	return slog.LevelInfo
}

// child returns a Logger sharing this one's output with extra persistent
// attributes appended.
func (l *Logger) child(args ...any) *Logger {
	return &Logger{
		logger:   l.logger.With(args...),
		file:     l.file,
		rotation: l.rotation,
	}
}

// WithConstellation returns a child Logger tagging every record with the
// constellation ID.
func (l *Logger) WithConstellation(constellationID string) *Logger {
	return l.child("constellation_id", constellationID)
}

// WithTask returns a child Logger tagging every record with the task ID.
func (l *Logger) WithTask(taskID string) *Logger {
	return l.child("task_id", taskID)
}

// WithDevice returns a child Logger tagging every record with the device ID.
func (l *Logger) WithDevice(deviceID string) *Logger {
	return l.child("device_id", deviceID)
}

// WithComponent returns a child Logger tagging every record with a component
// name such as "orchestrator", "editor", or "bus".
func (l *Logger) WithComponent(component string) *Logger {
	return l.child("component", component)
}

// With returns a child Logger with arbitrary persistent key-value pairs.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return l.child(args...)
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Close flushes and closes the log output. Closing a stderr or nop Logger,
// or closing twice, is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.rotation != nil:
		rotation := l.rotation
		l.rotation = nil
		return rotation.Close()
	case l.file != nil:
		file := l.file
		l.file = nil
		if err := file.Sync(); err != nil {
			return fmt.Errorf("failed to sync log file: %w", err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
	}
	return nil
}

// NopLogger returns a Logger that discards everything. Components take it as
// their default so logging stays optional.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// ParseLevel normalizes a level string to one of the Level constants,
// defaulting to LevelInfo.
func ParseLevel(level string) string {
	normalized := strings.ToUpper(level)
	if _, ok := slogLevels[normalized]; ok {
		return normalized
	}
	return LevelInfo
}

// ValidLevels returns the valid level strings in severity order.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
