// Package logging provides structured logging for Starweaver runs.
//
// Orchestrating a constellation means many tasks progressing on many
// devices at once, and interleaved plain-text logs become unreadable at
// that point. This package writes JSON records through log/slog so a run
// can be reconstructed afterwards: every record carries the IDs of the
// constellation, task, and device it belongs to, and the aggregation
// helpers turn the log file back into filterable data.
//
// # Writing logs
//
// [NewLogger] writes {logDir}/starweaver.log. [NewLoggerWithRotation]
// additionally rotates the file once it grows past a size limit, keeping
// numbered and optionally gzipped backups (starweaver.log.1 is the most
// recent). Both take a minimum level: DEBUG, INFO, WARN, or ERROR.
//
//	logger, err := logging.NewLoggerWithRotation(logDir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
// Context attaches through child loggers. A child shares the parent's
// output and only adds attributes:
//
//	taskLog := logger.WithConstellation(constellationID).WithTask(taskID).WithDevice(deviceID)
//	taskLog.Info("task dispatched", "timeout_ms", 5000)
//
// Every record from taskLog then includes constellation_id, task_id, and
// device_id fields alongside the per-call pairs:
//
//	{"time":"...","level":"INFO","msg":"task dispatched","constellation_id":"...","task_id":"task_001","device_id":"android-7","timeout_ms":5000}
//
// Loggers and child loggers are safe for concurrent use. Components that
// accept an optional *Logger default to [NopLogger], which discards
// everything, so logging never becomes a required dependency.
//
// # Reading logs back
//
// [AggregateLogs] parses a log directory into [LogEntry] values sorted by
// timestamp, tolerating lines truncated mid-write. [FilterLogs] narrows
// them by level threshold, time window, task, component, constellation,
// or message substring, and [ExportLogEntries] writes the result as JSON,
// text, or CSV:
//
//	entries, err := logging.AggregateLogs(logDir)
//	if err != nil {
//	    return err
//	}
//	failed := logging.FilterLogs(entries, logging.LogFilter{
//	    Level:  "ERROR",
//	    TaskID: "task_007",
//	})
//	return logging.ExportLogEntries(failed, "failures.csv", "csv")
//
// The starweaver logs command is a thin wrapper over these helpers, plus
// a follow mode that tails the active file with [ParseLogLine].
//
// # Levels
//
// [ParseLevel] normalizes user-provided level strings and [ValidLevels]
// lists the accepted ones. Unrecognized levels fall back to INFO rather
// than failing, so a bad config value degrades instead of silencing a
// run.
package logging
