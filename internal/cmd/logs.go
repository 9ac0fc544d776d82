package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/starweaver/starweaver/internal/config"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View run logs",
	Long: `View and filter the structured logs Starweaver writes during runs.

By default, shows the last 50 entries. Use flags to filter by level,
task, constellation, component, or time, and to export for analysis.

Examples:
  # Show the last 50 entries
  starweaver logs

  # Show everything a single task logged
  starweaver logs --task task_003 -n 0

  # Follow logs in real time
  starweaver logs -f

  # Warnings and errors from the last hour
  starweaver logs --level warn --since 1h

  # Search for patterns
  starweaver logs --grep "retry|timeout"

  # Export matching entries as CSV
  starweaver logs --level error --export errors.csv --format csv`,
	RunE: runLogsCmd,
}

var (
	logsTail          int
	logsFollow        bool
	logsLevel         string
	logsTask          string
	logsConstellation string
	logsComponent     string
	logsSince         string
	logsGrep          string
	logsExport        string
	logsFormat        string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsTask, "task", "", "only entries for this task")
	logsCmd.Flags().StringVar(&logsConstellation, "constellation", "", "only entries for this constellation")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "only entries from this component")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "only entries newer than this duration (e.g. 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only entries matching this pattern (regex)")
	logsCmd.Flags().StringVarP(&logsExport, "export", "o", "", "write matching entries to a file instead of stdout")
	logsCmd.Flags().StringVar(&logsFormat, "format", "json", "export format: json, text, csv")
}

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

func runLogsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	logDir := cfg.Paths.LogDir(cwd)

	filter, err := buildLogFilter()
	if err != nil {
		return err
	}

	var grepRegex *regexp.Regexp
	if logsGrep != "" {
		grepRegex, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	if logsFollow {
		return followLogs(filepath.Join(logDir, "starweaver.log"), filter, grepRegex)
	}

	entries, err := logging.AggregateLogs(logDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("No logs found in %s\n", logDir)
			return nil
		}
		return fmt.Errorf("failed to read logs: %w", err)
	}

	entries = logging.FilterLogs(entries, filter)
	entries = grepEntries(entries, grepRegex)

	if logsExport != "" {
		if err := logging.ExportLogEntries(entries, logsExport, logsFormat); err != nil {
			return fmt.Errorf("failed to export logs: %w", err)
		}
		fmt.Printf("Exported %d entries to %s\n", len(entries), logsExport)
		return nil
	}

	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}
	for i := range entries {
		fmt.Println(formatLogEntry(&entries[i]))
	}
	if len(entries) == 0 {
		fmt.Println("No matching log entries found.")
	}
	return nil
}

// buildLogFilter translates the command flags into an aggregate filter.
func buildLogFilter() (logging.LogFilter, error) {
	filter := logging.LogFilter{
		TaskID:          logsTask,
		ConstellationID: logsConstellation,
		Component:       logsComponent,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return logging.LogFilter{}, fmt.Errorf("invalid --since duration: %w", err)
		}
		filter.StartTime = time.Now().Add(-d)
	}
	return filter, nil
}

// grepEntries keeps entries whose message or attrs match the pattern.
func grepEntries(entries []logging.LogEntry, grepRegex *regexp.Regexp) []logging.LogEntry {
	if grepRegex == nil {
		return entries
	}
	var kept []logging.LogEntry
	for _, entry := range entries {
		if matchesGrep(&entry, grepRegex) {
			kept = append(kept, entry)
		}
	}
	return kept
}

func matchesGrep(entry *logging.LogEntry, grepRegex *regexp.Regexp) bool {
	searchText := entry.Message
	for _, v := range entry.Attrs {
		searchText += " " + fmt.Sprintf("%v", v)
	}
	return grepRegex.MatchString(searchText)
}

// levelColor returns the ANSI color code for a log level
func levelColor(level string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return colorGray
	case logging.LevelInfo:
		return colorBlue
	case logging.LevelWarn:
		return colorYellow
	case logging.LevelError:
		return colorRed
	default:
		return colorReset
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry *logging.LogEntry) string {
	var sb strings.Builder

	// Timestamp
	sb.WriteString(colorGray)
	sb.WriteString("[")
	sb.WriteString(entry.Timestamp.Format("15:04:05.000"))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	// Level with color
	sb.WriteString(" ")
	sb.WriteString(levelColor(entry.Level))
	sb.WriteString("[")
	sb.WriteString(strings.ToUpper(entry.Level))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	// Message
	sb.WriteString(" ")
	sb.WriteString(entry.Message)

	// Context fields (constellation_id, task_id, component)
	if entry.ConstellationID != "" {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString("constellation_id=")
		sb.WriteString(entry.ConstellationID)
		sb.WriteString(colorReset)
	}
	if entry.TaskID != "" {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString("task_id=")
		sb.WriteString(entry.TaskID)
		sb.WriteString(colorReset)
	}
	if entry.Component != "" {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString("component=")
		sb.WriteString(entry.Component)
		sb.WriteString(colorReset)
	}

	// Extra fields
	for key, value := range entry.Attrs {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString(key)
		sb.WriteString("=")
		sb.WriteString(colorReset)
		sb.WriteString(fmt.Sprintf("%v", value))
	}

	return sb.String()
}

// followLogs implements tail -f behavior for the log file
func followLogs(logPath string, filter logging.LogFilter, grepRegex *regexp.Regexp) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Seek to end of file
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Printf("Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// No new data, wait briefly and try again
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("error reading log file: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		entry, err := logging.ParseLogLine(line)
		if err != nil {
			// If we can't parse as JSON, display raw line
			fmt.Println(line)
			continue
		}

		if len(logging.FilterLogs([]logging.LogEntry{entry}, filter)) == 0 {
			continue
		}
		if grepRegex != nil && !matchesGrep(&entry, grepRegex) {
			continue
		}

		fmt.Println(formatLogEntry(&entry))
	}
}
