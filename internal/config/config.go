package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Starweaver configuration
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Assignment   AssignmentConfig   `mapstructure:"assignment"`
	Devices      DevicesConfig      `mapstructure:"devices"`
	Store        StoreConfig        `mapstructure:"store"`
	Watch        WatchConfig        `mapstructure:"watch"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Paths        PathsConfig        `mapstructure:"paths"`
}

// OrchestratorConfig controls the scheduling loop
type OrchestratorConfig struct {
	// MaxParallel is the maximum number of concurrent in-flight task
	// executions per constellation (default: 10)
	MaxParallel int `mapstructure:"max_parallel"`
	// TaskTimeoutSeconds is the fallback per-attempt timeout for tasks that
	// carry no timeout of their own (default: 1000)
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`
	// SyncTimeoutSeconds bounds each wait on the planner-edit gate before the
	// loop proceeds on a best-effort basis (default: 30)
	SyncTimeoutSeconds int `mapstructure:"sync_timeout_seconds"`
}

// AssignmentConfig controls automatic device assignment
type AssignmentConfig struct {
	// Strategy is the assignment strategy for tasks without a target device
	// Options: "round_robin", "capability_match", "load_balance"
	Strategy string `mapstructure:"strategy"`
	// Preferences maps task IDs to preferred device IDs. A preference is
	// honored only while the preferred device is connected.
	Preferences map[string]string `mapstructure:"preferences"`
}

// DevicesConfig controls the device collaborator
type DevicesConfig struct {
	// FleetFile is the path to a YAML fleet definition for the simulated
	// device manager. Empty means commands require an explicit --fleet flag.
	FleetFile string `mapstructure:"fleet_file"`
}

// StoreConfig controls the constellation snapshot store
type StoreConfig struct {
	// Autosave persists a snapshot on every constellation lifecycle event
	// during a run (default: true)
	Autosave bool `mapstructure:"autosave"`
	// Path overrides where the snapshot database lives.
	// If empty, defaults to "snapshots" under the data directory.
	Path string `mapstructure:"path"`
}

// WatchConfig controls the plan-file watcher
type WatchConfig struct {
	// DebounceMs is how long to coalesce filesystem event bursts before
	// re-reading a watched plan file (default: 250)
	DebounceMs int `mapstructure:"debounce_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// PathsConfig controls where Starweaver stores data
type PathsConfig struct {
	// DataDir is the directory for logs and the snapshot store.
	// If empty, defaults to ".starweaver" relative to the working directory.
	// Can be an absolute path to keep run artifacts out of the project tree.
	// Supports ~ for home directory expansion.
	DataDir string `mapstructure:"data_dir"`
}

// TaskTimeout returns the fallback task timeout as a time.Duration
func (c *OrchestratorConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// SyncTimeout returns the planner-gate timeout as a time.Duration
func (c *OrchestratorConfig) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

// Debounce returns the watcher debounce window as a time.Duration
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ResolveDataDir returns the resolved data directory path.
// If DataDir is empty, it returns the default path relative to baseDir.
// If DataDir starts with ~, it expands to the user's home directory.
// If DataDir is a relative path, it's resolved relative to baseDir.
func (p *PathsConfig) ResolveDataDir(baseDir string) string {
	if p.DataDir == "" {
		return filepath.Join(baseDir, ".starweaver")
	}

	path := p.DataDir

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	// If relative path, resolve relative to baseDir
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// LogDir returns the log directory under the resolved data directory.
func (p *PathsConfig) LogDir(baseDir string) string {
	return filepath.Join(p.ResolveDataDir(baseDir), "logs")
}

// ResolveStorePath returns the snapshot store directory: the configured
// override when set, otherwise "snapshots" under the resolved data directory.
func (c *Config) ResolveStorePath(baseDir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(baseDir, c.Store.Path)
	}
	return filepath.Join(c.Paths.ResolveDataDir(baseDir), "snapshots")
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxParallel:        10,
			TaskTimeoutSeconds: 1000,
			SyncTimeoutSeconds: 30,
		},
		Assignment: AssignmentConfig{
			Strategy:    "round_robin",
			Preferences: map[string]string{},
		},
		Devices: DevicesConfig{
			FleetFile: "",
		},
		Store: StoreConfig{
			Autosave: true,
			Path:     "", // Empty means use default: <data_dir>/snapshots
		},
		Watch: WatchConfig{
			DebounceMs: 250,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paths: PathsConfig{
			DataDir: "", // Empty means use default: .starweaver
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Orchestrator defaults
	viper.SetDefault("orchestrator.max_parallel", defaults.Orchestrator.MaxParallel)
	viper.SetDefault("orchestrator.task_timeout_seconds", defaults.Orchestrator.TaskTimeoutSeconds)
	viper.SetDefault("orchestrator.sync_timeout_seconds", defaults.Orchestrator.SyncTimeoutSeconds)

	// Assignment defaults
	viper.SetDefault("assignment.strategy", defaults.Assignment.Strategy)
	viper.SetDefault("assignment.preferences", defaults.Assignment.Preferences)

	// Devices defaults
	viper.SetDefault("devices.fleet_file", defaults.Devices.FleetFile)

	// Store defaults
	viper.SetDefault("store.autosave", defaults.Store.Autosave)
	viper.SetDefault("store.path", defaults.Store.Path)

	// Watch defaults
	viper.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Paths defaults
	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "starweaver")
	}
	// Fall back to ~/.config/starweaver
	home, err := os.UserHomeDir()
	if err != nil {
		return ".starweaver"
	}
	return filepath.Join(home, ".config", "starweaver")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
