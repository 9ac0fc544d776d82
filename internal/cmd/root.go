package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/starweaver/starweaver/internal/config"
)

// rootCmd is the starweaver entry point. Subcommands attach themselves in
// their own init functions.
var rootCmd = &cobra.Command{
	Use:   "starweaver",
	Short: "Constellation orchestrator for device fleets",
	Long: `Starweaver executes constellations (dependency graphs of tasks) across
a fleet of connected devices, with a central orchestrator scheduling
ready tasks in parallel and keeping mid-run graph edits in lockstep
with execution.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/starweaver/config.yaml)")
	flags.String("data-dir", "", "directory for logs and snapshots (default is .starweaver)")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("paths.data_dir", flags.Lookup("data-dir"))
}

// initConfig loads configuration in ascending precedence: baked-in
// defaults, then the config file, then STARWEAVER_* environment variables,
// then bound flags.
func initConfig() {
	config.SetDefaults()

	switch cfgFile := viper.GetString("config"); cfgFile {
	case "":
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/starweaver")
		viper.AddConfigPath(".")
	default:
		viper.SetConfigFile(cfgFile)
	}

	// Nested keys map to env vars with underscores, so
	// orchestrator.max_parallel reads STARWEAVER_ORCHESTRATOR_MAX_PARALLEL.
	viper.SetEnvPrefix("STARWEAVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
