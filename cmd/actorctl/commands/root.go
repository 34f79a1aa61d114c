package commands

import (
	"github.com/spf13/cobra"
)

var (
	// configPath is the path to a YAML system configuration.
	configPath string

	// logDir enables a rotating log file in the directory.
	logDir string

	// logLevel is the global or per-subsystem log level.
	logLevel string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "actorctl",
	Short: "Drive the actorcore runtime",
	Long: `actorctl runs workloads on the actorcore actor runtime.

Use it to benchmark the event-based and fiber scheduling strategies and to
inspect the runtime's logs and metrics while doing so.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "",
		"Path to a YAML system configuration",
	)
	rootCmd.PersistentFlags().StringVar(
		&logDir, "log-dir", "",
		"Also write logs to a rotating file in this directory",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"Log level, e.g. debug or ACTR=trace,SCHD=info "+
			"(default: from config)",
	)

	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(versionCmd)
}
