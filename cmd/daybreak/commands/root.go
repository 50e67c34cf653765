// Package commands implements the daybreak CLI commands using cobra.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus/daybreak/internal/config"
	"github.com/marcus/daybreak/internal/logging"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var (
	configPathFlag string
	verboseFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "daybreak",
	Short: "Run coding-assistance prompts through interchangeable backends",
	Long: `Daybreak sends a coding-assistance prompt to one of the configured
backends: a local CLI tool, an OpenAI-compatible HTTP endpoint, or an
async devserver. Results come back in a single shape regardless of the
backend, with normalized JSON output, token usage, and cost.

Configure providers in ~/.config/daybreak/config.yaml.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPathFlag, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable verbose output")
}

// loadConfig reads the config file and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPathFlag)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verboseFlag {
		level = "debug"
	}
	if err := logging.Init(logging.Config{
		Level:         level,
		Path:          cfg.Log.Path,
		Format:        cfg.Log.Format,
		RetentionDays: cfg.Log.RetentionDays,
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}
