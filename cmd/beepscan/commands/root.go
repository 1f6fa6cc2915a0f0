package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "beepscan",
	Short: "Locate short tonal beeps in audio recordings",
	Long: `beepscan - find beeps in long audio recordings.

Two detectors are available:
  detect  band-energy peaks in a frequency band (no reference needed)
  match   occurrences of a reference beep by template correlation

Settings are resolved in order: built-in defaults, the YAML file given
with --config, BEEP_* environment variables, then command flags.

Examples:
  beepscan detect recording.wav
  beepscan match --template beep.wav --threshold 0.7 recording.mp3
  beepscan match --template beep.wav --report beeps.txt recording.wav
  beepscan serve --addr :8000 --template static/beep_template.wav`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML settings file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// loadSettings resolves defaults, the config file and the environment, and
// configures the global logger from the result.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings := config.DefaultSettings()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}

	if err := settings.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		settings.LogLevel = logLevel
	}

	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidParameter, err)
	}

	logger := logging.NewWriterLogger(os.Stderr, os.Stderr, isTerminal(os.Stderr))
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	return settings, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// flagOverride copies a flag value into dst only when the flag was set
// on the command line
func flagOverride[T any](cmd *cobra.Command, name string, src T, dst *T) {
	if cmd.Flags().Changed(name) {
		*dst = src
	}
}
