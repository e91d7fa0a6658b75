// Package cmdutil holds flag handling shared by the sequencer subcommands.
package cmdutil

import (
	"fmt"
	"log/slog"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/LegacyCodeHQ/sequencer/config"
)

// Persistent flag names registered on the root command.
const (
	FlagConfig    = "config"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
	FlagClipboard = "clipboard"
)

// LoadConfig reads the file named by --config, or the one discovered in dir, and applies the
// --log-level and --log-format overrides.
func LoadConfig(cmd *cobra.Command, dir string) (config.Config, error) {
	path, _ := cmd.Flags().GetString(FlagConfig)
	if path == "" {
		if dir == "" {
			dir = "."
		}
		path = config.Discover(dir)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed(FlagLogLevel) {
		cfg.Log.Level, _ = cmd.Flags().GetString(FlagLogLevel)
	}
	if cmd.Flags().Changed(FlagLogFormat) {
		cfg.Log.Format, _ = cmd.Flags().GetString(FlagLogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Logger builds the run logger. Records go to stderr so stdout stays machine readable.
func Logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return cfg.NewLogger(cmd.ErrOrStderr())
}

// Emit prints output, followed by a clipboard copy when --clipboard is set.
func Emit(cmd *cobra.Command, output string) error {
	fmt.Fprintln(cmd.OutOrStdout(), output)

	copyToClipboard, _ := cmd.Flags().GetBool(FlagClipboard)
	if !copyToClipboard {
		return nil
	}
	if err := clipboard.WriteAll(output); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "\n✅ Content copied to your clipboard.")
	return nil
}
