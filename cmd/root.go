package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LegacyCodeHQ/sequencer/cmd/cmdutil"
	"github.com/LegacyCodeHQ/sequencer/cmd/graph"
	"github.com/LegacyCodeHQ/sequencer/cmd/run"
	"github.com/LegacyCodeHQ/sequencer/cmd/watch"
	"github.com/LegacyCodeHQ/sequencer/cmd/why"
)

// version is set via build-time ldflags
var version = "dev"

// buildDate is set via build-time ldflags
var buildDate = "unknown"

// commit is set via build-time ldflags
var commit = "unknown"

// devCommands is set via build-time ldflags to mark development builds
var devCommands = "false"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sequencer",
	Short: "Schedule compilation units and inspect their dependency graph",
	Long: `Sequencer compiles Go-syntax source files by splitting the work into
compilation units and scheduling them on a worker pool. Units that need a
name nobody has declared yet wait until it appears, and units that can never
finish are reported as unresolved or deadlocked.

Use 'sequencer --help' to see all available commands, or 'sequencer <command> --help'
for detailed information about a specific command.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func isDevelopmentBuild(flag string) bool {
	enabled, err := strconv.ParseBool(flag)
	return err == nil && enabled
}

func init() {
	// Register subcommands
	rootCmd.AddCommand(run.Cmd)
	rootCmd.AddCommand(graph.Cmd)
	rootCmd.AddCommand(why.Cmd)
	rootCmd.AddCommand(watch.Cmd)

	// Initialize annotations for version template
	if rootCmd.Annotations == nil {
		rootCmd.Annotations = make(map[string]string)
	}
	rootCmd.Annotations["buildDate"] = buildDate
	rootCmd.Annotations["commit"] = commit
	rootCmd.Annotations["channel"] = "release"
	if isDevelopmentBuild(devCommands) {
		rootCmd.Annotations["channel"] = "development"
	}

	// Update version field dynamically (in case it was set via ldflags)
	rootCmd.Version = version

	// Customize version template to show additional build info
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
Build date: {{printf "%s" (index .Annotations "buildDate")}}
Commit: {{printf "%s" (index .Annotations "commit")}}
Channel: {{printf "%s" (index .Annotations "channel")}}
`)

	rootCmd.PersistentFlags().String(cmdutil.FlagConfig, "", "Config file (default: .sequencer.yaml, .sequencer.yml or .sequencer.hcl in the working directory)")
	rootCmd.PersistentFlags().String(cmdutil.FlagLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String(cmdutil.FlagLogFormat, "text", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolP(cmdutil.FlagClipboard, "b", false, "Automatically copy output to clipboard")
}
