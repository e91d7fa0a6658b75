package run

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LegacyCodeHQ/sequencer/cmd/cmdutil"
	"github.com/LegacyCodeHQ/sequencer/config"
	"github.com/LegacyCodeHQ/sequencer/report"
)

type runOptions struct {
	sources        cmdutil.SourceFlags
	outputFormat   string
	stallSweeps    int
	messageTimeout time.Duration
	emit           bool
	checkAll       bool
}

// Cmd represents the run command.
var Cmd = NewCommand()

// NewCommand returns a new run command instance.
func NewCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [files or directories...]",
		Short: "Compile source files and report how every unit ended",
		Long: `Compile Go-syntax source files on a pool of workers and print a report of the run.

Without --entry every declaration is type checked. With --entry only the named
declarations and what they use are checked, and --emit generates and links code
for them.

Examples:
  sequencer run .
  sequencer run main.go --entry main.go:main --emit
  sequencer run -c HEAD~1 --format json
  sequencer run main.go --meta gen.go:generate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args, opts)
		},
	}

	opts.sources.Register(cmd)
	cmd.Flags().StringVarP(&opts.outputFormat, "format", "f", report.FormatText.String(),
		fmt.Sprintf("Report format (%s, %s)", report.FormatText, report.FormatJSON))
	cmd.Flags().IntVar(&opts.stallSweeps, "stall-sweeps", 0, "Idle sweeps before waiting units are declared unresolved (default from config)")
	cmd.Flags().DurationVar(&opts.messageTimeout, "message-timeout", 0, "How long to wait on external messages once nothing else can run (default from config)")
	cmd.Flags().BoolVar(&opts.emit, "emit", false, "Generate machine code and link after analysis")
	cmd.Flags().BoolVar(&opts.checkAll, "check-all", false, "Type check every declaration even when --entry is given")

	return cmd
}

func runCompile(cmd *cobra.Command, args []string, opts *runOptions) error {
	format, err := report.ParseFormat(opts.outputFormat)
	if err != nil {
		return err
	}

	compilation, err := opts.sources.Prepare(cmd, args, func(cfg *config.Config) {
		applyOverrides(cmd, opts, cfg)
	})
	if err != nil {
		return err
	}

	result, err := compilation.Run(cmd, nil)
	if err != nil {
		return err
	}

	var out strings.Builder
	if err := report.Write(&out, result.Summary(), format); err != nil {
		return err
	}
	if err := cmdutil.Emit(cmd, strings.TrimSuffix(out.String(), "\n")); err != nil {
		return err
	}

	if result.Err != nil {
		return fmt.Errorf("compilation failed: %w", result.Err)
	}
	return nil
}

func applyOverrides(cmd *cobra.Command, opts *runOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("stall-sweeps") {
		cfg.StallSweeps = opts.stallSweeps
	}
	if flags.Changed("message-timeout") {
		cfg.MessageTimeout = opts.messageTimeout
	}
	if flags.Changed("emit") {
		cfg.Emit = opts.emit
	}
	if flags.Changed("check-all") {
		cfg.CheckAll = opts.checkAll
	}
}
