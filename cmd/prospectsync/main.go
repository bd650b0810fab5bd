// Package main provides the CLI entry point for prospectsync.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pardreamin/prospectsync/internal/cli"
	"github.com/pardreamin/prospectsync/internal/config"
	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/internal/runtime"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

var (
	// Build information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	logger.CloseLogFile()
	os.Exit(code)
}

// options holds the persistent flags.
type options struct {
	configPath  string
	envFile     string
	verbose     bool
	quiet       bool
	logFormat   string
	logFile     string
	dryRun      bool
	metricsFile string
	seed        uint64
	seedSet     bool
}

// cliState is shared by the commands of one invocation.
type cliState struct {
	opts     options
	stdout   io.Writer
	stderr   io.Writer
	exitCode int
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	st := &cliState{stdout: stdout, stderr: stderr}
	root := newRootCmd(st)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "✗ %v\n", err)
		return errhandling.ExitRuntime
	}
	return st.exitCode
}

func newRootCmd(st *cliState) *cobra.Command {
	root := &cobra.Command{
		Use:   "prospectsync",
		Short: "prospectsync - weekly listings emails through Pardot",
		Long: `prospectsync puts a handful of property listings on each recipient's
Pardot prospect record, sends the weekly listings email, then clears the
fields again.

Examples:
  # Check a configuration file
  prospectsync validate --config config/app.yaml

  # Create the custom fields the email template reads
  prospectsync fields create

  # Send the template to the sending list, previewing requests only
  prospectsync send list --dry-run --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			st.opts.seedSet = cmd.Flags().Changed("seed")
			return st.setupLogging()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&st.opts.configPath, "config", "c", config.DefaultConfigPath, "Configuration file (YAML or JSON)")
	flags.StringVar(&st.opts.envFile, "env-file", "", "Dotenv file with secrets (default .env when present)")
	flags.BoolVarP(&st.opts.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&st.opts.quiet, "quiet", "q", false, "Suppress non-error output")
	flags.StringVar(&st.opts.logFormat, "log-format", "json", "Console log format: json or human")
	flags.StringVar(&st.opts.logFile, "log-file", "", "Also write JSON logs to this file")
	flags.BoolVar(&st.opts.dryRun, "dry-run", false, "Preview Pardot requests without sending them")
	flags.StringVar(&st.opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	flags.Uint64Var(&st.opts.seed, "seed", 0, "Seed for the listing sampler (random when unset)")

	fieldsCmd := &cobra.Command{
		Use:   "fields",
		Short: "Manage the Pardot custom fields holding the listings",
	}
	fieldsCmd.AddCommand(
		workflowCmd(st, "create", "Create the listing custom fields and record them in the registry",
			(*runtime.Runner).CreateFields),
		workflowCmd(st, "delete", "Delete every custom field recorded in the registry",
			(*runtime.Runner).DeleteFields),
	)

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send the weekly listings email",
	}
	sendCmd.AddCommand(
		workflowCmd(st, "html", "Send each recipient a complete HTML email rendered locally",
			(*runtime.Runner).SendHTML),
		workflowCmd(st, "template", "Update, send the Pardot template to, and clear each prospect in turn",
			(*runtime.Runner).SendTemplate),
		workflowCmd(st, "list", "Batch update all prospects, send the template to the list, then clear",
			(*runtime.Runner).SendList),
	)

	root.AddCommand(validateCmd(st), fieldsCmd, sendCmd, versionCmd(st))
	return root
}

func (st *cliState) setupLogging() error {
	format, err := logger.ParseFormat(st.opts.logFormat)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if st.opts.verbose {
		level = slog.LevelDebug
	} else if st.opts.quiet {
		level = slog.LevelError
	}
	logger.SetOutput(st.stderr, level, format)
	if st.opts.logFile != "" {
		if err := logger.SetLogFile(st.opts.logFile, level, format); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	}
	return nil
}

func (st *cliState) outputOptions() cli.OutputOptions {
	return cli.OutputOptions{Verbose: st.opts.verbose, Quiet: st.opts.quiet, DryRun: st.opts.dryRun}
}

type workflowFunc func(*runtime.Runner, context.Context) (*prospect.RunResult, error)

func workflowCmd(st *cliState, use, short string, run workflowFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st.exitCode = st.runWorkflow(cmd.Context(), cmd.Parent().Name()+" "+use, run)
			return nil
		},
	}
}

func (st *cliState) runWorkflow(ctx context.Context, command string, run workflowFunc) int {
	settings, err := config.Load(st.opts.configPath, config.LoadOptions{EnvFile: st.opts.envFile})
	if err != nil {
		cli.PrintStartupError(st.stderr, err)
		return errhandling.ExitCodeFor(err)
	}

	a, err := newApp(ctx, settings, st.opts, command)
	if err != nil {
		logger.Error("startup failed", "command", command, "error", err.Error())
		cli.PrintStartupError(st.stderr, err)
		st.writeMetrics(a)
		return errhandling.ExitCodeFor(err)
	}
	defer a.Close()

	if !st.opts.quiet {
		mode := ""
		if st.opts.dryRun {
			mode = " (dry-run, nothing is sent)"
		}
		fmt.Fprintf(st.stdout, "Running %s%s...\n", command, mode)
	}

	result, err := run(a.runner, ctx)
	cli.PrintRunResult(st.stdout, st.stderr, result, st.outputOptions())
	st.writeMetrics(a)
	return errhandling.ExitCodeFor(err)
}

func (st *cliState) writeMetrics(a *app) {
	if st.opts.metricsFile == "" || a == nil || a.metrics == nil {
		return
	}
	if err := a.metrics.WriteTextfile(st.opts.metricsFile); err != nil {
		logger.Warn("failed to write metrics file", "path", st.opts.metricsFile, "error", err.Error())
	}
}

func validateCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file against the schema, then check the
field name templates and the recipient filter.

Exit codes:
  0  - Configuration is valid
  60 - Parse errors (invalid JSON/YAML syntax, unreadable env file)
  61 - Validation errors`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			st.exitCode = st.validate()
			return nil
		},
	}
}

func (st *cliState) validate() int {
	path := st.opts.configPath
	if !st.opts.quiet {
		fmt.Fprintf(st.stdout, "Validating configuration: %s\n", path)
	}

	report := config.Check(path, config.LoadOptions{EnvFile: st.opts.envFile})
	if len(report.ParseErrors) > 0 {
		cli.PrintParseErrors(st.stderr, report.ParseErrors, st.opts.verbose)
		return errhandling.ExitConfigParse
	}
	if len(report.ValidationErrors) > 0 {
		cli.PrintValidationErrors(st.stderr, report.ValidationErrors, st.opts.verbose, st.opts.quiet)
		return errhandling.ExitConfigValidation
	}

	settings, err := config.ConvertToSettings(report.Data)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			cli.PrintValidationErrors(st.stderr, []config.ValidationError{verr}, st.opts.verbose, st.opts.quiet)
			return errhandling.ExitConfigValidation
		}
		err = errhandling.Fail(errhandling.SiteConfigValidate, err)
		cli.PrintStartupError(st.stderr, err)
		return errhandling.ExitCodeFor(err)
	}
	if _, err := newFilter(settings); err != nil {
		cli.PrintStartupError(st.stderr, err)
		return errhandling.ExitCodeFor(err)
	}

	if !st.opts.quiet {
		fmt.Fprintf(st.stdout, "✓ Configuration is valid (format: %s)\n", report.Format)
		if st.opts.verbose {
			summary := summarize(settings)
			summary.EnvOverrides = report.EnvOverrides
			cli.PrintConfigSummary(st.stdout, summary)
		}
	}
	return errhandling.ExitSuccess
}

func summarize(s *config.Settings) cli.SettingsSummary {
	src := s.Data.Source
	if src == config.SourceCSV {
		src += " (" + s.Data.RecipientsFile + ", " + s.Data.ListingsFile + ")"
	}
	return cli.SettingsSummary{
		PardotURL:       s.Pardot.URL,
		APIVersion:      s.Pardot.LegacyAPIVersion,
		MaxBatchSize:    s.Pardot.MaxBatchSize,
		APIFormat:       s.FieldNaming.APIFormat.String(),
		HumanFormat:     s.FieldNaming.HumanFormat.String(),
		ListingCountMin: s.FieldNaming.ListingCountMin,
		ListingCountMax: s.FieldNaming.ListingCountMax,
		Source:          src,
		Filter:          s.Recipients.Filter,
	}
}

func versionCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(st.stdout, "Version: %s\n", version)
			fmt.Fprintf(st.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(st.stdout, "Build Date: %s\n", buildDate)
		},
	}
}
