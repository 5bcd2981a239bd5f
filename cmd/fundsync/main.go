// Package main provides the CLI entry point for fundsync.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/canectors/fundsync/internal/cli"
	"github.com/canectors/fundsync/internal/config"
	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/internal/modules/filter"
	"github.com/canectors/fundsync/internal/runtime"
	"github.com/canectors/fundsync/internal/web"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

// Build information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exit(code int) error {
	if code == ExitSuccess {
		return nil
	}
	return &exitError{code: code}
}

// app holds the flags and writers shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	verbose      bool
	quiet        bool
	logFormat    string
	logFile      string
	settingsFile string
	envFile      string

	dryRun bool
	addr   string
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	logger.Close()

	var exitErr *exitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.code
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitRuntimeError
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fundsync",
		Short: "fundsync - Filter fund registry records into Pipefy cards",
		Long: `fundsync downloads the fund registry archive, filters its records
and creates one Pipefy card per matching record.

Requests are JSON or YAML documents:

  file_name: registro_fundo.csv
  filter:
    Tipo_Fundo: FII
    operator: equals
  pipe_id: 301

Examples:
  # Validate a request file
  fundsync validate request.json

  # Preview matches without creating cards
  fundsync run --dry-run request.yaml

  # Serve POST /main on :8090
  fundsync serve`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.configureLogger,
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress non-error output")
	flags.StringVar(&a.logFormat, "log-format", "json", "Log format: json or human")
	flags.StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this file")
	flags.StringVar(&a.settingsFile, "settings", "", "Optional YAML settings file")
	flags.StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "Environment file loaded when present")

	root.AddCommand(a.validateCmd(), a.runCmd(), a.serveCmd(), a.versionCmd())
	return root
}

func (a *app) configureLogger(_ *cobra.Command, _ []string) error {
	format, err := logger.ParseFormat(a.logFormat)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelError
	}

	return logger.Configure(logger.Options{
		Level:    level,
		Format:   format,
		FilePath: a.logFile,
		Output:   a.stderr,
	})
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <request-file>",
		Short: "Validate a request file",
		Long: `Validate a request file without executing it.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Request is valid
  1 - Validation errors (missing fields, bad operator or filter values)
  2 - Parse errors (invalid JSON/YAML syntax)`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			result, code := a.loadRequest(args[0])
			if code != ExitSuccess {
				return exit(code)
			}

			if _, err := filter.NewEvaluator(result.Request.Filter); err != nil {
				cli.PrintValidationErrors(a.stderr, []config.ValidationError{{
					Path:    "/filter",
					Type:    "validation",
					Message: err.Error(),
				}}, a.verbose, a.quiet)
				return exit(ExitValidationError)
			}

			if !a.quiet {
				fmt.Fprintf(a.stdout, "✓ Request is valid (format: %s)\n", result.Format)
				if a.verbose {
					cli.PrintRequestSummary(a.stdout, result.Request)
				}
			}
			return nil
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <request-file>",
		Short: "Run a request: load, filter and create cards",
		Long: `Run the request defined in the file.

The request is validated first. If validation fails, nothing is
downloaded and no card is created.

Exit codes:
  0 - Execution succeeded
  1 - Validation errors
  2 - Parse errors
  3 - Runtime errors (download, authentication, remote API)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, code := a.loadRequest(args[0])
			if code != ExitSuccess {
				return exit(code)
			}

			settings, err := config.LoadSettings(a.settingsFile, a.envFile)
			if err != nil {
				fmt.Fprintf(a.stderr, "✗ Failed to load settings: %v\n", err)
				return exit(ExitRuntimeError)
			}

			if !a.quiet {
				if a.dryRun {
					fmt.Fprintln(a.stdout, "Executing request (dry-run mode - no card will be created)...")
				} else {
					fmt.Fprintln(a.stdout, "Executing request...")
				}
				if a.verbose {
					cli.PrintRequestSummary(a.stdout, result.Request)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			executor := runtime.NewExecutorFromSettings(settings, runtime.WithDryRun(a.dryRun))
			start := time.Now()
			execResult, err := executor.Execute(ctx, result.Request)
			if err != nil {
				cli.PrintExecutionError(a.stderr, err, a.verbose)
				return exit(exitCodeFor(err))
			}

			cli.PrintExecutionResult(a.stdout, execResult, cli.OutputOptions{
				Verbose: a.verbose,
				Quiet:   a.quiet,
				Elapsed: time.Since(start),
			})
			return nil
		},
	}
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Filter and print the matches without creating cards")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP front controller (POST /main)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadSettings(a.settingsFile, a.envFile)
			if err != nil {
				fmt.Fprintf(a.stderr, "✗ Failed to load settings: %v\n", err)
				return exit(ExitRuntimeError)
			}

			addr := settings.ListenAddr
			if a.addr != "" {
				addr = a.addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := web.NewServer(runtime.NewExecutorFromSettings(settings), web.FunctionInfo{
				Name:    settings.FunctionName,
				Version: settings.FunctionVersion,
			})
			if err := server.Start(ctx, addr); err != nil {
				fmt.Fprintf(a.stderr, "✗ Server error: %v\n", err)
				return exit(ExitRuntimeError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&a.addr, "addr", "", "Listen address (default from LISTEN_ADDR)")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "Version: %s\n", version)
			fmt.Fprintf(a.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(a.stdout, "Build Date: %s\n", buildDate)
		},
	}
}

// loadRequest parses and validates a request file, printing any error.
func (a *app) loadRequest(path string) (*config.Result, int) {
	if !a.quiet && a.verbose {
		fmt.Fprintf(a.stdout, "Loading request: %s\n", path)
	}

	result := config.ParseRequestFile(path)
	if len(result.ParseErrors) > 0 {
		cli.PrintParseErrors(a.stderr, result.ParseErrors, a.verbose)
		return result, ExitParseError
	}
	if len(result.ValidationErrors) > 0 {
		logger.Debug("request rejected",
			slog.String("path", path),
			slog.String("error", result.Err.Error()),
		)
		cli.PrintValidationErrors(a.stderr, result.ValidationErrors, a.verbose, a.quiet)
		return result, ExitValidationError
	}
	return result, ExitSuccess
}

// exitCodeFor maps an execution error to an exit code.
func exitCodeFor(err error) int {
	var stageErr *runtime.StageError
	if errors.As(err, &stageErr) && stageErr.Stage == logger.StageValidate {
		return ExitValidationError
	}
	return ExitRuntimeError
}
