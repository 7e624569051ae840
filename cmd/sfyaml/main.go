package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"sfyaml/internal/metrics"
	"sfyaml/internal/metrics/datadog"
	"sfyaml/internal/provision"
	"sfyaml/internal/report"

	// register all backends with the warehouse factory.
	// the master file or --backend picks one; all of them are built in.
	_ "sfyaml/internal/warehouse/all"
)

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// commandRunner is what the subcommands call. *provision.Runner implements it.
type commandRunner interface {
	Apply(ctx context.Context) error
	Validate(ctx context.Context) error
	Rollback(ctx context.Context) error
	Check(ctx context.Context) error
	DBTRun(ctx context.Context) error
}

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject a fake runner or backend factory and capture output.
//
// Errors:
//   - BackendFactory should return a non-nil error for fatal initialization failures.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	Getenv         func(key string) string
	NewRunner      func(opts provision.Options, out *report.Reporter, logger provision.Logger, stdout, stderr io.Writer) commandRunner
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	ConfigDir      string
	Master         string
	Backend        string
	DSN            string
	MetricsBackend string
	NoColor        bool
	Verbose        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		Getenv: os.Getenv,
	})
	stop()
	os.Exit(code)
}

// run executes one sfyaml command and returns an exit code.
//
// Exit codes:
//   - 0: success (including a rollback refused for lack of --confirm).
//   - 1: validation, reconciliation, warehouse or dbt failure.
//   - 2: master file load failure, usage error or metrics init failure.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.NewRunner == nil {
		d.NewRunner = func(opts provision.Options, out *report.Reporter, logger provision.Logger, stdout, stderr io.Writer) commandRunner {
			r := provision.New(opts, out, logger)
			r.Stdout, r.Stderr = stdout, stderr
			return r
		}
	}

	var (
		g        globalFlags
		cmdErr   error
		cleanups []func()
	)
	defer func() {
		for _, f := range cleanups {
			f()
		}
	}()

	// exec builds the runner for the parsed flags and records the command error.
	exec := func(opts provision.Options, f func(commandRunner, context.Context) error) error {
		opts.ConfigDir, opts.Master = g.ConfigDir, g.Master
		opts.Backend, opts.DSN = g.Backend, g.DSN

		var logger provision.Logger
		if g.Verbose {
			logger = log.New(d.Stderr, "", log.LstdFlags)
		}
		out := report.New(d.Stdout, report.Options{NoColor: g.NoColor})
		cmdErr = f(d.NewRunner(opts, out, logger, d.Stdout, d.Stderr), ctx)
		return nil
	}

	root := &cobra.Command{
		Use:   "sfyaml",
		Short: "sfyaml manages warehouse objects and dbt runs from YAML configuration",
		// Affects children as well
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cleanup, err := initMetrics(ctx, g.MetricsBackend, d)
			if err != nil {
				return err
			}
			cleanups = append(cleanups, cleanup)
			return nil
		},
	}
	root.SetArgs(args)
	root.SetOut(d.Stdout)
	root.SetErr(d.Stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.ConfigDir, "config-dir", "config", "directory holding the master file and the files it references")
	pf.StringVar(&g.Master, "master", "master_sf_objects.yaml", "master file name under --config-dir")
	pf.StringVar(&g.Backend, "backend", "", "warehouse backend (snowflake, postgres, mssql, sqlite); overrides the master target")
	pf.StringVar(&g.DSN, "dsn", "", "warehouse DSN; overrides the master target")
	pf.StringVar(&g.MetricsBackend, "metrics-backend", "", "metrics backend (none, datadog); overrides env METRICS_BACKEND")
	pf.BoolVar(&g.NoColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&g.Verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(
		newApplyCmd(exec),
		newValidateCmd(exec),
		newRollbackCmd(exec),
		newDBTRunCmd(exec),
		newCheckCmd(exec),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	return exitCode(cmdErr)
}

type execFunc func(opts provision.Options, f func(commandRunner, context.Context) error) error

func newApplyCmd(exec execFunc) *cobra.Command {
	var o provision.Options
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create the configured objects that do not exist yet",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return exec(o, commandRunner.Apply)
		},
	}
	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "print the DDL without executing it")
	return cmd
}

func newValidateCmd(exec execFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without connecting to the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return exec(provision.Options{}, commandRunner.Validate)
		},
	}
}

func newRollbackCmd(exec execFunc) *cobra.Command {
	var o provision.Options
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Drop every configured object",
		Long: `Drop every configured object.

This permanently removes objects from the warehouse. Use --dry-run to
preview and --confirm to execute.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return exec(o, commandRunner.Rollback)
		},
	}
	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "print the DROP statements without executing them")
	cmd.Flags().BoolVar(&o.Confirm, "confirm", false, "confirm dropping the objects")
	return cmd
}

func newDBTRunCmd(exec execFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "dbt_run",
		Short: "Clone each connection's dbt project and run it",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return exec(provision.Options{}, commandRunner.DBTRun)
		},
	}
}

func newCheckCmd(exec execFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return exec(provision.Options{}, commandRunner.Check)
		},
	}
}

func exitCode(err error) int {
	var ce *provision.ConfigError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ce):
		return 2
	default:
		return 1
	}
}

// initMetrics installs the metrics backend and returns its cleanup.
// Decide metrics backend: flag → env → none.
func initMetrics(ctx context.Context, name string, d deps) (func(), error) {
	if name == "" {
		name = d.Getenv("METRICS_BACKEND")
	}
	switch name {
	case "", "none":
		return func() {}, nil
	case "datadog":
		if d.BackendFactory == nil {
			return nil, errors.New("internal error: BackendFactory is nil")
		}
		tags := append(datadog.ParseTagsCSV(d.Getenv("METRICS_TAGS")), "tool:sfyaml")
		b, err := d.BackendFactory(ctx, "sfyaml", tags, 60*time.Second)
		if err != nil {
			return nil, fmt.Errorf("datadog backend init failed: %w", err)
		}
		metrics.SetBackend(b)
		return func() {
			_ = metrics.Flush()
			_ = b.Close()
			metrics.SetBackend(nil)
		}, nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q (want none or datadog)", name)
	}
}
