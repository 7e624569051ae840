// Package provision wires config loading, resolution, reconciliation and the
// dbt runner into the sfyaml commands. It never exits the process; the CLI
// maps returned errors to exit codes.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"sfyaml/internal/catalog"
	"sfyaml/internal/config"
	"sfyaml/internal/dbt"
	"sfyaml/internal/metrics"
	"sfyaml/internal/reconcile"
	"sfyaml/internal/report"
	"sfyaml/internal/resolve"
	"sfyaml/internal/validate"
	"sfyaml/internal/warehouse"
)

// DefaultBackend is used when neither the flag nor the master file's target
// names a backend.
const DefaultBackend = "snowflake"

// ConfigError reports a master file that could not be loaded.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("failed to load master configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrFailed is returned (wrapped) when a command ran to completion but at
// least one object, check or run failed.
var ErrFailed = errors.New("command failed")

// Logger is the minimal diagnostic logging interface.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// DBTRunner runs dbt for a list of connections.
type DBTRunner interface {
	Run(ctx context.Context, conns []config.Connection) error
}

// Options are the per-invocation settings shared by all commands.
type Options struct {
	ConfigDir string
	Master    string

	// Backend and DSN override the master file's target.
	Backend string
	DSN     string

	DryRun  bool
	Confirm bool
}

// Runner executes one command.
type Runner struct {
	Options

	Out    *report.Reporter
	Logger Logger
	Loader *config.Loader

	// OpenWarehouse defaults to warehouse.Open.
	OpenWarehouse func(ctx context.Context, cfg warehouse.Config) (warehouse.Conn, error)
	// NewDBT defaults to a dbt.Runner writing to Stdout/Stderr.
	NewDBT func(out *report.Reporter) DBTRunner

	// Stdout and Stderr receive dbt subprocess output.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Runner with production defaults. out and logger may be nil.
func New(opts Options, out *report.Reporter, logger Logger) *Runner {
	r := &Runner{Options: opts, Out: out, Logger: logger}
	r.defaults()
	return r
}

func (r *Runner) defaults() {
	if r.ConfigDir == "" {
		r.ConfigDir = "config"
	}
	if r.Out == nil {
		r.Out = report.Discard()
	}
	if r.Loader == nil {
		r.Loader = config.NewLoader()
	}
	if r.OpenWarehouse == nil {
		r.OpenWarehouse = warehouse.Open
	}
	if r.Stdout == nil {
		r.Stdout = io.Discard
	}
	if r.Stderr == nil {
		r.Stderr = io.Discard
	}
	if r.NewDBT == nil {
		r.NewDBT = func(out *report.Reporter) DBTRunner {
			return dbt.NewRunner(out, r.Stdout, r.Stderr)
		}
	}
}

func (r *Runner) logf() func(format string, v ...any) {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return r.Logger.Printf
}

// finish records the command outcome. err is the command's return value.
func (r *Runner) finish(command string, start time.Time, err error) {
	status := "ok"
	var ce *ConfigError
	switch {
	case errors.As(err, &ce):
		status = "config_error"
	case err != nil:
		status = "failed"
	}
	d := time.Since(start)
	metrics.RecordCommand(command, status, d)
	r.logf()("stage=%s status=%s duration=%s", command, status, d.Truncate(time.Millisecond))
}

func (r *Runner) loadMaster() (*config.MasterConfig, error) {
	path := config.MasterPath(r.ConfigDir, r.Master)
	m, err := r.Loader.LoadMaster(path)
	if err != nil {
		r.Out.Errorf("", "Failed to load master configuration: %v", err)
		return nil, &ConfigError{Path: path, Err: err}
	}
	return m, nil
}

// plan resolves every category in catalog order and reports what was found.
// It returns the number of error-severity resolution issues.
func (r *Runner) plan(m *config.MasterConfig) (reconcile.Plan, int) {
	res := resolve.New(r.Loader, r.ConfigDir)
	p := reconcile.Plan{Connections: m.Connections}
	errs := 0
	for _, c := range catalog.All() {
		out := res.Resolve(m, c)
		for _, iss := range out.Issues {
			if iss.Warning() {
				r.Out.Warnf(c.Label(), "%s", iss.Message)
				continue
			}
			r.Out.Errorf(c.Label(), "%s", iss.Error())
			errs++
		}
		r.Out.Infof("", "Found %d %s.", len(out.Defs), c.Key())
		p.Categories = append(p.Categories, reconcile.CategoryDefs{Category: c, Defs: out.Defs})
	}
	return p, errs
}

// target picks the backend: flag, then master target, then snowflake.
func (r *Runner) target(m *config.MasterConfig) (warehouse.Config, error) {
	cfg := warehouse.Config{Kind: r.Backend, DSN: r.DSN}
	if m.Target != nil {
		if cfg.Kind == "" {
			cfg.Kind = m.Target.Kind
		}
		if cfg.DSN == "" {
			cfg.DSN = m.Target.DSN
		}
	}
	if cfg.Kind == "" {
		cfg.Kind = DefaultBackend
	}
	if cfg.Kind == DefaultBackend && cfg.DSN == "" {
		creds, err := config.ResolveCredentials(m)
		if err != nil {
			return cfg, err
		}
		cfg.Credentials = creds
	}
	return cfg, nil
}

func (r *Runner) connect(ctx context.Context, m *config.MasterConfig) (warehouse.Conn, string, error) {
	cfg, err := r.target(m)
	if err != nil {
		r.Out.Errorf("", "%v", err)
		return nil, cfg.Kind, err
	}
	start := time.Now()
	conn, err := r.OpenWarehouse(ctx, cfg)
	if err != nil {
		r.Out.Errorf("", "Failed to connect to %s: %v", cfg.Kind, err)
		return nil, cfg.Kind, err
	}
	r.logf()("stage=connect kind=%s ok duration=%s", cfg.Kind, time.Since(start).Truncate(time.Millisecond))
	return conn, cfg.Kind, nil
}

func closeConn(conn warehouse.Conn, logf func(string, ...any)) {
	if err := conn.Close(); err != nil {
		logf("stage=close status=error err=%v", err)
	}
}

// Apply creates every missing object, then the connector schemas.
//
// Errors:
//   - *ConfigError when the master file cannot be loaded.
//   - the reconcile error when a statement failed and the run was rolled back.
//   - ErrFailed (wrapped) when the run committed but some definitions were
//     invalid or could not be resolved.
func (r *Runner) Apply(ctx context.Context) (err error) {
	r.defaults()
	defer func(start time.Time) { r.finish("apply", start, err) }(time.Now())

	m, err := r.loadMaster()
	if err != nil {
		return err
	}
	plan, resErrs := r.plan(m)

	conn, _, err := r.connect(ctx, m)
	if err != nil {
		return err
	}
	defer closeConn(conn, r.logf())

	sum, err := reconcile.New(conn, r.Out, r.Logger).Apply(ctx, plan, r.DryRun)
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if n := sum.Failures() + resErrs; n > 0 {
		return fmt.Errorf("apply: %d problem(s) reported: %w", n, ErrFailed)
	}
	return nil
}

// Validate checks the configuration without touching the warehouse.
func (r *Runner) Validate(ctx context.Context) (err error) {
	r.defaults()
	defer func(start time.Time) { r.finish("validate", start, err) }(time.Now())

	m, err := r.loadMaster()
	if err != nil {
		return err
	}

	res := validate.Validate(m, resolve.New(r.Loader, r.ConfigDir))
	for _, c := range catalog.All() {
		r.Out.Infof("", "Found %d %s.", res.Defs[c], c.Key())
	}
	for _, iss := range res.Issues {
		if iss.Severity == validate.SeverityWarning {
			r.Out.Warnf("VALIDATE", "%s: %s", iss.Path, iss.Message)
			continue
		}
		r.Out.Errorf("VALIDATE", "%s: %s", iss.Path, iss.Message)
	}
	if !res.OK() {
		r.Out.Errorf("", "Configuration is invalid: %d error(s).", res.Errors())
		return fmt.Errorf("validate: %d error(s): %w", res.Errors(), ErrFailed)
	}
	r.Out.OKf("", "Configuration is valid.")
	return nil
}

// Rollback drops every configured object. Without Confirm it prints guidance
// and returns nil without connecting.
func (r *Runner) Rollback(ctx context.Context) (err error) {
	r.defaults()
	defer func(start time.Time) { r.finish("rollback", start, err) }(time.Now())

	m, err := r.loadMaster()
	if err != nil {
		return err
	}
	plan, resErrs := r.plan(m)

	if !r.Confirm {
		reconcile.New(nil, r.Out, r.Logger).Rollback(ctx, plan, r.DryRun, false)
		return nil
	}

	conn, _, err := r.connect(ctx, m)
	if err != nil {
		return err
	}
	defer closeConn(conn, r.logf())

	sum := reconcile.New(conn, r.Out, r.Logger).Rollback(ctx, plan, r.DryRun, true)
	if n := sum.Failures() + resErrs; n > 0 {
		return fmt.Errorf("rollback: %d problem(s) reported: %w", n, ErrFailed)
	}
	return nil
}

// Check connects and runs the backend's ping statement.
func (r *Runner) Check(ctx context.Context) (err error) {
	r.defaults()
	defer func(start time.Time) { r.finish("check", start, err) }(time.Now())

	m, err := r.loadMaster()
	if err != nil {
		return err
	}
	conn, kind, err := r.connect(ctx, m)
	if err != nil {
		return err
	}
	defer closeConn(conn, r.logf())

	if _, err := conn.Count(ctx, conn.Dialect().PingSQL()); err != nil {
		r.Out.Errorf("", "Failed to connect to %s: %v", kind, err)
		_ = conn.Rollback(ctx)
		return fmt.Errorf("check: %w", err)
	}
	_ = conn.Rollback(ctx)
	r.Out.OKf("", "Successfully connected to %s!", kind)
	return nil
}

// DBTRun runs dbt for every configured connection.
func (r *Runner) DBTRun(ctx context.Context) (err error) {
	r.defaults()
	defer func(start time.Time) { r.finish("dbt_run", start, err) }(time.Now())

	m, err := r.loadMaster()
	if err != nil {
		return err
	}
	if err := r.NewDBT(r.Out).Run(ctx, m.Connections); err != nil {
		return fmt.Errorf("%w: %w", err, ErrFailed)
	}
	return nil
}
