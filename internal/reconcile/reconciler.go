// Package reconcile compares resolved definitions with what exists in the
// warehouse and creates or drops objects accordingly.
//
// Create and drop deliberately differ:
//   - Apply runs every category and the connector schemas in one
//     transaction, commits once at the end and rolls back everything on the
//     first failed statement.
//   - Rollback commits each drop on its own; a failed drop is reported and
//     the next object is processed.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"sfyaml/internal/catalog"
	"sfyaml/internal/config"
	"sfyaml/internal/metrics"
	"sfyaml/internal/report"
	"sfyaml/internal/warehouse"
)

// Logger is the minimal diagnostic logging interface.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Reconciler drives one command invocation against one connection.
type Reconciler struct {
	Conn    warehouse.Conn
	Checker *Checker
	Out     *report.Reporter
	Logger  Logger
}

// New returns a Reconciler. out and logger may be nil.
func New(conn warehouse.Conn, out *report.Reporter, logger Logger) *Reconciler {
	if out == nil {
		out = report.Discard()
	}
	return &Reconciler{
		Conn:    conn,
		Checker: &Checker{Conn: conn},
		Out:     out,
		Logger:  logger,
	}
}

// CategoryDefs pairs a category with its resolved definitions.
type CategoryDefs struct {
	Category catalog.Category
	Defs     []catalog.ObjectDef
}

// Plan is everything one apply or rollback processes, in order.
type Plan struct {
	Categories  []CategoryDefs
	Connections []config.Connection
}

func (r *Reconciler) logf() func(format string, v ...any) {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return r.Logger.Printf
}

func durMS(start time.Time) time.Duration {
	return time.Since(start).Truncate(time.Millisecond)
}

func record(c catalog.Category, res Result) {
	metrics.IncCounter(metrics.ObjectsTotal, 1, metrics.Labels{
		"category": c.String(),
		"outcome":  res.Outcome.String(),
	})
}

// Apply creates every missing object in plan and then the connector schemas.
//
// Non-dry-run: commits exactly once after the last statement. The first
// failed statement rolls back the whole transaction and is returned.
//
// Dry run: no mutating statement is executed and nothing is committed; the
// read-only transaction opened by lookups is rolled back.
func (r *Reconciler) Apply(ctx context.Context, plan Plan, dryRun bool) (Summary, error) {
	logf := r.logf()
	var sum Summary

	for _, cd := range plan.Categories {
		start := time.Now()
		rep, err := r.CreateAll(ctx, cd.Defs, cd.Category, dryRun)
		sum.Reports = append(sum.Reports, rep)
		if err != nil {
			logf("stage=create category=%s status=error duration=%s err=%v", cd.Category, durMS(start), err)
			r.abort(ctx)
			return sum, err
		}
		logf("stage=create category=%s ok duration=%s defs=%d", cd.Category, durMS(start), len(cd.Defs))
	}

	start := time.Now()
	schemas, err := r.EnsureSchemas(ctx, plan.Connections, dryRun)
	sum.Schemas = schemas
	if err != nil {
		logf("stage=schemas status=error duration=%s err=%v", durMS(start), err)
		r.abort(ctx)
		return sum, err
	}
	logf("stage=schemas ok duration=%s", durMS(start))

	if dryRun {
		if err := r.Conn.Rollback(ctx); err != nil {
			logf("stage=release status=error err=%v", err)
		}
		r.Out.Notef("Dry run complete. No changes were made.")
		return sum, nil
	}

	start = time.Now()
	if err := r.Conn.Commit(ctx); err != nil {
		r.Out.Errorf("", "Commit failed: %v", err)
		r.abort(ctx)
		return sum, fmt.Errorf("commit: %w", err)
	}
	sum.Committed = true
	logf("stage=commit ok duration=%s", durMS(start))
	r.Out.OKf("", "All changes committed.")
	return sum, nil
}

func (r *Reconciler) abort(ctx context.Context) {
	if err := r.Conn.Rollback(ctx); err != nil {
		r.Out.Errorf("", "Rollback failed: %v", err)
		return
	}
	r.Out.Errorf("", "Rolled back all changes made in this run.")
}

// CreateAll processes defs of one category in order. It returns a non-nil
// error only for a failed create statement; callers must then roll back.
// Invalid definitions, missing stages and lookup problems are reported in the
// CategoryReport and never stop the loop.
func (r *Reconciler) CreateAll(ctx context.Context, defs []catalog.ObjectDef, c catalog.Category, dryRun bool) (CategoryReport, error) {
	rep := CategoryReport{Category: c}
	label := c.Label()

	for _, d := range defs {
		res, err := r.createOne(ctx, d, c, dryRun)
		rep.Results = append(rep.Results, res)
		record(c, res)
		if err != nil {
			r.Out.Errorf(label, "Failed to create '%s': %v", d.DisplayName(), err)
			return rep, fmt.Errorf("create %s %q: %w", c, d.Name, err)
		}
	}
	return rep, nil
}

func (r *Reconciler) createOne(ctx context.Context, d catalog.ObjectDef, c catalog.Category, dryRun bool) (Result, error) {
	label := c.Label()
	name := d.DisplayName()
	res := Result{Name: d.Name}

	if missing := d.MissingFields(); len(missing) > 0 {
		r.Out.Errorf(label, "'%s' (from %s) is missing required field(s) %v. Skipping.", name, d.Source, missing)
		res.Outcome, res.Reason = Failed, fmt.Sprintf("missing %v", missing)
		return res, nil
	}

	if c == catalog.Snowpipe {
		if ok, res := r.checkStage(ctx, d); !ok {
			return res, nil
		}
	}

	exists, err := r.Checker.Exists(ctx, c, d.Name)
	if err != nil {
		if c == catalog.Snowpipe {
			r.Out.Errorf(label, "Existence check for '%s' failed: %v. Skipping.", name, err)
			res.Outcome, res.Reason, res.Err = Failed, "lookup failed", err
			return res, nil
		}
		r.Out.Errorf(label, "Existence check for '%s' failed: %v. Treating it as missing.", name, err)
	}
	if exists {
		r.Out.Warnf(label, "'%s' already exists. Skipping.", name)
		res.Outcome, res.Reason = Skipped, "already exists"
		return res, nil
	}

	res.Statement = d.Query
	if dryRun {
		r.Out.DryRunf(label, "'%s' will be created.\nDDL: %s", name, d.Query)
		res.Outcome = Planned
		return res, nil
	}

	metrics.IncCounter(metrics.StatementsTotal, 1, metrics.Labels{"kind": "create"})
	if err := r.Conn.Exec(ctx, d.Query); err != nil {
		res.Outcome, res.Err = Failed, err
		return res, err
	}
	r.Out.OKf(label, "'%s' created.", name)
	res.Outcome = Created
	return res, nil
}

// checkStage applies the snowpipe stage rules. ok is false when the pipe must
// be skipped; res then holds the outcome.
func (r *Reconciler) checkStage(ctx context.Context, d catalog.ObjectDef) (ok bool, res Result) {
	label := catalog.Snowpipe.Label()
	name := d.DisplayName()
	res = Result{Name: d.Name}

	stage, inferred, found := d.ResolveStage()
	if !found {
		r.Out.Warnf(label, "No stage specified or found in query for '%s'. Skipping.", name)
		res.Outcome, res.Reason = Skipped, "no stage"
		return false, res
	}
	if inferred {
		r.Out.Infof(label, "Extracted stage '%s' from query.", stage)
	}

	exists, err := r.Checker.StageExists(ctx, stage)
	switch {
	case err != nil:
		r.Out.Errorf(label, "Failed to check stage '%s': %v. Skipping '%s'.", stage, err, name)
		res.Outcome, res.Reason, res.Err = Failed, "stage lookup failed", err
		return false, res
	case !exists:
		r.Out.Warnf(label, "Stage '%s' does not exist. Skipping '%s'.", stage, name)
		res.Outcome, res.Reason = Skipped, "stage missing"
		return false, res
	}
	r.Out.OKf(label, "Stage '%s' exists.", stage)
	return true, res
}

// EnsureSchemas runs CREATE SCHEMA IF NOT EXISTS for the raw and info schema
// of each connection. Entries missing a name or a schema are reported and
// skipped; a failed statement is returned.
func (r *Reconciler) EnsureSchemas(ctx context.Context, conns []config.Connection, dryRun bool) ([]Result, error) {
	const label = "SCHEMA"
	var out []Result

	for _, cn := range conns {
		if cn.Name == "" {
			r.Out.Errorf(label, "Ingestion connection entry is missing 'name'. Skipping.")
			out = append(out, Result{Outcome: Failed, Reason: "missing name"})
			continue
		}
		if cn.RawSchema == "" || cn.InfoSchema == "" {
			r.Out.Errorf(label, "Connection '%s' is missing raw_schema or info_schema. Skipping.", cn.Name)
			out = append(out, Result{Name: cn.Name, Outcome: Failed, Reason: "missing schema"})
			continue
		}
		r.Out.Infof(label, "Processing connection '%s'.", cn.Name)

		for _, schema := range []string{cn.RawSchema, cn.InfoSchema} {
			stmt := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)
			res := Result{Name: schema, Statement: stmt}
			if dryRun {
				r.Out.DryRunf(label, "Execute: %s", stmt)
				res.Outcome = Planned
				out = append(out, res)
				continue
			}
			metrics.IncCounter(metrics.StatementsTotal, 1, metrics.Labels{"kind": "schema"})
			if err := r.Conn.Exec(ctx, stmt); err != nil {
				r.Out.Errorf(label, "Failed to create schema '%s': %v", schema, err)
				res.Outcome, res.Err = Failed, err
				out = append(out, res)
				return out, fmt.Errorf("create schema %q: %w", schema, err)
			}
			r.Out.OKf(label, "Schema '%s' ensured.", schema)
			res.Outcome = Created
			out = append(out, res)
		}
	}
	return out, nil
}
