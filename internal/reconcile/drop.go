package reconcile

import (
	"context"
	"strings"
	"time"

	"sfyaml/internal/catalog"
	"sfyaml/internal/metrics"
)

// RollbackGuidance is printed when a rollback is not confirmed.
const RollbackGuidance = "This command will drop all objects defined in the configuration. Use --confirm to proceed."

// Rollback drops every object in plan, category by category. Without
// confirmed it prints RollbackGuidance and executes nothing, dry run or not.
// Connector schemas are never dropped.
func (r *Reconciler) Rollback(ctx context.Context, plan Plan, dryRun, confirmed bool) Summary {
	if !confirmed {
		r.Out.Warnf("", "%s", RollbackGuidance)
		return Summary{Refused: true}
	}

	logf := r.logf()
	var sum Summary
	for _, cd := range plan.Categories {
		start := time.Now()
		rep := r.DropAll(ctx, cd.Defs, cd.Category, dryRun, true)
		sum.Reports = append(sum.Reports, rep)
		logf("stage=drop category=%s duration=%s dropped=%d failed=%d",
			cd.Category, durMS(start), rep.Count(Dropped), rep.Count(Failed))
	}
	r.Out.Notef("Rollback complete.")
	return sum
}

// DropAll drops defs of one category. Each drop is committed on its own; a
// failed drop is rolled back, reported and does not stop the loop.
func (r *Reconciler) DropAll(ctx context.Context, defs []catalog.ObjectDef, c catalog.Category, dryRun, confirmed bool) CategoryReport {
	rep := CategoryReport{Category: c}
	if !confirmed {
		r.Out.Warnf("", "%s", RollbackGuidance)
		return rep
	}
	label := c.Label()

	for _, d := range defs {
		res := r.dropOne(ctx, d, c, dryRun)
		rep.Results = append(rep.Results, res)
		record(c, res)
		if res.Outcome == Failed && res.Err != nil {
			r.Out.Errorf(label, "Failed to drop '%s': %v", d.Name, res.Err)
		}
	}
	return rep
}

func (r *Reconciler) dropOne(ctx context.Context, d catalog.ObjectDef, c catalog.Category, dryRun bool) Result {
	label := c.Label()
	if strings.TrimSpace(d.Name) == "" {
		r.Out.Errorf(label, "Definition (from %s) is missing 'name'. Skipping.", d.Source)
		return Result{Outcome: Failed, Reason: "missing name"}
	}

	stmt := c.DropSQL(d.Name)
	res := Result{Name: d.Name, Statement: stmt}
	if dryRun {
		r.Out.DryRunf(label, "'%s' would be dropped with: %s", d.Name, stmt)
		res.Outcome = Planned
		return res
	}

	metrics.IncCounter(metrics.StatementsTotal, 1, metrics.Labels{"kind": "drop"})
	if err := r.Conn.Exec(ctx, stmt); err != nil {
		if rbErr := r.Conn.Rollback(ctx); rbErr != nil {
			r.logf()("stage=drop name=%s rollback_error=%v", d.Name, rbErr)
		}
		res.Outcome, res.Err = Failed, err
		return res
	}
	if err := r.Conn.Commit(ctx); err != nil {
		res.Outcome, res.Err = Failed, err
		return res
	}
	r.Out.OKf(label, "'%s' dropped.", d.Name)
	res.Outcome = Dropped
	return res
}
