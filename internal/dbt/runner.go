// Package dbt triggers dbt runs for ingestion connections: clone the
// project repository, then run `dbt run` inside it.
package dbt

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"sfyaml/internal/config"
	"sfyaml/internal/report"
)

// DefaultWorkDir is where projects are cloned. It is wiped before each clone.
const DefaultWorkDir = "/tmp/dbt_repo"

const label = "DBT"

// Runner shells out to git and dbt.
type Runner struct {
	WorkDir string
	GitBin  string
	DBTBin  string

	// Command builds the subprocess; defaults to exec.CommandContext.
	Command func(ctx context.Context, name string, args ...string) *exec.Cmd
	// RemoveAll clears WorkDir; defaults to os.RemoveAll.
	RemoveAll func(path string) error

	// Stdout and Stderr receive the subprocess output.
	Stdout io.Writer
	Stderr io.Writer

	Out *report.Reporter
}

// NewRunner returns a Runner with production defaults.
func NewRunner(out *report.Reporter, stdout, stderr io.Writer) *Runner {
	return &Runner{
		WorkDir:   DefaultWorkDir,
		GitBin:    "git",
		DBTBin:    "dbt",
		Command:   exec.CommandContext,
		RemoveAll: os.RemoveAll,
		Stdout:    stdout,
		Stderr:    stderr,
		Out:       out,
	}
}

// Run processes connections in order. A connection without a dbt block is
// reported and skipped; a missing git_url, a failed clone or a failed run is
// reported and the next connection is processed.
//
// Errors:
//   - non-nil when at least one configured dbt run did not succeed.
func (r *Runner) Run(ctx context.Context, conns []config.Connection) error {
	r.defaults()
	if len(conns) == 0 {
		r.Out.Infof(label, "No dbt configuration found in master file.")
		return nil
	}

	failed := 0
	for _, cn := range conns {
		r.Out.Infof(label, "Processing dbt for connection '%s'.", cn.Name)
		if cn.DBT == nil {
			r.Out.Infof(label, "No dbt configuration found for connection '%s'.", cn.Name)
			continue
		}
		if cn.DBT.GitURL == "" {
			r.Out.Errorf(label, "dbt configuration for '%s' is missing 'git_url'. Skipping.", cn.Name)
			failed++
			continue
		}
		if err := r.runOne(ctx, *cn.DBT); err != nil {
			r.Out.Errorf(label, "%v", err)
			failed++
			continue
		}
		r.Out.OKf(label, "dbt run completed for '%s'.", cn.Name)
	}
	if failed > 0 {
		return fmt.Errorf("dbt: %d connection(s) failed", failed)
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, d config.DBTConfig) error {
	branch := d.BranchOrDefault()
	if err := r.RemoveAll(r.WorkDir); err != nil {
		return fmt.Errorf("clear %s: %w", r.WorkDir, err)
	}

	r.Out.Infof(label, "Cloning %s (branch: %s) to %s.", d.GitURL, branch, r.WorkDir)
	clone := r.Command(ctx, r.GitBin, "clone", "-b", branch, d.GitURL, r.WorkDir)
	if err := r.start(clone); err != nil {
		return fmt.Errorf("clone %s: %w", d.GitURL, err)
	}

	r.Out.Infof(label, "Running 'dbt run' in %s.", r.WorkDir)
	run := r.Command(ctx, r.DBTBin, "run")
	run.Dir = r.WorkDir
	if err := r.start(run); err != nil {
		return fmt.Errorf("dbt run: %w", err)
	}
	return nil
}

func (r *Runner) start(cmd *exec.Cmd) error {
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}

func (r *Runner) defaults() {
	if r.WorkDir == "" {
		r.WorkDir = DefaultWorkDir
	}
	if r.GitBin == "" {
		r.GitBin = "git"
	}
	if r.DBTBin == "" {
		r.DBTBin = "dbt"
	}
	if r.Command == nil {
		r.Command = exec.CommandContext
	}
	if r.RemoveAll == nil {
		r.RemoveAll = os.RemoveAll
	}
	if r.Out == nil {
		r.Out = report.Discard()
	}
}
