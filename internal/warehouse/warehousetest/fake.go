// Package warehousetest provides an in-memory warehouse.Conn for tests.
package warehousetest

import (
	"context"
	"fmt"
	"strings"

	"sfyaml/internal/warehouse"
)

// Fake records every statement and transaction call.
//
// Existing objects are keyed by "<TYPE>/<NAME>" with NAME upper-cased, which
// matches how SnowflakeDialect renders lookups. Lookups are answered from
// that set; a statement is failed when it contains a FailOn substring.
type Fake struct {
	Existing map[string]bool

	// FailOn makes Exec fail for any statement containing one of these.
	FailOn []string
	// FailLookup makes Count fail for lookups of these object types.
	FailLookup map[warehouse.ObjectType]bool

	Execs     []string
	Lookups   []string
	Commits   int
	Rollbacks int
	Closed    int

	// Committed holds statements that were part of a committed transaction.
	Committed []string
	pending   []string
}

// New returns a Fake with the given objects pre-existing, written as
// "TABLES/ORDERS", "STAGES/MY_STAGE", ...
func New(existing ...string) *Fake {
	f := &Fake{Existing: map[string]bool{}, FailLookup: map[warehouse.ObjectType]bool{}}
	for _, e := range existing {
		f.Existing[strings.ToUpper(e)] = true
	}
	return f
}

func (f *Fake) Dialect() warehouse.Dialect { return dialect{f} }

func (f *Fake) Exec(ctx context.Context, stmt string) error {
	f.Execs = append(f.Execs, stmt)
	for _, s := range f.FailOn {
		if strings.Contains(stmt, s) {
			return &warehouse.Error{Op: "exec", Stmt: stmt, Err: fmt.Errorf("SQL compilation error near %q", s)}
		}
	}
	f.pending = append(f.pending, stmt)
	return nil
}

func (f *Fake) Count(ctx context.Context, query string, args ...any) (int, error) {
	f.Lookups = append(f.Lookups, query)
	// query is "<TYPE>/<NAME>" as produced by dialect.LookupSQL.
	typ, _, _ := strings.Cut(query, "/")
	if f.FailLookup[warehouse.ObjectType(typ)] {
		return 0, &warehouse.Error{Op: "query", Stmt: query, Err: fmt.Errorf("insufficient privileges")}
	}
	if f.Existing[query] {
		return 1, nil
	}
	return 0, nil
}

func (f *Fake) Commit(ctx context.Context) error {
	f.Commits++
	f.Committed = append(f.Committed, f.pending...)
	f.pending = nil
	return nil
}

func (f *Fake) Rollback(ctx context.Context) error {
	f.Rollbacks++
	f.pending = nil
	return nil
}

func (f *Fake) Close() error {
	f.Closed++
	return nil
}

// Mutating returns the executed statements (everything that went through
// Exec, successful or not).
func (f *Fake) Mutating() []string { return append([]string(nil), f.Execs...) }

type dialect struct{ f *Fake }

func (dialect) Name() string { return "fake" }

func (dialect) LookupSQL(t warehouse.ObjectType, name string) (string, []any, error) {
	return string(t) + "/" + strings.ToUpper(name), nil, nil
}

func (dialect) PingSQL() string { return "SELECT 1" }

var _ warehouse.Conn = (*Fake)(nil)
