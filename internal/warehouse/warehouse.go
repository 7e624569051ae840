// Package warehouse is the backend-agnostic client layer sfyaml talks to.
//
// A Conn is a single connection holding at most one open transaction. The
// reconciler decides when to commit or roll back; backends only promise that
// statements issued between two Commit/Rollback calls share a transaction.
package warehouse

import (
	"context"
	"errors"
	"fmt"
)

// ObjectType names a kind of warehouse object in its plural SHOW form
// (Snowflake: SHOW TABLES, SHOW PIPES, ...).
type ObjectType string

const (
	TypeTables  ObjectType = "TABLES"
	TypeViews   ObjectType = "VIEWS"
	TypeTasks   ObjectType = "TASKS"
	TypePipes   ObjectType = "PIPES"
	TypeStages  ObjectType = "STAGES"
	TypeSchemas ObjectType = "SCHEMAS"
)

// ErrUnsupportedObject is returned by a Dialect that has no lookup for an
// object type (e.g. tasks on Postgres).
var ErrUnsupportedObject = errors.New("warehouse: object type not supported by dialect")

// Dialect renders the backend-specific statements sfyaml needs besides the
// user-supplied DDL.
type Dialect interface {
	// Name is the backend kind, e.g. "snowflake".
	Name() string

	// LookupSQL returns a query whose result set is non-empty iff an object of
	// type t named name exists.
	LookupSQL(t ObjectType, name string) (string, []any, error)

	// PingSQL is a cheap statement used by the connectivity check.
	PingSQL() string
}

// Conn is the minimal connection surface the reconciler needs.
//
// Edge cases:
//   - Exec and Count open a transaction lazily when none is active.
//   - Commit and Rollback without an active transaction are no-ops.
//   - Close rolls back any transaction still open.
type Conn interface {
	Dialect() Dialect

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt string) error

	// Count runs a query and returns the number of rows it produced.
	Count(ctx context.Context, query string, args ...any) (int, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

// Error is a WarehouseError: a failed connect or statement.
type Error struct {
	Op   string // "connect", "exec", "query", "commit", "rollback"
	Stmt string
	Err  error
}

func (e *Error) Error() string {
	if e.Stmt == "" {
		return fmt.Sprintf("warehouse %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("warehouse %s %q: %v", e.Op, e.Stmt, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Credentials are the user/password connection parameters for Snowflake.
// Other backends only use Config.DSN.
type Credentials struct {
	User      string
	Password  string
	Account   string
	Warehouse string
	Database  string
	Schema    string
	Role      string
}
