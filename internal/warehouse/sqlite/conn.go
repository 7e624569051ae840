// Package sqlite registers the "sqlite" warehouse backend.
//
// SQLite is the local stand-in for a warehouse: tables and views behave as
// expected and DDL is transactional. It has no schemas, tasks, pipes or
// stages; lookups for those return warehouse.ErrUnsupportedObject.
package sqlite

import (
	"context"
	"fmt"

	_ "modernc.org/sqlite"

	"sfyaml/internal/warehouse"
)

func init() {
	warehouse.Register("sqlite", Open)
}

// Open opens cfg.DSN (a file path or "file:" URI) with the modernc driver.
func Open(ctx context.Context, cfg warehouse.Config) (warehouse.Conn, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "sfyaml.db"
	}
	c, err := warehouse.OpenSQL(ctx, "sqlite", dsn, Dialect{})
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases stable across transactions.
	c.DB().SetMaxOpenConns(1)
	return c, nil
}

// Dialect answers lookups from sqlite_master.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) LookupSQL(t warehouse.ObjectType, name string) (string, []any, error) {
	n := warehouse.UnqualifiedName(name)
	switch t {
	case warehouse.TypeTables:
		return `SELECT 1 FROM sqlite_master WHERE type = 'table' AND upper(name) = upper(?)`, []any{n}, nil
	case warehouse.TypeViews:
		return `SELECT 1 FROM sqlite_master WHERE type = 'view' AND upper(name) = upper(?)`, []any{n}, nil
	default:
		return "", nil, fmt.Errorf("%w: sqlite has no %s", warehouse.ErrUnsupportedObject, t)
	}
}

func (Dialect) PingSQL() string { return "SELECT CURRENT_TIMESTAMP" }
