package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"sfyaml/internal/warehouse"
)

func openTemp(t *testing.T) warehouse.Conn {
	t.Helper()
	c, err := Open(context.Background(), warehouse.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "wh.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func exists(t *testing.T, c warehouse.Conn, typ warehouse.ObjectType, name string) bool {
	t.Helper()
	q, args, err := c.Dialect().LookupSQL(typ, name)
	if err != nil {
		t.Fatalf("LookupSQL: %v", err)
	}
	n, err := c.Count(context.Background(), q, args...)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n > 0
}

// TestConn_CommitMakesDDLVisible verifies DDL runs inside the lazily opened
// transaction and survives Commit.
func TestConn_CommitMakesDDLVisible(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	if err := c.Exec(ctx, "CREATE TABLE orders (id INTEGER)"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if err := c.Exec(ctx, "CREATE VIEW v_orders AS SELECT id FROM orders"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if err := c.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if !exists(t, c, warehouse.TypeTables, "ORDERS") {
		t.Fatalf("table orders not found after commit")
	}
	if !exists(t, c, warehouse.TypeViews, "main.v_orders") {
		t.Fatalf("view v_orders not found after commit")
	}
	if exists(t, c, warehouse.TypeTables, "v_orders") {
		t.Fatalf("view reported as table")
	}
}

// TestConn_RollbackDiscardsDDL verifies that SQLite's transactional DDL
// gives the create path its all-or-nothing behavior.
func TestConn_RollbackDiscardsDDL(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	if err := c.Exec(ctx, "CREATE TABLE a (x INTEGER)"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if err := c.Exec(ctx, "CREATE TABLE broken ("); err == nil {
		t.Fatalf("Exec(broken) err=nil, want syntax error")
	}
	if err := c.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if exists(t, c, warehouse.TypeTables, "a") {
		t.Fatalf("table a survived rollback")
	}

	// Commit and Rollback without an open transaction are no-ops.
	if err := c.Commit(ctx); err != nil {
		t.Fatalf("Commit(no tx): %v", err)
	}
	if err := c.Rollback(ctx); err != nil {
		t.Fatalf("Rollback(no tx): %v", err)
	}
}
