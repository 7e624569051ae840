package warehouse

import (
	"context"
	"database/sql"
	"errors"
)

// SQLConn implements Conn over database/sql. The snowflake, mssql and sqlite
// backends share it; they differ only in driver name, DSN and Dialect.
//
// A transaction is begun lazily by the first Exec or Count and lives until
// Commit or Rollback, so lookups and DDL of one batch run on the same
// underlying connection.
type SQLConn struct {
	db      *sql.DB
	dialect Dialect
	tx      *sql.Tx
}

// NewSQLConn wraps an opened *sql.DB. The caller hands over ownership: Close
// closes db.
func NewSQLConn(db *sql.DB, d Dialect) *SQLConn {
	return &SQLConn{db: db, dialect: d}
}

// OpenSQL opens driverName/dsn, verifies connectivity via PingContext and
// returns a SQLConn.
func OpenSQL(ctx context.Context, driverName, dsn string, d Dialect) (*SQLConn, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLConn(db, d), nil
}

func (c *SQLConn) Dialect() Dialect { return c.dialect }

// DB exposes the underlying pool for backend-specific tuning.
func (c *SQLConn) DB() *sql.DB { return c.db }

func (c *SQLConn) begin(ctx context.Context) (*sql.Tx, error) {
	if c.tx != nil {
		return c.tx, nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &Error{Op: "begin", Err: err}
	}
	c.tx = tx
	return tx, nil
}

func (c *SQLConn) Exec(ctx context.Context, stmt string) error {
	tx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return &Error{Op: "exec", Stmt: stmt, Err: err}
	}
	return nil
}

func (c *SQLConn) Count(ctx context.Context, query string, args ...any) (int, error) {
	tx, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, &Error{Op: "query", Stmt: query, Err: err}
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, &Error{Op: "query", Stmt: query, Err: err}
	}
	return n, nil
}

func (c *SQLConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return &Error{Op: "commit", Err: err}
	}
	return nil
}

func (c *SQLConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return &Error{Op: "rollback", Err: err}
	}
	return nil
}

// Close rolls back an open transaction and closes the pool.
func (c *SQLConn) Close() error {
	rbErr := c.Rollback(context.Background())
	if err := c.db.Close(); err != nil {
		return err
	}
	return rbErr
}

var _ Conn = (*SQLConn)(nil)
