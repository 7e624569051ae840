package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sfyaml/internal/warehouse"
)

/*
Conn implements warehouse.Conn for Postgres using a pgx pool.

Postgres has transactional DDL, so the create path's all-or-nothing batch is
enforced by the database itself here. A failed statement poisons the open
transaction until Rollback, which matches how the reconciler treats a create
failure (roll back everything, stop).

Tasks, pipes and stages have no Postgres equivalent; their lookups return
warehouse.ErrUnsupportedObject.
*/
type Conn struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// Open creates a pool for cfg.DSN and verifies connectivity.
func Open(ctx context.Context, cfg warehouse.Config) (warehouse.Conn, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Conn{pool: pool}, nil
}

func (c *Conn) Dialect() warehouse.Dialect { return Dialect{} }

func (c *Conn) begin(ctx context.Context) (pgx.Tx, error) {
	if c.tx != nil {
		return c.tx, nil
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, &warehouse.Error{Op: "begin", Err: err}
	}
	c.tx = tx
	return tx, nil
}

func (c *Conn) Exec(ctx context.Context, stmt string) error {
	tx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return &warehouse.Error{Op: "exec", Stmt: stmt, Err: err}
	}
	return nil
}

func (c *Conn) Count(ctx context.Context, query string, args ...any) (int, error) {
	tx, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return 0, &warehouse.Error{Op: "query", Stmt: query, Err: err}
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, &warehouse.Error{Op: "query", Stmt: query, Err: err}
	}
	return n, nil
}

func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return &warehouse.Error{Op: "commit", Err: err}
	}
	return nil
}

func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return &warehouse.Error{Op: "rollback", Err: err}
	}
	return nil
}

// Close rolls back any open transaction and closes the pool.
func (c *Conn) Close() error {
	err := c.Rollback(context.Background())
	c.pool.Close()
	return err
}

var _ warehouse.Conn = (*Conn)(nil)
