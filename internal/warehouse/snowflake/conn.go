// Package snowflake registers the "snowflake" warehouse backend.
package snowflake

import (
	"context"
	"fmt"
	"strings"

	sf "github.com/snowflakedb/gosnowflake"

	"sfyaml/internal/warehouse"
)

func init() {
	warehouse.Register("snowflake", Open)
}

// Open connects with cfg.DSN when set, otherwise with a DSN built from
// cfg.Credentials.
func Open(ctx context.Context, cfg warehouse.Config) (warehouse.Conn, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		var err error
		dsn, err = BuildDSN(cfg.Credentials)
		if err != nil {
			return nil, err
		}
	}

	c, err := warehouse.OpenSQL(ctx, "snowflake", dsn, warehouse.SnowflakeDialect{})
	if err != nil {
		return nil, err
	}
	// One session keeps the lazily opened transaction on a single connection.
	c.DB().SetMaxOpenConns(1)
	return c, nil
}

// BuildDSN renders credentials into a gosnowflake DSN.
func BuildDSN(c warehouse.Credentials) (string, error) {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"user", c.User},
		{"password", c.Password},
		{"account", c.Account},
		{"warehouse", c.Warehouse},
		{"database", c.Database},
		{"schema", c.Schema},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("snowflake: missing credentials %v", missing)
	}

	dsn, err := sf.DSN(&sf.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Database:  c.Database,
		Schema:    c.Schema,
		Role:      c.Role,
	})
	if err != nil {
		return "", fmt.Errorf("snowflake: build dsn: %w", err)
	}
	return dsn, nil
}
