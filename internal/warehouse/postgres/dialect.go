package postgres

import (
	"fmt"

	"sfyaml/internal/warehouse"
)

// Dialect answers lookups from information_schema. Names are compared
// case-insensitively on the unqualified identifier.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) LookupSQL(t warehouse.ObjectType, name string) (string, []any, error) {
	n := warehouse.UnqualifiedName(name)
	switch t {
	case warehouse.TypeTables:
		return `SELECT 1 FROM information_schema.tables WHERE table_type = 'BASE TABLE' AND upper(table_name) = upper($1)`, []any{n}, nil
	case warehouse.TypeViews:
		return `SELECT 1 FROM information_schema.views WHERE upper(table_name) = upper($1)`, []any{n}, nil
	case warehouse.TypeSchemas:
		return `SELECT 1 FROM information_schema.schemata WHERE upper(schema_name) = upper($1)`, []any{n}, nil
	default:
		return "", nil, fmt.Errorf("%w: postgres has no %s", warehouse.ErrUnsupportedObject, t)
	}
}

func (Dialect) PingSQL() string { return "SELECT CURRENT_TIMESTAMP" }
