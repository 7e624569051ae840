package warehouse

import (
	"fmt"
	"strings"
)

// SnowflakeDialect renders lookups as SHOW <TYPE> LIKE '<NAME>'.
//
// Snowflake stores unquoted identifiers upper-cased, so the pattern is
// upper-cased too. Single quotes are doubled; LIKE wildcards in names are
// passed through as Snowflake itself would interpret them.
type SnowflakeDialect struct{}

func (SnowflakeDialect) Name() string { return "snowflake" }

func (SnowflakeDialect) LookupSQL(t ObjectType, name string) (string, []any, error) {
	switch t {
	case TypeTables, TypeViews, TypeTasks, TypePipes, TypeStages, TypeSchemas:
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedObject, t)
	}
	return fmt.Sprintf("SHOW %s LIKE '%s'", t, QuoteLiteral(strings.ToUpper(name))), nil, nil
}

func (SnowflakeDialect) PingSQL() string { return "SELECT CURRENT_TIMESTAMP()" }

// QuoteLiteral escapes s for use inside a single-quoted SQL literal.
func QuoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// UnqualifiedName strips database/schema qualifiers ("DB.SCHEMA.T" -> "T")
// and surrounding double quotes. information_schema lookups match on the
// bare object name.
func UnqualifiedName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(name, `"`)
}
