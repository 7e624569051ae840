// Package all registers every warehouse backend. Import it for side effects.
package all

import (
	_ "sfyaml/internal/warehouse/mssql"
	_ "sfyaml/internal/warehouse/postgres"
	_ "sfyaml/internal/warehouse/snowflake"
	_ "sfyaml/internal/warehouse/sqlite"
)
