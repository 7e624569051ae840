package postgres

import "sfyaml/internal/warehouse"

func init() {
	// registers the postgres warehouse backend
	warehouse.Register("postgres", Open)
}
