package reconcile

import (
	"context"
	"fmt"

	"sfyaml/internal/catalog"
	"sfyaml/internal/metrics"
	"sfyaml/internal/warehouse"
)

// Checker answers existence questions with the connection's dialect.
type Checker struct {
	Conn warehouse.Conn
}

// Exists reports whether an object of category c named name exists.
func (k *Checker) Exists(ctx context.Context, c catalog.Category, name string) (bool, error) {
	return k.lookup(ctx, c.ObjectType(), name)
}

// StageExists reports whether the named stage exists.
func (k *Checker) StageExists(ctx context.Context, stage string) (bool, error) {
	return k.lookup(ctx, warehouse.TypeStages, stage)
}

func (k *Checker) lookup(ctx context.Context, t warehouse.ObjectType, name string) (bool, error) {
	q, args, err := k.Conn.Dialect().LookupSQL(t, name)
	if err != nil {
		return false, fmt.Errorf("lookup %s %q: %w", t, name, err)
	}
	metrics.IncCounter(metrics.StatementsTotal, 1, metrics.Labels{"kind": "lookup"})
	n, err := k.Conn.Count(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
