// Package catalog describes the object categories sfyaml manages and the
// definitions it resolves for them.
package catalog

import (
	"fmt"

	"sfyaml/internal/warehouse"
)

// Category is the closed set of object kinds sfyaml provisions.
type Category int

const (
	Table Category = iota
	View
	Task
	Snowpipe

	numCategories
)

type categoryInfo struct {
	name       string // "table"
	key        string // master/file key, "tables"
	label      string // console prefix, "TABLE"
	objectType warehouse.ObjectType
	dropNoun   string // DROP <noun> IF EXISTS
}

// Indexed by Category. Every row must be filled in.
var categories = [numCategories]categoryInfo{
	Table:    {name: "table", key: "tables", label: "TABLE", objectType: warehouse.TypeTables, dropNoun: "TABLE"},
	View:     {name: "view", key: "views", label: "VIEW", objectType: warehouse.TypeViews, dropNoun: "VIEW"},
	Task:     {name: "task", key: "tasks", label: "TASK", objectType: warehouse.TypeTasks, dropNoun: "TASK"},
	Snowpipe: {name: "snowpipe", key: "snowpipes", label: "SNOWPIPE", objectType: warehouse.TypePipes, dropNoun: "PIPE"},
}

// All returns every category in processing order.
func All() []Category {
	return []Category{Table, View, Task, Snowpipe}
}

func (c Category) info() categoryInfo {
	if c < 0 || c >= numCategories {
		panic(fmt.Sprintf("catalog: invalid category %d", int(c)))
	}
	return categories[c]
}

func (c Category) String() string { return c.info().name }

// Key is the YAML key holding this category's entries ("tables", ...).
func (c Category) Key() string { return c.info().key }

// Label is the upper-case console prefix ("TABLE", ...).
func (c Category) Label() string { return c.info().label }

// ObjectType is the warehouse object type used for existence lookups.
func (c Category) ObjectType() warehouse.ObjectType { return c.info().objectType }

// DropSQL renders the drop statement for an object of this category.
func (c Category) DropSQL(name string) string {
	return fmt.Sprintf("DROP %s IF EXISTS %s", c.info().dropNoun, name)
}

// ParseCategory accepts either the singular name or the plural key.
func ParseCategory(s string) (Category, error) {
	for _, c := range All() {
		if s == c.String() || s == c.Key() {
			return c, nil
		}
	}
	return 0, fmt.Errorf("catalog: unknown category %q", s)
}
