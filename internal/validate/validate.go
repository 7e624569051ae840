// Package validate statically checks a master config and the definitions it
// resolves to. It never touches the warehouse.
package validate

import (
	"fmt"
	"strings"

	"sfyaml/internal/catalog"
	"sfyaml/internal/config"
	"sfyaml/internal/resolve"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one ValidationError (or warning).
type Issue struct {
	Severity Severity
	// Path locates the problem: "snowflake.user", "tables", "airbyte_connections[1].dbt".
	Path    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Result is the accumulated outcome of a validation run.
type Result struct {
	Issues []Issue
	// Defs counts resolved definitions per category.
	Defs map[catalog.Category]int
}

// OK reports whether no error-severity issue was found.
func (r Result) OK() bool {
	return r.Errors() == 0
}

func (r Result) Errors() int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			n++
		}
	}
	return n
}

func (r *Result) add(sev Severity, path, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate runs every check and collects all issues; nothing short-circuits.
func Validate(m *config.MasterConfig, res *resolve.Resolver) Result {
	r := Result{Defs: map[catalog.Category]int{}}
	if m == nil {
		r.add(SeverityError, "", "master configuration is empty")
		return r
	}

	checkCredentials(&r, m)
	total := 0
	for _, c := range catalog.All() {
		total += checkCategory(&r, m, res, c)
	}
	checkConnections(&r, m.Connections)
	if m.Target != nil && strings.TrimSpace(m.Target.Kind) == "" {
		r.add(SeverityError, "target.kind", "target.kind is required when target is set")
	}
	if total == 0 {
		r.add(SeverityWarning, "", "no object definitions configured")
	}
	return r
}

func checkCredentials(r *Result, m *config.MasterConfig) {
	if m.Snowflake == nil {
		r.add(SeverityError, "snowflake", "'snowflake' key is missing in master configuration")
		return
	}
	for _, k := range m.Snowflake.Missing() {
		r.add(SeverityError, "snowflake."+k, "Snowflake credential '%s' is missing", k)
	}
}

func checkCategory(r *Result, m *config.MasterConfig, res *resolve.Resolver, c catalog.Category) int {
	key := c.Key()
	out := res.Resolve(m, c)

	for _, iss := range out.Issues {
		// Missing keys and empty references are only warnings during apply;
		// here every resolution problem fails validation.
		r.add(SeverityError, key, "%s", iss.Error())
	}
	for _, d := range out.Defs {
		for _, f := range d.MissingFields() {
			switch f {
			case "name":
				r.add(SeverityError, key, "%s definition missing 'name' (from %s)", key, d.Source)
			case "query":
				r.add(SeverityError, key, "%s definition for '%s' missing 'query' (from %s)", key, d.DisplayName(), d.Source)
			}
		}
	}
	r.Defs[c] = len(out.Defs)
	return len(out.Defs)
}

func checkConnections(r *Result, conns []config.Connection) {
	for i, cn := range conns {
		path := fmt.Sprintf("airbyte_connections[%d]", i)
		if strings.TrimSpace(cn.Name) == "" {
			r.add(SeverityError, path+".name", "connection is missing 'name'")
		}
		if strings.TrimSpace(cn.RawSchema) == "" {
			r.add(SeverityError, path+".raw_schema", "connection '%s' is missing 'raw_schema'", cn.Name)
		}
		if strings.TrimSpace(cn.InfoSchema) == "" {
			r.add(SeverityError, path+".info_schema", "connection '%s' is missing 'info_schema'", cn.Name)
		}
		if cn.DBT != nil && strings.TrimSpace(cn.DBT.GitURL) == "" {
			r.add(SeverityError, path+".dbt.git_url", "dbt configuration for '%s' is missing 'git_url'", cn.Name)
		}
	}
}
