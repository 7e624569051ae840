package catalog

import (
	"regexp"
	"strings"
)

// ObjectDef is one resolved object definition.
type ObjectDef struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
	Stage string `yaml:"stage,omitempty"`

	// Source is the file the definition came from, or "inline".
	Source string `yaml:"-"`
}

// MissingFields returns the names of the required fields that are empty, in
// the order name, query.
func (d ObjectDef) MissingFields() []string {
	var out []string
	if strings.TrimSpace(d.Name) == "" {
		out = append(out, "name")
	}
	if strings.TrimSpace(d.Query) == "" {
		out = append(out, "query")
	}
	return out
}

// DisplayName is the name for log lines; "unknown" when missing.
func (d ObjectDef) DisplayName() string {
	if n := strings.TrimSpace(d.Name); n != "" {
		return n
	}
	return "unknown"
}

var stageRe = regexp.MustCompile(`(?i)FROM\s+@(\S+)`)

// ExtractStage finds the stage referenced as "FROM @<stage>" in a query.
// A trailing statement terminator is stripped. ok is false when the query
// has no such clause.
func ExtractStage(query string) (stage string, ok bool) {
	m := stageRe.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	stage = strings.TrimRight(m[1], ";")
	if stage == "" {
		return "", false
	}
	return stage, true
}

// ResolveStage returns the explicit stage field, else the stage extracted
// from the query. inferred reports which one was used.
func (d ObjectDef) ResolveStage() (stage string, inferred bool, ok bool) {
	if s := strings.TrimSpace(d.Stage); s != "" {
		return s, false, true
	}
	s, ok := ExtractStage(d.Query)
	return s, true, ok
}
