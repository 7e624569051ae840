package config

import (
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sfyaml/internal/catalog"
)

// DefaultMasterFile is the master file name under the config directory.
const DefaultMasterFile = "master_sf_objects.yaml"

// MasterConfig is the root configuration file.
type MasterConfig struct {
	Snowflake *Credentials `yaml:"snowflake"`

	Tables    []SourceEntry `yaml:"tables"`
	Views     []SourceEntry `yaml:"views"`
	Tasks     []SourceEntry `yaml:"tasks"`
	Snowpipes []SourceEntry `yaml:"snowpipes"`

	Connections []Connection `yaml:"airbyte_connections"`

	Target *Target `yaml:"target"`

	// Path is the file the config was loaded from.
	Path string `yaml:"-"`
}

// Sources returns the entries configured for a category.
func (m *MasterConfig) Sources(c catalog.Category) []SourceEntry {
	switch c {
	case catalog.Table:
		return m.Tables
	case catalog.View:
		return m.Views
	case catalog.Task:
		return m.Tasks
	case catalog.Snowpipe:
		return m.Snowpipes
	}
	return nil
}

// Connection is an ingestion connector entry. Its schemas are created by
// apply; its dbt block drives dbt_run.
type Connection struct {
	Name       string     `yaml:"name"`
	RawSchema  string     `yaml:"raw_schema"`
	InfoSchema string     `yaml:"info_schema"`
	DBT        *DBTConfig `yaml:"dbt"`
}

// DBTConfig points at a dbt project repository.
type DBTConfig struct {
	GitURL string `yaml:"git_url"`
	Branch string `yaml:"branch"`
}

// BranchOrDefault returns Branch, or "main" when unset.
func (d DBTConfig) BranchOrDefault() string {
	if b := strings.TrimSpace(d.Branch); b != "" {
		return b
	}
	return "main"
}

// Target selects a non-default warehouse backend.
type Target struct {
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

// LoadMaster loads the master file. Any error here is fatal to the command.
func (l *Loader) LoadMaster(path string) (*MasterConfig, error) {
	doc, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}
	var m MasterConfig
	if err := doc.Decode(&m); err != nil {
		return nil, err
	}
	m.Path = path
	return &m, nil
}

// MasterPath joins the config directory and master file name.
func MasterPath(configDir, file string) string {
	if file == "" {
		file = DefaultMasterFile
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(configDir, file)
}

// EntryKind is the variant of a SourceEntry.
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	EntryFile
	EntryFolder
	EntryPattern
	EntryInline
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryFolder:
		return "folder"
	case EntryPattern:
		return "pattern"
	case EntryInline:
		return "inline"
	default:
		return "unknown"
	}
}

// SourceEntry is one item of a category list: {file}, {folder}, {pattern} or
// an inline {<category key>: [...]} block.
//
// Decoding never fails: shapes that match no variant are kept raw so the
// resolver can report them and move on.
type SourceEntry struct {
	File    string
	Folder  string
	Pattern string

	inline map[string]*yaml.Node
	raw    *yaml.Node
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *SourceEntry) UnmarshalYAML(n *yaml.Node) error {
	e.raw = n
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i].Value, n.Content[i+1]
		scalar := ""
		if v.Kind == yaml.ScalarNode {
			scalar = strings.TrimSpace(v.Value)
		}
		switch k {
		case "file":
			e.File = scalar
		case "folder":
			e.Folder = scalar
		case "pattern":
			e.Pattern = scalar
		default:
			if e.inline == nil {
				e.inline = map[string]*yaml.Node{}
			}
			e.inline[k] = v
		}
	}
	return nil
}

// Kind classifies the entry for a category key. Precedence is file, folder,
// pattern, inline.
func (e SourceEntry) Kind(categoryKey string) EntryKind {
	switch {
	case e.File != "":
		return EntryFile
	case e.Folder != "":
		return EntryFolder
	case e.Pattern != "":
		return EntryPattern
	}
	if _, ok := e.inline[categoryKey]; ok {
		return EntryInline
	}
	return EntryUnknown
}

// Inline returns the inline list node for a category key.
func (e SourceEntry) Inline(categoryKey string) (*yaml.Node, bool) {
	n, ok := e.inline[categoryKey]
	return n, ok
}

// String renders the entry as single-line YAML for messages.
func (e SourceEntry) String() string {
	if e.raw == nil {
		return "{}"
	}
	cp := *e.raw
	cp.Style = yaml.FlowStyle
	b, err := yaml.Marshal(&cp)
	if err != nil {
		return "<unprintable entry>"
	}
	return strings.TrimSpace(string(b))
}

// InlineEntry builds an inline entry, for tests and programmatic configs.
func InlineEntry(categoryKey string, defs ...catalog.ObjectDef) SourceEntry {
	var n yaml.Node
	_ = n.Encode(defs)
	e := SourceEntry{inline: map[string]*yaml.Node{categoryKey: &n}}
	var raw yaml.Node
	_ = raw.Encode(map[string]any{categoryKey: defs})
	e.raw = &raw
	return e
}
