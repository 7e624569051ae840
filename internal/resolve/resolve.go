// Package resolve expands the source entries of a master config into flat,
// ordered lists of object definitions.
package resolve

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sfyaml/internal/catalog"
	"sfyaml/internal/config"
)

// IssueKind classifies a resolution problem.
type IssueKind string

const (
	// IssueMissingKey: a loaded document has no list under the category key.
	IssueMissingKey IssueKind = "missing-key"
	// IssueNoFiles: a file, folder or pattern reference matched nothing.
	IssueNoFiles IssueKind = "no-files"
	// IssueLoad: a referenced file could not be read or parsed.
	IssueLoad IssueKind = "load"
	// IssueDecode: the category list or one of its items has the wrong shape.
	IssueDecode IssueKind = "decode"
	// IssueUnrecognized: the entry matches no known variant.
	IssueUnrecognized IssueKind = "unrecognized"
)

// Issue is a ResolutionError. The entry (or the one document) it concerns
// is skipped; resolution continues.
type Issue struct {
	Kind     IssueKind
	Category catalog.Category
	// Source is the file path or entry text the issue concerns.
	Source  string
	Message string
	Err     error
}

func (i *Issue) Error() string {
	if i.Err != nil {
		return fmt.Sprintf("%s: %v", i.Message, i.Err)
	}
	return i.Message
}

func (i *Issue) Unwrap() error { return i.Err }

// Warning reports whether the issue is informational outside validation.
func (i *Issue) Warning() bool {
	return i.Kind == IssueMissingKey || i.Kind == IssueNoFiles
}

// Resolution is the outcome of resolving one category.
type Resolution struct {
	Defs   []catalog.ObjectDef
	Issues []*Issue
}

// Resolver turns SourceEntries into ObjectDefs.
type Resolver struct {
	Loader *config.Loader
	// BaseDir prefixes relative file, folder and pattern references.
	BaseDir string
}

// New returns a Resolver reading files relative to baseDir.
func New(loader *config.Loader, baseDir string) *Resolver {
	if loader == nil {
		loader = config.NewLoader()
	}
	return &Resolver{Loader: loader, BaseDir: baseDir}
}

// Resolve expands every entry of cat in master, in order. Duplicates are
// kept.
func (r *Resolver) Resolve(master *config.MasterConfig, cat catalog.Category) Resolution {
	var res Resolution
	if master == nil {
		return res
	}
	key := cat.Key()
	for _, e := range master.Sources(cat) {
		switch e.Kind(key) {
		case config.EntryFile:
			r.fromFiles(&res, cat, e.File, "file")
		case config.EntryFolder:
			r.fromFiles(&res, cat, e.Folder, "folder")
		case config.EntryPattern:
			r.fromFiles(&res, cat, e.Pattern, "pattern")
		case config.EntryInline:
			n, _ := e.Inline(key)
			r.appendList(&res, cat, n, "inline")
		default:
			res.Issues = append(res.Issues, &Issue{
				Kind:     IssueUnrecognized,
				Category: cat,
				Source:   e.String(),
				Message:  fmt.Sprintf("Unrecognized %s configuration entry: %s", key, e.String()),
			})
		}
	}
	return res
}

func (r *Resolver) path(p string) string {
	if filepath.IsAbs(p) || r.BaseDir == "" {
		return p
	}
	return filepath.Join(r.BaseDir, p)
}

func (r *Resolver) loader() *config.Loader {
	if r.Loader == nil {
		return config.NewLoader()
	}
	return r.Loader
}

func (r *Resolver) fromFiles(res *Resolution, cat catalog.Category, ref, what string) {
	full := r.path(ref)
	// A missing folder matches no files, like a pattern with no matches.
	if what == "folder" {
		if _, err := os.Stat(full); errors.Is(err, os.ErrNotExist) {
			res.Issues = append(res.Issues, noFiles(cat, full, what))
			return
		}
	}
	docs, errs := r.loader().Load(full)
	for _, err := range errs {
		res.Issues = append(res.Issues, &Issue{
			Kind:     IssueLoad,
			Category: cat,
			Source:   full,
			Message:  fmt.Sprintf("Failed to load %s %s", what, full),
			Err:      err,
		})
	}
	if len(docs) == 0 && len(errs) == 0 {
		res.Issues = append(res.Issues, noFiles(cat, full, what))
		return
	}
	key := cat.Key()
	for _, d := range docs {
		n, ok := d.Lookup(key)
		if !ok {
			res.Issues = append(res.Issues, &Issue{
				Kind:     IssueMissingKey,
				Category: cat,
				Source:   d.Path,
				Message:  fmt.Sprintf("No '%s' key found in %s", key, d.Path),
			})
			continue
		}
		r.appendList(res, cat, n, d.Path)
	}
}

func noFiles(cat catalog.Category, full, what string) *Issue {
	return &Issue{
		Kind:     IssueNoFiles,
		Category: cat,
		Source:   full,
		Message:  fmt.Sprintf("No YAML files found for %s %s", what, full),
	}
}

// appendList decodes a category list item by item so one malformed item
// does not hide its siblings.
func (r *Resolver) appendList(res *Resolution, cat catalog.Category, n *yaml.Node, source string) {
	if n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null") {
		return
	}
	if n.Kind != yaml.SequenceNode {
		res.Issues = append(res.Issues, &Issue{
			Kind:     IssueDecode,
			Category: cat,
			Source:   source,
			Message:  fmt.Sprintf("'%s' in %s must be a list (line %d)", cat.Key(), source, n.Line),
		})
		return
	}
	for _, item := range n.Content {
		if item.Kind != yaml.MappingNode {
			res.Issues = append(res.Issues, &Issue{
				Kind:     IssueDecode,
				Category: cat,
				Source:   source,
				Message:  fmt.Sprintf("%s entry in %s is not a mapping (line %d)", cat.Label(), source, item.Line),
			})
			continue
		}
		var def catalog.ObjectDef
		if err := item.Decode(&def); err != nil {
			res.Issues = append(res.Issues, &Issue{
				Kind:     IssueDecode,
				Category: cat,
				Source:   source,
				Message:  fmt.Sprintf("%s entry in %s (line %d)", cat.Label(), source, item.Line),
				Err:      err,
			})
			continue
		}
		def.Source = source
		res.Defs = append(res.Defs, def)
	}
}
