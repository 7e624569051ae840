package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one parsed YAML file after env substitution.
type Document struct {
	Path string
	root *yaml.Node // mapping node; nil for an empty file
}

// Lookup returns the value node stored under key.
func (d Document) Lookup(key string) (*yaml.Node, bool) {
	if d.root == nil {
		return nil, false
	}
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		if d.root.Content[i].Value == key {
			return d.root.Content[i+1], true
		}
	}
	return nil, false
}

// Decode decodes the whole document into v.
func (d Document) Decode(v any) error {
	if d.root == nil {
		return nil
	}
	if err := d.root.Decode(v); err != nil {
		return &Error{Path: d.Path, Err: err}
	}
	return nil
}

// Loader reads YAML files, directories and glob patterns.
type Loader struct {
	// LookupEnv resolves ${env:NAME} references. Defaults to os.LookupEnv.
	LookupEnv LookupEnvFunc
}

// NewLoader returns a Loader backed by the process environment.
func NewLoader() *Loader {
	return &Loader{LookupEnv: os.LookupEnv}
}

// Load accepts a directory, a glob pattern or a single file path and returns
// the documents it names, in lexical path order.
//
// Edge cases:
//   - Directories are not walked recursively; only "*.yaml" files are read.
//   - A pattern that matches nothing yields no documents and no error.
//   - A file that fails to read or parse produces one *Error in errs; the
//     remaining files are still loaded.
func (l *Loader) Load(pathPattern string) (docs []Document, errs []error) {
	paths, err := ExpandPath(pathPattern)
	if err != nil {
		return nil, []error{&Error{Path: pathPattern, Err: err}}
	}
	for _, p := range paths {
		d, err := l.LoadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, d)
	}
	return docs, errs
}

// LoadFile reads and parses a single YAML mapping.
func (l *Loader) LoadFile(path string) (Document, error) {
	b, err := readText(path)
	if err != nil {
		return Document{}, &Error{Path: path, Err: err}
	}
	root, err := parseMapping(b)
	if err != nil {
		return Document{}, &Error{Path: path, Err: err}
	}
	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	SubstituteEnv(root, lookup)
	return Document{Path: path, root: root}, nil
}

func parseMapping(b []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null" {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping (line %d)", root.Line)
	}
	return root, nil
}

// ExpandPath resolves pathPattern to the list of files Load reads.
func ExpandPath(pathPattern string) ([]string, error) {
	info, err := os.Stat(pathPattern)
	switch {
	case err == nil && info.IsDir():
		return filepath.Glob(filepath.Join(pathPattern, "*.yaml"))
	case err == nil:
		// An existing file is taken literally, even with "[" in its name.
		return []string{pathPattern}, nil
	case HasGlobMeta(pathPattern):
		matches, err := filepath.Glob(pathPattern)
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		return matches, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, err
	default:
		// Missing single files are reported by LoadFile.
		return []string{pathPattern}, nil
	}
}

// HasGlobMeta reports whether p contains glob metacharacters.
func HasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}
