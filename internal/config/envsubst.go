package config

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// LookupEnvFunc matches os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

var envRefRe = regexp.MustCompile(`\$\{env:([^}]+)\}`)

// ExpandEnv replaces every ${env:NAME} in s with the value of NAME. References
// to unset variables are left as written.
func ExpandEnv(s string, lookup LookupEnvFunc) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return envRefRe.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRefRe.FindStringSubmatch(ref)[1]
		if v, ok := lookup(name); ok {
			return v
		}
		return ref
	})
}

// SubstituteEnv applies ExpandEnv to every string scalar under n, recursing
// through documents, sequences and mappings. Mapping keys are left alone.
func SubstituteEnv(n *yaml.Node, lookup LookupEnvFunc) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			SubstituteEnv(c, lookup)
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			SubstituteEnv(n.Content[i], lookup)
		}
	case yaml.ScalarNode:
		if n.ShortTag() == "!!str" {
			n.Value = ExpandEnv(n.Value, lookup)
		}
	}
}
