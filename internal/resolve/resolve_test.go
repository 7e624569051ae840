package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfyaml/internal/catalog"
	"sfyaml/internal/config"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func loadMaster(t *testing.T, dir, body string) *config.MasterConfig {
	t.Helper()
	p := writeFile(t, dir, config.DefaultMasterFile, body)
	m, err := config.NewLoader().LoadMaster(p)
	require.NoError(t, err)
	return m
}

func names(defs []catalog.ObjectDef) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

func twoTables(prefix string) string {
	return fmt.Sprintf("tables:\n  - name: %[1]s_a\n    query: CREATE TABLE %[1]s_a (id INT)\n  - name: %[1]s_b\n    query: CREATE TABLE %[1]s_b (id INT)\n", prefix)
}

func TestResolve_FolderYieldsDefsInFileOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tables/f3.yaml", twoTables("c"))
	writeFile(t, dir, "tables/f1.yaml", twoTables("a"))
	writeFile(t, dir, "tables/f2.yaml", twoTables("b"))
	m := loadMaster(t, dir, "tables:\n  - folder: tables\n")

	res := New(nil, dir).Resolve(m, catalog.Table)
	require.Empty(t, res.Issues)
	assert.Equal(t, []string{"a_a", "a_b", "b_a", "b_b", "c_a", "c_b"}, names(res.Defs))
	assert.Equal(t, filepath.Join(dir, "tables", "f1.yaml"), res.Defs[0].Source)
}

func TestResolve_FileMissingKeyIsWarning(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tables/f1.yaml", twoTables("a"))
	writeFile(t, dir, "tables/f2.yaml", "views:\n  - name: v\n    query: q\n")
	m := loadMaster(t, dir, "tables:\n  - folder: tables\n")

	res := New(nil, dir).Resolve(m, catalog.Table)
	assert.Len(t, res.Defs, 2)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueMissingKey, res.Issues[0].Kind)
	assert.True(t, res.Issues[0].Warning())
	assert.Contains(t, res.Issues[0].Error(), "No 'tables' key found")
}

func TestResolve_AllVariantsPreserveEntryOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.yaml", twoTables("file"))
	writeFile(t, dir, "extra_1.yaml", twoTables("pat"))
	m := loadMaster(t, dir, `
tables:
  - tables:
      - name: inline_1
        query: CREATE TABLE inline_1 (id INT)
  - file: one.yaml
  - nonsense: true
  - pattern: extra_*.yaml
  - tables:
      - name: file_a
        query: CREATE TABLE file_a (id INT)
`)

	res := New(nil, dir).Resolve(m, catalog.Table)
	assert.Equal(t, []string{"inline_1", "file_a", "file_b", "pat_a", "pat_b", "file_a"}, names(res.Defs))
	assert.Equal(t, "inline", res.Defs[0].Source)

	require.Len(t, res.Issues, 1)
	iss := res.Issues[0]
	assert.Equal(t, IssueUnrecognized, iss.Kind)
	assert.False(t, iss.Warning())
	assert.Equal(t, "Unrecognized tables configuration entry: {nonsense: true}", iss.Error())
}

func TestResolve_ReferenceProblems(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "tables: [unterminated\n")
	writeFile(t, dir, "scalar.yaml", "tables: nope\n")
	writeFile(t, dir, "mixed.yaml", "tables:\n  - just-a-string\n  - name: ok\n    query: q\n  - name: [bad]\n")
	m := loadMaster(t, dir, `
tables:
  - pattern: nomatch_*.yaml
  - file: broken.yaml
  - file: scalar.yaml
  - file: mixed.yaml
  - file: absent.yaml
`)

	res := New(nil, dir).Resolve(m, catalog.Table)
	assert.Equal(t, []string{"ok"}, names(res.Defs))

	var kinds []IssueKind
	for _, i := range res.Issues {
		kinds = append(kinds, i.Kind)
	}
	assert.Equal(t, []IssueKind{IssueNoFiles, IssueLoad, IssueDecode, IssueDecode, IssueDecode, IssueLoad}, kinds)

	var cerr *config.Error
	assert.ErrorAs(t, res.Issues[1], &cerr)
	assert.ErrorIs(t, res.Issues[5], os.ErrNotExist)
}

func TestResolve_MissingFolderMatchesNoFiles(t *testing.T) {
	dir := t.TempDir()
	m := loadMaster(t, dir, `
tables:
  - folder: nope
  - pattern: nope/*.yaml
`)

	res := New(nil, dir).Resolve(m, catalog.Table)
	assert.Empty(t, res.Defs)
	require.Len(t, res.Issues, 2)
	for _, iss := range res.Issues {
		assert.Equal(t, IssueNoFiles, iss.Kind, iss.Error())
		assert.True(t, iss.Warning())
	}
	assert.Equal(t, "No YAML files found for folder "+filepath.Join(dir, "nope"), res.Issues[0].Message)
}

func TestResolve_SnowpipeKeepsStage(t *testing.T) {
	m := &config.MasterConfig{Snowpipes: []config.SourceEntry{
		config.InlineEntry("snowpipes", catalog.ObjectDef{Name: "p", Query: "COPY INTO t FROM @s", Stage: "explicit"}),
	}}
	res := New(nil, "").Resolve(m, catalog.Snowpipe)
	require.Len(t, res.Defs, 1)
	assert.Equal(t, "explicit", res.Defs[0].Stage)
}

func TestResolve_NilMasterAndEmptyCategory(t *testing.T) {
	r := New(nil, "")
	assert.Empty(t, r.Resolve(nil, catalog.Task).Defs)
	assert.Empty(t, r.Resolve(&config.MasterConfig{}, catalog.Task).Issues)
}
