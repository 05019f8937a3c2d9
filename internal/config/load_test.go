package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/yamldoc"
)

type knownTasks []string

func (k knownTasks) Has(action string) bool {
	for _, a := range k {
		if a == action {
			return true
		}
	}
	return false
}

var testTasks = knownTasks{"run", "add", "set-var", "fail"}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T, dir string) (*Root, error) {
	t.Helper()
	return NewLoader(testTasks).Load(context.Background(), dir)
}

func TestLoad_DirectoryUsesDefaultFile(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, DefaultFileName, `
from: alpine:3
tasks:
  - run: echo hi
  - name: greet
    set-var:
      greeting: hello
    when: 'true'
`)

	// --- Act ---
	root, err := load(t, dir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, dir, root.Dir)
	assert.Equal(t, []string{"alpine:3"}, root.Images)
	require.Len(t, root.Stages, 1)
	st := root.Stages[0]
	assert.Equal(t, "default", st.Name)
	require.Len(t, st.Tasks, 2)
	assert.Equal(t, "run", st.Tasks[0].Action)
	assert.Equal(t, "run: echo hi", st.Tasks[0].DisplayName())
	assert.Equal(t, "greet", st.Tasks[1].DisplayName())
	assert.Equal(t, "true", st.Tasks[1].When)
}

func TestLoad_StagesAndConfigs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "build.yml", `
configs:
  - name: prod
    from: [debian:12]
    configs:
      - name: amd64
      - name: arm64
        from: arm64v8/debian:12
stages:
  compile:
    work-dir: /src
    tasks:
      - run: make
  package:
    build-tag: app:${config.short_name}
    tasks:
      - run: make dist
`)

	root, err := load(t, path)
	require.NoError(t, err)

	require.Len(t, root.Stages, 2)
	assert.Equal(t, "compile", root.Stages[0].Name)
	assert.Equal(t, "/src", root.Stages[0].WorkDir)
	assert.Equal(t, "app:${config.short_name}", root.Stages[1].BuildTag)

	require.Len(t, root.Configs, 1)
	assert.Len(t, root.Configs[0].Children, 2)
	assert.Equal(t, "prod.arm64", root.Configs[0].Children[1].FullName())
}

func TestLoad_UnknownTaskHasPosition(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, DefaultFileName, "tasks:\n  - rum: echo\n")

	_, err := load(t, dir)
	require.Error(t, err)

	var cfgErr *yamldoc.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 2, cfgErr.Pos.Line)
	assert.Equal(t, 5, cfgErr.Pos.Column)
	assert.Contains(t, cfgErr.Msg, `unknown task "rum"`)
}

func TestLoad_TwoActionsRejected(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, DefaultFileName, "tasks:\n  - run: a\n    fail:\n")

	_, err := load(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one action")
}

func TestLoad_IncludeVarsMustBeListOfStrings(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, DefaultFileName, "include-vars: vars.yml\ntasks: []\n")

	_, err := load(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":1:15: include-vars must be a list of strings")
}

func TestLoad_IncludeVarsThenInlineVars(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "vars/common.yml", "a: from-file\nb: from-file\n")
	writeFile(t, dir, DefaultFileName, `
include-vars: [vars/common.yml]
vars:
  b: inline
tasks: []
`)

	root, err := load(t, dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "from-file", "b": "inline"}, root.Vars)
}

func TestLoad_NonMappingVars(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, DefaultFileName, "vars: [1, 2]\ntasks: []\n")

	_, err := load(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vars must be a mapping")
}
