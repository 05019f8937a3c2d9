package schema

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/template"
	"github.com/vk/bert/internal/yamldoc"
)

type testEnv struct {
	r    *template.Renderer
	vars map[string]any
	root string
}

func newTestEnv() *testEnv {
	return &testEnv{
		r:    template.New(),
		vars: map[string]any{"name": "app", "dir": "/opt", "n": 2},
		root: "/build",
	}
}

func (e *testEnv) Render(text string) (string, error) { return e.r.Render(text, e.vars) }
func (e *testEnv) RenderValue(v any) (any, error)     { return e.r.RenderValue(v, e.vars) }
func (e *testEnv) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.root, p)
}

func parseBody(t *testing.T, src string) *yamldoc.Value {
	t.Helper()
	v, err := yamldoc.Parse("task.yml", []byte(src))
	require.NoError(t, err)
	return v
}

func addSchema() *Schema {
	return New(
		Field{Name: "src", Aliases: []string{"path"}, Bare: true, Required: true, Coerce: LocalPath},
		Field{Name: "dest", Coerce: AsString},
		Field{Name: "mode", Coerce: FileMode},
		Field{Name: "template", Default: false, Coerce: AsBool},
	)
}

func TestValidate_MappingWithAliasAndDefaults(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	body := parseBody(t, "path: files/${name}.conf\ndest: ${dir}/\nmode: u=rw,g=r,o=r\n")

	// --- Act ---
	vals, err := addSchema().Validate(newTestEnv(), body)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/build/files/app.conf", vals.String("src"))
	assert.Equal(t, "/opt/", vals.String("dest"))
	mode, ok := vals.FileMode("mode")
	require.True(t, ok)
	assert.Equal(t, uint32(0o644), mode)
	assert.False(t, vals.Bool("template"))
	assert.True(t, vals.Has("template"))
}

func TestValidate_BareValue(t *testing.T) {
	t.Parallel()
	vals, err := addSchema().Validate(newTestEnv(), parseBody(t, "/etc/${name}"))
	require.NoError(t, err)
	assert.Equal(t, "/etc/app", vals.String("src"))
	assert.False(t, vals.Has("dest"))
}

func TestValidate_MissingRequiredField(t *testing.T) {
	t.Parallel()
	_, err := addSchema().Validate(newTestEnv(), parseBody(t, "dest: /x\n"))
	require.Error(t, err)

	var cfgErr *yamldoc.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Msg, `missing required field "src"`)
	assert.Equal(t, 1, cfgErr.Pos.Line)
}

func TestValidate_UnknownKeyWithoutExtras(t *testing.T) {
	t.Parallel()
	_, err := addSchema().Validate(newTestEnv(), parseBody(t, "src: a\nbogus: 1\n"))
	require.Error(t, err)

	var cfgErr *yamldoc.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "task.yml:2:1: unknown key \"bogus\"", cfgErr.Error())
}

func TestValidate_UnknownKeysRouteToExtras(t *testing.T) {
	t.Parallel()
	s := New(
		Field{Name: "vars", Extras: true, Coerce: AsString},
	)

	vals, err := s.Validate(newTestEnv(), parseBody(t, "PATH: /bin\n${name}_HOME: ${dir}\nCOUNT: ${n}\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"PATH":     "/bin",
		"app_HOME": "/opt",
		"COUNT":    "2",
	}, vals.Map("vars"))
}

func TestValidate_NonMappingWithoutBareField(t *testing.T) {
	t.Parallel()
	s := New(Field{Name: "path", Required: true})
	_, err := s.Validate(newTestEnv(), parseBody(t, "[a, b]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task requires a mapping")
}

func TestValidate_NullBodyUsesDefaults(t *testing.T) {
	t.Parallel()
	s := New(Field{Name: "msg", Bare: true, Default: "failed"})
	vals, err := s.Validate(newTestEnv(), &yamldoc.Value{Kind: yamldoc.Null})
	require.NoError(t, err)
	assert.Equal(t, "failed", vals.String("msg"))
}

func TestValidate_TemplateErrorCarriesLocation(t *testing.T) {
	t.Parallel()
	_, err := addSchema().Validate(newTestEnv(), parseBody(t, "src: ${nope}\n"))
	require.Error(t, err)

	var tplErr *template.Error
	require.True(t, errors.As(err, &tplErr))
	assert.Equal(t, "task.yml:1:6", tplErr.Location)
}

func TestValidate_CoercionFailure(t *testing.T) {
	t.Parallel()
	_, err := addSchema().Validate(newTestEnv(), parseBody(t, "src: a\nmode: o=u\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task.yml:2:7: mode:")
}

func TestCheck(t *testing.T) {
	t.Parallel()
	require.NoError(t, addSchema().Check())

	bad := New(
		Field{Name: "a", Bare: true},
		Field{Name: "b", Bare: true, Aliases: []string{"a"}},
	)
	err := bad.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "a" declared twice`)
	assert.Contains(t, err.Error(), "more than one bare field")
}

func TestAsStringList(t *testing.T) {
	t.Parallel()
	v, err := AsStringList(nil, "one")
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, v)

	v, err = AsStringList(nil, []any{"a", 1, true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "1", "true"}, v)

	_, err = AsStringList(nil, []any{map[string]any{}})
	require.Error(t, err)
}

func TestOneOf(t *testing.T) {
	t.Parallel()
	c := OneOf("GET", "POST")
	v, err := c(nil, "POST")
	require.NoError(t, err)
	assert.Equal(t, "POST", v)

	_, err = c(nil, "PUT")
	require.Error(t, err)
}
