package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVars() map[string]any {
	return map[string]any{
		"name":    "web",
		"count":   3,
		"debug":   false,
		"root":    "/src/project/app",
		"images":  []any{"alpine:3", "debian:12"},
		"config":  map[string]any{"name": "prod.amd64", "short_name": "amd64"},
		"env":     map[string]string{"HOME": "/root"},
		"nothing": nil,
	}
}

func TestRender_Interpolation(t *testing.T) {
	t.Parallel()
	r := New()

	out, err := r.Render("${name}-${config.short_name}-${count}", testVars())
	require.NoError(t, err)
	assert.Equal(t, "web-amd64-3", out)
}

func TestRender_PlainTextUnchanged(t *testing.T) {
	t.Parallel()
	r := New()

	out, err := r.Render("make install", nil)
	require.NoError(t, err)
	assert.Equal(t, "make install", out)
}

func TestRender_EscapedInterpolation(t *testing.T) {
	t.Parallel()
	r := New()

	out, err := r.Render("echo $${HOME} ${env.HOME}", testVars())
	require.NoError(t, err)
	assert.Equal(t, "echo ${HOME} /root", out)
}

func TestRender_Directive(t *testing.T) {
	t.Parallel()
	r := New()

	out, err := r.Render("cc%{ if debug } -g%{ endif }", testVars())
	require.NoError(t, err)
	assert.Equal(t, "cc", out)
}

func TestRender_UndefinedVariableFails(t *testing.T) {
	t.Parallel()
	r := New()

	_, err := r.Render("${missing}", testVars())
	require.Error(t, err)

	var tplErr *Error
	require.True(t, errors.As(err, &tplErr))
	assert.Equal(t, "${missing}", tplErr.Template)
	assert.Contains(t, err.Error(), "Unknown variable")
}

func TestRender_UndefinedAttributeFails(t *testing.T) {
	t.Parallel()
	r := New()

	_, err := r.Render("${config.missing}", testVars())
	require.Error(t, err)
}

func TestRender_Functions(t *testing.T) {
	t.Parallel()
	r := New()
	vars := testVars()

	cases := map[string]string{
		"${upper(name)}":                     "WEB",
		"${dirname(root)}":                   "/src/project",
		"${basename(root)}":                  "app",
		"${join(\",\", images)}":             "alpine:3,debian:12",
		"${regex_replace(name, \"w\", \"W\")}": "Web",
		"${hash(\"abc\")}":                   "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		"${to_json(config)}":                 `{"name":"prod.amd64","short_name":"amd64"}`,
		"${regex_search(name, \"^w\")}":      "true",
	}
	for tmpl, want := range cases {
		got, err := r.Render(tmpl, vars)
		require.NoError(t, err, tmpl)
		assert.Equal(t, want, got, tmpl)
	}
}

func TestRenderValue_NativeAndNested(t *testing.T) {
	t.Parallel()
	r := New()

	out, err := r.RenderValue(map[string]any{
		"${name}_images": "${images}",
		"n":              "${count}",
		"list":           []any{"${name}", 7, true},
	}, testVars())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"web_images": []any{"alpine:3", "debian:12"},
		"n":          3,
		"list":       []any{"web", 7, true},
	}, out)
}

func TestEval(t *testing.T) {
	t.Parallel()
	r := New()
	vars := testVars()

	cases := []struct {
		expr string
		want bool
	}{
		{`name == "web"`, true},
		{`count > 5`, false},
		{`debug`, false},
		{`!debug`, true},
		{`${config.short_name == "amd64"}`, true},
		{`true`, true},
		{`nothing`, false},
	}
	for _, tc := range cases {
		got, err := r.Eval(tc.expr, vars)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEval_Errors(t *testing.T) {
	t.Parallel()
	r := New()

	_, err := r.Eval("undefined_thing", testVars())
	require.Error(t, err)

	_, err = r.Eval(`images`, testVars())
	require.Error(t, err)
}
