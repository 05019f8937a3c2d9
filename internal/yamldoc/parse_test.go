package yamldoc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PositionsAndOrder(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	src := "stages:\n  zeta:\n    tasks: []\n  alpha:\n    from: img\n"

	// --- Act ---
	v, err := Parse("bert-build.yml", []byte(src))

	// --- Assert ---
	require.NoError(t, err)
	stages := v.Get("stages")
	require.NotNil(t, stages)
	require.Equal(t, Mapping, stages.Kind)
	assert.Equal(t, "zeta", stages.KeyString(0))
	assert.Equal(t, "alpha", stages.KeyString(1))

	from := stages.Get("alpha").Get("from")
	require.NotNil(t, from)
	assert.Equal(t, Pos{File: "bert-build.yml", Line: 5, Column: 11}, from.Pos)
	assert.Equal(t, "bert-build.yml:5:11", from.Pos.String())
}

func TestParse_ScalarTypes(t *testing.T) {
	t.Parallel()
	v, err := Parse("doc", []byte("a: 1\nb: true\nc: text\nd:\ne: 1.5\nf: '1'\n"))
	require.NoError(t, err)

	assert.Equal(t, 1, v.Get("a").Scalar)
	assert.Equal(t, true, v.Get("b").Scalar)
	assert.Equal(t, "text", v.Get("c").Scalar)
	assert.True(t, v.Get("d").IsNull())
	assert.Equal(t, 1.5, v.Get("e").Scalar)
	assert.Equal(t, "1", v.Get("f").Scalar)
	assert.Nil(t, v.Get("missing"))
}

func TestParse_AliasesAndMergeKeys(t *testing.T) {
	t.Parallel()
	src := `
base: &base
  x: 1
  y: 2
child:
  <<: *base
  y: 3
list: &l [a, b]
again: *l
`
	v, err := Parse("doc", []byte(src))
	require.NoError(t, err)

	child := v.Get("child").Plain()
	assert.Equal(t, map[string]any{"x": 1, "y": 3}, child)
	assert.Equal(t, []any{"a", "b"}, v.Get("again").Plain())
}

func TestParse_DuplicateKeyIsConfigError(t *testing.T) {
	t.Parallel()
	_, err := Parse("doc", []byte("a: 1\na: 2\n"))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 2, cfgErr.Pos.Line)
	assert.Contains(t, err.Error(), `duplicate key "a"`)
}

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()
	v, err := Parse("doc", nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestFromPlain_RoundTrip(t *testing.T) {
	t.Parallel()
	in := map[string]any{"b": []any{"x", 2}, "a": nil}
	v := FromPlain(in)

	assert.Equal(t, "a", v.KeyString(0))
	assert.Equal(t, "b", v.KeyString(1))
	assert.Equal(t, in, v.Plain())
}

func TestConfigError_Format(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "oops", (&ConfigError{Msg: "oops"}).Error())
	assert.Equal(t, "f.yml:3:4: oops", Errorf(&Value{Pos: Pos{File: "f.yml", Line: 3, Column: 4}}, "oops").Error())
	assert.Equal(t, "bad 7", Errorf(nil, "bad %d", 7).Error())
}
