package include_vars

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/inmemorybackend"
	"github.com/vk/bert/internal/testutil"
)

func TestOnRunIncludeVars(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	dir := testutil.WriteFiles(t, map[string]string{"vars/release.yml": "version: 2.0.1\nchannels: [stable]\n"})
	j := testutil.NewJob(t, inmemorybackend.New(nil), dir, "base")
	def := testutil.Definition(t, &Module{}, "include-vars")

	// --- Act ---
	err := testutil.RunTask(context.Background(), j, def, &config.Task{Body: testutil.Body(t, "vars/release.yml")})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "2.0.1", j.Vars()["version"])
	assert.Equal(t, "2.0.1", j.SavedVars["version"])
	assert.Equal(t, []any{"stable"}, j.Vars()["channels"])
}

func TestOnRunIncludeVars_MissingFile(t *testing.T) {
	t.Parallel()
	j := testutil.NewJob(t, inmemorybackend.New(nil), t.TempDir(), "base")
	def := testutil.Definition(t, &Module{}, "include-vars")

	err := testutil.RunTask(context.Background(), j, def, &config.Task{Body: testutil.Body(t, "absent.yml")})

	assert.Error(t, err)
}
