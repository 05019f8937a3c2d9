package set_var

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/inmemorybackend"
	"github.com/vk/bert/internal/testutil"
)

func TestOnRunSetVar(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	be := inmemorybackend.New(nil)
	j := testutil.NewJob(t, be, t.TempDir(), "base")
	j.SetVar("major", 3)
	def := testutil.Definition(t, &Module{}, "set-var")

	// --- Act ---
	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "version: ${major}.1\nflags: [a, b]\n"),
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "3.1", j.Vars()["version"])
	assert.Equal(t, []any{"a", "b"}, j.Vars()["flags"])
	assert.Equal(t, "3.1", j.SavedVars["version"])
	assert.Empty(t, be.Creates())
}
