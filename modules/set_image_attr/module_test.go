package set_image_attr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/inmemorybackend"
	"github.com/vk/bert/internal/testutil"
	"github.com/vk/bert/internal/yamldoc"
)

func TestOnRunSetImageAttr(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	be := inmemorybackend.New(nil)
	j := testutil.NewJob(t, be, t.TempDir(), "base")
	def := testutil.Definition(t, &Module{}, "set-image-attr")

	// --- Act ---
	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "env:\n  MODE: prod\nwork-dir: app\ncmd: [./server, --port, \"80\"]\n"),
	})

	// --- Assert ---
	require.NoError(t, err)
	img, err := be.GetImage(context.Background(), j.SrcImage)
	require.NoError(t, err)
	assert.Equal(t, "/app", img.WorkDir)
	assert.Equal(t, []string{"./server", "--port", "80"}, img.Cmd)
	assert.Contains(t, img.Env, "MODE=prod")
	assert.Equal(t, "/app", j.WorkDir)
}

func TestOnRunSetImageAttr_CacheHitKeepsWorkDir(t *testing.T) {
	t.Parallel()
	be := inmemorybackend.New(nil)
	dir := t.TempDir()
	def := testutil.Definition(t, &Module{}, "set-image-attr")
	ctx := context.Background()

	first := testutil.NewJob(t, be, dir, "base")
	require.NoError(t, testutil.RunTask(ctx, first, def, &config.Task{Body: testutil.Body(t, "work-dir: /opt")}))
	second := testutil.NewJob(t, be, dir, "base")
	require.NoError(t, testutil.RunTask(ctx, second, def, &config.Task{Body: testutil.Body(t, "work-dir: /opt")}))

	assert.Equal(t, 1, be.Commits())
	assert.Equal(t, "/opt", second.WorkDir)
	assert.Equal(t, first.SrcImage, second.SrcImage)
}

func TestOnRunSetImageAttr_NeedsAnAttribute(t *testing.T) {
	t.Parallel()
	j := testutil.NewJob(t, inmemorybackend.New(nil), t.TempDir(), "base")
	def := testutil.Definition(t, &Module{}, "set-image-attr")

	err := testutil.RunTask(context.Background(), j, def, &config.Task{Body: testutil.Body(t, "{}")})

	var cfgErr *yamldoc.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Msg, "at least one of")
}
