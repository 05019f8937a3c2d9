package import_tar

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/inmemorybackend"
	"github.com/vk/bert/internal/testutil"
)

func writeTar(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	tw := tar.NewWriter(f)
	for name, data := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
}

func TestOnRunImportTar(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	dir := t.TempDir()
	writeTar(t, filepath.Join(dir, "vendor.tar"), map[string]string{"lib/a.txt": "a"})
	be := inmemorybackend.New(nil)
	be.AddImage("base", backend.Image{WorkDir: "/build"}, nil)
	def := testutil.Definition(t, &Module{}, "import-tar")
	ctx := context.Background()

	// --- Act ---
	intoWorkDir := testutil.NewJob(t, be, dir, "base")
	errWorkDir := testutil.RunTask(ctx, intoWorkDir, def, &config.Task{Body: testutil.Body(t, "vendor.tar")})
	explicit := testutil.NewJob(t, be, dir, "base")
	errExplicit := testutil.RunTask(ctx, explicit, def, &config.Task{Body: testutil.Body(t, "src: vendor.tar\ndest: /opt\n")})

	// --- Assert ---
	require.NoError(t, errWorkDir)
	require.NoError(t, errExplicit)
	data, ok := be.ImageFile(intoWorkDir.SrcImage, "/build/lib/a.txt")
	require.True(t, ok)
	assert.Equal(t, "a", string(data))
	_, ok = be.ImageFile(explicit.SrcImage, "/opt/lib/a.txt")
	assert.True(t, ok)
}

func TestOnRunImportTar_ChangedArchiveInvalidatesCache(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	archive := filepath.Join(dir, "vendor.tar")
	be := inmemorybackend.New(nil)
	def := testutil.Definition(t, &Module{}, "import-tar")
	ctx := context.Background()

	writeTar(t, archive, map[string]string{"a.txt": "one"})
	first := testutil.NewJob(t, be, dir, "base")
	require.NoError(t, testutil.RunTask(ctx, first, def, &config.Task{Body: testutil.Body(t, "vendor.tar")}))
	again := testutil.NewJob(t, be, dir, "base")
	require.NoError(t, testutil.RunTask(ctx, again, def, &config.Task{Body: testutil.Body(t, "vendor.tar")}))
	writeTar(t, archive, map[string]string{"a.txt": "two"})
	changed := testutil.NewJob(t, be, dir, "base")
	require.NoError(t, testutil.RunTask(ctx, changed, def, &config.Task{Body: testutil.Body(t, "vendor.tar")}))

	assert.Equal(t, 2, be.Commits())
	assert.Equal(t, first.SrcImage, again.SrcImage)
	assert.NotEqual(t, first.SrcImage, changed.SrcImage)
}
