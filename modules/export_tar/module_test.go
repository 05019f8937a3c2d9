package export_tar

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/inmemorybackend"
	"github.com/vk/bert/internal/testutil"
)

func TestCompression(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		dest, explicit, want string
	}{
		{dest: "out.tar", want: ""},
		{dest: "out.tar.gz", want: "gz"},
		{dest: "out.tgz", want: "gz"},
		{dest: "out.tar.zst", want: "zst"},
		{dest: "out.tar", explicit: "zstd", want: "zst"},
		{dest: "out.tar.gz", explicit: "none", want: ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Compression(tc.dest, tc.explicit), "%s/%s", tc.dest, tc.explicit)
	}
}

func tarNames(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	out := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
	}
}

func newImage(t *testing.T) (*inmemorybackend.Backend, string) {
	t.Helper()
	be := inmemorybackend.New(nil)
	be.AddImage("base", backend.Image{}, map[string]string{
		"/opt/app/bin/server": "elf",
		"/etc/app.conf":       "port=80",
	})
	return be, t.TempDir()
}

func TestOnRunExportTar_Gzip(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	be, dir := newImage(t)
	j := testutil.NewJob(t, be, dir, "base")
	def := testutil.Definition(t, &Module{}, "export-tar")

	// --- Act ---
	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "dest: dist/app.tar.gz\npaths: [/opt/app, /etc/app.conf]\n"),
	})

	// --- Assert ---
	require.NoError(t, err)
	f, err := os.Open(filepath.Join(dir, "dist/app.tar.gz"))
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	names := tarNames(t, gz)
	assert.Equal(t, "elf", names["opt/app/bin/server"])
	assert.Equal(t, "port=80", names["etc/app.conf"])
	assert.Equal(t, 0, be.LiveContainers())
	assert.Equal(t, 0, be.Commits())
}

func TestOnRunExportTar_Zstd(t *testing.T) {
	t.Parallel()
	be, dir := newImage(t)
	j := testutil.NewJob(t, be, dir, "base")
	def := testutil.Definition(t, &Module{}, "export-tar")

	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "dest: conf.tar.zst\npaths: /etc/app.conf\n"),
	})

	require.NoError(t, err)
	f, err := os.Open(filepath.Join(dir, "conf.tar.zst"))
	require.NoError(t, err)
	defer f.Close()
	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()
	assert.Equal(t, map[string]string{"etc/app.conf": "port=80"}, tarNames(t, zr))
}

func TestOnRunExportTar_UpToDate(t *testing.T) {
	t.Parallel()
	be, dir := newImage(t)
	existing := filepath.Join(dir, "app.tar")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))
	j := testutil.NewJob(t, be, dir, "base")
	def := testutil.Definition(t, &Module{}, "export-tar")

	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "dest: app.tar\npaths: [/opt/app]\n"),
	})

	require.NoError(t, err)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.Empty(t, be.Creates())
}
