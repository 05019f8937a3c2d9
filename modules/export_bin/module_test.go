package export_bin

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/inmemorybackend"
	"github.com/vk/bert/internal/testutil"
)

func TestHeader(t *testing.T) {
	t.Parallel()

	h := Header("/opt/tool", "it's installed")

	assert.True(t, strings.HasPrefix(h, "#!/bin/sh -e\n"))
	assert.Contains(t, h, "rm -rf '/opt/tool'\n")
	assert.Contains(t, h, `echo 'it'\''s installed'`)
	assert.Contains(t, h, "tar -xzf - -C '/opt'\n")
	assert.True(t, strings.HasSuffix(h, "\nexit\n"))
}

func TestOnRunExportBin(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	be := inmemorybackend.New(nil)
	be.AddImage("base", backend.Image{}, map[string]string{"/opt/tool/bin/tool": "elf"})
	dir := t.TempDir()
	j := testutil.NewJob(t, be, dir, "base")
	def := testutil.Definition(t, &Module{}, "export-bin")

	// --- Act ---
	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "install-path: /opt/tool\ndest: install.sh\nmsg: done\n"),
	})

	// --- Assert ---
	require.NoError(t, err)
	dest := filepath.Join(dir, "install.sh")
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o775), info.Mode().Perm())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	header := Header("/opt/tool", "done")
	require.True(t, bytes.HasPrefix(data, []byte(header)))

	gz, err := gzip.NewReader(bytes.NewReader(data[len(header):]))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.Contains(t, names, "tool/bin/tool")
	assert.Equal(t, 0, be.LiveContainers())
}
