package export_file

import (
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

func newJobWithFiles(t *testing.T) (*inmemorybackend.Backend, string) {
	t.Helper()
	be := inmemorybackend.New(nil)
	be.AddImage("base", backend.Image{}, map[string]string{
		"/out/app":        "elf",
		"/out/lib/x.so":   "so",
		"/etc/os-release": "ID=alpine",
	})
	return be, t.TempDir()
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestOnRunExportFile(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name  string
		body  string
		check func(t *testing.T, dir string)
	}{
		{
			name: "single file",
			body: "src: /out/app\ndest: bin/app\n",
			check: func(t *testing.T, dir string) {
				assert.Equal(t, "elf", readFile(t, filepath.Join(dir, "bin/app")))
			},
		},
		{
			name: "trailing slash exports into directory",
			body: "src: /out/app\ndest: bin/\n",
			check: func(t *testing.T, dir string) {
				assert.Equal(t, "elf", readFile(t, filepath.Join(dir, "bin/app")))
			},
		},
		{
			name: "multiple sources",
			body: "paths: [/out/app, /etc/os-release]\ndest: collected\n",
			check: func(t *testing.T, dir string) {
				assert.Equal(t, "elf", readFile(t, filepath.Join(dir, "collected/app")))
				assert.Equal(t, "ID=alpine", readFile(t, filepath.Join(dir, "collected/os-release")))
			},
		},
		{
			name: "directory",
			body: "src: /out/lib\ndest: libs\n",
			check: func(t *testing.T, dir string) {
				assert.Equal(t, "so", readFile(t, filepath.Join(dir, "libs/lib/x.so")))
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			be, dir := newJobWithFiles(t)
			j := testutil.NewJob(t, be, dir, "base")
			def := testutil.Definition(t, &Module{}, "export-file")

			err := testutil.RunTask(context.Background(), j, def, &config.Task{Body: testutil.Body(t, tc.body)})

			require.NoError(t, err)
			tc.check(t, dir)
			assert.Equal(t, 0, be.LiveContainers())
			_, err = os.Stat(filepath.Join(dir, "bin.tmp"))
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestOnRunExportFile_UpToDate(t *testing.T) {
	t.Parallel()
	be, dir := newJobWithFiles(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app"), []byte("old"), 0o644))
	j := testutil.NewJob(t, be, dir, "base")
	def := testutil.Definition(t, &Module{}, "export-file")

	err := testutil.RunTask(context.Background(), j, def, &config.Task{Body: testutil.Body(t, "src: /out/app\ndest: app\n")})

	require.NoError(t, err)
	assert.Equal(t, "old", readFile(t, filepath.Join(dir, "app")))
	assert.Empty(t, be.Creates())
}
