package read_file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/inmemorybackend"
	"github.com/vk/bert/internal/testutil"
)

func TestOnRunReadFile(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	be := inmemorybackend.New(nil)
	src := be.AddImage("base", backend.Image{}, map[string]string{"/etc/os-release": "ID=alpine\n"})
	j := testutil.NewJob(t, be, t.TempDir(), "base")
	def := testutil.Definition(t, &Module{}, "read-file")

	// --- Act ---
	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "path: /etc/os-release\nvar: os_release\n"),
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "ID=alpine", j.Vars()["os_release"])
	assert.Equal(t, src, j.SrcImage, "reading commits nothing")
	assert.Equal(t, 0, be.Commits())
	assert.Equal(t, 0, be.LiveContainers())
}

func TestOnRunReadFile_Raw(t *testing.T) {
	t.Parallel()
	be := inmemorybackend.New(nil)
	be.AddImage("base", backend.Image{}, map[string]string{"/data.bin": "\x00\x01"})
	j := testutil.NewJob(t, be, t.TempDir(), "base")
	def := testutil.Definition(t, &Module{}, "read-file")

	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "path: /data.bin\nvar: blob\nencoding: raw\n"),
	})

	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1}, j.Vars()["blob"])
}

func TestOnRunReadFile_Missing(t *testing.T) {
	t.Parallel()
	be := inmemorybackend.New(nil)
	j := testutil.NewJob(t, be, t.TempDir(), "base")
	def := testutil.Definition(t, &Module{}, "read-file")

	err := testutil.RunTask(context.Background(), j, def, &config.Task{
		Body: testutil.Body(t, "path: /nope\nvar: x\n"),
	})

	assert.Error(t, err)
	require.NoError(t, j.Close(context.Background()))
	assert.Equal(t, 0, be.LiveContainers())
}
