package import_tar

import (
	"context"
	"os"
	"path"

	"github.com/vk/bert/internal/fsutil"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "src", Aliases: []string{"path"}, Bare: true, Required: true, Coerce: schema.LocalPath, Help: "Local tar archive"},
	schema.Field{Name: "dest", Coerce: schema.AsString, Help: "Directory to extract into, defaults to the working directory"},
)

// OnRunImportTar is the handler for the 'import-tar' task.
func OnRunImportTar(ctx context.Context, j *job.Job, params schema.Values) error {
	src := params.String("src")
	dest := j.WorkDir
	if params.Has("dest") {
		dest = path.Clean("/" + params.String("dest"))
	}
	sum, err := fsutil.HashPath(src)
	if err != nil {
		return err
	}

	c, err := j.Create(ctx, map[string]any{"file_sha256": sum, "dest": dest}, job.CreateOptions{})
	if err != nil || c.CacheHit != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := j.Backend().PutArchive(ctx, c.Container, dest, f); err != nil {
		return err
	}
	_, err = j.Commit(ctx, job.CommitOptions{})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "import-tar",
		Doc:    "Extract a local tar archive into the image.",
		Schema: Schema,
		Run:    OnRunImportTar,
	})
}
