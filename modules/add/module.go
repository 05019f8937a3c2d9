package add

import (
	"archive/tar"
	"bytes"
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/bert/internal/fsutil"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
	"github.com/vk/bert/internal/tarutil"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "src", Aliases: []string{"path"}, Bare: true, Required: true, Coerce: schema.LocalPath, Help: "Path to local file or directory to add"},
	schema.Field{Name: "dest", Coerce: schema.AsString, Help: "Destination path; a trailing slash adds into that directory"},
	schema.Field{Name: "mode", Coerce: schema.FileMode, Help: "Permission bits applied to every added entry"},
	schema.Field{Name: "template", Coerce: schema.AsBool, Default: false, Help: "Render added files as templates"},
)

// Destination returns the archive path of src inside the image.
func Destination(src, dest, workDir string) string {
	base := filepath.Base(src)
	switch {
	case dest == "":
		return path.Join(workDir, base)
	case strings.HasSuffix(dest, "/"):
		return path.Join(dest, base)
	default:
		return dest
	}
}

// OnRunAdd is the handler for the 'add' task.
func OnRunAdd(ctx context.Context, j *job.Job, params schema.Values) error {
	src := params.String("src")
	arcname := Destination(src, params.String("dest"), j.WorkDir)

	opts := tarutil.AddOptions{}
	key := map[string]any{"dest": arcname}
	if mode, ok := params.FileMode("mode"); ok {
		opts.Mode = &mode
		key["mode"] = mode
	}
	if params.Bool("template") {
		opts.Transform = func(data []byte) ([]byte, error) {
			out, err := j.Render(string(data))
			return []byte(out), err
		}
		key["template"] = true
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tarutil.AddPath(tw, src, arcname, opts); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	key["tar_sha256"] = fsutil.HashBytes(buf.Bytes())

	c, err := j.Create(ctx, key, job.CreateOptions{})
	if err != nil || c.CacheHit != nil {
		return err
	}
	if err := j.Backend().PutArchive(ctx, c.Container, "/", &buf); err != nil {
		return err
	}
	_, err = j.Commit(ctx, job.CommitOptions{})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "add",
		Doc:    "Add a local file or directory to the image.",
		Schema: Schema,
		Run:    OnRunAdd,
	})
}
