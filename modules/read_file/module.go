package read_file

import (
	"context"
	"fmt"

	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
	"github.com/vk/bert/internal/tarutil"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "path", Required: true, Coerce: schema.AsString, Help: "Path of the file inside the image"},
	schema.Field{Name: "var", Required: true, Coerce: schema.AsString, Help: "Variable receiving the contents"},
	schema.Field{Name: "encoding", Coerce: schema.AsString, Default: "utf-8", Help: "Text encoding, or raw for bytes"},
)

// OnRunReadFile is the handler for the 'read-file' task. It only inspects
// the image; nothing is committed.
func OnRunReadFile(ctx context.Context, j *job.Job, params schema.Values) error {
	p := params.String("path")
	c, err := j.Create(ctx, map[string]any{"path": p}, job.CreateOptions{ReadOnly: true})
	if err != nil {
		return err
	}

	rc, _, err := j.Backend().GetArchive(ctx, c.Container, p)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, _, err := tarutil.ReadFirstFile(rc)
	if err != nil {
		return fmt.Errorf("read-file %s: %w", p, err)
	}
	v, err := job.DecodeCapture(data, params.String("encoding"))
	if err != nil {
		return err
	}
	j.SetVar(params.String("var"), v)
	return j.Cancel(ctx)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "read-file",
		Doc:    "Read a file from the image into a variable.",
		Schema: Schema,
		Run:    OnRunReadFile,
	})
}
