package set_image_attr

import (
	"context"
	"path"

	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
	"github.com/vk/bert/internal/yamldoc"
	"github.com/vk/bert/modules/run"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "env", Coerce: schema.AsStringMap, Help: "Environment variables"},
	schema.Field{Name: "work-dir", Coerce: schema.AsString, Help: "Default working directory"},
	schema.Field{Name: "cmd", Help: "Default command, as a shell string or an argument list"},
)

// OnRunSetImageAttr is the handler for the 'set-image-attr' task.
func OnRunSetImageAttr(ctx context.Context, j *job.Job, params schema.Values) error {
	key := map[string]any{}
	opts := job.CommitOptions{}
	if params.Has("env") {
		opts.Env = params.StringMap("env")
		key["env"] = opts.Env
	}
	if params.Has("work-dir") {
		opts.WorkDir = path.Clean("/" + params.String("work-dir"))
		key["work-dir"] = opts.WorkDir
	}
	if params.Has("cmd") {
		cmd, err := run.Command(params.Raw("cmd"))
		if err != nil {
			return err
		}
		opts.Cmd = cmd
		key["cmd"] = cmd
	}
	if len(key) == 0 {
		return &yamldoc.ConfigError{Pos: j.Current().Task.Pos, Msg: "set-image-attr needs at least one of env, work-dir, cmd"}
	}

	c, err := j.Create(ctx, key, job.CreateOptions{})
	if err != nil {
		return err
	}
	if c.CacheHit != nil {
		if opts.WorkDir != "" {
			j.WorkDir = opts.WorkDir
		}
		return nil
	}
	_, err = j.Commit(ctx, opts)
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "set-image-attr",
		Doc:    "Set image attributes such as environment, working directory and command.",
		Schema: Schema,
		Run:    OnRunSetImageAttr,
	})
}
