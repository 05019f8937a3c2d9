package env

import (
	"context"

	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "vars", Extras: true, Coerce: schema.AsString, Help: "Environment variables to bake into the image"},
)

// OnRunEnv is the handler for the 'env' task.
func OnRunEnv(ctx context.Context, j *job.Job, params schema.Values) error {
	env := make(map[string]string)
	for k, v := range params.Map("vars") {
		env[k] = v.(string)
	}
	c, err := j.Create(ctx, map[string]any{"env": env}, job.CreateOptions{})
	if err != nil || c.CacheHit != nil {
		return err
	}
	_, err = j.Commit(ctx, job.CommitOptions{Env: env})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "env",
		Doc:    "Set environment variables in the image.",
		Schema: Schema,
		Run:    OnRunEnv,
	})
}
