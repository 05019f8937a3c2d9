package include_vars

import (
	"context"

	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "path", Bare: true, Required: true, Coerce: schema.LocalPath, Help: "YAML file holding a variable mapping"},
)

// OnRunIncludeVars is the handler for the 'include-vars' task.
func OnRunIncludeVars(ctx context.Context, j *job.Job, params schema.Values) error {
	vars, err := config.LoadVarsFile(params.String("path"))
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Including variables.", "path", params.String("path"), "count", len(vars))
	for k, v := range vars {
		j.SetVar(k, v)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "include-vars",
		Doc:    "Read variables from a YAML file.",
		Schema: Schema,
		Run:    OnRunIncludeVars,
	})
}
