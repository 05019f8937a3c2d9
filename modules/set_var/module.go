package set_var

import (
	"context"
	"log/slog"

	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "vars", Extras: true, Help: "Variables to set, as a key/value mapping"},
)

// OnRunSetVar is the handler for the 'set-var' task. It touches no
// container.
func OnRunSetVar(ctx context.Context, j *job.Job, params schema.Values) error {
	logger := ctxlog.FromContext(ctx)
	for k, v := range params.Map("vars") {
		logger.Debug("Setting variable.", "name", k, slog.Any("value", v))
		j.SetVar(k, v)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "set-var",
		Doc:    "Set variables for later tasks and stages.",
		Schema: Schema,
		Run:    OnRunSetVar,
	})
}
