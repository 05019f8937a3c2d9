package fail

import (
	"context"

	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "msg", Bare: true, Coerce: schema.AsString, Default: "build failed by fail task", Help: "Failure message"},
)

// OnRunFail is the handler for the 'fail' task.
func OnRunFail(_ context.Context, j *job.Job, params schema.Values) error {
	return &job.TaskFailedError{Msg: params.String("msg"), Job: j}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "fail",
		Doc:    "Force the build to fail.",
		Schema: Schema,
		Run:    OnRunFail,
	})
}
