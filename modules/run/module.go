package run

import (
	"context"
	"fmt"

	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "cmd", Bare: true, Required: true, Help: "Shell command string, or an argument list run without a shell"},
)

// Command turns the task value into a container command. A string runs
// through /bin/sh -c; a list is used as is.
func Command(v any) ([]string, error) {
	switch cmd := v.(type) {
	case string:
		return []string{"/bin/sh", "-c", cmd}, nil
	default:
		list, err := schema.AsStringList(nil, cmd)
		if err != nil {
			return nil, fmt.Errorf("cmd: %w", err)
		}
		return list.([]string), nil
	}
}

// OnRunCommand is the handler for the 'run' task.
func OnRunCommand(ctx context.Context, j *job.Job, params schema.Values) error {
	cmd, err := Command(params.Raw("cmd"))
	if err != nil {
		return err
	}
	c, err := j.Create(ctx, map[string]any{"value": params.Raw("cmd")}, job.CreateOptions{Command: cmd})
	if err != nil || c.CacheHit != nil {
		return err
	}
	_, err = j.Commit(ctx, job.CommitOptions{})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "run",
		Doc:    "Run a command in the image.",
		Schema: Schema,
		Run:    OnRunCommand,
	})
}
