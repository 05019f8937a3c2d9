package testutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/display"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/yamldoc"
)

// NewJob creates a job rooted at dir and sets it up on image.
func NewJob(t *testing.T, be backend.Backend, dir, image string) *job.Job {
	t.Helper()
	root := &config.Root{Dir: dir, File: dir + "/" + config.DefaultFileName}
	j := job.New(job.Options{
		Backend: be,
		Display: display.New(false, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{}),
		Root:    root,
		Chain:   config.Chain{Root: root},
		Stage:   &config.Stage{Name: "test"},
	})
	require.NoError(t, j.Setup(context.Background(), image))
	return j
}

// Body parses a YAML task body.
func Body(t *testing.T, doc string) *yamldoc.Value {
	t.Helper()
	v, err := yamldoc.Parse("task.yml", []byte(doc))
	require.NoError(t, err)
	return v
}

// RunTask validates body against def and runs it on j the way the build
// driver does.
func RunTask(ctx context.Context, j *job.Job, def *registry.TaskDefinition, task *config.Task) error {
	if task.Action == "" {
		task.Action = def.Name
	}
	return j.RunTask(ctx, task, func(ctx context.Context) error {
		params, err := def.Schema.Validate(j, task.Body)
		if err != nil {
			return err
		}
		return def.Run(ctx, j, params)
	})
}

// Definition registers m and returns the definition of action.
func Definition(t *testing.T, m registry.Module, action string) *registry.TaskDefinition {
	t.Helper()
	reg := NewRegistry(t, m)
	def, ok := reg.Lookup(action)
	require.True(t, ok, "task %q not registered", action)
	return def
}
