package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/schema"
)

func noopRun(context.Context, *job.Job, schema.Values) error { return nil }

func TestRegisterTask(t *testing.T) {
	t.Parallel()
	r := New()

	r.RegisterTask(&TaskDefinition{Name: "run", Schema: schema.New(), Run: noopRun})
	r.RegisterTask(&TaskDefinition{Name: "add", Schema: schema.New(), Run: noopRun})

	def, ok := r.Lookup("run")
	require.True(t, ok)
	assert.Equal(t, "run", def.Name)
	assert.True(t, r.Has("add"))
	assert.False(t, r.Has("patch"))
	assert.Equal(t, []string{"add", "run"}, r.Names())
}

func TestRegisterTask_DuplicatePanics(t *testing.T) {
	t.Parallel()
	r := New()
	r.RegisterTask(&TaskDefinition{Name: "run", Schema: schema.New(), Run: noopRun})

	assert.PanicsWithValue(t, "task with name 'run' already registered", func() {
		r.RegisterTask(&TaskDefinition{Name: "run", Schema: schema.New(), Run: noopRun})
	})
}

func TestValidateRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		r := New()
		r.RegisterTask(&TaskDefinition{
			Name: "run",
			Doc:  "Runs a command.",
			Schema: schema.New(
				schema.Field{Name: "cmd", Bare: true, Required: true},
			),
			Run: noopRun,
		})
		assert.NoError(t, r.ValidateRegistry(ctx))
	})

	t.Run("broken definitions", func(t *testing.T) {
		r := New()
		r.RegisterTask(&TaskDefinition{Name: "a", Schema: schema.New()})
		r.RegisterTask(&TaskDefinition{Name: "b", Run: noopRun})
		r.RegisterTask(&TaskDefinition{
			Name: "c",
			Schema: schema.New(
				schema.Field{Name: "src", Bare: true},
				schema.Field{Name: "dest", Aliases: []string{"src"}, Bare: true},
			),
			Run: noopRun,
		})

		err := r.ValidateRegistry(ctx)

		require.Error(t, err)
		msg := err.Error()
		assert.Contains(t, msg, "registry validation failed:")
		assert.Contains(t, msg, "task 'a': no run function")
		assert.Contains(t, msg, "task 'b': no parameter schema")
		assert.Contains(t, msg, `task 'c': key "src" declared twice`)
		assert.Contains(t, msg, "task 'c': more than one bare field")
	})
}
