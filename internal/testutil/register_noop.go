package testutil

import (
	"context"

	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
)

// NoOpModule registers a "noop" task that accepts any parameters and does
// nothing. It is useful for documents that only exercise loading and
// variable resolution.
type NoOpModule struct{}

func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "noop",
		Doc:    "Do nothing.",
		Schema: schema.New(schema.Field{Name: "args", Extras: true}),
		Run: func(context.Context, *job.Job, schema.Values) error {
			return nil
		},
	})
}
