package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"maps"

	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/schema"
)

// Module is the interface that all task modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RunFunc executes one validated task invocation against the job.
type RunFunc func(ctx context.Context, j *job.Job, params schema.Values) error

// TaskDefinition is the compiled side of a task type.
type TaskDefinition struct {
	Name   string
	Doc    string
	Schema *schema.Schema
	Run    RunFunc
}

// Registry holds all the registered task definitions for a single
// application instance.
type Registry struct {
	tasks map[string]*TaskDefinition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{tasks: make(map[string]*TaskDefinition)}
}

// RegisterTask registers a task definition under its action name.
func (r *Registry) RegisterTask(def *TaskDefinition) {
	if _, exists := r.tasks[def.Name]; exists {
		panic(fmt.Sprintf("task with name '%s' already registered", def.Name))
	}
	slog.Debug("Registering task.", "name", def.Name)
	r.tasks[def.Name] = def
}

// Lookup returns the definition registered for action.
func (r *Registry) Lookup(action string) (*TaskDefinition, bool) {
	def, ok := r.tasks[action]
	return def, ok
}

// Has reports whether action names a registered task.
func (r *Registry) Has(action string) bool {
	_, ok := r.tasks[action]
	return ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.tasks))
}
