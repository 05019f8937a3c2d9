package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/bert/internal/ctxlog"
)

// ValidateRegistry checks that every registered task is complete and that
// its parameter table is well formed.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Names() {
		def := r.tasks[name]
		if def.Run == nil {
			errs = append(errs, fmt.Sprintf("task '%s': no run function", name))
		}
		if def.Schema == nil {
			errs = append(errs, fmt.Sprintf("task '%s': no parameter schema", name))
			continue
		}
		if err := def.Schema.Check(); err != nil {
			for _, line := range strings.Split(err.Error(), "\n") {
				errs = append(errs, fmt.Sprintf("task '%s': %s", name, line))
			}
		}
		if def.Doc == "" {
			logger.Warn("Task has no documentation.", "task", name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}
