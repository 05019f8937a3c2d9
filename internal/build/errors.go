package build

import (
	"errors"
	"fmt"

	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/template"
	"github.com/vk/bert/internal/yamldoc"
)

// stageError prefixes err with the config chain and stage it happened in.
func stageError(chain config.Chain, stage *config.Stage, err error) error {
	if name := chain.Name(); name != "" {
		return fmt.Errorf("config %q, stage %q: %w", name, stage.Name, err)
	}
	return fmt.Errorf("stage %q: %w", stage.Name, err)
}

// locate attaches pos to a template error that has no location yet.
func locate(err error, pos yamldoc.Pos) error {
	var tplErr *template.Error
	if errors.As(err, &tplErr) && tplErr.Location == "" && !pos.IsZero() {
		tplErr.Location = pos.String()
	}
	return err
}
