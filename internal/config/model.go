package config

import (
	"fmt"
	"maps"
	"strings"

	"github.com/vk/bert/internal/yamldoc"
)

// Root is a parsed build document.
type Root struct {
	File    string
	Dir     string
	Images  []string
	Vars    map[string]any
	Configs []*Config
	Stages  []*Stage
}

func (r *Root) Parent() Scope { return nil }

// PutVars contributes root_dir and the document-level variables.
func (r *Root) PutVars(into map[string]any) {
	into["root_dir"] = r.Dir
	maps.Copy(into, r.Vars)
}

// Config is a named node of the config tree.
type Config struct {
	Pos      yamldoc.Pos
	Name     string
	Images   []string
	Vars     map[string]any
	Children []*Config

	parent *Config
	root   *Root
}

func (c *Config) Parent() Scope {
	if c.parent != nil {
		return c.parent
	}
	return c.root
}

// FullName is the dot-joined name of c and its ancestors.
func (c *Config) FullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.FullName() + "." + c.Name
}

// PutVars contributes the ancestors' variables, then the reserved config
// key, then the config's own variables.
func (c *Config) PutVars(into map[string]any) {
	if p := c.Parent(); p != nil {
		p.PutVars(into)
	}
	into["config"] = map[string]any{
		"name":       c.FullName(),
		"short_name": c.Name,
		"images":     imagesVar(c.Images),
	}
	maps.Copy(into, c.Vars)
}

// Stage is an ordered list of tasks plus stage-level settings. Stages are
// shared by all chains.
type Stage struct {
	Pos      yamldoc.Pos
	Name     string
	Images   []string
	BuildTag string
	WorkDir  string
	Vars     map[string]any
	Tasks    []*Task
}

func (s *Stage) Parent() Scope { return nil }

// PutVars binds the reserved stage key unless an enclosing scope already
// did, then overlays the stage variables.
func (s *Stage) PutVars(into map[string]any) {
	if _, ok := into["stage"]; !ok {
		into["stage"] = map[string]any{
			"name":   s.Name,
			"images": imagesVar(s.Images),
		}
	}
	maps.Copy(into, s.Vars)
}

// Task is one step of a stage.
type Task struct {
	Pos             yamldoc.Pos
	Name            string
	Action          string
	Body            *yamldoc.Value
	When            string
	Env             map[string]string
	Capture         string
	CaptureEncoding string
	User            string
	Groups          []string
}

// DisplayName is the label used in logs.
func (t *Task) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Body != nil && t.Body.Kind == yamldoc.Scalar {
		return fmt.Sprintf("%s: %v", t.Action, t.Body.Scalar)
	}
	if t.Body != nil && t.Body.Kind == yamldoc.Sequence {
		parts := make([]string, 0, t.Body.Len())
		for _, item := range t.Body.Items {
			parts = append(parts, fmt.Sprint(item.Plain()))
		}
		return fmt.Sprintf("%s: %s", t.Action, strings.Join(parts, " "))
	}
	return t.Action
}

func imagesVar(images []string) any {
	if images == nil {
		return nil
	}
	out := make([]any, len(images))
	for i, img := range images {
		out[i] = img
	}
	return out
}
