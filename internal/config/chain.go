package config

import (
	"maps"
	"strings"
)

// Chain is one root-to-leaf path through the config tree. An empty chain
// builds straight from the root.
type Chain struct {
	Root    *Root
	Configs []*Config
}

// Expand returns one chain per leaf config in depth-first document order,
// or a single empty chain when the root declares no configs.
func Expand(root *Root) []Chain {
	if len(root.Configs) == 0 {
		return []Chain{{Root: root}}
	}
	var chains []Chain
	var walk func(path []*Config, c *Config)
	walk = func(path []*Config, c *Config) {
		path = append(path, c)
		if len(c.Children) == 0 {
			chains = append(chains, Chain{Root: root, Configs: append([]*Config(nil), path...)})
			return
		}
		for _, child := range c.Children {
			walk(path, child)
		}
	}
	for _, c := range root.Configs {
		walk(nil, c)
	}
	return chains
}

// Name is the dot-joined config names of the chain. It is display only.
func (c Chain) Name() string {
	names := make([]string, len(c.Configs))
	for i, cfg := range c.Configs {
		names[i] = cfg.Name
	}
	return strings.Join(names, ".")
}

// Leaf returns the innermost config, or nil for an empty chain.
func (c Chain) Leaf() *Config {
	if len(c.Configs) == 0 {
		return nil
	}
	return c.Configs[len(c.Configs)-1]
}

// Images returns the source images of the innermost config declaring any,
// falling back to the root's.
func (c Chain) Images() []string {
	for i := len(c.Configs) - 1; i >= 0; i-- {
		if len(c.Configs[i].Images) > 0 {
			return c.Configs[i].Images
		}
	}
	if c.Root != nil {
		return c.Root.Images
	}
	return nil
}

// PutVars contributes the root and every config of the chain, outer to
// inner.
func (c Chain) PutVars(into map[string]any) {
	if leaf := c.Leaf(); leaf != nil {
		leaf.PutVars(into)
		return
	}
	if c.Root != nil {
		c.Root.PutVars(into)
	}
}

// ResolveVars builds the variable overlay for a job, in increasing
// precedence: environment, root, configs outer to inner, stage, saved
// variables.
func ResolveVars(environ map[string]string, chain Chain, stage *Stage, saved map[string]any) map[string]any {
	vars := make(map[string]any)
	env := make(map[string]any, len(environ))
	for k, v := range environ {
		env[k] = v
	}
	vars["env"] = env
	chain.PutVars(vars)
	if stage != nil {
		stage.PutVars(vars)
	}
	maps.Copy(vars, saved)
	return vars
}
