package yamldoc

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const mergeTag = "!!merge"

// ParseFile reads and parses the YAML document at path.
func ParseFile(path string) (*Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return Parse(path, data)
}

// Parse parses a single YAML document. name is recorded in every position.
// An empty document yields a Null value.
func Parse(name string, data []byte) (*Value, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ConfigError{Pos: Pos{File: name}, Msg: err.Error()}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return &Value{Pos: Pos{File: name, Line: 1, Column: 1}, Kind: Null}, nil
	}
	c := converter{file: name}
	return c.convert(root.Content[0])
}

type converter struct {
	file string
}

func (c *converter) pos(n *yaml.Node) Pos {
	return Pos{File: c.file, Line: n.Line, Column: n.Column}
}

func (c *converter) convert(n *yaml.Node) (*Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &Value{Pos: c.pos(n), Kind: Null}, nil
		}
		return c.convert(n.Content[0])
	case yaml.AliasNode:
		return c.convert(n.Alias)
	case yaml.ScalarNode:
		return c.scalar(n)
	case yaml.SequenceNode:
		v := &Value{Pos: c.pos(n), Kind: Sequence, Items: make([]*Value, 0, len(n.Content))}
		for _, item := range n.Content {
			iv, err := c.convert(item)
			if err != nil {
				return nil, err
			}
			v.Items = append(v.Items, iv)
		}
		return v, nil
	case yaml.MappingNode:
		return c.mapping(n)
	}
	return nil, &ConfigError{Pos: c.pos(n), Msg: fmt.Sprintf("unsupported YAML node kind %d", n.Kind)}
}

func (c *converter) scalar(n *yaml.Node) (*Value, error) {
	if n.ShortTag() == "!!null" {
		return &Value{Pos: c.pos(n), Kind: Null}, nil
	}
	var out any
	if err := n.Decode(&out); err != nil {
		return nil, &ConfigError{Pos: c.pos(n), Msg: err.Error()}
	}
	if _, ok := out.(time.Time); ok {
		out = n.Value
	}
	return &Value{Pos: c.pos(n), Kind: Scalar, Scalar: out}, nil
}

func (c *converter) mapping(n *yaml.Node) (*Value, error) {
	v := &Value{Pos: c.pos(n), Kind: Mapping}
	seen := make(map[string]bool)

	// Explicit keys win over merged ones regardless of order.
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if k.ShortTag() == mergeTag {
			continue
		}
		kv, err := c.convert(k)
		if err != nil {
			return nil, err
		}
		if kv.Kind != Scalar {
			return nil, &ConfigError{Pos: c.pos(k), Msg: "mapping keys must be scalars"}
		}
		name := scalarString(kv.Scalar)
		if seen[name] {
			return nil, &ConfigError{Pos: c.pos(k), Msg: fmt.Sprintf("duplicate key %q", name)}
		}
		seen[name] = true
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, val := n.Content[i], n.Content[i+1]
		if k.ShortTag() == mergeTag {
			if err := c.merge(v, val, seen); err != nil {
				return nil, err
			}
			continue
		}
		kv, err := c.convert(k)
		if err != nil {
			return nil, err
		}
		vv, err := c.convert(val)
		if err != nil {
			return nil, err
		}
		v.Keys = append(v.Keys, kv)
		v.Vals = append(v.Vals, vv)
	}
	return v, nil
}

func (c *converter) merge(into *Value, src *yaml.Node, explicit map[string]bool) error {
	if src.Kind == yaml.AliasNode {
		src = src.Alias
	}
	var sources []*yaml.Node
	switch src.Kind {
	case yaml.MappingNode:
		sources = []*yaml.Node{src}
	case yaml.SequenceNode:
		sources = src.Content
	default:
		return &ConfigError{Pos: c.pos(src), Msg: "merge key requires a mapping or a list of mappings"}
	}

	for _, s := range sources {
		mv, err := c.convert(s)
		if err != nil {
			return err
		}
		if mv.Kind != Mapping {
			return &ConfigError{Pos: c.pos(s), Msg: "merge key requires a mapping or a list of mappings"}
		}
		for i := range mv.Keys {
			name := mv.KeyString(i)
			if explicit[name] || into.Get(name) != nil {
				continue
			}
			into.Keys = append(into.Keys, mv.Keys[i])
			into.Vals = append(into.Vals, mv.Vals[i])
		}
	}
	return nil
}
