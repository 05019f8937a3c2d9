package yamldoc

import (
	"fmt"
	"sort"
)

// Kind identifies the shape of a Value.
type Kind int

const (
	Null Kind = iota
	Scalar
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case Sequence:
		return "list"
	case Mapping:
		return "mapping"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Pos is a 1-based location inside a document.
type Pos struct {
	File   string
	Line   int
	Column int
}

// IsZero reports whether the position carries no information.
func (p Pos) IsZero() bool {
	return p.File == "" && p.Line == 0
}

func (p Pos) String() string {
	if p.Line == 0 {
		return p.File
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Value is one node of a parsed document. Mappings keep their keys in
// document order; Keys[i] maps to Vals[i].
type Value struct {
	Pos    Pos
	Kind   Kind
	Scalar any
	Items  []*Value
	Keys   []*Value
	Vals   []*Value
}

// Len returns the number of items or entries of a collection.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.Kind {
	case Sequence:
		return len(v.Items)
	case Mapping:
		return len(v.Keys)
	}
	return 0
}

// IsNull reports whether v is absent or an explicit null.
func (v *Value) IsNull() bool {
	return v == nil || v.Kind == Null
}

// KeyString returns the i-th mapping key as a string.
func (v *Value) KeyString(i int) string {
	return scalarString(v.Keys[i].Scalar)
}

// Get returns the value stored under key, or nil.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != Mapping {
		return nil
	}
	for i := range v.Keys {
		if v.KeyString(i) == key {
			return v.Vals[i]
		}
	}
	return nil
}

// Str returns the scalar as a string when it is one.
func (v *Value) Str() (string, bool) {
	if v == nil || v.Kind != Scalar {
		return "", false
	}
	s, ok := v.Scalar.(string)
	return s, ok
}

// Plain converts the value into plain Go data: nil, scalars, []any and
// map[string]any.
func (v *Value) Plain() any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case Scalar:
		return v.Scalar
	case Sequence:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = item.Plain()
		}
		return out
	case Mapping:
		out := make(map[string]any, len(v.Keys))
		for i := range v.Keys {
			out[v.KeyString(i)] = v.Vals[i].Plain()
		}
		return out
	}
	return nil
}

// FromPlain builds a position-less Value from plain Go data. Map keys are
// sorted so the result is deterministic.
func FromPlain(data any) *Value {
	switch d := data.(type) {
	case nil:
		return &Value{Kind: Null}
	case *Value:
		return d
	case []any:
		v := &Value{Kind: Sequence}
		for _, item := range d {
			v.Items = append(v.Items, FromPlain(item))
		}
		return v
	case []string:
		v := &Value{Kind: Sequence}
		for _, item := range d {
			v.Items = append(v.Items, FromPlain(item))
		}
		return v
	case map[string]any:
		v := &Value{Kind: Mapping}
		for _, k := range sortedKeys(d) {
			v.Keys = append(v.Keys, &Value{Kind: Scalar, Scalar: k})
			v.Vals = append(v.Vals, FromPlain(d[k]))
		}
		return v
	case map[string]string:
		m := make(map[string]any, len(d))
		for k, s := range d {
			m[k] = s
		}
		return FromPlain(m)
	default:
		return &Value{Kind: Scalar, Scalar: d}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarString(s any) string {
	switch t := s.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
