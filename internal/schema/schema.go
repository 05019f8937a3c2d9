package schema

import (
	"errors"
	"fmt"

	"github.com/vk/bert/internal/template"
	"github.com/vk/bert/internal/yamldoc"
)

// Env is the rendering context a schema is validated in. It is implemented
// by the build job.
type Env interface {
	Render(text string) (string, error)
	RenderValue(v any) (any, error)
	ResolvePath(path string) string
}

// CoerceFunc converts a rendered value into the type a task expects.
type CoerceFunc func(env Env, v any) (any, error)

// Field describes one accepted parameter.
type Field struct {
	Name     string
	Aliases  []string
	Bare     bool
	Extras   bool
	Required bool
	Default  any
	Coerce   CoerceFunc
	Help     string
}

// Schema is the parameter table of a task type.
type Schema struct {
	Fields []Field
}

// New builds a Schema from fields.
func New(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

// Check reports structural mistakes in the table itself: duplicate names or
// aliases and more than one bare or extras field.
func (s *Schema) Check() error {
	var errs []error
	keys := make(map[string]bool)
	bare, extras := 0, 0
	for _, f := range s.Fields {
		if f.Name == "" {
			errs = append(errs, errors.New("field with empty name"))
			continue
		}
		for _, k := range append([]string{f.Name}, f.Aliases...) {
			if keys[k] {
				errs = append(errs, fmt.Errorf("key %q declared twice", k))
			}
			keys[k] = true
		}
		if f.Bare {
			bare++
		}
		if f.Extras {
			extras++
		}
	}
	if bare > 1 {
		errs = append(errs, errors.New("more than one bare field"))
	}
	if extras > 1 {
		errs = append(errs, errors.New("more than one extras field"))
	}
	return errors.Join(errs...)
}

func (s *Schema) lookup(key string) *Field {
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == key {
			return f
		}
		for _, a := range f.Aliases {
			if a == key {
				return f
			}
		}
	}
	return nil
}

func (s *Schema) find(pred func(*Field) bool) *Field {
	for i := range s.Fields {
		if pred(&s.Fields[i]) {
			return &s.Fields[i]
		}
	}
	return nil
}

// Validate renders and coerces body into a Values set. A null body is
// treated as an empty mapping.
func (s *Schema) Validate(env Env, body *yamldoc.Value) (Values, error) {
	out := make(Values)
	extras := s.find(func(f *Field) bool { return f.Extras })
	bare := s.find(func(f *Field) bool { return f.Bare })

	switch {
	case body.IsNull():
	case body.Kind == yamldoc.Mapping:
		var extraVals map[string]any
		if extras != nil {
			extraVals = make(map[string]any)
		}
		for i, keyNode := range body.Keys {
			key, err := env.Render(body.KeyString(i))
			if err != nil {
				return nil, locate(err, keyNode)
			}
			valNode := body.Vals[i]

			f := s.lookup(key)
			if f == nil || f.Extras {
				if extras == nil {
					return nil, yamldoc.Errorf(keyNode, "unknown key %q", key)
				}
				if _, dup := extraVals[key]; dup {
					return nil, yamldoc.Errorf(keyNode, "duplicate key %q", key)
				}
				v, err := s.value(env, extras, valNode)
				if err != nil {
					return nil, err
				}
				extraVals[key] = v
				continue
			}
			if _, dup := out[f.Name]; dup {
				return nil, yamldoc.Errorf(keyNode, "duplicate value for %q", f.Name)
			}
			v, err := s.value(env, f, valNode)
			if err != nil {
				return nil, err
			}
			if v != nil {
				out[f.Name] = v
			}
		}
		if extras != nil {
			out[extras.Name] = extraVals
		}
	default:
		if bare == nil {
			return nil, yamldoc.Errorf(body, "task requires a mapping, got a %s", body.Kind)
		}
		v, err := s.value(env, bare, body)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[bare.Name] = v
		}
	}

	for _, f := range s.Fields {
		if _, ok := out[f.Name]; ok {
			continue
		}
		switch {
		case f.Extras:
			out[f.Name] = map[string]any{}
		case f.Required:
			return nil, yamldoc.Errorf(body, "missing required field %q", f.Name)
		case f.Default != nil:
			out[f.Name] = f.Default
		}
	}
	return out, nil
}

// value renders and coerces one document value for f. Null values and
// values that render to nil are reported as absent.
func (s *Schema) value(env Env, f *Field, node *yamldoc.Value) (any, error) {
	if node.IsNull() {
		return nil, nil
	}
	rendered, err := env.RenderValue(node.Plain())
	if err != nil {
		return nil, locate(err, node)
	}
	if rendered == nil || f.Coerce == nil {
		return rendered, nil
	}
	v, err := f.Coerce(env, rendered)
	if err != nil {
		return nil, yamldoc.Errorf(node, "%s: %v", f.Name, err)
	}
	return v, nil
}

// locate attaches the document position of node to template errors.
func locate(err error, node *yamldoc.Value) error {
	var tplErr *template.Error
	if errors.As(err, &tplErr) && tplErr.Location == "" && node != nil && !node.Pos.IsZero() {
		tplErr.Location = node.Pos.String()
	}
	return err
}
