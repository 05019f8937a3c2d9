package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// AsString accepts any scalar and formats it as a string.
func AsString(_ Env, v any) (any, error) {
	return toString(v)
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case []any, map[string]any:
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	var s string
	if err := mapstructure.WeakDecode(v, &s); err != nil {
		return "", fmt.Errorf("expected a string: %w", err)
	}
	return s, nil
}

// AsBool accepts booleans and their weak forms ("true", 1).
func AsBool(_ Env, v any) (any, error) {
	var b bool
	if err := mapstructure.WeakDecode(v, &b); err != nil {
		return nil, fmt.Errorf("expected a bool: %w", err)
	}
	return b, nil
}

// AsInt accepts integers and their weak forms ("42", 42.0).
func AsInt(_ Env, v any) (any, error) {
	var i int
	if err := mapstructure.WeakDecode(v, &i); err != nil {
		return nil, fmt.Errorf("expected an integer: %w", err)
	}
	return i, nil
}

// AsStringList accepts a list of scalars or a single scalar, which becomes a
// one-item list.
func AsStringList(_ Env, v any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss, nil
		}
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := toString(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// AsMap requires a mapping.
func AsMap(_ Env, v any) (any, error) {
	var m map[string]any
	if err := mapstructure.Decode(v, &m); err != nil || m == nil {
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
	return m, nil
}

// AsStringMap requires a mapping and formats every value as a string.
func AsStringMap(env Env, v any) (any, error) {
	mv, err := AsMap(env, v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for k, item := range mv.(map[string]any) {
		s, err := toString(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

// LocalPath resolves a path on the build host relative to the build root.
func LocalPath(env Env, v any) (any, error) {
	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	return env.ResolvePath(s), nil
}

// FileMode accepts an integer mode or a symbolic "u=rwx,g=rx,o=rx" notation.
func FileMode(_ Env, v any) (any, error) {
	m, err := ParseFileMode(v)
	if err != nil || m == nil {
		return nil, err
	}
	return *m, nil
}

// OneOf restricts a string field to a fixed set of values.
func OneOf(values ...string) CoerceFunc {
	return func(env Env, v any) (any, error) {
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(values, s) {
			return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(values, ", "))
		}
		return s, nil
	}
}

var subModeRe = regexp.MustCompile(`^(u|g|o)=([rwx]+)$`)

var octalRe = regexp.MustCompile(`^0?[0-7]{1,4}$|^0o[0-7]{1,4}$`)

// ParseFileMode parses a unix permission value. nil and "" mean unset.
func ParseFileMode(v any) (*uint32, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int:
		if t < 0 || t > 0o7777 {
			return nil, fmt.Errorf("invalid mode value %d", t)
		}
		m := uint32(t)
		return &m, nil
	case uint32:
		return &t, nil
	case float64:
		if t != float64(int(t)) {
			return nil, fmt.Errorf("invalid mode value %v", t)
		}
		return ParseFileMode(int(t))
	case string:
		if t == "" {
			return nil, nil
		}
		if octalRe.MatchString(t) {
			n, err := strconv.ParseUint(strings.TrimPrefix(t, "0o"), 8, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid mode value %s: %w", t, err)
			}
			m := uint32(n)
			return &m, nil
		}
		var rv uint32
		for _, sm := range strings.Split(t, ",") {
			match := subModeRe.FindStringSubmatch(sm)
			if match == nil {
				return nil, fmt.Errorf("invalid mode value %s in %s", sm, t)
			}
			shift := uint(strings.Index("ogu", match[1]) * 3)
			var bits uint32
			for _, b := range match[2] {
				bits |= 1 << uint(strings.IndexRune("xwr", b))
			}
			rv |= bits << shift
		}
		return &rv, nil
	}
	return nil, fmt.Errorf("invalid mode value of type %T", v)
}
