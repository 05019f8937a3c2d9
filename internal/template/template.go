package template

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
)

const sourceName = "template"

// Renderer renders templates against a variable mapping. It is safe for
// concurrent use.
type Renderer struct {
	funcs map[string]function.Function
}

// New creates a Renderer with the standard function table.
func New() *Renderer {
	return &Renderer{funcs: functions()}
}

func (r *Renderer) evalContext(vars map[string]any) (*hcl.EvalContext, error) {
	variables := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		cv, err := toCty(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		variables[k] = cv
	}
	return &hcl.EvalContext{Variables: variables, Functions: r.funcs}, nil
}

func (r *Renderer) evalTemplate(text string, vars map[string]any) (cty.Value, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(text), sourceName, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return cty.NilVal, &Error{Template: text, Diags: diags}
	}
	ectx, err := r.evalContext(vars)
	if err != nil {
		return cty.NilVal, &Error{Template: text, Err: err}
	}
	val, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return cty.NilVal, &Error{Template: text, Diags: diags}
	}
	return val, nil
}

// Render renders text as a string template.
func (r *Renderer) Render(text string, vars map[string]any) (string, error) {
	if !strings.ContainsAny(text, "$%") {
		return text, nil
	}
	val, err := r.evalTemplate(text, vars)
	if err != nil {
		return "", err
	}
	if val.IsNull() {
		return "", nil
	}
	sv, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", &Error{Template: text, Err: err}
	}
	return sv.AsString(), nil
}

// RenderValue renders every string inside v, descending into lists and
// maps. Map keys are rendered too. A string made of a single interpolation
// keeps the native type of its expression, so "${config.images}" yields a
// list.
func (r *Renderer) RenderValue(v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		if !strings.ContainsAny(t, "$%") {
			return t, nil
		}
		val, err := r.evalTemplate(t, vars)
		if err != nil {
			return nil, err
		}
		out, err := fromCty(val)
		if err != nil {
			return nil, &Error{Template: t, Err: err}
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			rv, err := r.RenderValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			rk, err := r.Render(k, vars)
			if err != nil {
				return nil, err
			}
			rv, err := r.RenderValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[rk] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// Eval evaluates a guard expression and reports whether it is true. The
// expression may be bare HCL ("arch == \"amd64\"") or a template
// ("${arch == \"amd64\"}").
func (r *Renderer) Eval(text string, vars map[string]any) (bool, error) {
	var val cty.Value
	if strings.Contains(text, "${") {
		v, err := r.evalTemplate(strings.TrimSpace(text), vars)
		if err != nil {
			return false, err
		}
		val = v
	} else {
		expr, diags := hclsyntax.ParseExpression([]byte(text), sourceName, hcl.Pos{Line: 1, Column: 1})
		if diags.HasErrors() {
			return false, &Error{Template: text, Diags: diags}
		}
		ectx, err := r.evalContext(vars)
		if err != nil {
			return false, &Error{Template: text, Err: err}
		}
		v, diags := expr.Value(ectx)
		if diags.HasErrors() {
			return false, &Error{Template: text, Diags: diags}
		}
		val = v
	}
	if val.IsNull() {
		return false, nil
	}
	bv, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, &Error{Template: text, Err: fmt.Errorf("condition must be a bool: %w", err)}
	}
	return bv.True(), nil
}
