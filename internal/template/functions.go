package template

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions returns the function table available inside templates.
func functions() map[string]function.Function {
	return map[string]function.Function{
		"upper":         stdlib.UpperFunc,
		"lower":         stdlib.LowerFunc,
		"title":         stdlib.TitleFunc,
		"trimspace":     stdlib.TrimSpaceFunc,
		"join":          stdlib.JoinFunc,
		"split":         stdlib.SplitFunc,
		"replace":       stdlib.ReplaceFunc,
		"regex":         stdlib.RegexFunc,
		"regexall":      stdlib.RegexAllFunc,
		"regex_replace": stdlib.RegexReplaceFunc,
		"regex_search":  regexSearchFunc,
		"substr":        stdlib.SubstrFunc,
		"format":        stdlib.FormatFunc,
		"length":        stdlib.LengthFunc,
		"concat":        stdlib.ConcatFunc,
		"keys":          stdlib.KeysFunc,
		"values":        stdlib.ValuesFunc,
		"merge":         stdlib.MergeFunc,
		"combine":       stdlib.MergeFunc,
		"lookup":        stdlib.LookupFunc,
		"contains":      stdlib.ContainsFunc,
		"coalesce":      stdlib.CoalesceFunc,
		"jsonencode":    stdlib.JSONEncodeFunc,
		"jsondecode":    stdlib.JSONDecodeFunc,
		"to_json":       stdlib.JSONEncodeFunc,
		"from_json":     stdlib.JSONDecodeFunc,
		"dirname":       dirnameFunc,
		"basename":      basenameFunc,
		"hash":          hashFunc,
	}
}

func stringFunc(param string, impl func(string) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: param, Type: cty.String}},
		Type:   function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.StringVal(impl(args[0].AsString())), nil
		},
	})
}

var dirnameFunc = stringFunc("path", path.Dir)

var basenameFunc = stringFunc("path", path.Base)

var hashFunc = stringFunc("value", func(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
})

var regexSearchFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "value", Type: cty.String},
		{Name: "pattern", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		re, err := regexp.Compile(args[1].AsString())
		if err != nil {
			return cty.NilVal, function.NewArgError(1, err)
		}
		return cty.BoolVal(re.MatchString(args[0].AsString())), nil
	},
})
