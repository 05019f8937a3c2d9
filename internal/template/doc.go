// Package template renders document strings and evaluates task guard
// expressions using the HCL template language. Variables are plain Go values
// (strings, numbers, booleans, lists and maps) converted to cty on the way in
// and back to plain Go values on the way out.
//
//	"${config.name}-${upper(stage.name)}"
//	"%{ if debug }-g%{ endif }"
//
// Referencing an undefined variable is always an error.
package template
