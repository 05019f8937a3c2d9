// Package schema validates the body of one task invocation against a static
// table of fields.
//
// A task body is either a mapping or a bare value. Mapping keys are rendered
// before lookup, values are rendered and then coerced by the field's Coerce
// function. A bare value goes to the field marked Bare. Keys not matched by
// any field are routed to the Extras field when one exists and rejected
// otherwise.
package schema
