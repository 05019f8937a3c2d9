package template

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// Error is a rendering or evaluation failure. Location is the document
// position of the templated value when the caller knows it.
type Error struct {
	Location string
	Template string
	Diags    hcl.Diagnostics
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("template %q: ", e.Template)
	if e.Diags.HasErrors() {
		msg += e.Diags.Error()
	} else if e.Err != nil {
		msg += e.Err.Error()
	}
	if e.Location != "" {
		return e.Location + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
