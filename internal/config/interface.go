package config

import "context"

// Loader is the interface for reading a build document into the model.
type Loader interface {
	Load(ctx context.Context, path string) (*Root, error)
}

// TaskLookup reports whether a task action is known. It is used to tell
// the action key of a task item apart from misspelled keys.
type TaskLookup interface {
	Has(action string) bool
}

// Scope is a node contributing a layer of variables. PutVars lets the
// parent contribute first and then overlays its own variables, so inner
// scopes win.
type Scope interface {
	Parent() Scope
	PutVars(into map[string]any)
}
