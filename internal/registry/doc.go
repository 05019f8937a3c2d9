// Package registry provides the central "glue" for the task system.
//
// The Registry maps the action names used in build documents (e.g. "run",
// "add") to the compiled Go task definitions that implement them. Each
// definition carries an explicit parameter schema, so documents are
// validated against a static field table rather than anything discovered
// at runtime.
//
// During application startup, every task module registers itself and the
// registry is then validated to catch broken definitions before a build
// starts.
package registry
