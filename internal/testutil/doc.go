// Package testutil provides shared helpers for tests: log capture, a build
// harness over the in-memory backend, and a job fixture for exercising
// single tasks.
package testutil
