// Package app wires a parsed Config to the task registry, the container
// backend and the event reporters, then builds each document in turn.
package app
