// Package yamldoc reads YAML build documents into an ordered tree of values
// that remember where in the source file they came from. Positions are used
// only for error reporting.
package yamldoc
