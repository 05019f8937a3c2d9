// Package config defines the build document model: the root, its tree of
// configs, the ordered stages and their tasks. It also implements the scope
// chain used for variable resolution and the expansion of the config tree
// into the chains every stage is run against.
//
// Documents are read by a Loader. The default FileLoader reads YAML through
// the yamldoc package so every task keeps its source position.
package config
