// Package inmemorybackend provides an ephemeral, in-process implementation
// of backend.Backend.
//
// # Purpose
//
// Build jobs, the stage driver and task modules are tested against this
// backend instead of a Docker daemon. It keeps images, tags and containers
// in memory and models the parts of a container engine the build relies on:
//
//   - **Labels:** container labels and LABEL changes end up on committed images
//   - **Filesystems:** every image and container owns a flat file tree that
//     is read and written through tar archives, like the Docker copy API
//   - **Commits:** LABEL, ENV, CMD and WORKDIR changes are applied
//   - **Commands:** a pluggable RunFunc decides exit codes and output
//
// Unknown image references are created empty on Pull, so tests can build
// from any base image name.
package inmemorybackend
