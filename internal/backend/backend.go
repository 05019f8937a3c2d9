// Package backend defines the execution backend the build drives: the
// system that pulls images, runs containers and commits them into new
// images.
package backend

import (
	"context"
	"fmt"
	"io"
	"time"
)

// LabelBuildID is the image label under which a task fingerprint is
// stored. It marks the images managed by bert.
const LabelBuildID = "bert.build_id"

// Image describes an image known to the backend.
type Image struct {
	ID      string
	Labels  map[string]string
	WorkDir string
	Cmd     []string
	Env     []string
}

// Container is a handle to a created container.
type Container struct {
	ID    string
	Image string
}

// CreateOptions configures a new container.
type CreateOptions struct {
	Image       string
	Labels      map[string]string
	Command     []string
	WorkDir     string
	User        string
	Groups      []string
	Env         map[string]string
	Interactive bool
}

// Streams connects a running container to the terminal. TTY containers
// have a single combined output stream.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	TTY    bool

	// Height and Width size the container's TTY when both are set.
	Height uint
	Width  uint
}

// CommitOptions carries Dockerfile-style change instructions, e.g.
// "LABEL k=v", "ENV K V", "CMD [..]", "WORKDIR /x".
type CommitOptions struct {
	Changes []string
}

// PathStat describes a path read from a container.
type PathStat struct {
	Name       string
	Size       int64
	Mode       uint32
	Mtime      time.Time
	LinkTarget string
}

// Backend is the execution backend consumed by build jobs. Every method
// blocks until the backend answers or ctx is done.
type Backend interface {
	Pull(ctx context.Context, ref string) (*Image, error)
	GetImage(ctx context.Context, ref string) (*Image, error)
	ListImagesByLabel(ctx context.Context, key, value string) ([]*Image, error)
	CreateContainer(ctx context.Context, opts CreateOptions) (*Container, error)
	// AttachAndStart attaches streams, starts the container and returns once
	// its output is drained.
	AttachAndStart(ctx context.Context, id string, streams Streams) error
	Stop(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (int, error)
	Commit(ctx context.Context, id string, opts CommitOptions) (*Image, error)
	Tag(ctx context.Context, imageID, tag string) error
	RemoveContainer(ctx context.Context, id string) error
	RemoveImage(ctx context.Context, id string, noPrune bool) error
	PutArchive(ctx context.Context, id, path string, archive io.Reader) error
	GetArchive(ctx context.Context, id, path string) (io.ReadCloser, PathStat, error)
}

// Error is a failure talking to the backend. It is never retried since the
// side effects of a task on a container are not safely repeatable.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err and an *Error otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
