// Package display connects running build containers to the terminal and
// optionally captures their standard output.
package display

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/moby/term"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/ctxlog"
)

// Display holds the terminal streams container output is sent to.
type Display struct {
	Interactive bool
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer

	term terminal
}

// terminal is the part of the host terminal a TTY attach needs.
type terminal interface {
	Info(in any) (fd uintptr, ok bool)
	MakeRaw(fd uintptr) (restore func() error, err error)
	Size(fd uintptr) (height, width uint, err error)
}

type mobyTerminal struct{}

func (mobyTerminal) Info(in any) (uintptr, bool) {
	return term.GetFdInfo(in)
}

func (mobyTerminal) MakeRaw(fd uintptr) (func() error, error) {
	state, err := term.SetRawTerminal(fd)
	if err != nil {
		return nil, err
	}
	return func() error { return term.RestoreTerminal(fd, state) }, nil
}

func (mobyTerminal) Size(fd uintptr) (uint, uint, error) {
	ws, err := term.GetWinsize(fd)
	if err != nil {
		return 0, 0, err
	}
	return uint(ws.Height), uint(ws.Width), nil
}

// New creates a Display. nil streams default to the process streams.
func New(interactive bool, stdin io.Reader, stdout, stderr io.Writer) *Display {
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Display{Interactive: interactive, Stdin: stdin, Stdout: stdout, Stderr: stderr, term: mobyTerminal{}}
}

// IsTerminal reports whether in is attached to a terminal.
func IsTerminal(in any) bool {
	_, ok := mobyTerminal{}.Info(in)
	return ok
}

// WatchResult is what Watch observed. Stdout is nil unless capture was
// requested.
type WatchResult struct {
	Stdout []byte
}

// Watch starts container id and streams its output until it exits. tty
// must match the TTY setting the container was created with. With capture
// set, standard output is also collected into the result.
func (d *Display) Watch(ctx context.Context, be backend.Backend, id string, tty, capture bool) (*WatchResult, error) {
	streams := backend.Streams{
		Stdout: d.Stdout,
		Stderr: d.Stderr,
		TTY:    tty,
	}
	if tty {
		streams.Stdin = d.Stdin
		restore, err := d.rawTerminal(&streams)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := restore(); err != nil {
				ctxlog.FromContext(ctx).Warn("Failed to restore terminal.", "error", err)
			}
		}()
	}

	var captured *bytes.Buffer
	if capture {
		captured = &bytes.Buffer{}
		streams.Stdout = io.MultiWriter(d.Stdout, captured)
	}

	if err := be.AttachAndStart(ctx, id, streams); err != nil {
		return nil, err
	}

	res := &WatchResult{}
	if captured != nil {
		res.Stdout = captured.Bytes()
	}
	return res, nil
}

// rawTerminal switches a terminal stdin to raw mode so keystrokes, Ctrl-C
// included, go to the container, and records the terminal size in streams.
// A non-terminal stdin is left alone.
func (d *Display) rawTerminal(streams *backend.Streams) (func() error, error) {
	noop := func() error { return nil }
	if d.term == nil {
		return noop, nil
	}
	fd, ok := d.term.Info(d.Stdin)
	if !ok {
		return noop, nil
	}
	sizeFd := fd
	if outFd, ok := d.term.Info(d.Stdout); ok {
		sizeFd = outFd
	}
	if h, w, err := d.term.Size(sizeFd); err == nil {
		streams.Height, streams.Width = h, w
	}
	restore, err := d.term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set terminal raw mode: %w", err)
	}
	return restore, nil
}
