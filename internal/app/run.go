package app

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/vk/bert/internal/build"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/display"
	"github.com/vk/bert/internal/events"
)

// Run loads every configured build document and builds them in order with
// a single builder, so source images are pulled once per run.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	roots := make([]*config.Root, 0, len(a.config.Paths))
	for _, p := range a.config.Paths {
		root, err := a.loader.Load(ctx, p)
		if err != nil {
			return err
		}
		a.logger.Debug("Build document loaded.", "file", root.File, "stages", len(root.Stages))
		roots = append(roots, root)
	}

	reporter, closeReporter, err := a.reporter(ctx)
	if err != nil {
		return err
	}
	defer closeReporter()

	builder := build.New(build.Options{
		Registry:       a.registry,
		Backend:        a.backend,
		Display:        display.New(a.interactive(), a.stdin, a.outW, nil),
		Reporter:       reporter,
		ShellOnFailure: a.config.ShellOnFailure,
		Environ:        a.environ(),
	})
	for _, root := range roots {
		res, err := builder.Run(ctx, root, maps.Clone(a.config.Vars))
		if err != nil {
			return err
		}
		for _, img := range res.Images {
			a.logger.Info("Built image", "config", img.Chain, "stage", img.Stage, "from", img.Source, "image", img.Image, "tag", img.Tag)
		}
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// reporter assembles the event sinks of the run. The returned func closes
// any connection opened for them.
func (a *App) reporter(ctx context.Context) (events.Reporter, func(), error) {
	if a.config.EventsURL == "" {
		return events.LogReporter{}, func() {}, nil
	}
	sio, err := events.DialSocketIO(ctx, a.config.EventsURL, events.SocketIOOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}
	closeFn := func() {
		if err := sio.Close(); err != nil {
			a.logger.Warn("Failed to close event stream.", "error", err)
		}
	}
	return events.Multi{events.LogReporter{}, sio}, closeFn, nil
}

// environ is the process environment overlaid with the configured extra
// variables.
func (a *App) environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	maps.Copy(env, a.config.Environ)
	return env
}

// interactive reports whether containers may get a TTY: the user did not
// opt out and stdin is a terminal.
func (a *App) interactive() bool {
	if a.config.NonInteractive || a.stdin != nil {
		return false
	}
	return display.IsTerminal(os.Stdin)
}
