package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/bert/internal/app"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/backend/docker"
	"github.com/vk/bert/internal/cli"
)

// main is the entrypoint for the bert application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:], func() (backend.Backend, io.Closer, error) {
		be, err := docker.New()
		return be, be, err
	})
	stop()
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// backendFactory connects to the execution backend once arguments are
// known to be valid.
type backendFactory func() (backend.Backend, io.Closer, error)

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string, newBackend backendFactory) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on registry programmer errors; recover them into a
	// clean error for the user.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	be, closer, err := newBackend()
	if err != nil {
		return fmt.Errorf("failed to connect to the container engine: %w", err)
	}
	defer closer.Close()

	bertApp := app.NewApp(outW, appConfig, be)
	return bertApp.Run(ctx)
}
