// Package executil runs external host commands such as git.
package executil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/vk/bert/internal/ctxlog"
)

// Run executes the command in dir with stdout and stderr sent to the
// process stderr.
func Run(ctx context.Context, dir, name string, args ...string) error {
	_, err := runCore(ctx, dir, os.Stderr, name, args...)
	return err
}

// Output executes the command in dir and returns its trimmed stdout.
func Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	var out bytes.Buffer
	if _, err := runCore(ctx, dir, &out, name, args...); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

// Succeeds reports whether the command exits with status zero. Output is
// discarded.
func Succeeds(ctx context.Context, dir, name string, args ...string) bool {
	_, err := runCore(ctx, dir, io.Discard, name, args...)
	return err == nil
}

func runCore(ctx context.Context, dir string, stdout io.Writer, name string, args ...string) (int, error) {
	fullCmd := name + " " + shellQuoteArgs(args)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running command.", "cmd", fullCmd, "dir", dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = os.Stderr
	if stdout == io.Discard {
		cmd.Stderr = io.Discard
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), fmt.Errorf("command failed (exit=%d): %s: %w", exitErr.ExitCode(), fullCmd, err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return -1, fmt.Errorf("command canceled: %s", fullCmd)
		}
		return -1, fmt.Errorf("failed to run command: %s: %w", fullCmd, err)
	}
	return 0, nil
}

// shellQuoteArgs returns a printable, shell-safe representation of args.
func shellQuoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'`$\\*?[]{}()<>|&;") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
