package testutil

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/build"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/display"
	"github.com/vk/bert/internal/events"
	"github.com/vk/bert/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// LogsEnabled reports whether tests should dump captured logs.
func LogsEnabled() bool {
	return os.Getenv("BERT_TEST_LOGS") == "true"
}

// Context returns a context carrying a debug logger that writes to buf.
func Context(buf *SafeBuffer) context.Context {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(context.Background(), logger)
}

// WriteFiles writes files, keyed by relative path, into a fresh temporary
// directory and returns it.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// NewRegistry registers modules into a validated registry.
func NewRegistry(t *testing.T, modules ...registry.Module) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, m := range modules {
		m.Register(reg)
	}
	require.NoError(t, reg.ValidateRegistry(context.Background()))
	return reg
}

// HarnessResult holds the outcomes of a build run.
type HarnessResult struct {
	LogOutput string
	Output    string
	Err       error
	Result    *build.Result
	Events    *events.Recorder
}

// BuildOptions tunes RunBuild.
type BuildOptions struct {
	Vars           map[string]any
	Environ        map[string]string
	ShellOnFailure bool
}

// RunBuild loads the build document in dir and runs it against be.
func RunBuild(t *testing.T, dir string, be backend.Backend, opts BuildOptions, modules ...registry.Module) *HarnessResult {
	t.Helper()
	logBuffer := &SafeBuffer{}
	ctx := Context(logBuffer)
	reg := NewRegistry(t, modules...)
	rec := &events.Recorder{}
	var out bytes.Buffer

	res := &HarnessResult{Events: rec}
	root, err := config.NewLoader(reg).Load(ctx, dir)
	if err == nil {
		b := build.New(build.Options{
			Registry:       reg,
			Backend:        be,
			Display:        display.New(false, bytes.NewReader(nil), &out, &out),
			Reporter:       rec,
			ShellOnFailure: opts.ShellOnFailure,
			Environ:        opts.Environ,
		})
		res.Result, err = b.Run(ctx, root, opts.Vars)
	}
	res.Err = err
	res.LogOutput = logBuffer.String()
	res.Output = out.String()

	if LogsEnabled() {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), res.LogOutput)
	}
	return res
}

// AssertLogContains fails the test when the build log lacks substr.
func AssertLogContains(t *testing.T, res *HarnessResult, substr string) {
	t.Helper()
	require.Contains(t, res.LogOutput, substr, fmt.Sprintf("expected %q in build log", substr))
}
