package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates a new non-interactive app instance for system
// testing. Log and container output both go to the returned buffer.
func SetupAppTest(t *testing.T, cfg *Config, be backend.Backend, modules ...registry.Module) (*App, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(logBuffer, cfg, be, modules...)
	testApp.stdin = bytes.NewReader(nil)

	t.Cleanup(func() {
		if os.Getenv("BERT_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
