package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/bert/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// EventName is the socket.io event build events are emitted under.
const EventName = "bert:event"

// SocketIOOptions configures DialSocketIO.
type SocketIOOptions struct {
	Namespace          string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// SocketIOReporter emits events to a socket.io server.
type SocketIOReporter struct {
	io *socket.Socket
}

// DialSocketIO connects to rawURL and waits for the connection to be
// acknowledged.
func DialSocketIO(ctx context.Context, rawURL string, o SocketIOOptions) (*SocketIOReporter, error) {
	logger := ctxlog.FromContext(ctx).With("reporter", "socketio", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Namespace == "" {
		o.Namespace = "/"
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected to event sink.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		if err == nil {
			err = fmt.Errorf("%v", errs[0])
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIOReporter{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(o.Timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", o.Timeout)
	}
}

// Emit sends e as a JSON object.
func (r *SocketIOReporter) Emit(ctx context.Context, e Event) {
	if !r.io.Connected() {
		ctxlog.FromContext(ctx).Warn("Event sink disconnected, dropping event.", "kind", e.Kind)
		return
	}
	r.io.Emit(EventName, eventPayload(e))
}

// Close disconnects from the server.
func (r *SocketIOReporter) Close() error {
	r.io.Disconnect()
	return nil
}

func eventPayload(e Event) map[string]any {
	payload := map[string]any{
		"kind":   string(e.Kind),
		"run_id": e.RunID,
		"time":   e.Time.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range map[string]string{
		"chain":       e.Chain,
		"stage":       e.Stage,
		"task":        e.Task,
		"fingerprint": e.Fingerprint,
		"image":       e.Image,
		"error":       e.Error,
	} {
		if v != "" {
			payload[k] = v
		}
	}
	return payload
}
