package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/fsutil"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
	"github.com/vk/bert/internal/tarutil"
)

// Module implements the registry.Module interface for this package. A nil
// Client uses http.DefaultClient.
type Module struct {
	Client *http.Client
}

var Schema = schema.New(
	schema.Field{Name: "url", Required: true, Coerce: schema.AsString, Help: "URL to fetch"},
	schema.Field{Name: "params", Coerce: schema.AsStringMap, Help: "Query parameters"},
	schema.Field{Name: "method", Coerce: schema.OneOf(http.MethodGet, http.MethodPost), Default: http.MethodGet, Help: "GET or POST"},
	schema.Field{Name: "dest-var", Coerce: schema.AsString, Help: "Variable receiving the body"},
	schema.Field{Name: "json", Coerce: schema.AsBool, Default: false, Help: "Decode the body as JSON before storing it in dest-var"},
	schema.Field{Name: "dest", Coerce: schema.AsString, Help: "File path inside the image receiving the body"},
)

type fetcher struct {
	client *http.Client
}

func (f *fetcher) get(ctx context.Context, method, rawURL string, params map[string]string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ctxlog.FromContext(ctx).Info("Making HTTP request", "method", method, "url", u.String())
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", u.Redacted(), resp.Status)
	}
	return body, nil
}

func (f *fetcher) run(ctx context.Context, j *job.Job, params schema.Values) error {
	destVar, dest := params.String("dest-var"), params.String("dest")
	if destVar == "" && dest == "" {
		return errors.New("fetch needs dest-var or dest")
	}

	body, err := f.get(ctx, params.String("method"), params.String("url"), params.StringMap("params"))
	if err != nil {
		return err
	}

	if destVar != "" {
		var v any = string(body)
		if params.Bool("json") {
			if err := json.Unmarshal(body, &v); err != nil {
				return fmt.Errorf("fetch: response is not JSON: %w", err)
			}
		}
		j.SetVar(destVar, v)
	}

	if dest == "" {
		return nil
	}
	dest = path.Clean("/" + dest)
	c, err := j.Create(ctx, map[string]any{
		"file_sha256": fsutil.HashBytes(body),
		"dest":        dest,
	}, job.CreateOptions{})
	if err != nil || c.CacheHit != nil {
		return err
	}
	archive, err := tarutil.File(dest, body, 0o644)
	if err != nil {
		return err
	}
	if err := j.Backend().PutArchive(ctx, c.Container, "/", archive); err != nil {
		return err
	}
	_, err = j.Commit(ctx, job.CommitOptions{})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	f := &fetcher{client: client}
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "fetch",
		Doc:    "Fetch a URL into a variable or a file in the image.",
		Schema: Schema,
		Run:    f.run,
	})
}
