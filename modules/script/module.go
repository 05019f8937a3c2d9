package script

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/vk/bert/internal/fsutil"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
	"github.com/vk/bert/internal/tarutil"
	"github.com/vk/bert/internal/yamldoc"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "path", Bare: true, Coerce: schema.AsStringList, Help: "Local script path, optionally followed by arguments"},
	schema.Field{Name: "contents", Aliases: []string{"script"}, Coerce: schema.AsString, Help: "Inline script text"},
)

// OnRunScript is the handler for the 'script' task. The script is copied
// into the working directory and executed there.
func OnRunScript(ctx context.Context, j *job.Job, params schema.Values) error {
	var (
		name    string
		data    []byte
		command []string
		value   any
	)
	switch {
	case params.Has("contents"):
		data = []byte(params.String("contents"))
		name = "script-" + fsutil.HashBytes(data)
		command = []string{"./" + name}
		value = command
	case params.Has("path"):
		args := params.StringList("path")
		if len(args) == 0 {
			return yamldoc.Errorf(j.Current().Task.Body, "script needs a path")
		}
		local := j.ResolvePath(args[0])
		var err error
		if data, err = os.ReadFile(local); err != nil {
			return err
		}
		name = filepath.Base(local)
		command = append([]string{path.Join(j.WorkDir, name)}, args[1:]...)
		value = args
	default:
		return yamldoc.Errorf(j.Current().Task.Body, "script needs a path or contents")
	}

	c, err := j.Create(ctx, map[string]any{
		"value":       value,
		"file_sha256": fsutil.HashBytes(data),
	}, job.CreateOptions{Command: command})
	if err != nil || c.CacheHit != nil {
		return err
	}

	archive, err := tarutil.File(name, data, 0o755)
	if err != nil {
		return err
	}
	if err := j.Backend().PutArchive(ctx, c.Container, j.WorkDir, archive); err != nil {
		return err
	}
	_, err = j.Commit(ctx, job.CommitOptions{})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "script",
		Doc:    "Copy a script into the working directory and run it.",
		Schema: Schema,
		Run:    OnRunScript,
	})
}
