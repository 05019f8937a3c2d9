package export_file

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
	"github.com/vk/bert/internal/tarutil"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "dest", Required: true, Coerce: schema.AsString, Help: "Local destination; a trailing slash forces a directory"},
	schema.Field{Name: "src", Aliases: []string{"paths"}, Required: true, Coerce: schema.AsStringList, Help: "File or list of files to export"},
)

// OnRunExportFile is the handler for the 'export-file' task. A single
// exported file is written to dest itself; directories and multiple
// sources are extracted below dest.
func OnRunExportFile(ctx context.Context, j *job.Job, params schema.Values) error {
	raw := params.String("dest")
	forceDir := strings.HasSuffix(raw, "/")
	dest := j.ResolvePath(strings.TrimRight(raw, "/"))
	srcs := params.StringList("src")

	if info, err := os.Stat(dest); err == nil && !info.IsDir() && len(j.Changes) == 0 {
		ctxlog.FromContext(ctx).Info("⏭️ File is up to date", "dest", dest)
		return nil
	}

	c, err := j.Create(ctx, map[string]any{"dest": dest, "src": srcs}, job.CreateOptions{ReadOnly: true})
	if err != nil {
		return err
	}

	tmp := dest + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	asDir := forceDir || len(srcs) > 1
	for _, src := range srcs {
		if err := exportOne(ctx, j, c.Container, src, tmp, asDir); err != nil {
			os.RemoveAll(tmp)
			return fmt.Errorf("export-file %s: %w", src, err)
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("📦 Exported files", "dest", dest)
	return j.Cancel(ctx)
}

func exportOne(ctx context.Context, j *job.Job, container, src, dest string, asDir bool) error {
	rc, stat, err := j.Backend().GetArchive(ctx, container, src)
	if err != nil {
		return err
	}
	defer rc.Close()
	if asDir || os.FileMode(stat.Mode).IsDir() {
		return tarutil.Extract(rc, dest)
	}
	return tarutil.ExtractFile(rc, dest)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "export-file",
		Doc:    "Export files from the image to the build host.",
		Schema: Schema,
		Run:    OnRunExportFile,
	})
}
