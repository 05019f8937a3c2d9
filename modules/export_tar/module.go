package export_tar

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/fsutil"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
	"github.com/vk/bert/internal/tarutil"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "dest", Aliases: []string{"name"}, Required: true, Coerce: schema.LocalPath, Help: "Local archive path"},
	schema.Field{Name: "paths", Coerce: schema.AsStringList, Help: "Paths inside the image to archive"},
	schema.Field{Name: "compress-type", Coerce: schema.OneOf("", "none", "gz", "gzip", "zst", "zstd"), Help: "Compression, inferred from the file name when unset"},
)

// Compression resolves the compression to use for dest.
func Compression(dest, explicit string) string {
	switch explicit {
	case "gz", "gzip":
		return "gz"
	case "zst", "zstd":
		return "zst"
	case "none":
		return ""
	}
	switch {
	case strings.HasSuffix(dest, ".tar.gz"), strings.HasSuffix(dest, ".tgz"):
		return "gz"
	case strings.HasSuffix(dest, ".tar.zst"):
		return "zst"
	}
	return ""
}

func compressWriter(w io.Writer, comp string) (io.WriteCloser, error) {
	switch comp {
	case "gz":
		return gzip.NewWriter(w), nil
	case "zst":
		return zstd.NewWriter(w)
	}
	return nopCloser{w}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// OnRunExportTar is the handler for the 'export-tar' task. An existing
// archive is kept when the job produced no new image.
func OnRunExportTar(ctx context.Context, j *job.Job, params schema.Values) error {
	dest := params.String("dest")
	if fsutil.Exists(dest) && len(j.Changes) == 0 {
		ctxlog.FromContext(ctx).Info("⏭️ Archive is up to date", "dest", dest)
		return nil
	}
	paths := params.StringList("paths")
	comp := Compression(dest, params.String("compress-type"))

	c, err := j.Create(ctx, map[string]any{"dest": dest, "paths": paths}, job.CreateOptions{ReadOnly: true})
	if err != nil {
		return err
	}

	err = fsutil.WriteAtomic(dest, 0o644, func(w io.Writer) error {
		cw, err := compressWriter(w, comp)
		if err != nil {
			return err
		}
		tw := tar.NewWriter(cw)
		for _, p := range paths {
			if err := copyPath(ctx, j, c.Container, p, tw); err != nil {
				return err
			}
		}
		if err := tw.Close(); err != nil {
			return err
		}
		return cw.Close()
	})
	if err != nil {
		return fmt.Errorf("export-tar %s: %w", dest, err)
	}
	ctxlog.FromContext(ctx).Info("📦 Exported archive", "dest", dest)
	return j.Cancel(ctx)
}

// copyPath appends p from the container to tw, keeping its full path.
func copyPath(ctx context.Context, j *job.Job, container, p string, tw *tar.Writer) error {
	rc, _, err := j.Backend().GetArchive(ctx, container, p)
	if err != nil {
		return err
	}
	defer rc.Close()
	parent := strings.TrimPrefix(path.Dir(path.Clean("/"+p)), "/")
	return tarutil.Copy(tw, rc, func(name string) string {
		return path.Join(parent, name)
	})
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "export-tar",
		Doc:    "Export paths of the image to a local tar archive.",
		Schema: Schema,
		Run:    OnRunExportTar,
	})
}

