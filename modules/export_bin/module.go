package export_bin

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/klauspost/compress/gzip"
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
	schema.Field{Name: "install-path", Required: true, Coerce: schema.AsString, Help: "Directory inside the image that the installer recreates"},
	schema.Field{Name: "dest", Aliases: []string{"name"}, Required: true, Coerce: schema.LocalPath, Help: "Local installer path"},
	schema.Field{Name: "msg", Coerce: schema.AsString, Default: "", Help: "Message printed by the installer"},
)

// Header returns the shell preamble of an installer. The gzip tar payload
// follows the exit line.
func Header(installPath, msg string) string {
	return fmt.Sprintf("#!/bin/sh -e\nrm -rf %s\necho %s\nsed -e '1,/^exit$/d' \"$0\" | tar -xzf - -C %s\nexit\n",
		shellQuote(installPath), shellQuote(msg), shellQuote(path.Dir(installPath)))
}

func shellQuote(s string) string {
	out := "'"
	for _, r := range s {
		if r == '\'' {
			out += `'\''`
			continue
		}
		out += string(r)
	}
	return out + "'"
}

// OnRunExportBin is the handler for the 'export-bin' task. It writes a
// self-extracting shell installer of install-path.
func OnRunExportBin(ctx context.Context, j *job.Job, params schema.Values) error {
	installPath := path.Clean("/" + params.String("install-path"))
	dest := params.String("dest")
	if fsutil.Exists(dest) && len(j.Changes) == 0 {
		ctxlog.FromContext(ctx).Info("⏭️ Installer is up to date", "dest", dest)
		return nil
	}

	c, err := j.Create(ctx, map[string]any{"install_path": installPath, "dest": dest}, job.CreateOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	rc, _, err := j.Backend().GetArchive(ctx, c.Container, installPath)
	if err != nil {
		return err
	}
	defer rc.Close()

	err = fsutil.WriteAtomic(dest, 0o775, func(w io.Writer) error {
		if _, err := io.WriteString(w, Header(installPath, params.String("msg"))); err != nil {
			return err
		}
		gz := gzip.NewWriter(w)
		tw := tar.NewWriter(gz)
		if err := tarutil.Copy(tw, rc, nil); err != nil {
			return err
		}
		if err := tw.Close(); err != nil {
			return err
		}
		return gz.Close()
	})
	if err != nil {
		return fmt.Errorf("export-bin %s: %w", dest, err)
	}
	ctxlog.FromContext(ctx).Info("📦 Exported installer", "dest", dest)
	return j.Cancel(ctx)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "export-bin",
		Doc:    "Export a directory of the image as a self-extracting installer.",
		Schema: Schema,
		Run:    OnRunExportBin,
	})
}
