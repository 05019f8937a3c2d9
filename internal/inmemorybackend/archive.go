package inmemorybackend

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/vk/bert/internal/backend"
)

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// PutArchive extracts a tar stream into the container below dir.
func (b *Backend) PutArchive(_ context.Context, id, dir string, archive io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.container("put archive", id)
	if err != nil {
		return err
	}
	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return backend.Wrap("put archive", err)
		}
		target := cleanPath(path.Join(dir, hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			c.files[target] = &File{Dir: true, Mode: hdr.Mode}
		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				return backend.Wrap("put archive", err)
			}
			c.files[target] = &File{Data: data, Mode: hdr.Mode}
		}
	}
}

// GetArchive returns a tar stream of path, named after its base name like
// the Docker copy API does.
func (b *Backend) GetArchive(_ context.Context, id, p string) (io.ReadCloser, backend.PathStat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.container("get archive", id)
	if err != nil {
		return nil, backend.PathStat{}, err
	}
	p = cleanPath(p)
	base := path.Base(p)

	var names []string
	for name := range c.files {
		if name == p || strings.HasPrefix(name, strings.TrimSuffix(p, "/")+"/") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, backend.PathStat{}, backend.Wrap("get archive", fmt.Errorf("%s: no such file or directory", p))
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	stat := backend.PathStat{Name: base}
	if root, ok := c.files[p]; ok {
		stat.Size = int64(len(root.Data))
		stat.Mode = uint32(root.Mode)
		if root.Dir {
			stat.Mode |= uint32(os.ModeDir)
		}
	} else {
		stat.Mode = uint32(os.ModeDir | 0o755)
		// Directory implied by its children.
		if err := tw.WriteHeader(&tar.Header{Name: base + "/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
			return nil, backend.PathStat{}, backend.Wrap("get archive", err)
		}
	}
	for _, name := range names {
		f := c.files[name]
		rel := base + strings.TrimPrefix(name, p)
		if p == "/" {
			rel = strings.TrimPrefix(name, "/")
		}
		hdr := &tar.Header{Name: rel, Mode: f.Mode}
		if f.Dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(f.Data))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, backend.PathStat{}, backend.Wrap("get archive", err)
		}
		if !f.Dir {
			if _, err := tw.Write(f.Data); err != nil {
				return nil, backend.PathStat{}, backend.Wrap("get archive", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, backend.PathStat{}, backend.Wrap("get archive", err)
	}
	return io.NopCloser(&buf), stat, nil
}
