// Package tarutil builds and reads the tar streams exchanged with build
// containers.
package tarutil

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Dir returns an archive holding a single directory entry.
func Dir(name string, mode int64) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:     strings.TrimPrefix(path.Clean(name), "/") + "/",
		Typeflag: tar.TypeDir,
		Mode:     mode,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// File returns an archive holding one regular file.
func File(name string, data []byte, mode int64) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:     strings.TrimPrefix(name, "/"),
		Typeflag: tar.TypeReg,
		Mode:     mode,
		Size:     int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// AddOptions tunes AddPath.
type AddOptions struct {
	// Mode replaces the permission bits of every entry when set.
	Mode *uint32
	// Transform rewrites the content of regular files.
	Transform func(data []byte) ([]byte, error)
}

// AddPath writes src, a file or a directory tree, into tw under arcname.
// Directory entries are visited in sorted order so archives of unchanged
// trees are identical.
func AddPath(tw *tar.Writer, src, arcname string, opts AddOptions) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(src); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = strings.TrimPrefix(arcname, "/")
	if opts.Mode != nil {
		hdr.Mode = (hdr.Mode &^ 0o777) | int64(*opts.Mode)
	}

	switch {
	case info.Mode().IsRegular():
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		if opts.Transform != nil {
			if data, err = opts.Transform(data); err != nil {
				return fmt.Errorf("%s: %w", src, err)
			}
		}
		hdr.Size = int64(len(data))
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	case info.IsDir():
		if hdr.Name != "" {
			hdr.Name = strings.TrimSuffix(hdr.Name, "/") + "/"
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			if err := AddPath(tw, filepath.Join(src, e.Name()), path.Join(arcname, e.Name()), opts); err != nil {
				return err
			}
		}
		return nil
	default:
		return tw.WriteHeader(hdr)
	}
}

// ReadFirstFile returns the content of the first regular file in r.
func ReadFirstFile(r io.Reader) ([]byte, *tar.Header, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("archive holds no regular file")
		}
		if err != nil {
			return nil, nil, err
		}
		if hdr.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			return data, hdr, err
		}
	}
}

// Copy streams every entry of r into tw, renaming each through rename.
func Copy(tw *tar.Writer, r io.Reader, rename func(name string) string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if rename != nil {
			hdr.Name = rename(hdr.Name)
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.Copy(tw, tr); err != nil {
				return err
			}
		}
	}
}

// Extract writes the entries of r below dest. Entries that would escape
// dest are rejected.
func Extract(r io.Reader, dest string) error {
	dest = filepath.Clean(dest)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(path.Clean("/"+hdr.Name)))
		if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}
		if err := extractEntry(tr, hdr, target); err != nil {
			return err
		}
	}
}

// ExtractFile writes the single regular file of r to dest.
func ExtractFile(r io.Reader, dest string) error {
	data, hdr, err := ReadFirstFile(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, os.FileMode(hdr.Mode)&os.ModePerm)
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, target string) error {
	mode := os.FileMode(hdr.Mode) & os.ModePerm
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0o700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	}
	return nil
}
