package inmemorybackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/vk/bert/internal/backend"
)

// Exec is the view of a running container handed to a RunFunc. Files may
// be modified; changes are kept by the container.
type Exec struct {
	Command []string
	Env     map[string]string
	WorkDir string
	User    string
	Files   map[string]*File
	Stdout  io.Writer
	Stderr  io.Writer
}

// RunFunc simulates running a command and returns its exit code.
type RunFunc func(ctx context.Context, e *Exec) int

// File is one entry of a filesystem tree.
type File struct {
	Data []byte
	Mode int64
	Dir  bool
}

type image struct {
	backend.Image
	files map[string]*File
}

type container struct {
	backend.Container
	opts     backend.CreateOptions
	files    map[string]*File
	exitCode int
}

// Backend is an in-memory backend.Backend. It is safe for concurrent use.
type Backend struct {
	mu         sync.Mutex
	images     map[string]*image
	tags       map[string]string
	containers map[string]*container
	nextID     int

	run      RunFunc
	creates  []backend.CreateOptions
	attaches []backend.Streams
	commits  int
	pulls    int
	removed  int
}

// New creates an empty backend. run may be nil, in which case every
// command succeeds without output.
func New(run RunFunc) *Backend {
	return &Backend{
		images:     make(map[string]*image),
		tags:       make(map[string]string),
		containers: make(map[string]*container),
		run:        run,
	}
}

func (b *Backend) newID(prefix string) string {
	b.nextID++
	return fmt.Sprintf("%s%064x", prefix, b.nextID)
}

// AddImage registers an image under ref with the given files and returns
// its id.
func (b *Backend) AddImage(ref string, attrs backend.Image, files map[string]string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	img := &image{Image: attrs, files: make(map[string]*File)}
	img.ID = b.newID("sha256:")
	for p, data := range files {
		img.files[cleanPath(p)] = &File{Data: []byte(data), Mode: 0o644}
	}
	b.images[img.ID] = img
	b.tags[ref] = img.ID
	return img.ID
}

func (b *Backend) resolve(ref string) (*image, bool) {
	if id, ok := b.tags[ref]; ok {
		ref = id
	}
	img, ok := b.images[ref]
	return img, ok
}

func (b *Backend) Pull(ctx context.Context, ref string) (*backend.Image, error) {
	b.mu.Lock()
	b.pulls++
	if _, ok := b.resolve(ref); !ok {
		img := &image{files: make(map[string]*File)}
		img.ID = b.newID("sha256:")
		b.images[img.ID] = img
		b.tags[ref] = img.ID
	}
	b.mu.Unlock()
	return b.GetImage(ctx, ref)
}

func (b *Backend) GetImage(_ context.Context, ref string) (*backend.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.resolve(ref)
	if !ok {
		return nil, backend.Wrap("inspect image", fmt.Errorf("no such image: %s", ref))
	}
	out := img.Image
	out.Labels = maps.Clone(img.Labels)
	out.Env = append([]string(nil), img.Env...)
	out.Cmd = append([]string(nil), img.Cmd...)
	return &out, nil
}

func (b *Backend) ListImagesByLabel(_ context.Context, key, value string) ([]*backend.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*backend.Image
	for _, img := range b.images {
		if v, ok := img.Labels[key]; ok && v == value {
			cp := img.Image
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *Backend) CreateContainer(_ context.Context, opts backend.CreateOptions) (*backend.Container, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.resolve(opts.Image)
	if !ok {
		return nil, backend.Wrap("create container", fmt.Errorf("no such image: %s", opts.Image))
	}
	c := &container{opts: opts, files: cloneFiles(img.files)}
	c.ID = b.newID("")
	c.Image = img.ID
	b.containers[c.ID] = c
	b.creates = append(b.creates, opts)
	return &c.Container, nil
}

func (b *Backend) container(op, id string) (*container, error) {
	c, ok := b.containers[id]
	if !ok {
		return nil, backend.Wrap(op, fmt.Errorf("no such container: %s", id))
	}
	return c, nil
}

func (b *Backend) AttachAndStart(ctx context.Context, id string, streams backend.Streams) error {
	b.mu.Lock()
	c, err := b.container("start", id)
	if err == nil {
		b.attaches = append(b.attaches, streams)
	}
	b.mu.Unlock()
	if err != nil {
		return err
	}
	if b.run == nil || len(c.opts.Command) == 0 {
		return ctx.Err()
	}
	stdout, stderr := streams.Stdout, streams.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	code := b.run(ctx, &Exec{
		Command: c.opts.Command,
		Env:     c.opts.Env,
		WorkDir: c.opts.WorkDir,
		User:    c.opts.User,
		Files:   c.files,
		Stdout:  stdout,
		Stderr:  stderr,
	})
	b.mu.Lock()
	c.exitCode = code
	b.mu.Unlock()
	return ctx.Err()
}

func (b *Backend) Stop(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.container("stop", id)
	return err
}

func (b *Backend) Wait(_ context.Context, id string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.container("wait", id)
	if err != nil {
		return -1, err
	}
	return c.exitCode, nil
}

func (b *Backend) Commit(_ context.Context, id string, opts backend.CommitOptions) (*backend.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.container("commit", id)
	if err != nil {
		return nil, err
	}
	base, ok := b.images[c.Image]
	if !ok {
		base = &image{}
	}

	img := &image{files: cloneFiles(c.files)}
	img.ID = b.newID("sha256:")
	img.WorkDir = base.WorkDir
	img.Cmd = append([]string(nil), base.Cmd...)
	img.Env = append([]string(nil), base.Env...)
	img.Labels = maps.Clone(base.Labels)
	if img.Labels == nil {
		img.Labels = make(map[string]string)
	}
	maps.Copy(img.Labels, c.opts.Labels)

	for _, change := range opts.Changes {
		if err := applyChange(&img.Image, change); err != nil {
			return nil, backend.Wrap("commit", err)
		}
	}
	b.images[img.ID] = img
	b.commits++
	out := img.Image
	return &out, nil
}

func applyChange(img *backend.Image, change string) error {
	instr, arg, _ := strings.Cut(change, " ")
	switch strings.ToUpper(instr) {
	case "LABEL":
		k, v, _ := strings.Cut(arg, "=")
		img.Labels[k] = v
	case "ENV":
		pairs, err := parseEnv(arg)
		if err != nil {
			return err
		}
		for _, kv := range pairs {
			img.Env = setEnv(img.Env, kv[0], kv[1])
		}
	case "CMD":
		var cmd []string
		if err := json.Unmarshal([]byte(arg), &cmd); err != nil {
			cmd = []string{"/bin/sh", "-c", arg}
		}
		img.Cmd = cmd
	case "WORKDIR":
		img.WorkDir = arg
	default:
		return fmt.Errorf("unsupported change %q", change)
	}
	return nil
}

// parseEnv follows the Dockerfile ENV grammar: "K V" keeps the rest of the
// line as the value, "K=V K2=V2" splits on whitespace and every word needs
// an "=". Quoted values are not supported.
func parseEnv(arg string) ([][2]string, error) {
	arg = strings.TrimSpace(arg)
	words := strings.Fields(arg)
	if len(words) == 0 {
		return nil, errors.New("ENV requires at least one argument")
	}
	if !strings.Contains(words[0], "=") {
		k, v, _ := strings.Cut(arg, " ")
		return [][2]string{{k, strings.TrimSpace(v)}}, nil
	}
	pairs := make([][2]string, 0, len(words))
	for _, w := range words {
		k, v, ok := strings.Cut(w, "=")
		if !ok {
			return nil, fmt.Errorf("can't find = in %q. Must be of the form: name=value", w)
		}
		pairs = append(pairs, [2]string{k, v})
	}
	return pairs, nil
}

func setEnv(env []string, k, v string) []string {
	prefix := k + "="
	out := env[:0]
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return append(out, prefix+v)
}

func (b *Backend) Tag(_ context.Context, imageID, tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.resolve(imageID)
	if !ok {
		return backend.Wrap("tag", fmt.Errorf("no such image: %s", imageID))
	}
	b.tags[tag] = img.ID
	return nil
}

func (b *Backend) RemoveContainer(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.container("remove container", id); err != nil {
		return err
	}
	delete(b.containers, id)
	b.removed++
	return nil
}

func (b *Backend) RemoveImage(_ context.Context, id string, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.resolve(id)
	if !ok {
		return backend.Wrap("remove image", fmt.Errorf("no such image: %s", id))
	}
	delete(b.images, img.ID)
	for tag, target := range b.tags {
		if target == img.ID {
			delete(b.tags, tag)
		}
	}
	return nil
}

// Commits returns the number of images committed so far.
func (b *Backend) Commits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commits
}

// Attaches returns the streams of every AttachAndStart call in order.
func (b *Backend) Attaches() []backend.Streams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Streams(nil), b.attaches...)
}

// Pulls returns the number of Pull calls.
func (b *Backend) Pulls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pulls
}

// Creates returns the options of every container created so far.
func (b *Backend) Creates() []backend.CreateOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.CreateOptions(nil), b.creates...)
}

// LiveContainers returns the number of containers not yet removed.
func (b *Backend) LiveContainers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.containers)
}

// HasImage reports whether ref names an existing image or tag.
func (b *Backend) HasImage(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.resolve(ref)
	return ok
}

// ImageFile returns the content of a file inside an image.
func (b *Backend) ImageFile(ref, path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.resolve(ref)
	if !ok {
		return nil, false
	}
	f, ok := img.files[cleanPath(path)]
	if !ok || f.Dir {
		return nil, false
	}
	return f.Data, true
}

// ImageFileMode returns the mode of a file inside an image.
func (b *Backend) ImageFileMode(ref, path string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.resolve(ref)
	if !ok {
		return 0, false
	}
	f, ok := img.files[cleanPath(path)]
	if !ok {
		return 0, false
	}
	return f.Mode, true
}

func cloneFiles(files map[string]*File) map[string]*File {
	out := make(map[string]*File, len(files))
	for p, f := range files {
		cp := *f
		out[p] = &cp
	}
	return out
}

var _ backend.Backend = (*Backend)(nil)
