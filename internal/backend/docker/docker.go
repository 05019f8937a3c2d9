// Package docker implements backend.Backend on top of the Docker Engine API.
package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/ctxlog"
)

// Backend talks to a Docker daemon.
type Backend struct {
	cli *client.Client
}

// New connects using the standard DOCKER_* environment variables and
// negotiates the API version with the daemon.
func New() (*Backend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, backend.Wrap("connect", err)
	}
	return &Backend{cli: cli}, nil
}

// Close releases the client's connections.
func (b *Backend) Close() error {
	return b.cli.Close()
}

type pullMessage struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Error  string `json:"error"`
}

func (b *Backend) Pull(ctx context.Context, ref string) (*backend.Image, error) {
	logger := ctxlog.FromContext(ctx)
	rc, err := b.cli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return nil, backend.Wrap("pull", err)
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	for {
		var msg pullMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, backend.Wrap("pull", err)
		}
		if msg.Error != "" {
			return nil, backend.Wrap("pull", errors.New(msg.Error))
		}
		logger.Debug("Pull progress.", "image", ref, "id", msg.ID, "status", msg.Status)
	}
	return b.GetImage(ctx, ref)
}

func (b *Backend) GetImage(ctx context.Context, ref string) (*backend.Image, error) {
	info, _, err := b.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return nil, backend.Wrap("inspect image", err)
	}
	img := &backend.Image{ID: info.ID}
	if info.Config != nil {
		img.Labels = info.Config.Labels
		img.WorkDir = info.Config.WorkingDir
		img.Cmd = []string(info.Config.Cmd)
		img.Env = info.Config.Env
	}
	return img, nil
}

func (b *Backend) ListImagesByLabel(ctx context.Context, key, value string) ([]*backend.Image, error) {
	summaries, err := b.cli.ImageList(ctx, types.ImageListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", key+"="+value)),
	})
	if err != nil {
		return nil, backend.Wrap("list images", err)
	}
	out := make([]*backend.Image, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, &backend.Image{ID: s.ID, Labels: s.Labels})
	}
	return out, nil
}

func (b *Backend) CreateContainer(ctx context.Context, opts backend.CreateOptions) (*backend.Container, error) {
	cfg := &container.Config{
		Image:        opts.Image,
		Labels:       opts.Labels,
		Cmd:          opts.Command,
		WorkingDir:   opts.WorkDir,
		User:         opts.User,
		Env:          envList(opts.Env),
		OpenStdin:    opts.Interactive,
		StdinOnce:    opts.Interactive,
		AttachStdin:  opts.Interactive,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          opts.Interactive,
	}
	hostCfg := &container.HostConfig{GroupAdd: opts.Groups}

	resp, err := b.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, backend.Wrap("create container", err)
	}
	for _, w := range resp.Warnings {
		ctxlog.FromContext(ctx).Warn("Container create warning.", "warning", w)
	}
	return &backend.Container{ID: resp.ID, Image: opts.Image}, nil
}

func (b *Backend) AttachAndStart(ctx context.Context, id string, streams backend.Streams) error {
	resp, err := b.cli.ContainerAttach(ctx, id, types.ContainerAttachOptions{
		Stream: true,
		Stdin:  streams.Stdin != nil,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return backend.Wrap("attach", err)
	}
	defer resp.Close()

	// Closing the connection unblocks the output copy on interrupt.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			resp.Close()
		case <-done:
		}
	}()

	if streams.Stdin != nil {
		go func() {
			_, _ = io.Copy(resp.Conn, streams.Stdin)
			_ = resp.CloseWrite()
		}()
	}

	if err := b.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return backend.Wrap("start", err)
	}
	if streams.TTY && streams.Height > 0 && streams.Width > 0 {
		// TODO: follow SIGWINCH once the attach runs in its own goroutine.
		err := b.cli.ContainerResize(ctx, id, types.ResizeOptions{Height: streams.Height, Width: streams.Width})
		if err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to resize container terminal.", "container", id, "error", err)
		}
	}

	stdout, stderr := streams.Stdout, streams.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if streams.TTY {
		_, err = io.Copy(stdout, resp.Reader)
	} else {
		_, err = stdcopy.StdCopy(stdout, stderr, resp.Reader)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return backend.Wrap("stream output", err)
	}
	return nil
}

func (b *Backend) Stop(ctx context.Context, id string) error {
	return backend.Wrap("stop", b.cli.ContainerStop(ctx, id, container.StopOptions{}))
}

func (b *Backend) Wait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := b.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, backend.Wrap("wait", err)
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), backend.Wrap("wait", errors.New(status.Error.Message))
		}
		return int(status.StatusCode), nil
	}
}

func (b *Backend) Commit(ctx context.Context, id string, opts backend.CommitOptions) (*backend.Image, error) {
	resp, err := b.cli.ContainerCommit(ctx, id, types.ContainerCommitOptions{Changes: opts.Changes})
	if err != nil {
		return nil, backend.Wrap("commit", err)
	}
	return b.GetImage(ctx, resp.ID)
}

func (b *Backend) Tag(ctx context.Context, imageID, tag string) error {
	return backend.Wrap("tag", b.cli.ImageTag(ctx, imageID, tag))
}

func (b *Backend) RemoveContainer(ctx context.Context, id string) error {
	return backend.Wrap("remove container", b.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}))
}

func (b *Backend) RemoveImage(ctx context.Context, id string, noPrune bool) error {
	_, err := b.cli.ImageRemove(ctx, id, types.ImageRemoveOptions{PruneChildren: !noPrune})
	return backend.Wrap("remove image", err)
}

func (b *Backend) PutArchive(ctx context.Context, id, path string, archive io.Reader) error {
	return backend.Wrap("put archive", b.cli.CopyToContainer(ctx, id, path, archive, types.CopyToContainerOptions{}))
}

func (b *Backend) GetArchive(ctx context.Context, id, path string) (io.ReadCloser, backend.PathStat, error) {
	rc, st, err := b.cli.CopyFromContainer(ctx, id, path)
	if err != nil {
		return nil, backend.PathStat{}, backend.Wrap("get archive", fmt.Errorf("%s: %w", path, err))
	}
	return rc, backend.PathStat{
		Name:       st.Name,
		Size:       st.Size,
		Mode:       uint32(st.Mode),
		Mtime:      st.Mtime,
		LinkTarget: st.LinkTarget,
	}, nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

var _ backend.Backend = (*Backend)(nil)
