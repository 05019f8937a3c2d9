package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/ctxlog"
)

// DebugShell commits the failed task's container to a temporary image and
// runs an interactive shell in it. The image is removed by the next
// cleanup.
func (j *Job) DebugShell(ctx context.Context) error {
	cur := j.current
	if cur == nil || cur.Container == "" {
		return errors.New("no container available for a debug shell")
	}
	logger := ctxlog.FromContext(ctx)
	be := j.opts.Backend
	bg := context.WithoutCancel(ctx)

	img, err := be.Commit(bg, cur.Container, backend.CommitOptions{
		Changes: []string{fmt.Sprintf("LABEL %s=", backend.LabelBuildID)},
	})
	if err != nil {
		return err
	}
	j.debugImages = append(j.debugImages, img.ID)

	c, err := be.CreateContainer(bg, backend.CreateOptions{
		Image:       img.ID,
		Command:     []string{"/bin/sh"},
		WorkDir:     j.WorkDir,
		Env:         cur.Env,
		Interactive: true,
	})
	if err != nil {
		return err
	}
	j.containers = append(j.containers, c.ID)

	logger.Info("🐚 Starting debug shell", "image", img.ID)
	if _, err := j.opts.Display.Watch(ctx, be, c.ID, true, false); err != nil && ctx.Err() == nil {
		return err
	}
	if err := be.Stop(bg, c.ID); err != nil {
		return err
	}
	_, err = be.Wait(bg, c.ID)
	return err
}
