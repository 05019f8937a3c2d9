package job

import (
	"context"
	"path"

	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/tarutil"
)

// WorkDirTask is the internal task that establishes an explicit working
// directory. It takes part in the fingerprint chain like any other task.
const WorkDirTask = "work-dir"

// Setup pulls imageRef (once per build run) and establishes the working
// directory, either from the stage override or from the image default.
func (j *Job) Setup(ctx context.Context, imageRef string) error {
	img, err := j.opts.PullCache.Get(ctx, j.opts.Backend, imageRef)
	if err != nil {
		return err
	}
	j.SrcImage = img.ID
	ctxlog.FromContext(ctx).Debug("Job source image ready.", "ref", imageRef, "image", img.ID)

	if j.opts.Stage == nil || j.opts.Stage.WorkDir == "" {
		j.WorkDir = img.WorkDir
		if j.WorkDir == "" {
			j.WorkDir = "/"
		}
		return nil
	}

	dir, err := j.Render(j.opts.Stage.WorkDir)
	if err != nil {
		return err
	}
	dir = path.Clean("/" + dir)

	task := &config.Task{Pos: j.opts.Stage.Pos, Name: "work-dir: " + dir, Action: WorkDirTask}
	err = j.RunTask(ctx, task, func(ctx context.Context) error {
		c, err := j.Create(ctx, dir, CreateOptions{})
		if err != nil || c.CacheHit != nil {
			return err
		}
		if dir != "/" {
			archive, err := tarutil.Dir(dir, 0o755)
			if err != nil {
				return err
			}
			if err := j.opts.Backend.PutArchive(ctx, c.Container, "/", archive); err != nil {
				return err
			}
		}
		_, err = j.Commit(ctx, CommitOptions{WorkDir: dir})
		return err
	})
	if err != nil {
		return err
	}
	j.WorkDir = dir
	return nil
}
