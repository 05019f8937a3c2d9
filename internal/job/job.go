package job

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"time"

	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/display"
	"github.com/vk/bert/internal/events"
	"github.com/vk/bert/internal/template"
)

// CacheDirName is the directory under the build root used for task-private
// caches such as git mirrors.
const CacheDirName = ".bert-cache"

// Options wires a Job to its collaborators.
type Options struct {
	Backend   backend.Backend
	Renderer  *template.Renderer
	Display   *display.Display
	Reporter  events.Reporter
	PullCache *PullCache
	Root      *config.Root
	Chain     config.Chain
	Stage     *config.Stage
	Environ   map[string]string
	SavedVars map[string]any
	RunID     string
}

// Job is one execution session of a stage against one source image.
type Job struct {
	SrcImage  string
	WorkDir   string
	Changes   []string
	SavedVars map[string]any

	opts        Options
	vars        map[string]any
	current     *CurrentTask
	containers  []string
	debugImages []string
}

// CurrentTask is the in-flight state of one task, between Create and
// Commit or Cancel.
type CurrentTask struct {
	Task        *config.Task
	TaskName    string
	Image       *backend.Image
	Container   string
	Fingerprint string
	Command     []string
	Env         map[string]string

	tty bool
	hit *backend.Image
}

// Creation is the outcome of Create: either a fresh container or an
// existing image carrying the same fingerprint.
type Creation struct {
	Container string
	CacheHit  *backend.Image
}

// CreateOptions controls Create.
type CreateOptions struct {
	// Command is run when the task commits. nil creates an idle container.
	Command []string
	// ReadOnly tasks only inspect the image and never commit, so there is
	// nothing to find in the cache.
	ReadOnly bool
}

// CommitOptions are image attribute changes recorded by Commit.
type CommitOptions struct {
	Env     map[string]string
	WorkDir string
	Cmd     []string
}

// New creates a job. SavedVars from opts is copied, so the caller's map is
// never mutated.
func New(opts Options) *Job {
	if opts.Reporter == nil {
		opts.Reporter = events.LogReporter{}
	}
	if opts.PullCache == nil {
		opts.PullCache = NewPullCache()
	}
	if opts.Renderer == nil {
		opts.Renderer = template.New()
	}
	if opts.Display == nil {
		opts.Display = display.New(false, nil, nil, nil)
	}
	saved := make(map[string]any, len(opts.SavedVars))
	maps.Copy(saved, opts.SavedVars)
	j := &Job{
		SavedVars: saved,
		opts:      opts,
	}
	j.vars = config.ResolveVars(opts.Environ, opts.Chain, opts.Stage, saved)
	return j
}

func (j *Job) Backend() backend.Backend { return j.opts.Backend }

// Current returns the in-flight task, or nil between tasks.
func (j *Job) Current() *CurrentTask { return j.current }

// Vars returns the variable overlay tasks are rendered against. Callers
// must not modify it; use SetVar.
func (j *Job) Vars() map[string]any { return j.vars }

// SetVar stores a variable for the rest of the job and for later stages.
func (j *Job) SetVar(name string, value any) {
	j.vars[name] = value
	j.SavedVars[name] = value
}

func (j *Job) Render(text string) (string, error) {
	return j.opts.Renderer.Render(text, j.vars)
}

func (j *Job) RenderValue(v any) (any, error) {
	return j.opts.Renderer.RenderValue(v, j.vars)
}

// Eval evaluates a boolean guard expression.
func (j *Job) Eval(expr string) (bool, error) {
	return j.opts.Renderer.Eval(expr, j.vars)
}

// ResolvePath resolves a host path against the build root directory.
func (j *Job) ResolvePath(p string) string {
	if j.opts.Root == nil || filepath.IsAbs(p) {
		return p
	}
	return j.opts.Root.ResolvePath(p)
}

// CacheDir is the host directory for task-private caches.
func (j *Job) CacheDir() string {
	return j.ResolvePath(CacheDirName)
}

// RunTask runs one task through its plugin function. A cache hit reported
// by Create is adopted as the new source image. On failure the current task
// is kept so a debug shell can be opened on its container.
func (j *Job) RunTask(ctx context.Context, task *config.Task, run func(context.Context) error) error {
	j.current = &CurrentTask{Task: task, TaskName: task.Action}
	j.emit(ctx, events.TaskStarted, "", "", nil)

	if err := run(ctx); err != nil {
		j.emit(ctx, events.TaskFailed, j.current.Fingerprint, "", err)
		return err
	}

	cur := j.current
	if cur.hit != nil {
		j.SrcImage = cur.hit.ID
		ctxlog.FromContext(ctx).Info("♻️ Existing image", "image", j.SrcImage)
		j.emit(ctx, events.TaskCached, cur.Fingerprint, j.SrcImage, nil)
	} else if cur.Container != "" {
		if err := j.Cancel(ctx); err != nil {
			return err
		}
	}
	j.current = nil
	return nil
}

// Create computes the task fingerprint and either reports an existing image
// with that fingerprint or creates a container for the task from the
// current source image.
func (j *Job) Create(ctx context.Context, jobKey any, opts CreateOptions) (Creation, error) {
	cur := j.current
	if cur == nil {
		return Creation{}, errors.New("create called without a current task")
	}
	logger := ctxlog.FromContext(ctx)
	task := cur.Task

	env, err := j.renderEnv(task.Env)
	if err != nil {
		return Creation{}, err
	}
	user, err := j.Render(task.User)
	if err != nil {
		return Creation{}, err
	}
	groups := make([]string, 0, len(task.Groups))
	for _, g := range task.Groups {
		rg, err := j.Render(g)
		if err != nil {
			return Creation{}, err
		}
		groups = append(groups, rg)
	}

	keyParams := map[string]any{"work_dir": j.WorkDir}
	if len(env) > 0 {
		keyParams["env"] = env
	}
	if user != "" {
		keyParams["user"] = user
	}
	if len(groups) > 0 {
		keyParams["groups"] = groups
	}

	fp, err := Fingerprint(j.SrcImage, cur.TaskName, keyParams, jobKey)
	if err != nil {
		return Creation{}, err
	}
	cur.Fingerprint = fp
	logger.Info("▶️ Build", "task", task.DisplayName(), "fingerprint", fp)

	be := j.opts.Backend
	if task.Capture == "" && !opts.ReadOnly {
		hits, err := be.ListImagesByLabel(ctx, backend.LabelBuildID, fp)
		if err != nil {
			return Creation{}, err
		}
		if len(hits) > 0 {
			cur.hit = hits[0]
			return Creation{CacheHit: hits[0]}, nil
		}
	}

	img, err := be.GetImage(ctx, j.SrcImage)
	if err != nil {
		return Creation{}, err
	}
	cur.Image = img
	cur.Command = opts.Command
	cur.Env = env
	cur.tty = j.opts.Display.Interactive && task.Capture == "" && opts.Command != nil

	c, err := be.CreateContainer(ctx, backend.CreateOptions{
		Image:       j.SrcImage,
		Labels:      map[string]string{backend.LabelBuildID: fp},
		Command:     opts.Command,
		WorkDir:     j.WorkDir,
		User:        user,
		Groups:      groups,
		Env:         env,
		Interactive: cur.tty,
	})
	if err != nil {
		return Creation{}, err
	}
	j.containers = append(j.containers, c.ID)
	cur.Container = c.ID
	logger.Debug("Created container.", "container", c.ID, "image", j.SrcImage)
	return Creation{Container: c.ID}, nil
}

// Commit runs the task command if one was given, then commits the task
// container to a new image that becomes the job's source image.
func (j *Job) Commit(ctx context.Context, opts CommitOptions) (*backend.Image, error) {
	cur := j.current
	if cur == nil || cur.Container == "" {
		return nil, errors.New("commit called without a current container")
	}
	logger := ctxlog.FromContext(ctx)
	be := j.opts.Backend
	task := cur.Task

	var captured []byte
	if cur.Command != nil {
		res, watchErr := j.opts.Display.Watch(ctx, be, cur.Container, cur.tty, task.Capture != "")
		if watchErr != nil && ctx.Err() == nil {
			return nil, watchErr
		}
		if res != nil {
			captured = res.Stdout
		}

		// The container is stopped and waited on even after an interrupt so
		// the exit status is always collected.
		waitCtx := context.WithoutCancel(ctx)
		if err := be.Stop(waitCtx, cur.Container); err != nil {
			return nil, err
		}
		code, err := be.Wait(waitCtx, cur.Container)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, &TaskFailedError{Msg: "interrupted", ExitCode: ExitInterrupted, Job: j}
		}
		if code != 0 {
			return nil, &TaskFailedError{Msg: fmt.Sprintf("task %q failed", task.DisplayName()), ExitCode: code, Job: j}
		}
	}

	changes := []string{fmt.Sprintf("LABEL %s=%s", backend.LabelBuildID, cur.Fingerprint)}
	if cur.Command != nil && len(cur.Image.Cmd) > 0 && opts.Cmd == nil {
		changes = append(changes, "CMD "+jsonList(cur.Image.Cmd))
	}
	for _, k := range sortedKeys(opts.Env) {
		changes = append(changes, fmt.Sprintf("ENV %s %s", k, opts.Env[k]))
	}
	if opts.WorkDir != "" {
		changes = append(changes, "WORKDIR "+opts.WorkDir)
	}
	if opts.Cmd != nil {
		changes = append(changes, "CMD "+jsonList(opts.Cmd))
	}

	img, err := be.Commit(ctx, cur.Container, backend.CommitOptions{Changes: changes})
	if err != nil {
		return nil, err
	}

	if task.Capture != "" {
		v, err := DecodeCapture(captured, task.CaptureEncoding)
		if err != nil {
			return nil, err
		}
		j.SetVar(task.Capture, v)
	}

	j.Changes = append(j.Changes, img.ID)
	j.SrcImage = img.ID
	if opts.WorkDir != "" {
		j.WorkDir = opts.WorkDir
	}
	logger.Info("✅ New image", "image", img.ID)
	j.emit(ctx, events.TaskCommitted, cur.Fingerprint, img.ID, nil)

	cur.Container = ""
	return img, j.cleanup(ctx)
}

// Cancel discards the task container without committing. The source image
// is left unchanged.
func (j *Job) Cancel(ctx context.Context) error {
	if j.current != nil {
		j.current.Container = ""
	}
	return j.cleanup(ctx)
}

// Close releases every container and debug image the job created.
func (j *Job) Close(ctx context.Context) error {
	j.current = nil
	return j.cleanup(ctx)
}

// cleanup removes every container except the in-flight one, and every
// debug image.
func (j *Job) cleanup(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	be := j.opts.Backend
	keep := ""
	if j.current != nil {
		keep = j.current.Container
	}

	var errs []error
	for i := len(j.containers) - 1; i >= 0; i-- {
		id := j.containers[i]
		if id == keep {
			continue
		}
		if err := be.RemoveContainer(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	j.containers = nil
	if keep != "" {
		j.containers = []string{keep}
	}

	for _, id := range j.debugImages {
		if err := be.RemoveImage(ctx, id, false); err != nil {
			errs = append(errs, err)
		}
	}
	j.debugImages = nil
	return errors.Join(errs...)
}

func (j *Job) renderEnv(env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		rk, err := j.Render(k)
		if err != nil {
			return nil, err
		}
		rv, err := j.Render(v)
		if err != nil {
			return nil, err
		}
		out[rk] = rv
	}
	return out, nil
}

func (j *Job) emit(ctx context.Context, kind events.Kind, fp, image string, err error) {
	e := events.Event{
		Kind:        kind,
		RunID:       j.opts.RunID,
		Chain:       j.opts.Chain.Name(),
		Fingerprint: fp,
		Image:       image,
		Time:        time.Now(),
	}
	if j.opts.Stage != nil {
		e.Stage = j.opts.Stage.Name
	}
	if j.current != nil && j.current.Task != nil {
		e.Task = j.current.Task.DisplayName()
	}
	if err != nil {
		e.Error = err.Error()
	}
	j.opts.Reporter.Emit(ctx, e)
}
