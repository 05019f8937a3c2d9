package build

import (
	"context"
	"fmt"
	"maps"
	"time"

	"dario.cat/mergo"
	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/display"
	"github.com/vk/bert/internal/events"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/template"
	"github.com/vk/bert/internal/yamldoc"
)

// Options holds the collaborators of a Builder.
type Options struct {
	Registry       *registry.Registry
	Backend        backend.Backend
	Renderer       *template.Renderer
	Display        *display.Display
	Reporter       events.Reporter
	ShellOnFailure bool
	// Environ is the lowest-precedence variable layer, exposed as env.
	Environ map[string]string
}

// Builder runs build documents. One Builder corresponds to one build run;
// its pull cache is shared by all jobs of that run.
type Builder struct {
	opts  Options
	pulls *job.PullCache
	runID string
}

// ImageResult is the final image of one job.
type ImageResult struct {
	Chain  string
	Stage  string
	Source string
	Image  string
	Tag    string
}

// Result is the outcome of a successful build.
type Result struct {
	RunID  string
	Vars   map[string]any
	Images []ImageResult
}

// New creates a Builder.
func New(opts Options) *Builder {
	if opts.Renderer == nil {
		opts.Renderer = template.New()
	}
	if opts.Display == nil {
		opts.Display = display.New(false, nil, nil, nil)
	}
	if opts.Reporter == nil {
		opts.Reporter = events.LogReporter{}
	}
	return &Builder{
		opts:  opts,
		pulls: job.NewPullCache(),
		runID: events.NewRunID(),
	}
}

// RunID identifies this build run in events.
func (b *Builder) RunID() string { return b.runID }

// Run executes every stage of root for every config chain. Each chain
// starts from initial; the final variables of all chains are merged, later
// chains overwriting earlier ones.
func (b *Builder) Run(ctx context.Context, root *config.Root, initial map[string]any) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	chains := config.Expand(root)
	logger.Info("🚀 Starting build", "file", root.File, "chains", len(chains), "stages", len(root.Stages), "run_id", b.runID)
	b.emit(ctx, events.Event{Kind: events.BuildStarted})

	res := &Result{RunID: b.runID, Vars: make(map[string]any)}
	for _, chain := range chains {
		vars := maps.Clone(initial)
		if vars == nil {
			vars = make(map[string]any)
		}
		for _, stage := range root.Stages {
			out, images, err := b.RunStage(ctx, root, chain, stage, vars)
			if err != nil {
				err = stageError(chain, stage, err)
				b.emit(ctx, events.Event{Kind: events.BuildFinished, Error: err.Error()})
				return nil, err
			}
			vars = out
			res.Images = append(res.Images, images...)
		}
		if err := mergo.Merge(&res.Vars, vars, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue); err != nil {
			return nil, fmt.Errorf("failed to merge variables of config %q: %w", chain.Name(), err)
		}
	}

	b.emit(ctx, events.Event{Kind: events.BuildFinished})
	logger.Info("🏁 Build finished.", "images", len(res.Images))
	return res, nil
}

// RunStage runs stage once per source image of the stage (or of the
// chain, when the stage declares none) and returns the saved variables.
func (b *Builder) RunStage(ctx context.Context, root *config.Root, chain config.Chain, stage *config.Stage, vars map[string]any) (map[string]any, []ImageResult, error) {
	ctx = ctxlog.With(ctx, "config", chain.Name(), "stage", stage.Name)

	images := stage.Images
	if len(images) == 0 {
		images = chain.Images()
	}
	if len(images) == 0 {
		return nil, nil, &yamldoc.ConfigError{Pos: stage.Pos, Msg: "stage lacks images"}
	}

	var results []ImageResult
	for _, src := range images {
		j := job.New(job.Options{
			Backend:   b.opts.Backend,
			Renderer:  b.opts.Renderer,
			Display:   b.opts.Display,
			Reporter:  b.opts.Reporter,
			PullCache: b.pulls,
			Root:      root,
			Chain:     chain,
			Stage:     stage,
			Environ:   b.opts.Environ,
			SavedVars: vars,
			RunID:     b.runID,
		})
		res, err := b.runImage(ctx, j, chain, stage, src)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, res)
		vars = j.SavedVars
	}

	b.emit(ctx, events.Event{Kind: events.StageFinished, Chain: chain.Name(), Stage: stage.Name})
	return vars, results, nil
}

func (b *Builder) runImage(ctx context.Context, j *job.Job, chain config.Chain, stage *config.Stage, src string) (ImageResult, error) {
	ctx = ctxlog.With(ctx, "from", src)
	logger := ctxlog.FromContext(ctx)
	defer func() {
		if cerr := j.Close(ctx); cerr != nil {
			logger.Warn("Failed to clean up job resources.", "error", cerr)
		}
	}()

	logger.Info("▶️ Stage")
	if err := j.Setup(ctx, src); err != nil {
		return ImageResult{}, b.onFailure(ctx, j, err)
	}
	for _, task := range stage.Tasks {
		if err := b.runTask(ctx, j, chain, stage, task); err != nil {
			return ImageResult{}, b.onFailure(ctx, j, err)
		}
	}

	res := ImageResult{Chain: chain.Name(), Stage: stage.Name, Source: src, Image: j.SrcImage}
	if stage.BuildTag != "" {
		tag, err := j.Render(stage.BuildTag)
		if err != nil {
			return res, err
		}
		if err := b.opts.Backend.Tag(ctx, j.SrcImage, tag); err != nil {
			return res, err
		}
		res.Tag = tag
		logger.Info("🏷️ Tagged image", "image", j.SrcImage, "tag", tag)
	}
	return res, nil
}

// onFailure opens a debug shell on the failed container when enabled, then
// hands back the original failure.
func (b *Builder) onFailure(ctx context.Context, j *job.Job, err error) error {
	if !b.opts.ShellOnFailure {
		return err
	}
	cur := j.Current()
	if cur == nil || cur.Container == "" {
		return err
	}
	logger := ctxlog.FromContext(ctx)
	logger.Error("Task failed, starting debug shell.", "error", err)
	if shellErr := j.DebugShell(ctx); shellErr != nil {
		logger.Warn("Debug shell failed.", "error", shellErr)
	}
	return err
}

func (b *Builder) runTask(ctx context.Context, j *job.Job, chain config.Chain, stage *config.Stage, task *config.Task) error {
	def, ok := b.opts.Registry.Lookup(task.Action)
	if !ok {
		return &yamldoc.ConfigError{Pos: task.Pos, Msg: fmt.Sprintf("unknown task %q", task.Action)}
	}

	if task.When != "" {
		run, err := j.Eval(task.When)
		if err != nil {
			return locate(err, task.Pos)
		}
		if !run {
			ctxlog.FromContext(ctx).Info("⏭️ Skipping task", "task", task.DisplayName(), "when", task.When)
			b.emit(ctx, events.Event{
				Kind:  events.TaskSkipped,
				Chain: chain.Name(),
				Stage: stage.Name,
				Task:  task.DisplayName(),
			})
			return nil
		}
	}

	return j.RunTask(ctx, task, func(ctx context.Context) error {
		params, err := def.Schema.Validate(j, task.Body)
		if err != nil {
			return err
		}
		return def.Run(ctx, j, params)
	})
}

func (b *Builder) emit(ctx context.Context, e events.Event) {
	e.RunID = b.runID
	e.Time = time.Now()
	b.opts.Reporter.Emit(ctx, e)
}
