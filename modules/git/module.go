package git

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/executil"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/internal/schema"
	"github.com/vk/bert/internal/tarutil"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Schema = schema.New(
	schema.Field{Name: "repo", Required: true, Coerce: schema.AsString, Help: "Repository URL or path"},
	schema.Field{Name: "path", Aliases: []string{"dest"}, Required: true, Coerce: schema.AsString, Help: "Destination directory inside the image"},
	schema.Field{Name: "ref", Coerce: schema.AsString, Default: "master", Help: "Branch, tag or commit to check out"},
)

var cacheKeyRe = regexp.MustCompile(`[^-_.A-Za-z0-9]+`)

// CacheKey names the host cache directory of repo.
func CacheKey(repo string) string {
	sum := sha256.Sum256([]byte(repo))
	prefix := hex.EncodeToString(sum[:])
	if suffix := cacheKeyRe.ReplaceAllString(path.Base(repo), ""); suffix != "" {
		return prefix + "-" + suffix
	}
	return prefix
}

// Checkout brings the cached clone of repo at dir to ref and returns the
// checked out commit.
func Checkout(ctx context.Context, repo, dir, ref string) (string, error) {
	logger := ctxlog.FromContext(ctx)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", err
		}
		if err := executil.Run(ctx, "", "git", "clone", repo, dir); err != nil {
			return "", err
		}
	}

	fetchHead := !isStaticRef(ctx, dir, ref)
	if fetchHead {
		if err := executil.Run(ctx, dir, "git", "fetch", repo, "--tags", ref); err != nil {
			// Some servers refuse fetching by commit hash.
			logger.Warn("Fetching ref directly failed, fetching everything.", "ref", ref, "error", err)
			fetchHead = false
			if err := executil.Run(ctx, dir, "git", "fetch", repo); err != nil {
				return "", err
			}
		}
	}
	if fetchHead {
		if err := executil.Run(ctx, dir, "git", "checkout", "FETCH_HEAD"); err != nil {
			logger.Warn("Ref not found at FETCH_HEAD, checking out directly.", "ref", ref)
			fetchHead = false
		}
	}
	if !fetchHead {
		if err := executil.Run(ctx, dir, "git", "checkout", ref); err != nil {
			return "", err
		}
	}
	return executil.Output(ctx, dir, "git", "log", "-1", "--format=%H")
}

// isStaticRef reports whether ref is a tag or a commit, which never move.
func isStaticRef(ctx context.Context, dir, ref string) bool {
	if executil.Succeeds(ctx, dir, "git", "show-ref", "-q", "--verify", "refs/tags/"+ref) {
		return true
	}
	return executil.Succeeds(ctx, dir, "git", "rev-parse", "-q", "--verify", ref+"^{commit}")
}

// OnRunGit is the handler for the 'git' task.
func OnRunGit(ctx context.Context, j *job.Job, params schema.Values) error {
	repo := params.String("repo")
	dest := path.Clean("/" + params.String("path"))
	src := filepath.Join(j.CacheDir(), CacheKey(repo))

	commit, err := Checkout(ctx, repo, src, params.String("ref"))
	if err != nil {
		return err
	}

	c, err := j.Create(ctx, map[string]any{"path": dest, "commit": commit}, job.CreateOptions{})
	if err != nil || c.CacheHit != nil {
		return err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tarutil.AddPath(tw, src, dest, tarutil.AddOptions{}); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := j.Backend().PutArchive(ctx, c.Container, "/", &buf); err != nil {
		return err
	}
	_, err = j.Commit(ctx, job.CommitOptions{})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask(&registry.TaskDefinition{
		Name:   "git",
		Doc:    "Check out a git repository into the image.",
		Schema: Schema,
		Run:    OnRunGit,
	})
}
