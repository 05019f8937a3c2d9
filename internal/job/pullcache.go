package job

import (
	"context"
	"sync"

	"github.com/vk/bert/internal/backend"
	"github.com/vk/bert/internal/ctxlog"
)

// PullCache remembers pulled base images by reference for a whole build
// run. It is safe for concurrent use.
type PullCache struct {
	mu     sync.Mutex
	images map[string]*backend.Image
}

func NewPullCache() *PullCache {
	return &PullCache{images: make(map[string]*backend.Image)}
}

// Get pulls ref the first time it is asked for and returns the cached
// image afterwards.
func (c *PullCache) Get(ctx context.Context, be backend.Backend, ref string) (*backend.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if img, ok := c.images[ref]; ok {
		return img, nil
	}
	ctxlog.FromContext(ctx).Info("⬇️ Pulling image", "image", ref)
	img, err := be.Pull(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.images[ref] = img
	return img, nil
}
