package engine

import (
	"context"
	"log/slog"
	"sync"
)

// BundleCache memoizes the bundle build across runs. Bundling is the most
// expensive fixed cost of a render, and the bundle only changes when the
// composition project on disk changes, so one build serves every job until
// Invalidate is called.
//
// Invalidation contract: anything that changes the composition project
// (a deploy, a template update) must call Invalidate; the next run then
// rebuilds. There is no automatic file watching.
type BundleCache struct {
	engine Engine
	logger *slog.Logger

	mu         sync.Mutex
	bundlePath string
}

// NewBundleCache wraps an engine with bundle memoization.
func NewBundleCache(engine Engine, logger *slog.Logger) *BundleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &BundleCache{engine: engine, logger: logger}
}

// Get returns the cached bundle path, building it on first use. Concurrent
// callers serialize on the build; a failed build leaves the cache empty so
// the next caller retries.
func (c *BundleCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bundlePath != "" {
		return c.bundlePath, nil
	}

	path, err := c.engine.Prepare(ctx)
	if err != nil {
		return "", err
	}
	c.bundlePath = path
	return path, nil
}

// Invalidate drops the cached bundle so the next Get rebuilds it.
func (c *BundleCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bundlePath != "" {
		c.logger.Info("bundle cache invalidated", slog.String("bundle_path", c.bundlePath))
	}
	c.bundlePath = ""
}
