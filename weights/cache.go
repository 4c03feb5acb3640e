package weights

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/ceval/assets"
	"github.com/wippyai/ceval/errors"
)

const (
	// MinSize is the smallest blob trusted from the store. Anything shorter
	// is a leftover of a failed download.
	MinSize = 1024 * 1024

	// DefaultEvictDelay lets a concurrent Put finish before a corrupt
	// entry is removed, so a half-written entry does not survive.
	DefaultEvictDelay = 2 * time.Second

	defaultPath = "nnue/"
)

// Fetcher downloads an asset with progress reporting.
type Fetcher interface {
	Fetch(ctx context.Context, url string, onProgress assets.ProgressFunc) ([]byte, error)
}

// Version returns the cache key for a weights filename: the six characters
// following the "nn-" prefix. Names too short for that are used whole.
func Version(filename string) string {
	if len(filename) < 9 {
		return filename
	}
	return filename[3:9]
}

// CacheOptions configures a Cache. Store and Fetcher are required.
type CacheOptions struct {
	Store   Store
	Fetcher Fetcher
	Logger  *zap.Logger
	Locator assets.Locator
	// Path is the directory under the locator's base URL holding weights
	// files. Defaults to "nnue/".
	Path       string
	EvictDelay time.Duration
}

// Cache resolves weights blobs from a Store, falling back to a download.
// Several workers may share one Cache; concurrent resolves of the same
// version share a single download.
type Cache struct {
	store      Store
	fetcher    Fetcher
	logger     *zap.Logger
	locator    assets.Locator
	path       string
	evictDelay time.Duration

	group   singleflight.Group
	pending map[string]chan struct{}
	mu      sync.Mutex
}

// NewCache creates a Cache.
func NewCache(opts CacheOptions) *Cache {
	c := &Cache{
		store:      opts.Store,
		fetcher:    opts.Fetcher,
		logger:     opts.Logger,
		locator:    opts.Locator,
		path:       opts.Path,
		evictDelay: opts.EvictDelay,
		pending:    make(map[string]chan struct{}),
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.path == "" {
		c.path = defaultPath
	}
	if c.evictDelay <= 0 {
		c.evictDelay = DefaultEvictDelay
	}
	return c
}

// Resolve returns the blob for filename. A stored blob of at least MinSize
// is returned as is; otherwise the file is downloaded from
// <base>/<path>/<filename>?v=<version>, returned, and written back to the
// store in the background. Only the caller that starts a download receives
// progress updates. Canceling ctx abandons the wait but not a download
// other callers share.
func (c *Cache) Resolve(ctx context.Context, filename string, onProgress assets.ProgressFunc) ([]byte, error) {
	if filename == "" {
		return nil, errors.InvalidInput(errors.PhaseCache, "empty weights filename")
	}
	version := Version(filename)

	var returned atomic.Bool
	defer returned.Store(true)
	progress := onProgress
	if onProgress != nil {
		progress = func(p assets.Progress) {
			if !returned.Load() {
				onProgress(p)
			}
		}
	}

	// The shared download outlives any single caller; each caller stops
	// waiting on its own context.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(version, func() (any, error) {
		return c.download(shared, filename, version, progress)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, errors.Canceled(errors.PhaseCache, ctx.Err())
	}
}

func (c *Cache) download(ctx context.Context, filename, version string, onProgress assets.ProgressFunc) ([]byte, error) {
	if blob := c.lookup(ctx, version); blob != nil {
		return blob, nil
	}

	url := c.locator.URL(c.path+filename, version)
	blob, err := c.fetcher.Fetch(ctx, url, onProgress)
	if err != nil {
		return nil, err
	}
	if len(blob) < MinSize {
		return nil, errors.TooSmall(errors.PhaseFetch, url, len(blob), MinSize)
	}

	c.storeAsync(version, blob)
	return blob, nil
}

func (c *Cache) lookup(ctx context.Context, version string) []byte {
	blob, ok, err := c.store.Get(ctx, version)
	if err != nil {
		c.logger.Warn("weights store read failed", zap.String("version", version), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	if len(blob) < MinSize {
		c.logger.Info("ignoring truncated weights entry",
			zap.String("version", version), zap.Int("bytes", len(blob)))
		return nil
	}
	return blob
}

func (c *Cache) storeAsync(version string, blob []byte) {
	done := make(chan struct{})
	c.mu.Lock()
	c.pending[version] = done
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			if c.pending[version] == done {
				delete(c.pending, version)
			}
			c.mu.Unlock()
			close(done)
		}()
		if err := c.store.Put(context.Background(), version, blob); err != nil {
			c.logger.Warn("weights store write failed", zap.String("version", version), zap.Error(err))
		}
	}()
}

// EvictLater removes version from the store once the evict delay has
// passed and a pending write of that version has completed. Call it when
// the engine reports the weights as malformed.
func (c *Cache) EvictLater(version string) {
	time.AfterFunc(c.evictDelay, func() {
		c.wait(version)
		c.logger.Warn("removing corrupt weights from cache", zap.String("version", version))
		if err := c.store.Remove(context.Background(), version); err != nil {
			c.logger.Warn("weights store remove failed", zap.String("version", version), zap.Error(err))
		}
	})
}

// Flush waits for background writes to finish.
func (c *Cache) Flush() {
	c.mu.Lock()
	versions := make([]string, 0, len(c.pending))
	for v := range c.pending {
		versions = append(versions, v)
	}
	c.mu.Unlock()

	for _, v := range versions {
		c.wait(v)
	}
}

func (c *Cache) wait(version string) {
	c.mu.Lock()
	done := c.pending[version]
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}
