package loaders

import (
	"path/filepath"
	"sync"

	"github.com/ALEYI17/InfraSight_gpuview/internal/metrics"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type cacheEntry struct {
	path    string
	src     types.EventSource
	refs    int
	evicted bool
}

// Cache keeps recently opened experiments open so a recompute does not pay
// the open cost again. Handles returned by Open must be closed; the
// underlying source is closed once it has been evicted and every handle to
// it is released.
type Cache struct {
	mu      sync.Mutex
	opener  types.Opener
	entries *lru.Cache
	errs    error
}

func NewCache(size int, opener types.Opener) (*Cache, error) {
	c := &Cache{opener: opener}
	entries, err := lru.NewWithEvict(size, func(_, value interface{}) {
		e := value.(*cacheEntry)
		e.evicted = true
		c.release(e)
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating dataset cache")
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) Open(path string) (types.EventSource, error) {
	key := filepath.Clean(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries.Get(key); ok {
		e := v.(*cacheEntry)
		e.refs++
		metrics.DatasetCacheLookups.WithLabelValues("hit").Inc()
		return &cachedSource{EventSource: e.src, cache: c, entry: e}, nil
	}
	metrics.DatasetCacheLookups.WithLabelValues("miss").Inc()

	src, err := c.opener.Open(path)
	if err != nil {
		return nil, err
	}
	e := &cacheEntry{path: key, src: src, refs: 1}
	c.entries.Add(key, e)
	return &cachedSource{EventSource: src, cache: c, entry: e}, nil
}

// Len reports how many datasets are currently cached.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge evicts every dataset and returns the errors of the sources that
// could be closed right away or were closed since the last Purge.
func (c *Cache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	err := c.errs
	c.errs = nil
	return err
}

// release closes e when nothing references it any more. Callers hold c.mu.
func (c *Cache) release(e *cacheEntry) {
	if !e.evicted || e.refs > 0 {
		return
	}
	logutil.GetLogger().Debug("closing cached dataset", zap.String("path", e.path))
	if err := e.src.Close(); err != nil {
		c.errs = multierr.Append(c.errs, errors.Wrapf(err, "closing %s", e.path))
	}
}

type cachedSource struct {
	types.EventSource
	cache *Cache
	entry *cacheEntry
	once  sync.Once
}

func (s *cachedSource) Close() error {
	s.once.Do(func() {
		s.cache.mu.Lock()
		defer s.cache.mu.Unlock()
		s.entry.refs--
		s.cache.release(s.entry)
	})
	return nil
}
