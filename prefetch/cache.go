// Package prefetch is the navigator's bounded read-through document cache.
//
// The cache holds at most Capacity documents keyed by resource path and
// evicts in pure FIFO order: the oldest inserted entry goes first, and reads
// do not refresh recency. Every read hands out a deep copy so the renderer
// can never mutate a cached document. Freshly fetched documents are scanned
// for image nodes, and the images are prewarmed in the background on a
// best-effort basis.
package prefetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/viewnav/document"
)

// DefaultCapacity is the number of documents kept by default.
const DefaultCapacity = 8

// FetchFunc loads the document behind a resource path.
type FetchFunc func(ctx context.Context, path string) (document.Node, error)

// ImageWarmer issues fire-and-forget requests for image URLs. Failures are
// the warmer's business; they never reach the cache.
type ImageWarmer interface {
	Warm(ctx context.Context, urls []string)
}

// Cache is safe for concurrent use: background preloads and foreground
// navigations populate it from different goroutines.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	entries  map[string]document.Node

	fetch  FetchFunc
	warmer ImageWarmer
	logger *slog.Logger
	bg     sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the maximum number of cached documents. Values below 1
// are ignored.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithWarmer sets the image prewarmer. Default: none.
func WithWarmer(w ImageWarmer) Option {
	return func(c *Cache) { c.warmer = w }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache that loads misses through fetch.
func New(fetch FetchFunc, opts ...Option) *Cache {
	c := &Cache{
		capacity: DefaultCapacity,
		entries:  make(map[string]document.Node),
		fetch:    fetch,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns an independent copy of the document at path, fetching and
// caching it on a miss.
func (c *Cache) Get(ctx context.Context, path string) (document.Node, error) {
	if doc, ok := c.lookup(path); ok {
		c.logger.DebugContext(ctx, "prefetch: hit", "path", path)
		return doc, nil
	}

	doc, err := c.populate(ctx, path)
	if err != nil {
		return nil, err
	}
	return document.Clone(doc), nil
}

// Preload populates the cache for path ahead of need. It returns nothing
// and swallows every failure.
func (c *Cache) Preload(ctx context.Context, path string) {
	if c.Contains(path) {
		return
	}
	if _, err := c.populate(ctx, path); err != nil {
		c.logger.DebugContext(ctx, "prefetch: preload failed", "path", path, "error", err)
		return
	}
	c.logger.DebugContext(ctx, "prefetch: preloaded", "path", path)
}

func (c *Cache) lookup(path string) (document.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	return document.Clone(doc), true
}

// populate fetches path, stores the result and starts the image prewarm.
// The returned document is the cached original; callers must clone it
// before handing it out.
func (c *Cache) populate(ctx context.Context, path string) (document.Node, error) {
	doc, err := c.fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("prefetch: fetch %s: %w", path, err)
	}
	c.insert(path, doc)
	c.prewarm(ctx, doc)
	return doc, nil
}

func (c *Cache) insert(path string, doc document.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[path]; ok {
		// A concurrent populate got here first; keep its queue position.
		c.entries[path] = doc
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		c.logger.Debug("prefetch: evicted", "path", oldest)
	}
	c.order = append(c.order, path)
	c.entries[path] = doc
}

func (c *Cache) prewarm(ctx context.Context, doc document.Node) {
	if c.warmer == nil {
		return
	}
	urls := document.ImageURLs(doc)
	if len(urls) == 0 {
		return
	}
	// The prewarm outlives the navigation that triggered it.
	wctx := context.WithoutCancel(ctx)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.warmer.Warm(wctx, urls)
	}()
}

// Contains reports whether path is cached.
func (c *Cache) Contains(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	return ok
}

// Keys returns the cached paths, oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Capacity returns the eviction bound.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Clear drops every cached document.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.entries = make(map[string]document.Node)
}

// Wait blocks until background image prewarms have finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}
