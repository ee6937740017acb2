// Package imagecache keeps rendered word cloud images in a bounded LRU and
// coalesces concurrent generations for the same key.
//
// At most one generation runs per key. Callers that miss while a generation is
// running wait for it and observe the same entry or the same error. A
// generation is never cancelled: a caller whose context ends stops waiting,
// but the generation still completes and fills the cache.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/AnechkaShv/notecloud/internal/metrics"
)

// DefaultCapacity matches the number of images the service keeps by default.
const DefaultCapacity = 200

var (
	// ErrNoGenerator is returned by Ensure and Refresh when called without a
	// generator.
	ErrNoGenerator = errors.New("imagecache: no generator")
	// ErrEmptyImage is reported when a generator succeeds with no bytes.
	ErrEmptyImage = errors.New("imagecache: generator returned an empty image")
)

// Entry is a cached image.
type Entry struct {
	Key        string
	Image      []byte
	InsertedAt time.Time
}

// Generator produces the encoded image for key.
type Generator func(ctx context.Context, key string) ([]byte, error)

// call is one in-flight generation. entry and err are written before done is
// closed, and done is closed last so waiters see the eviction hook's effects.
type call struct {
	done  chan struct{}
	entry Entry
	err   error
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, Entry]
	size    int
	flights map[string]*call

	onEvict func(Entry)
	log     logr.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithEvictHook sets a function called with every entry the LRU policy
// evicts. It is not called for Invalidate or for overwrites. The hook runs
// after the entry has left the cache and without the cache lock held, so it
// may call back into the Cache but cannot veto or observe the removal.
func WithEvictHook(fn func(Entry)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

func WithLogger(log logr.Logger) Option {
	return func(c *Cache) { c.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock replaces time.Now for InsertedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns a cache holding at most capacity entries.
func New(capacity int, opts ...Option) (*Cache, error) {
	// Evictions are detected in insert so that Remove does not look like one.
	lru, err := simplelru.NewLRU[string, Entry](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("imagecache: %w", err)
	}
	c := &Cache{
		lru:     lru,
		size:    capacity,
		flights: make(map[string]*call),
		log:     logr.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the entry for key and marks it most recently used.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		c.metrics.Hit()
	} else {
		c.metrics.Miss()
	}
	return e, ok
}

// Ensure returns the cached entry for key, or waits for a generation of it.
// A running generation is joined; otherwise gen is started.
func (c *Cache) Ensure(ctx context.Context, key string, gen Generator) (Entry, error) {
	if gen == nil {
		return Entry{}, ErrNoGenerator
	}
	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		c.metrics.Hit()
		return e, nil
	}
	c.metrics.Miss()
	cl := c.startLocked(ctx, key, gen)
	c.mu.Unlock()
	return wait(ctx, cl)
}

// Refresh regenerates key even when it is cached, joining a running
// generation if there is one. On failure the previous entry stays.
func (c *Cache) Refresh(ctx context.Context, key string, gen Generator) (Entry, error) {
	if gen == nil {
		return Entry{}, ErrNoGenerator
	}
	c.mu.Lock()
	cl := c.startLocked(ctx, key, gen)
	c.mu.Unlock()
	return wait(ctx, cl)
}

// Invalidate drops the entry for key and reports whether one existed. A
// running generation for key is left alone and will insert when it finishes.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	ok := c.lru.Remove(key)
	n, f := c.lru.Len(), len(c.flights)
	c.mu.Unlock()
	if ok {
		c.metrics.Invalidate()
		c.metrics.SetSizes(n, f)
		c.log.V(1).Info("Invalidated cached image", "key", key)
	}
	return ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// InFlight returns the number of running generations.
func (c *Cache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flights)
}

// Keys returns the cached keys from least to most recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

func (c *Cache) startLocked(ctx context.Context, key string, gen Generator) *call {
	if cl, ok := c.flights[key]; ok {
		c.metrics.Attach()
		return cl
	}
	cl := &call{done: make(chan struct{})}
	c.flights[key] = cl
	c.metrics.SetSizes(c.lru.Len(), len(c.flights))
	go c.run(context.WithoutCancel(ctx), key, gen, cl)
	return cl
}

func (c *Cache) run(ctx context.Context, key string, gen Generator, cl *call) {
	log := c.log.WithValues("key", key)
	log.V(1).Info("Generating image")
	start := time.Now()

	img, err := generate(ctx, key, gen)
	c.metrics.Generated(time.Since(start), err)

	var evicted *Entry
	c.mu.Lock()
	if err == nil {
		cl.entry = Entry{Key: key, Image: img, InsertedAt: c.now()}
		evicted = c.insertLocked(cl.entry)
	}
	cl.err = err
	delete(c.flights, key)
	n, f := c.lru.Len(), len(c.flights)
	c.mu.Unlock()
	defer close(cl.done)

	c.metrics.SetSizes(n, f)
	if err != nil {
		log.Error(err, "Image generation failed")
	} else {
		log.V(1).Info("Generated image", "bytes", len(img), "duration", time.Since(start))
	}
	if evicted != nil {
		c.metrics.Evict()
		if c.onEvict != nil {
			c.onEvict(*evicted)
		}
	}
}

// insertLocked adds or overwrites e, evicting the oldest entry first when a
// new key would exceed capacity.
func (c *Cache) insertLocked(e Entry) *Entry {
	var evicted *Entry
	if !c.lru.Contains(e.Key) && c.lru.Len() >= c.size {
		if _, old, ok := c.lru.RemoveOldest(); ok {
			evicted = &old
		}
	}
	c.lru.Add(e.Key, e)
	return evicted
}

func generate(ctx context.Context, key string, gen Generator) (img []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("generate %q: panic: %v", key, r)
		}
	}()
	img, err = gen(ctx, key)
	if err == nil && len(img) == 0 {
		err = ErrEmptyImage
	}
	return img, err
}

func wait(ctx context.Context, cl *call) (Entry, error) {
	select {
	case <-cl.done:
		return cl.entry, cl.err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}
