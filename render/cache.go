package render

import (
	"container/list"
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/OGKevin/plato/document"
)

const (
	// DefaultBudget is the frame memory budget when the settings leave
	// it unset.
	DefaultBudget = 32 * 1024 * 1024

	// DefaultPrefetchWorkers bounds background rendering concurrency.
	DefaultPrefetchWorkers = 2
)

// Key identifies one cached frame: a document, a page reference and a
// layout snapshot, all reduced to comparable fingerprints.
type Key struct {
	Doc    uint64
	Ref    document.PageRef
	Params uint64
}

// NewKey builds the cache key for a page of doc under params.
func NewKey(doc document.Document, ref document.PageRef, params document.LayoutParams) Key {
	return Key{Doc: doc.Fingerprint(), Ref: ref, Params: params.Fingerprint()}
}

// flightID serializes the key for the in-flight render group.
func (k Key) flightID() string {
	return fmt.Sprintf("%x/%d:%d:%d/%x", k.Doc, k.Ref.Page, k.Ref.Start, k.Ref.End, k.Params)
}

// Frame is a rasterized page. Gen increases monotonically with every
// completed render, so consumers can order frames regardless of cache
// residency. The pixel data is owned by the cache and borrowed by the
// compositor for the duration of a display update.
type Frame struct {
	Img *image.Gray
	Key Key
	Gen uint64
}

// RenderFunc produces the frame pixels for a key. It may block for the
// duration of a codec call and is invoked at most once per key at any
// time.
type RenderFunc func(ctx context.Context, key Key) (*image.Gray, error)

type entry struct {
	frame   *Frame
	size    int64
	element *list.Element
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Bytes     int64
	Entries   int
}

// Cache memoizes rendered frames under a byte budget with strict LRU
// eviction over unpinned entries. At most one render per key is in
// flight at any time; concurrent requests for the same key attach to
// the running render. Prefetch feeds a bounded worker pool.
//
// A layout change is applied with SetCurrentParams: frames keyed to a
// superseded snapshot are discarded when their render completes, while
// already resident stale entries age out through normal LRU order.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	lru     *list.List // front = most recently used
	bytes   int64
	budget  int64
	pins    map[Key]int
	pending map[Key]struct{} // queued or running prefetches
	params  uint64           // current layout fingerprint, 0 = any

	flight singleflight.Group
	gen    atomic.Uint64

	queue   chan prefetchTask
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type prefetchTask struct {
	key    Key
	render RenderFunc
}

// NewCache creates a cache with the given byte budget and prefetch
// worker count. Non-positive arguments select the defaults. The
// workers start immediately; Close stops them.
func NewCache(budget int64, workers int) *Cache {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if workers <= 0 {
		workers = DefaultPrefetchWorkers
	}
	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	c := &Cache{
		entries: make(map[Key]*entry),
		lru:     list.New(),
		budget:  budget,
		pins:    make(map[Key]int),
		pending: make(map[Key]struct{}),
		queue:   make(chan prefetchTask, queueSize),
		done:    make(chan struct{}),
	}
	c.running.Store(true)

	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c
}

// Get returns the cached frame for key and refreshes its LRU position.
func (c *Cache) Get(key Key) (*Frame, bool) {
	c.mu.RLock()
	_, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		// Evicted between the two lock acquisitions.
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.lru.MoveToFront(e.element)
	f := e.frame
	c.mu.Unlock()

	c.hits.Add(1)
	return f, true
}

// GetOrRender returns the cached frame or renders it, deduplicating
// concurrent renders of the same key. The returned frame is valid even
// when a concurrent layout change kept it out of the cache.
func (c *Cache) GetOrRender(ctx context.Context, key Key, render RenderFunc) (*Frame, error) {
	if !c.running.Load() {
		return nil, ErrCacheClosed
	}
	if f, ok := c.Get(key); ok {
		return f, nil
	}
	return c.renderFlight(ctx, key, render)
}

func (c *Cache) renderFlight(ctx context.Context, key Key, render RenderFunc) (*Frame, error) {
	v, err, _ := c.flight.Do(key.flightID(), func() (any, error) {
		img, err := render(ctx, key)
		if err != nil {
			return nil, err
		}
		f := &Frame{Img: img, Key: key, Gen: c.gen.Add(1)}
		c.insert(f)
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Frame), nil
}

// Prefetch schedules background renders for the keys that are neither
// resident nor already queued, in the given priority order. Keys are
// pinned while their prefetch is in flight. Best effort: when the
// queue is full the remainder of the batch is dropped.
func (c *Cache) Prefetch(render RenderFunc, keys ...Key) {
	if render == nil || !c.running.Load() {
		return
	}
	for _, key := range keys {
		if !c.reserve(key) {
			continue
		}
		select {
		case c.queue <- prefetchTask{key: key, render: render}:
		default:
			c.release(key)
		}
	}
}

// Pin excludes key from eviction until a matching Unpin. Pinning a key
// before its frame exists is allowed and covers the render in flight.
func (c *Cache) Pin(key Key) {
	c.mu.Lock()
	c.pins[key]++
	c.mu.Unlock()
}

// Unpin releases one pin on key and, once the key is unpinned, brings
// the cache back under budget.
func (c *Cache) Unpin(key Key) {
	c.mu.Lock()
	c.unpinLocked(key)
	c.mu.Unlock()
}

// SetCurrentParams declares the layout fingerprint renders are valid
// for. Completing renders keyed to any other fingerprint are discarded
// instead of inserted; resident entries are left to age out via LRU.
func (c *Cache) SetCurrentParams(fp uint64) {
	c.mu.Lock()
	c.params = fp
	c.mu.Unlock()
}

// Stats returns current counters. The atomic counters are read without
// taking the cache lock.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	bytes := c.bytes
	entries := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Bytes:     bytes,
		Entries:   entries,
	}
}

// Close stops the prefetch workers and rejects further work. Safe to
// call more than once.
func (c *Cache) Close() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.done)
	c.wg.Wait()
}

func (c *Cache) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case t := <-c.queue:
			c.runPrefetch(t)
		}
	}
}

func (c *Cache) runPrefetch(t prefetchTask) {
	defer c.release(t.key)
	if c.stale(t.key) {
		return
	}
	if _, ok := c.Get(t.key); ok {
		return
	}
	// Errors are dropped: prefetch is opportunistic and the foreground
	// request for the same page will surface them.
	_, _ = c.renderFlight(context.Background(), t.key, t.render)
}

// reserve marks key as a pending prefetch and pins it. It reports
// false when the key needs no prefetch.
func (c *Cache) reserve(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}
	if _, ok := c.pending[key]; ok {
		return false
	}
	if c.params != 0 && key.Params != c.params {
		return false
	}
	c.pending[key] = struct{}{}
	c.pins[key]++
	return true
}

func (c *Cache) release(key Key) {
	c.mu.Lock()
	delete(c.pending, key)
	c.unpinLocked(key)
	c.mu.Unlock()
}

func (c *Cache) stale(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params != 0 && key.Params != c.params
}

// insert stores a completed frame, evicting least recently used
// unpinned entries to stay within budget. Must not hold c.mu.
func (c *Cache) insert(f *Frame) {
	size := frameSize(f)
	if size <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.params != 0 && f.Key.Params != c.params {
		// Superseded layout: discard on arrival.
		return
	}
	if old, ok := c.entries[f.Key]; ok {
		c.lru.Remove(old.element)
		c.bytes -= old.size
		delete(c.entries, f.Key)
	}
	if size > c.budget && c.pins[f.Key] == 0 {
		// Larger than the whole budget; caching it would only churn.
		return
	}

	e := &entry{frame: f, size: size}
	e.element = c.lru.PushFront(e)
	c.entries[f.Key] = e
	c.bytes += size
	c.evictLocked(c.budget)
}

func (c *Cache) unpinLocked(key Key) {
	switch n := c.pins[key]; {
	case n > 1:
		c.pins[key] = n - 1
	case n == 1:
		delete(c.pins, key)
		c.evictLocked(c.budget)
	}
}

// evictLocked removes unpinned entries from the LRU tail until bytes
// fit the target. Must be called with c.mu held.
func (c *Cache) evictLocked(target int64) {
	el := c.lru.Back()
	for el != nil && c.bytes > target {
		prev := el.Prev()
		e := el.Value.(*entry)
		if c.pins[e.frame.Key] == 0 {
			c.lru.Remove(el)
			c.bytes -= e.size
			delete(c.entries, e.frame.Key)
			c.evictions.Add(1)
		}
		el = prev
	}
}

func frameSize(f *Frame) int64 {
	if f == nil || f.Img == nil {
		return 0
	}
	return int64(len(f.Img.Pix))
}
