// Package dedupe tracks settled run IDs so a run is settled at most once.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 100_000

// Deduper records seen run IDs to ensure at-most-once settlement.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID so it can be retried. Used when a settlement was
	// recorded but could not be queued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// lruDeduper keeps the most recently recorded IDs in an LRU cache.
// With maxSize <= 0 it falls back to an unbounded map.
type lruDeduper struct {
	maxSize int
	cache   *lru.Cache[string, struct{}]

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &lruDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}

	if d.maxSize > 0 {
		cache, err := lru.New[string, struct{}](d.maxSize)
		if err != nil {
			// lru.New only fails for a non-positive size.
			panic(err)
		}
		d.cache = cache
		return d
	}
	d.seen = make(map[string]struct{})
	return d
}

func (d *lruDeduper) SeenAndRecord(_ context.Context, id string) bool {
	if d.cache != nil {
		ok, _ := d.cache.ContainsOrAdd(id, struct{}{})
		return ok
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	return false
}

func (d *lruDeduper) Unrecord(_ context.Context, id string) {
	if d.cache != nil {
		d.cache.Remove(id)
		return
	}

	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
}

func (d *lruDeduper) Size() int64 {
	if d.cache != nil {
		return int64(d.cache.Len())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
