package blob

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxCachedSize is the largest blob Cached keeps in memory.
const DefaultMaxCachedSize = 1 << 20

// Cached keeps recently read blobs in an LRU in front of another Store.
type Cached struct {
	Store
	cache   *lru.Cache[string, *Blob]
	maxSize int64

	// gen changes on every Delete. A read that overlapped a Delete is not
	// cached.
	mu  sync.Mutex
	gen uint64
}

// NewCached wraps s with an LRU of up to entries blobs. Blobs larger than
// maxSize bytes are never cached; maxSize <= 0 means DefaultMaxCachedSize.
func NewCached(s Store, entries int, maxSize int64) (*Cached, error) {
	cache, err := lru.New[string, *Blob](entries)
	if err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxCachedSize
	}
	return &Cached{Store: s, cache: cache, maxSize: maxSize}, nil
}

func (c *Cached) Get(ctx context.Context, fileID string) (*Blob, error) {
	if b, ok := c.cache.Get(fileID); ok {
		return b, nil
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	b, err := c.Store.Get(ctx, fileID)
	if err != nil || b == nil {
		return b, err
	}
	if b.Size <= c.maxSize {
		c.mu.Lock()
		if c.gen == gen {
			c.cache.Add(fileID, b)
		}
		c.mu.Unlock()
	}
	return b, nil
}

// Delete evicts on both sides of the inner delete: reads that started
// before it or while it ran must not repopulate the cache.
func (c *Cached) Delete(ctx context.Context, fileID string) error {
	c.evict(fileID)
	defer c.evict(fileID)
	return c.Store.Delete(ctx, fileID)
}

func (c *Cached) evict(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Remove(fileID)
}

// Len reports the number of cached blobs.
func (c *Cached) Len() int {
	return c.cache.Len()
}
