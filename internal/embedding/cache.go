package embedding

import (
	"container/list"
	"context"
	"sync"
)

// EmbeddingCache is an LRU cache for embeddings keyed by normalized sequence.
type EmbeddingCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present and marks it recently used.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachedEmbedder wraps an Embedder with an LRU cache. Only misses reach the inner embedder,
// and they are sent as one batch.
type CachedEmbedder struct {
	inner Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps inner with a cache of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: NewEmbeddingCache(capacity)}
}

// Embed returns the cached vector or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, seq string) ([]float32, error) {
	key := NormalizeSequence(seq)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, v)
	return v, nil
}

// EmbedBatch serves hits from the cache and embeds the misses in one inner call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, seqs []string) ([][]float32, error) {
	if len(seqs) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(seqs))
	var missKeys []string
	var missPos []int
	for i, s := range seqs {
		key := NormalizeSequence(s)
		if v, ok := c.cache.Get(key); ok {
			out[i] = v
			continue
		}
		missKeys = append(missKeys, key)
		missPos = append(missPos, i)
	}
	if len(missKeys) == 0 {
		return out, nil
	}
	vecs, err := c.inner.EmbedBatch(ctx, missKeys)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[missPos[j]] = v
		c.cache.Set(missKeys[j], v)
	}
	return out, nil
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
