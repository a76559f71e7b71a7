package embed

import (
	"context"
	"fmt"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when NewCachedProvider is given a non-positive
// cache size.
const DefaultCacheSize = 1000

// CachedProvider puts an LRU in front of another Provider so repeated
// inputs (the same query asked twice, a chunk re-embedded after a no-op
// edit) never reach the model. Keys are a fast 64-bit content hash of the
// input salted with the model id, so switching models naturally misses the
// old entries instead of serving a wrong-dimension vector.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[uint64, []float32]
}

// NewCachedProvider wraps inner with an LRU of the given size.
func NewCachedProvider(inner Provider, cacheSize int) *CachedProvider {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[uint64, []float32](cacheSize)
	return &CachedProvider{inner: inner, cache: cache}
}

// cacheKey hashes the input and model id together. FNV-1a is plenty here:
// a rare collision costs one wrong cache hit on a best-effort cache, and
// the hash runs on every single embed call, so it has to be cheap.
func (c *CachedProvider) cacheKey(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.inner.ModelID()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch serves what it can from the cache and sends only the misses
// to the wrapped provider, reassembling results in input order.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d inputs", len(fresh), len(missTexts))
	}

	for j, i := range missIdx {
		results[i] = fresh[j]
		c.cache.Add(c.cacheKey(texts[i]), fresh[j])
	}
	return results, nil
}

func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedProvider) ModelID() string { return c.inner.ModelID() }

func (c *CachedProvider) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

func (c *CachedProvider) Close() error { return c.inner.Close() }

// Inner returns the wrapped provider, for callers that need the concrete
// ONNX or fallback implementation (e.g. health reporting).
func (c *CachedProvider) Inner() Provider { return c.inner }
