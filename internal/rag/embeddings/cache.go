package embeddings

import (
	"context"
	"time"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/pkg/util"
)

// CachingEmbedder memoizes embeddings per input text. Query embedding
// sits on the hot path of every ask; repeated and follow-up questions
// hit the cache instead of the embedding service.
type CachingEmbedder struct {
	inner interfaces.Embedder
	cache *util.LRUCache[string, []float32]
}

// NewCachingEmbedder wraps inner with an LRU of the given capacity.
// Entries expire after ttl so a re-deployed embedding model cannot
// serve stale vectors forever.
func NewCachingEmbedder(inner interfaces.Embedder, capacity int, ttl time.Duration) (*CachingEmbedder, error) {
	cache, err := util.NewLRUCache[string, []float32](util.CacheConfig{Capacity: capacity, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &CachingEmbedder{inner: inner, cache: cache}, nil
}

// Embed serves cached vectors where possible and embeds only the
// misses, preserving input order in the result.
func (c *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vectors {
		results[missIdx[j]] = vec
		c.cache.Put(missTexts[j], vec)
	}
	return results, nil
}

// Dimension reports the inner embedder's dimension.
func (c *CachingEmbedder) Dimension() int {
	return c.inner.Dimension()
}

var _ interfaces.Embedder = (*CachingEmbedder)(nil)
