package embeddings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls     int
	lastBatch []string
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.lastBatch = texts
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0}
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int { return 2 }

func TestCachingEmbedderServesRepeatsFromCache(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachingEmbedder(inner, 16, time.Minute)
	require.NoError(t, err)

	first, err := cached.Embed(context.Background(), []string{"gdpr retention"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	second, err := cached.Embed(context.Background(), []string{"gdpr retention"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "repeat query must not reach the backend")
	assert.Equal(t, first, second)
}

func TestCachingEmbedderEmbedsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachingEmbedder(inner, 16, time.Minute)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), []string{"aa"})
	require.NoError(t, err)

	got, err := cached.Embed(context.Background(), []string{"bbbb", "aa", "cc"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"bbbb", "cc"}, inner.lastBatch, "cached text must not be re-embedded")
	assert.Equal(t, []float32{4, 0}, got[0])
	assert.Equal(t, []float32{2, 0}, got[1])
	assert.Equal(t, []float32{2, 0}, got[2])
}

func TestCachingEmbedderRejectsNonPositiveCapacity(t *testing.T) {
	_, err := NewCachingEmbedder(&countingEmbedder{}, 0, time.Minute)
	assert.Error(t, err)
}
