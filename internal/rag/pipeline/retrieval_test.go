package pipeline

import (
	"context"
	"testing"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEmbedder struct {
	vector []float32
	dim    int
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fixedEmbedder) Dimension() int { return f.dim }

type cannedIndex struct {
	results   []schema.RetrievedCandidate
	lastLimit int
}

func (c *cannedIndex) Upsert(context.Context, []interfaces.IndexEntry) error { return nil }

func (c *cannedIndex) Delete(context.Context, string) error { return nil }

func (c *cannedIndex) Search(_ context.Context, _ []float32, k int) ([]schema.RetrievedCandidate, error) {
	c.lastLimit = k
	if len(c.results) > k {
		return c.results[:k], nil
	}
	return c.results, nil
}

func testLog() *logger.Logger {
	return logger.New("pipeline_test", "", "")
}

func TestRetrieveFiltersBelowThreshold(t *testing.T) {
	index := &cannedIndex{results: []schema.RetrievedCandidate{
		{ChunkID: "a", DocumentID: "doc-1", ChunkIndex: 0, Score: 0.91},
		{ChunkID: "b", DocumentID: "doc-2", ChunkIndex: 4, Score: 0.87},
		{ChunkID: "c", DocumentID: "doc-3", ChunkIndex: 2, Score: 0.40},
	}}
	r := NewRetriever(&fixedEmbedder{vector: []float32{1, 0}, dim: 2}, index, 3, 3, 0.5, 1, testLog())

	got, err := r.Retrieve(context.Background(), "data retention")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ChunkID)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "b", got[1].ChunkID)
	assert.Equal(t, 2, got[1].Rank)
	assert.Equal(t, 9, index.lastLimit, "should overfetch topK*factor")
}

func TestRetrieveDeduplicatesNearbyChunks(t *testing.T) {
	// Chunks 3 and 4 of doc-1 overlap the same passage; only the higher
	// scoring one should survive.
	index := &cannedIndex{results: []schema.RetrievedCandidate{
		{ChunkID: "a", DocumentID: "doc-1", ChunkIndex: 3, Score: 0.90},
		{ChunkID: "b", DocumentID: "doc-1", ChunkIndex: 4, Score: 0.88},
		{ChunkID: "c", DocumentID: "doc-1", ChunkIndex: 9, Score: 0.80},
		{ChunkID: "d", DocumentID: "doc-2", ChunkIndex: 4, Score: 0.75},
	}}
	r := NewRetriever(&fixedEmbedder{vector: []float32{1, 0}, dim: 2}, index, 4, 2, 0.1, 1, testLog())

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ChunkID)
	assert.Equal(t, "c", got[1].ChunkID)
	assert.Equal(t, "d", got[2].ChunkID)
}

func TestRetrieveTieBreakPrefersEarlierChunk(t *testing.T) {
	index := &cannedIndex{results: []schema.RetrievedCandidate{
		{ChunkID: "late", DocumentID: "doc-1", ChunkIndex: 7, Score: 0.8},
		{ChunkID: "early", DocumentID: "doc-1", ChunkIndex: 2, Score: 0.8},
	}}
	r := NewRetriever(&fixedEmbedder{vector: []float32{1, 0}, dim: 2}, index, 2, 2, 0.1, 1, testLog())

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ChunkID)
}

func TestRetrieveEmptyIndexIsNotAnError(t *testing.T) {
	r := NewRetriever(&fixedEmbedder{vector: []float32{1, 0}, dim: 2}, &cannedIndex{}, 3, 3, 0.5, 1, testLog())

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	results := make([]schema.RetrievedCandidate, 10)
	for i := range results {
		results[i] = schema.RetrievedCandidate{
			ChunkID:    string(rune('a' + i)),
			DocumentID: "doc-" + string(rune('a'+i)),
			ChunkIndex: 0,
			Score:      0.9 - float64(i)*0.01,
		}
	}
	r := NewRetriever(&fixedEmbedder{vector: []float32{1, 0}, dim: 2}, &cannedIndex{results: results}, 3, 4, 0.1, 1, testLog())

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Rank, got[1].Rank, got[2].Rank})
}
