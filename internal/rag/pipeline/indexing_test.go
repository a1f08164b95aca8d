package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/internal/rag/splitters"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbedder derives a deterministic vector from each text.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.fail {
		return nil, &ragerr.EmbeddingServiceError{Transient: true, Err: errors.New("upstream 503")}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (h *hashEmbedder) Dimension() int { return 2 }

type capturingIndex struct {
	mu      sync.Mutex
	upserts [][]interfaces.IndexEntry
	deleted []string
	fail    bool
}

func (c *capturingIndex) Upsert(_ context.Context, entries []interfaces.IndexEntry) error {
	if c.fail {
		return errors.New("index unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts = append(c.upserts, entries)
	return nil
}

func (c *capturingIndex) Delete(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, documentID)
	return nil
}

func (c *capturingIndex) Search(context.Context, []float32, int) ([]schema.RetrievedCandidate, error) {
	return nil, nil
}

func newTestPipeline(t *testing.T, embedder interfaces.Embedder, index interfaces.VectorIndex) *IndexingPipeline {
	t.Helper()
	splitter, err := splitters.NewCharSplitter(1000, 200)
	require.NoError(t, err)
	return NewIndexingPipeline(splitter, embedder, index, testLog())
}

func TestIndexPublishesAllChunksInOneUpsert(t *testing.T) {
	index := &capturingIndex{}
	p := newTestPipeline(t, &hashEmbedder{}, index)

	text := strings.Repeat("x", 2500)
	chunks, err := p.Index(context.Background(), "doc-1", "policy.pdf", text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	require.Len(t, index.upserts, 1, "a document must become searchable atomically")
	entries := index.upserts[0]
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, "doc-1", e.DocumentID)
		assert.Equal(t, i, e.ChunkIndex)
		assert.Equal(t, "policy.pdf", e.Filename)
		assert.LessOrEqual(t, len([]rune(e.Snippet)), snippetLimit)
		assert.Len(t, e.Vector, 2)
	}
	for _, c := range chunks {
		assert.NotEmpty(t, c.Embedding)
	}
}

func TestIndexEmbedFailureWrapsIngestionFailure(t *testing.T) {
	index := &capturingIndex{}
	p := newTestPipeline(t, &hashEmbedder{fail: true}, index)

	_, err := p.Index(context.Background(), "doc-1", "policy.pdf", strings.Repeat("x", 1500))

	var ingest *ragerr.IngestionFailure
	require.ErrorAs(t, err, &ingest)
	assert.Equal(t, "doc-1", ingest.DocumentID)
	assert.Equal(t, "embed", ingest.Reason)
	var svc *ragerr.EmbeddingServiceError
	assert.ErrorAs(t, err, &svc)
	assert.Empty(t, index.upserts, "nothing may reach the index on failure")
}

func TestIndexUpsertFailureWrapsIngestionFailure(t *testing.T) {
	p := newTestPipeline(t, &hashEmbedder{}, &capturingIndex{fail: true})

	_, err := p.Index(context.Background(), "doc-1", "policy.pdf", "short text")

	var ingest *ragerr.IngestionFailure
	require.ErrorAs(t, err, &ingest)
	assert.Equal(t, "index", ingest.Reason)
}

func TestIndexEmptyTextProducesNothing(t *testing.T) {
	index := &capturingIndex{}
	p := newTestPipeline(t, &hashEmbedder{}, index)

	chunks, err := p.Index(context.Background(), "doc-1", "policy.pdf", "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Empty(t, index.upserts)
}

func TestRemoveDeletesDocumentVectors(t *testing.T) {
	index := &capturingIndex{}
	p := newTestPipeline(t, &hashEmbedder{}, index)

	require.NoError(t, p.Remove(context.Background(), "doc-9"))
	assert.Equal(t, []string{"doc-9"}, index.deleted)
}
