package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, dim int) *MemoryIndex {
	t.Helper()
	idx, err := NewMemoryIndex(dim, logger.New("test", "", ""))
	require.NoError(t, err)
	return idx
}

func entry(chunkID, documentID string, chunkIndex int, vector []float32) interfaces.IndexEntry {
	return interfaces.IndexEntry{
		ChunkID:    chunkID,
		DocumentID: documentID,
		ChunkIndex: chunkIndex,
		Filename:   documentID + ".pdf",
		Snippet:    "snippet of " + chunkID,
		Vector:     vector,
	}
}

func TestMemoryIndex_DimensionMismatchRejected(t *testing.T) {
	idx := newTestIndex(t, 3)

	err := idx.Upsert(context.Background(), []interfaces.IndexEntry{
		entry("c1", "d1", 0, []float32{1, 0}),
	})
	var dimErr *ragerr.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Want)
	assert.Equal(t, 2, dimErr.Got)

	// Nothing from the rejected batch may be visible.
	res, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemoryIndex_CosineRanking(t *testing.T) {
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Upsert(context.Background(), []interfaces.IndexEntry{
		entry("c1", "d1", 0, []float32{1, 0}),
		entry("c2", "d1", 1, []float32{0.7, 0.7}),
		entry("c3", "d2", 0, []float32{0, 1}),
	}))

	res, err := idx.Search(context.Background(), []float32{2, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	// Cosine similarity is scale invariant: c1 aligns exactly, c2 at 45 degrees.
	assert.Equal(t, "c1", res[0].ChunkID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, "c2", res[1].ChunkID)
	assert.InDelta(t, 0.7071, res[1].Score, 1e-3)
}

func TestMemoryIndex_UpsertReplacesByChunkID(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []interfaces.IndexEntry{entry("c1", "d1", 0, []float32{1, 0})}))
	require.NoError(t, idx.Upsert(ctx, []interfaces.IndexEntry{entry("c1", "d1", 0, []float32{0, 1})}))

	res, err := idx.Search(ctx, []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestMemoryIndex_DeleteCascadesAllChunks(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []interfaces.IndexEntry{
		entry("c1", "d1", 0, []float32{1, 0}),
		entry("c2", "d1", 1, []float32{0.9, 0.1}),
		entry("c3", "d2", 0, []float32{0.8, 0.2}),
	}))

	require.NoError(t, idx.Delete(ctx, "d1"))

	res, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "d2", res[0].DocumentID)
}

func TestMemoryIndex_EmptySearch(t *testing.T) {
	idx := newTestIndex(t, 2)
	res, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemoryIndex_SnapshotConsistencyUnderConcurrentWrites(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx := context.Background()

	const docs = 20
	const chunksPerDoc = 5

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers assert the all-or-nothing property: every observed
	// document contributes either all of its chunks or none.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := idx.Search(ctx, []float32{1, 0}, docs*chunksPerDoc)
				assert.NoError(t, err)
				seen := map[string]int{}
				for _, c := range res {
					seen[c.DocumentID]++
				}
				for doc, n := range seen {
					assert.Equal(t, chunksPerDoc, n, "document %s observed partially", doc)
				}
			}
		}()
	}

	// Writers insert each document as one batch, then delete it.
	for d := 0; d < docs; d++ {
		documentID := fmt.Sprintf("d%02d", d)
		batch := make([]interfaces.IndexEntry, 0, chunksPerDoc)
		for c := 0; c < chunksPerDoc; c++ {
			batch = append(batch, entry(fmt.Sprintf("%s-c%d", documentID, c), documentID, c, []float32{1, float32(c) / 10}))
		}
		require.NoError(t, idx.Upsert(ctx, batch))
	}
	for d := 0; d < docs; d++ {
		require.NoError(t, idx.Delete(ctx, fmt.Sprintf("d%02d", d)))
	}

	close(stop)
	wg.Wait()

	res, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemoryIndex_SearchCapsAtK(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Upsert(ctx, []interfaces.IndexEntry{
			entry(fmt.Sprintf("c%d", i), "d1", i, []float32{1, float32(i)}),
		}))
	}
	res, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}
