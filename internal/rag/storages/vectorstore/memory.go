package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/pkg/logger"
)

// MemoryIndex is an in-process VectorIndex using brute-force cosine
// similarity over copy-on-write segments. Writers serialize on a mutex
// and publish whole new segments; readers load the current segment
// pointer and scan it without locking, so a search never blocks on a
// concurrent upsert and never observes a document half-written or
// half-deleted.
type MemoryIndex struct {
	log *logger.Logger
	dim int

	mu      sync.Mutex // serializes writers only
	segment atomic.Pointer[memSegment]
}

// memSegment is an immutable snapshot of the index contents. It is
// never mutated after being published.
type memSegment struct {
	entries []memEntry
}

type memEntry struct {
	interfaces.IndexEntry
	normalized []float32
}

// NewMemoryIndex creates an empty index that accepts vectors of exactly
// the given dimension.
func NewMemoryIndex(dimension int, log *logger.Logger) (*MemoryIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("vector index dimension must be positive, got %d", dimension)
	}
	idx := &MemoryIndex{log: log, dim: dimension}
	idx.segment.Store(&memSegment{})
	return idx, nil
}

// Upsert inserts or replaces entries by chunk id. The whole batch
// becomes searchable in one segment swap.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []interfaces.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged := make([]memEntry, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != m.dim {
			return &ragerr.DimensionMismatchError{Want: m.dim, Got: len(e.Vector)}
		}
		staged = append(staged, memEntry{IndexEntry: e, normalized: l2Normalize(e.Vector)})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.segment.Load()
	replaced := make(map[string]struct{}, len(staged))
	for _, e := range staged {
		replaced[e.ChunkID] = struct{}{}
	}

	next := make([]memEntry, 0, len(current.entries)+len(staged))
	for _, e := range current.entries {
		if _, ok := replaced[e.ChunkID]; !ok {
			next = append(next, e)
		}
	}
	next = append(next, staged...)

	m.segment.Store(&memSegment{entries: next})
	m.log.WithPayload(map[string]interface{}{"entries": len(staged), "total": len(next)}).Debug("Published new index segment")
	return nil
}

// Delete removes every entry of the document in one segment swap:
// concurrent searches see the document either fully present or fully
// absent, never a mix.
func (m *MemoryIndex) Delete(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.segment.Load()
	next := make([]memEntry, 0, len(current.entries))
	for _, e := range current.entries {
		if e.DocumentID != documentID {
			next = append(next, e)
		}
	}
	if len(next) == len(current.entries) {
		return nil
	}
	m.segment.Store(&memSegment{entries: next})
	return nil
}

// Search scans the current snapshot and returns up to k candidates by
// descending cosine similarity. Ties break by document id, then lower
// chunk index, so results are deterministic.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int) ([]schema.RetrievedCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != m.dim {
		return nil, &ragerr.DimensionMismatchError{Want: m.dim, Got: len(vector)}
	}
	if k <= 0 {
		return nil, nil
	}

	seg := m.segment.Load()
	if len(seg.entries) == 0 {
		return nil, nil
	}

	query := l2Normalize(vector)
	candidates := make([]schema.RetrievedCandidate, 0, len(seg.entries))
	for _, e := range seg.entries {
		candidates = append(candidates, schema.RetrievedCandidate{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			ChunkIndex: e.ChunkIndex,
			Filename:   e.Filename,
			Snippet:    e.Snippet,
			Score:      float64(dot(query, e.normalized)),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].DocumentID != candidates[j].DocumentID {
			return candidates[i].DocumentID < candidates[j].DocumentID
		}
		return candidates[i].ChunkIndex < candidates[j].ChunkIndex
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// l2Normalize returns a unit-length copy of v, so that a dot product of
// two normalized vectors equals their cosine similarity.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

var _ interfaces.VectorIndex = (*MemoryIndex)(nil)
