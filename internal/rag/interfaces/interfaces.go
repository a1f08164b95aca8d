package interfaces

import (
	"context"

	"ComplianceRAG/internal/rag/schema"
)

// Splitter cuts a document's normalized text into overlapping chunks.
// Splitting is deterministic: identical text and configuration always
// produce identical chunk boundaries.
type Splitter interface {
	Split(ctx context.Context, documentID, text string) ([]schema.Chunk, error)
}

// Embedder maps text to fixed-length vectors. Implementations are opaque
// capabilities (hosted API or local model) selected at construction time.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the declared output dimension. Every vector the
	// backend returns must have exactly this length.
	Dimension() int
}

// Delta is one increment of a generation stream. A terminal failure is
// carried in Err on the final element; the channel is closed afterwards.
type Delta struct {
	Text string
	Err  error
}

// Generator produces an answer for a fully built prompt, optionally as
// an incremental token stream.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStream returns a channel of text deltas. The channel is
	// closed when generation finishes, fails, or the context is
	// cancelled.
	GenerateStream(ctx context.Context, prompt string) (<-chan Delta, error)
}

// IndexEntry is one record of the vector index: the chunk's vector plus
// the denormalized fields needed to build a citation without a join on
// the hot retrieval path.
type IndexEntry struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Filename   string
	Snippet    string
	Vector     []float32
}

// VectorIndex stores chunk vectors and answers nearest-neighbor queries
// by cosine similarity. Search never blocks on concurrent writes, and
// never observes a document half-inserted or half-deleted: one Upsert
// or Delete call becomes visible atomically.
type VectorIndex interface {
	// Upsert inserts or replaces entries. All entries of one call become
	// searchable together. A vector whose dimension does not match the
	// index is rejected with ragerr.DimensionMismatchError.
	Upsert(ctx context.Context, entries []IndexEntry) error

	// Delete removes every entry belonging to the document.
	Delete(ctx context.Context, documentID string) error

	// Search returns up to k entries ranked by descending cosine
	// similarity to the query vector.
	Search(ctx context.Context, vector []float32, k int) ([]schema.RetrievedCandidate, error)
}
