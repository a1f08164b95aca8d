package vectorstore

import (
	"context"
	"fmt"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/pkg/logger"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// Schema fields of the Milvus collection. The snippet and filename
	// are denormalized into the collection so retrieval never joins back
	// to the relational store.
	FieldChunkID    = "chunk_id"
	FieldDocumentID = "document_id"
	FieldChunkIndex = "chunk_index"
	FieldFilename   = "filename"
	FieldSnippet    = "snippet"
	FieldEmbedding  = "embedding"
)

// MilvusIndex is a VectorIndex backed by a Milvus collection. Isolation
// between readers and writers is delegated to the store; atomic
// visibility of a document is enforced one level up, by only marking the
// document indexed after the full upsert succeeds.
type MilvusIndex struct {
	log        *logger.Logger
	client     client.Client
	collection string
	dim        int
}

// NewMilvusIndex wraps an initialized Milvus client for the given
// collection. The collection must use a COSINE metric index over the
// embedding field.
func NewMilvusIndex(c client.Client, collection string, dimension int, log *logger.Logger) (*MilvusIndex, error) {
	if c == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("vector index dimension must be positive, got %d", dimension)
	}
	return &MilvusIndex{log: log, client: c, collection: collection, dim: dimension}, nil
}

// Upsert writes the entries as one insert batch followed by a flush, so
// they become searchable together.
func (m *MilvusIndex) Upsert(ctx context.Context, entries []interfaces.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(entries))
	documentIDs := make([]string, len(entries))
	chunkIndexes := make([]int64, len(entries))
	filenames := make([]string, len(entries))
	snippets := make([]string, len(entries))
	vectors := make([][]float32, len(entries))

	for i, e := range entries {
		if len(e.Vector) != m.dim {
			return &ragerr.DimensionMismatchError{Want: m.dim, Got: len(e.Vector)}
		}
		chunkIDs[i] = e.ChunkID
		documentIDs[i] = e.DocumentID
		chunkIndexes[i] = int64(e.ChunkIndex)
		filenames[i] = e.Filename
		snippets[i] = e.Snippet
		vectors[i] = e.Vector
	}

	_, err := m.client.Insert(ctx, m.collection, "",
		entity.NewColumnVarChar(FieldChunkID, chunkIDs),
		entity.NewColumnVarChar(FieldDocumentID, documentIDs),
		entity.NewColumnInt64(FieldChunkIndex, chunkIndexes),
		entity.NewColumnVarChar(FieldFilename, filenames),
		entity.NewColumnVarChar(FieldSnippet, snippets),
		entity.NewColumnFloatVector(FieldEmbedding, m.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into milvus collection %s: %w", m.collection, err)
	}
	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		return fmt.Errorf("failed to flush milvus collection %s: %w", m.collection, err)
	}
	m.log.WithPayload(map[string]interface{}{"entries": len(entries)}).Debug("Inserted entries into Milvus")
	return nil
}

// Delete removes every entry of the document via a filter expression.
func (m *MilvusIndex) Delete(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`%s == "%s"`, FieldDocumentID, documentID)
	if err := m.client.Delete(ctx, m.collection, "", expr); err != nil {
		return fmt.Errorf("failed to delete document %s from milvus: %w", documentID, err)
	}
	return nil
}

// Search runs a cosine-similarity vector search and maps the result
// columns back into candidates.
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, k int) ([]schema.RetrievedCandidate, error) {
	if len(vector) != m.dim {
		return nil, &ragerr.DimensionMismatchError{Want: m.dim, Got: len(vector)}
	}
	if k <= 0 {
		return nil, nil
	}

	searchParams, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to build milvus search params: %w", err)
	}
	outputFields := []string{FieldChunkID, FieldDocumentID, FieldChunkIndex, FieldFilename, FieldSnippet}

	results, err := m.client.Search(
		ctx, m.collection, nil, "", outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding, entity.COSINE, k, searchParams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus collection %s: %w", m.collection, err)
	}

	var candidates []schema.RetrievedCandidate
	for _, res := range results {
		findColumn := func(name string) entity.Column {
			for _, field := range res.Fields {
				if field.Name() == name {
					return field
				}
			}
			return nil
		}

		chunkIDCol, ok := findColumn(FieldChunkID).(*entity.ColumnVarChar)
		if !ok {
			m.log.Warn("Milvus search result is missing the chunk_id field, skipping result set")
			continue
		}
		documentIDCol, _ := findColumn(FieldDocumentID).(*entity.ColumnVarChar)
		chunkIndexCol, _ := findColumn(FieldChunkIndex).(*entity.ColumnInt64)
		filenameCol, _ := findColumn(FieldFilename).(*entity.ColumnVarChar)
		snippetCol, _ := findColumn(FieldSnippet).(*entity.ColumnVarChar)

		for i := 0; i < res.ResultCount; i++ {
			candidate := schema.RetrievedCandidate{
				ChunkID: chunkIDCol.Data()[i],
				Score:   float64(res.Scores[i]),
			}
			if documentIDCol != nil {
				candidate.DocumentID = documentIDCol.Data()[i]
			}
			if chunkIndexCol != nil {
				candidate.ChunkIndex = int(chunkIndexCol.Data()[i])
			}
			if filenameCol != nil {
				candidate.Filename = filenameCol.Data()[i]
			}
			if snippetCol != nil {
				candidate.Snippet = snippetCol.Data()[i]
			}
			candidates = append(candidates, candidate)
		}
	}

	return candidates, nil
}

var _ interfaces.VectorIndex = (*MilvusIndex)(nil)
