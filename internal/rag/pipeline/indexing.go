package pipeline

import (
	"context"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	// embedBatchSize caps how many chunk texts go to the embedding
	// service in a single call.
	embedBatchSize = 32

	// maxEmbedWorkers bounds concurrent embedding batches.
	maxEmbedWorkers = 4

	// snippetLimit caps the text stored alongside each vector.
	snippetLimit = 500
)

// IndexingPipeline turns a raw document into searchable vectors:
// split into chunks, embed chunk texts in bounded concurrent batches,
// then publish all entries to the index in a single upsert so the
// document becomes visible atomically.
type IndexingPipeline struct {
	splitter interfaces.Splitter
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	log      *logger.Logger
}

func NewIndexingPipeline(splitter interfaces.Splitter, embedder interfaces.Embedder, index interfaces.VectorIndex, log *logger.Logger) *IndexingPipeline {
	return &IndexingPipeline{
		splitter: splitter,
		embedder: embedder,
		index:    index,
		log:      log,
	}
}

// Index processes one document end to end and returns the chunks it
// produced. Any failure is wrapped in an IngestionFailure naming the
// stage, and nothing is written to the index.
func (p *IndexingPipeline) Index(ctx context.Context, documentID, filename, text string) ([]schema.Chunk, error) {
	chunks, err := p.splitter.Split(ctx, documentID, text)
	if err != nil {
		return nil, &ragerr.IngestionFailure{DocumentID: documentID, Reason: "split", Err: err}
	}
	if len(chunks) == 0 {
		p.log.WithField("document_id", documentID).Warn("Document produced no chunks")
		return nil, nil
	}

	if err := p.embedChunks(ctx, chunks); err != nil {
		return nil, &ragerr.IngestionFailure{DocumentID: documentID, Reason: "embed", Err: err}
	}

	entries := make([]interfaces.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = interfaces.IndexEntry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Filename:   filename,
			Snippet:    truncateSnippet(c.Text, snippetLimit),
			Vector:     c.Embedding,
		}
	}
	if err := p.index.Upsert(ctx, entries); err != nil {
		return nil, &ragerr.IngestionFailure{DocumentID: documentID, Reason: "index", Err: err}
	}

	p.log.WithField("document_id", documentID).
		WithField("chunks", len(chunks)).
		Info("Document indexed")
	return chunks, nil
}

// Remove deletes all of a document's vectors from the index.
func (p *IndexingPipeline) Remove(ctx context.Context, documentID string) error {
	return p.index.Delete(ctx, documentID)
}

// embedChunks fills in chunk embeddings batch by batch. Batches run
// concurrently but each writes only its own slice range, so no locking
// is needed.
func (p *IndexingPipeline) embedChunks(ctx context.Context, chunks []schema.Chunk) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbedWorkers)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := p.embedder.Embed(ctx, texts)
			if err != nil {
				return err
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// truncateSnippet cuts text at a rune boundary.
func truncateSnippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
