package embeddings

import (
	"context"
	"fmt"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GenaiEmbedder is an Embedder backed by the hosted Google GenAI
// embedding API.
type GenaiEmbedder struct {
	model     *genai.EmbeddingModel
	dimension int
}

// NewGenaiEmbedder creates a client for the given embedding model.
// dimension is the model's declared output dimension; vectors of any
// other length are rejected, never truncated or padded.
func NewGenaiEmbedder(ctx context.Context, apiKey, modelName string, dimension int) (*GenaiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenaiEmbedder{
		model:     client.EmbeddingModel(modelName),
		dimension: dimension,
	}, nil
}

// Embed generates embeddings for a batch of texts in one API call.
func (e *GenaiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := e.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, &ragerr.EmbeddingServiceError{Transient: true, Err: err}
	}
	if len(res.Embeddings) != len(texts) {
		return nil, &ragerr.EmbeddingServiceError{
			Transient: false,
			Err:       fmt.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings)),
		}
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if len(emb.Values) != e.dimension {
			return nil, &ragerr.DimensionMismatchError{Want: e.dimension, Got: len(emb.Values)}
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Dimension returns the declared output dimension.
func (e *GenaiEmbedder) Dimension() int {
	return e.dimension
}

var _ interfaces.Embedder = (*GenaiEmbedder)(nil)
