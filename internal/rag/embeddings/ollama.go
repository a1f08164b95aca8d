package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"

	ollama "github.com/ollama/ollama/api"
)

// OllamaEmbedder is an Embedder backed by a local Ollama instance.
type OllamaEmbedder struct {
	client    *ollama.Client
	model     string
	dimension int
}

// NewOllamaEmbedder creates a client for the given model. An empty
// baseURL defaults to the local Ollama endpoint.
func NewOllamaEmbedder(model, baseURL string, dimension int) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	hc := &http.Client{
		Timeout: 120 * time.Second,
	}

	return &OllamaEmbedder{
		client:    ollama.NewClient(parsedURL, hc),
		model:     model,
		dimension: dimension,
	}, nil
}

// Embed generates embeddings for a batch of texts in one request.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embed(ctx, &ollama.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, &ragerr.EmbeddingServiceError{Transient: true, Err: err}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &ragerr.EmbeddingServiceError{
			Transient: false,
			Err:       fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)),
		}
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb) != e.dimension {
			return nil, &ragerr.DimensionMismatchError{Want: e.dimension, Got: len(emb)}
		}
		vectors[i] = emb
	}
	return vectors, nil
}

// Dimension returns the declared output dimension.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

var _ interfaces.Embedder = (*OllamaEmbedder)(nil)
