package llms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"

	ollama "github.com/ollama/ollama/api"
)

// Ollama is a Generator backed by a local Ollama instance.
type Ollama struct {
	client *ollama.Client
	model  string
}

// NewOllama creates an Ollama generator. An empty baseURL defaults to
// the local Ollama endpoint.
func NewOllama(model, baseURL string) (*Ollama, error) {
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

	return &Ollama{client: ollama.NewClient(parsedURL, hc), model: model}, nil
}

// Generate produces the full answer in one call.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	var sb strings.Builder

	err := o.client.Generate(ctx, &ollama.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}, func(resp ollama.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", &ragerr.GenerationError{Err: err}
	}
	return sb.String(), nil
}

// GenerateStream produces the answer as incremental text deltas,
// bridging Ollama's callback API onto a channel. The channel is closed
// on completion, failure, or cancellation.
func (o *Ollama) GenerateStream(ctx context.Context, prompt string) (<-chan interfaces.Delta, error) {
	stream := true
	ch := make(chan interfaces.Delta)

	go func() {
		defer close(ch)
		err := o.client.Generate(ctx, &ollama.GenerateRequest{
			Model:  o.model,
			Prompt: prompt,
			Stream: &stream,
		}, func(resp ollama.GenerateResponse) error {
			if resp.Response == "" {
				return nil
			}
			select {
			case ch <- interfaces.Delta{Text: resp.Response}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case ch <- interfaces.Delta{Err: &ragerr.GenerationError{Err: err}}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

var _ interfaces.Generator = (*Ollama)(nil)
