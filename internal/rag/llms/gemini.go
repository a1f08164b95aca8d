package llms

import (
	"context"
	"errors"
	"fmt"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini is a Generator backed by the hosted Google GenAI API.
type Gemini struct {
	model *genai.GenerativeModel
}

// NewGemini creates a Gemini generator for the given model name.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	// Low temperature: compliance answers should stay close to the
	// provided passages.
	model.SetTemperature(0.1)
	return &Gemini{model: model}, nil
}

// Generate produces the full answer in one call.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &ragerr.GenerationError{Err: err}
	}
	return responseText(resp), nil
}

// GenerateStream produces the answer as incremental text deltas. The
// returned channel is closed on completion, failure, or cancellation; a
// failure is delivered as the final delta's Err.
func (g *Gemini) GenerateStream(ctx context.Context, prompt string) (<-chan interfaces.Delta, error) {
	iter := g.model.GenerateContentStream(ctx, genai.Text(prompt))
	ch := make(chan interfaces.Delta)

	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				select {
				case ch <- interfaces.Delta{Err: &ragerr.GenerationError{Err: err}}:
				case <-ctx.Done():
				}
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			select {
			case ch <- interfaces.Delta{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// responseText flattens the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out
}

var _ interfaces.Generator = (*Gemini)(nil)
