package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/pkg/logger"
)

// RetryingEmbedder decorates an Embedder with bounded exponential
// backoff for transient failures. Structural failures (dimension
// mismatches, malformed responses) abort immediately; only transient
// service errors are retried.
type RetryingEmbedder struct {
	inner    interfaces.Embedder
	attempts int
	backoff  time.Duration
	log      *logger.Logger
}

// NewRetryingEmbedder wraps inner. attempts is the total number of
// tries, including the first; backoff is the first delay and doubles
// after each failure.
func NewRetryingEmbedder(inner interfaces.Embedder, attempts int, backoff time.Duration, log *logger.Logger) *RetryingEmbedder {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingEmbedder{inner: inner, attempts: attempts, backoff: backoff, log: log}
}

// Embed calls the inner embedder, retrying transient failures.
func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := r.backoff

	for attempt := 1; attempt <= r.attempts; attempt++ {
		vectors, err := r.inner.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == r.attempts {
			break
		}

		r.log.WithError(err).WithPayload(map[string]interface{}{
			"attempt": attempt,
			"backoff": delay.String(),
		}).Warn("Embedding call failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("embedding failed after %d attempt(s): %w", r.attempts, lastErr)
}

// Dimension returns the inner embedder's declared dimension.
func (r *RetryingEmbedder) Dimension() int {
	return r.inner.Dimension()
}

func isTransient(err error) bool {
	var svcErr *ragerr.EmbeddingServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Transient
	}
	var dimErr *ragerr.DimensionMismatchError
	if errors.As(err, &dimErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

var _ interfaces.Embedder = (*RetryingEmbedder)(nil)
