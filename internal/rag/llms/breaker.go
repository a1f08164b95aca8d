package llms

import (
	"context"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/pkg/circuitbreaker"
)

// BreakerGenerator guards a Generator with a circuit breaker. When the
// model backend fails repeatedly, further requests fail fast instead of
// queueing behind a dead upstream.
type BreakerGenerator struct {
	inner   interfaces.Generator
	breaker *circuitbreaker.CircuitBreaker
}

// NewBreakerGenerator wraps inner with the given breaker.
func NewBreakerGenerator(inner interfaces.Generator, breaker *circuitbreaker.CircuitBreaker) *BreakerGenerator {
	return &BreakerGenerator{inner: inner, breaker: breaker}
}

func (b *BreakerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := b.breaker.Execute(func() error {
		var innerErr error
		answer, innerErr = b.inner.Generate(ctx, prompt)
		return innerErr
	})
	if err != nil {
		if err == circuitbreaker.ErrCircuitOpen {
			return "", &ragerr.GenerationError{Err: err}
		}
		return "", err
	}
	return answer, nil
}

// GenerateStream counts only stream start against the breaker. Failures
// that arrive mid-stream as deltas are the consumer's to handle; by the
// time they occur the upstream accepted the request.
func (b *BreakerGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan interfaces.Delta, error) {
	var deltas <-chan interfaces.Delta
	err := b.breaker.Execute(func() error {
		var innerErr error
		deltas, innerErr = b.inner.GenerateStream(ctx, prompt)
		return innerErr
	})
	if err != nil {
		if err == circuitbreaker.ErrCircuitOpen {
			return nil, &ragerr.GenerationError{Err: err}
		}
		return nil, err
	}
	return deltas, nil
}

var _ interfaces.Generator = (*BreakerGenerator)(nil)
