package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedEmbedder struct {
	errs  []error
	calls int
	dim   int
}

func (s *scriptedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

func (s *scriptedEmbedder) Dimension() int { return s.dim }

func TestRetryingEmbedder_RecoversFromTransientFailures(t *testing.T) {
	inner := &scriptedEmbedder{
		dim: 4,
		errs: []error{
			&ragerr.EmbeddingServiceError{Transient: true, Err: errors.New("503")},
			&ragerr.EmbeddingServiceError{Transient: true, Err: errors.New("timeout")},
			nil,
		},
	}
	r := NewRetryingEmbedder(inner, 3, time.Millisecond, logger.New("test", "", ""))

	vectors, err := r.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingEmbedder_GivesUpAfterAttempts(t *testing.T) {
	inner := &scriptedEmbedder{
		dim: 4,
		errs: []error{
			&ragerr.EmbeddingServiceError{Transient: true, Err: errors.New("503")},
			&ragerr.EmbeddingServiceError{Transient: true, Err: errors.New("503")},
			&ragerr.EmbeddingServiceError{Transient: true, Err: errors.New("503")},
			nil,
		},
	}
	r := NewRetryingEmbedder(inner, 3, time.Millisecond, logger.New("test", "", ""))

	_, err := r.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	var svcErr *ragerr.EmbeddingServiceError
	assert.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingEmbedder_StructuralFailureNotRetried(t *testing.T) {
	inner := &scriptedEmbedder{
		dim:  4,
		errs: []error{&ragerr.DimensionMismatchError{Want: 4, Got: 8}},
	}
	r := NewRetryingEmbedder(inner, 5, time.Millisecond, logger.New("test", "", ""))

	_, err := r.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	var dimErr *ragerr.DimensionMismatchError
	assert.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 1, inner.calls)
}
