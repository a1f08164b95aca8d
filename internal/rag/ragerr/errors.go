// Package ragerr defines the error taxonomy of the RAG pipeline.
// Transient failures carry enough context to be retried; structural
// failures abort immediately and are never retried.
package ragerr

import (
	"errors"
	"fmt"
)

// ErrConcurrentStream rejects a second send on a session that already
// has an in-flight answer stream. Surfaced synchronously, before any
// tokens are produced; the caller must cancel the active stream first.
var ErrConcurrentStream = errors.New("session already has an active answer stream")

// ErrSessionNotFound is returned when a session id does not exist or
// does not belong to the caller.
var ErrSessionNotFound = errors.New("chat session not found")

// ErrDocumentNotFound is returned when a document id does not exist or
// does not belong to the caller.
var ErrDocumentNotFound = errors.New("document not found")

// DimensionMismatchError is a fatal indexing error: a vector's dimension
// does not match the index. Vectors are never truncated or padded.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index expects %d, got %d", e.Want, e.Got)
}

// IngestionFailure marks a per-document indexing failure. It is
// recoverable: the document stays in the failed state with a reason and
// can be re-submitted.
type IngestionFailure struct {
	DocumentID string
	Reason     string
	Err        error
}

func (e *IngestionFailure) Error() string {
	return fmt.Sprintf("ingestion failed for document %s: %s", e.DocumentID, e.Reason)
}

func (e *IngestionFailure) Unwrap() error { return e.Err }

// EmbeddingServiceError wraps a failure of the embedding backend.
// Transient errors are retried with bounded backoff before being
// surfaced; structural ones are not.
type EmbeddingServiceError struct {
	Transient bool
	Err       error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service error: %v", e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// GenerationError wraps a failure of the generation backend. On the
// query path it terminates the answer stream with an error event; no
// partial message is persisted.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation error: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
