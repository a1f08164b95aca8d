package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/pkg/logger"

	"github.com/google/uuid"
)

// Stream states. A stream moves from idle to streaming exactly once,
// then to exactly one terminal state.
const (
	StateIdle      = "IDLE"
	StateStreaming = "STREAMING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

// MessageSink persists a finished assistant message. It is called at
// most once per stream, and only for completed streams.
type MessageSink interface {
	SaveAssistantMessage(ctx context.Context, sessionID, messageID, content string, sources []schema.SourceReference) error
}

// AnswerAssembler drives one generation stream: it relays model deltas
// as token events, and on successful completion emits the sources the
// prompt was grounded on, persists the full answer, and closes with a
// done event. Failed or cancelled streams persist nothing.
type AnswerAssembler struct {
	generator interfaces.Generator
	sink      MessageSink
	log       *logger.Logger
}

func NewAnswerAssembler(generator interfaces.Generator, sink MessageSink, log *logger.Logger) *AnswerAssembler {
	return &AnswerAssembler{generator: generator, sink: sink, log: log}
}

// StreamResult reports how a stream ended.
type StreamResult struct {
	State     string
	MessageID string
	Answer    string
	Err       error
}

// Stream runs the generator against prompt and emits events to emit in
// order. emit returning an error aborts the stream (the client is
// gone); nothing is persisted in that case. The prompt's included
// candidates become the sources event, preserving their label order.
func (a *AnswerAssembler) Stream(ctx context.Context, sessionID string, prompt schema.Prompt, emit func(schema.Event) error) StreamResult {
	deltas, err := a.generator.GenerateStream(ctx, prompt.Text)
	if err != nil {
		return a.fail(sessionID, err, emit)
	}

	var answer strings.Builder
	for delta := range deltas {
		if delta.Err != nil {
			if ctx.Err() != nil {
				return StreamResult{State: StateCancelled, Err: ctx.Err()}
			}
			return a.fail(sessionID, delta.Err, emit)
		}
		if delta.Text == "" {
			continue
		}
		if err := emit(schema.Event{Type: schema.EventToken, Content: delta.Text, SessionID: sessionID}); err != nil {
			return StreamResult{State: StateCancelled, Err: err}
		}
		answer.WriteString(delta.Text)
	}
	if ctx.Err() != nil {
		return StreamResult{State: StateCancelled, Err: ctx.Err()}
	}

	sources := sourcesFromPrompt(prompt)
	if err := emit(schema.Event{Type: schema.EventSources, Sources: sources, SessionID: sessionID}); err != nil {
		return StreamResult{State: StateCancelled, Err: err}
	}

	messageID := uuid.New().String()
	if err := a.sink.SaveAssistantMessage(ctx, sessionID, messageID, answer.String(), sources); err != nil {
		return a.fail(sessionID, err, emit)
	}

	if err := emit(schema.Event{Type: schema.EventDone, MessageID: messageID, SessionID: sessionID}); err != nil {
		return StreamResult{State: StateCancelled, Err: err}
	}
	return StreamResult{State: StateCompleted, MessageID: messageID, Answer: answer.String()}
}

// StreamCanned emits a fixed answer through the same event sequence as
// a model-backed stream, with an empty sources list. Used when
// retrieval found nothing relevant.
func (a *AnswerAssembler) StreamCanned(ctx context.Context, sessionID, answer string, emit func(schema.Event) error) StreamResult {
	if err := emit(schema.Event{Type: schema.EventToken, Content: answer, SessionID: sessionID}); err != nil {
		return StreamResult{State: StateCancelled, Err: err}
	}
	if err := emit(schema.Event{Type: schema.EventSources, Sources: []schema.SourceReference{}, SessionID: sessionID}); err != nil {
		return StreamResult{State: StateCancelled, Err: err}
	}

	messageID := uuid.New().String()
	if err := a.sink.SaveAssistantMessage(ctx, sessionID, messageID, answer, nil); err != nil {
		return a.fail(sessionID, err, emit)
	}
	if err := emit(schema.Event{Type: schema.EventDone, MessageID: messageID, SessionID: sessionID}); err != nil {
		return StreamResult{State: StateCancelled, Err: err}
	}
	return StreamResult{State: StateCompleted, MessageID: messageID, Answer: answer}
}

func (a *AnswerAssembler) fail(sessionID string, cause error, emit func(schema.Event) error) StreamResult {
	var genErr *ragerr.GenerationError
	if !errors.As(cause, &genErr) {
		cause = &ragerr.GenerationError{Err: cause}
	}
	a.log.WithError(cause).Error("Stream failed")
	_ = emit(schema.Event{Type: schema.EventError, SessionID: sessionID, Error: cause.Error()})
	return StreamResult{State: StateFailed, Err: cause}
}

func sourcesFromPrompt(prompt schema.Prompt) []schema.SourceReference {
	sources := make([]schema.SourceReference, len(prompt.Included))
	for i, c := range prompt.Included {
		sources[i] = schema.SourceReference{
			ChunkID:        c.ChunkID,
			DocumentID:     c.DocumentID,
			Filename:       c.Filename,
			RelevanceScore: c.Score,
			Snippet:        c.Snippet,
		}
	}
	return sources
}

// StreamGate serializes streams per session. TryAcquire fails fast
// instead of queueing so a second concurrent ask is rejected
// immediately.
type StreamGate struct {
	active atomic.Int32
}

func (g *StreamGate) TryAcquire() bool {
	return g.active.CompareAndSwap(0, 1)
}

func (g *StreamGate) Release() {
	g.active.Store(0)
}
