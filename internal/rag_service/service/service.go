package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ComplianceRAG/internal/models"
	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/pipeline"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	// noAnswerFallback is streamed when retrieval finds nothing above
	// the relevance threshold. The model is never called in that case.
	noAnswerFallback = "I don't have enough information in the compliance documents to answer that question. Please try rephrasing, or upload the relevant policy documents."

	// sessionTitleLimit caps the auto-derived session title.
	sessionTitleLimit = 50

	// statusCacheTTL bounds staleness of the Redis document-status
	// cache that the polling endpoint reads.
	statusCacheTTL = 30 * time.Second

	statusKeyPrefix = "ragdoc:status:"
)

// ChatStore is the session and message persistence the service depends
// on. *dal.ChatDAL is the production implementation.
type ChatStore interface {
	CreateSession(ctx context.Context, userID, title string) (*models.ChatSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]*models.ChatSession, error)
	SetSessionTitle(ctx context.Context, sessionID, title string) error
	DeleteSession(ctx context.Context, sessionID string) error
	AppendMessage(ctx context.Context, sessionID, messageID, role, content string, sources []schema.SourceReference) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
	RecentHistory(ctx context.Context, sessionID string, maxTurns int) ([]schema.ChatTurn, error)
	DeleteLastAssistantMessage(ctx context.Context, sessionID string) error
}

// DocumentStore is the document persistence the service depends on.
// *dal.DocumentDAL is the production implementation.
type DocumentStore interface {
	UpsertProcessing(ctx context.Context, doc *models.Document) (int, error)
	MarkCompleted(ctx context.Context, documentID string, generation, chunkCount int) error
	MarkFailed(ctx context.Context, documentID string, generation int, reason string) error
	GetByID(ctx context.Context, documentID string) (*models.Document, error)
	List(ctx context.Context, limit, offset int) ([]*models.Document, error)
	Delete(ctx context.Context, documentID string) error
	SetMetadata(ctx context.Context, documentID string, metadata datatypes.JSON) error
	CountByStatus(ctx context.Context) (map[models.DocumentStatus]int64, error)
}

// DocumentSubmission is the payload of an ingestion request, whether it
// arrives over HTTP or from the Kafka trigger topic.
type DocumentSubmission struct {
	DocumentID string              `json:"document_id"`
	Text       string              `json:"text"`
	Metadata   schema.DocumentMeta `json:"metadata"`
}

// DocumentStatusInfo is what the polling endpoint returns.
type DocumentStatusInfo struct {
	DocumentID string                `json:"document_id"`
	Status     models.DocumentStatus `json:"status"`
	ChunkCount int                   `json:"chunk_count"`
	FailReason string                `json:"fail_reason,omitempty"`
}

// DocumentStatsInfo is the corpus overview: how many documents sit in
// each lifecycle state.
type DocumentStatsInfo struct {
	Total      int64 `json:"total"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// AskOptions are the per-request knobs of an ask. The zero value of
// MaxSources means "as many as retrieval returns".
type AskOptions struct {
	IncludeSources bool
	MaxSources     int
}

// DefaultAskOptions returns the options used when a request sets none.
func DefaultAskOptions() AskOptions {
	return AskOptions{IncludeSources: true}
}

// RAGService orchestrates ingestion, retrieval, and answer streaming.
// It owns the per-session stream gates and the document status cache,
// and doubles as the assembler's message sink.
type RAGService struct {
	log       *logger.Logger
	documents DocumentStore
	chats     ChatStore
	indexer   *pipeline.IndexingPipeline
	retriever *pipeline.Retriever
	prompts   *pipeline.PromptBuilder
	generator interfaces.Generator
	assembler *pipeline.AnswerAssembler
	redis     *redis.Client

	topK            int
	maxHistoryTurns int

	gateMu sync.Mutex
	gates  map[string]*pipeline.StreamGate

	// docMu guards docLocks; the per-document locks serialize indexing
	// runs so two generations never interleave on the vector index.
	docMu    sync.Mutex
	docLocks map[string]*sync.Mutex

	// ingestions tracks in-flight async indexing runs so shutdown can
	// wait for them.
	ingestions sync.WaitGroup
}

// NewRAGService wires the pipelines and data access layers together.
func NewRAGService(
	log *logger.Logger,
	documents DocumentStore,
	chats ChatStore,
	indexer *pipeline.IndexingPipeline,
	retriever *pipeline.Retriever,
	prompts *pipeline.PromptBuilder,
	generator interfaces.Generator,
	redisClient *redis.Client,
	topK int,
	maxHistoryTurns int,
) *RAGService {
	s := &RAGService{
		log:             log,
		documents:       documents,
		chats:           chats,
		indexer:         indexer,
		retriever:       retriever,
		prompts:         prompts,
		generator:       generator,
		redis:           redisClient,
		topK:            topK,
		maxHistoryTurns: maxHistoryTurns,
		gates:           make(map[string]*pipeline.StreamGate),
		docLocks:        make(map[string]*sync.Mutex),
	}
	s.assembler = pipeline.NewAnswerAssembler(generator, s, log)
	return s
}

// SaveAssistantMessage implements pipeline.MessageSink by appending the
// finished answer to the session.
func (s *RAGService) SaveAssistantMessage(ctx context.Context, sessionID, messageID, content string, sources []schema.SourceReference) error {
	_, err := s.chats.AppendMessage(ctx, sessionID, messageID, "assistant", content, sources)
	return err
}

// --- Sessions ---

// CreateSession opens an empty conversation for a user.
func (s *RAGService) CreateSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	return s.chats.CreateSession(ctx, userID, "")
}

// ListSessions returns the user's sessions, most recently active first.
func (s *RAGService) ListSessions(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	return s.chats.ListSessionsByUser(ctx, userID)
}

// ListMessages returns a session's messages in order.
func (s *RAGService) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	return s.chats.ListMessages(ctx, sessionID)
}

// DeleteSession removes a conversation and its messages.
func (s *RAGService) DeleteSession(ctx context.Context, sessionID string) error {
	return s.chats.DeleteSession(ctx, sessionID)
}

// --- Asking ---

// Ask runs one streamed question against a session. Events are pushed
// to emit in order; the user message is persisted before generation
// starts, the assistant message only on successful completion. A second
// concurrent Ask on the same session fails fast with
// ragerr.ErrConcurrentStream.
func (s *RAGService) Ask(ctx context.Context, sessionID, question string, opts AskOptions, emit func(schema.Event) error) error {
	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	gate := s.gateFor(sessionID)
	if !gate.TryAcquire() {
		return ragerr.ErrConcurrentStream
	}
	defer gate.Release()

	// History is read before the user turn is appended so the question
	// does not appear twice in the prompt.
	history, err := s.chats.RecentHistory(ctx, sessionID, s.maxHistoryTurns)
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}

	if _, err := s.chats.AppendMessage(ctx, sessionID, "", "user", question, nil); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}
	if session.Title == "" {
		s.setAutoTitle(ctx, sessionID, question)
	}

	result := s.streamAnswer(ctx, sessionID, question, history, opts, emit)
	if result.State == pipeline.StateFailed {
		return result.Err
	}
	return nil
}

// AskSync answers without streaming. Same retrieval and prompt path as
// Ask; the answer and sources come back in one response.
func (s *RAGService) AskSync(ctx context.Context, sessionID, question string, opts AskOptions) (string, []schema.SourceReference, error) {
	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}

	gate := s.gateFor(sessionID)
	if !gate.TryAcquire() {
		return "", nil, ragerr.ErrConcurrentStream
	}
	defer gate.Release()

	history, err := s.chats.RecentHistory(ctx, sessionID, s.maxHistoryTurns)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load session history: %w", err)
	}
	if _, err := s.chats.AppendMessage(ctx, sessionID, "", "user", question, nil); err != nil {
		return "", nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	if session.Title == "" {
		s.setAutoTitle(ctx, sessionID, question)
	}

	candidates, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	if len(candidates) == 0 {
		if err := s.SaveAssistantMessage(ctx, sessionID, uuid.New().String(), noAnswerFallback, nil); err != nil {
			return "", nil, err
		}
		return noAnswerFallback, []schema.SourceReference{}, nil
	}
	candidates = s.limitCandidates(candidates, opts)

	prompt := s.prompts.Build(question, candidates, history)
	if !opts.IncludeSources {
		prompt.Included = nil
	}
	answer, err := s.generator.Generate(ctx, prompt.Text)
	if err != nil {
		var genErr *ragerr.GenerationError
		if !errors.As(err, &genErr) {
			err = &ragerr.GenerationError{Err: err}
		}
		return "", nil, err
	}

	sources := sourcesOf(prompt)
	if err := s.SaveAssistantMessage(ctx, sessionID, uuid.New().String(), answer, sources); err != nil {
		return "", nil, err
	}
	return answer, sources, nil
}

// Regenerate discards the session's last assistant answer and streams a
// fresh one for the last user question.
func (s *RAGService) Regenerate(ctx context.Context, sessionID string, opts AskOptions, emit func(schema.Event) error) error {
	if _, err := s.chats.GetSession(ctx, sessionID); err != nil {
		return err
	}

	gate := s.gateFor(sessionID)
	if !gate.TryAcquire() {
		return ragerr.ErrConcurrentStream
	}
	defer gate.Release()

	if err := s.chats.DeleteLastAssistantMessage(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to discard previous answer: %w", err)
	}

	history, err := s.chats.RecentHistory(ctx, sessionID, s.maxHistoryTurns)
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return fmt.Errorf("session has no user question to regenerate")
	}
	question := history[len(history)-1].Content
	history = history[:len(history)-1]

	result := s.streamAnswer(ctx, sessionID, question, history, opts, emit)
	if result.State == pipeline.StateFailed {
		return result.Err
	}
	return nil
}

// streamAnswer is the shared retrieval-to-stream path of Ask and
// Regenerate. The caller holds the session gate.
func (s *RAGService) streamAnswer(ctx context.Context, sessionID, question string, history []schema.ChatTurn, opts AskOptions, emit func(schema.Event) error) pipeline.StreamResult {
	candidates, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		s.log.WithError(err).Error("Retrieval failed")
		_ = emit(schema.Event{Type: schema.EventError, SessionID: sessionID, Error: "retrieval failed"})
		return pipeline.StreamResult{State: pipeline.StateFailed, Err: err}
	}

	if len(candidates) == 0 {
		return s.assembler.StreamCanned(ctx, sessionID, noAnswerFallback, emit)
	}
	candidates = s.limitCandidates(candidates, opts)

	prompt := s.prompts.Build(question, candidates, history)
	if !opts.IncludeSources {
		// The passages still ground the answer; they are just not
		// reported back or attached to the persisted message.
		prompt.Included = nil
	}
	return s.assembler.Stream(ctx, sessionID, prompt, emit)
}

// limitCandidates applies the per-request source cap. The retriever's
// topK stays the upper bound.
func (s *RAGService) limitCandidates(candidates []schema.RetrievedCandidate, opts AskOptions) []schema.RetrievedCandidate {
	limit := opts.MaxSources
	if limit <= 0 || limit > s.topK {
		limit = s.topK
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

func (s *RAGService) gateFor(sessionID string) *pipeline.StreamGate {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	gate, ok := s.gates[sessionID]
	if !ok {
		gate = &pipeline.StreamGate{}
		s.gates[sessionID] = gate
	}
	return gate
}

func (s *RAGService) setAutoTitle(ctx context.Context, sessionID, question string) {
	if err := s.chats.SetSessionTitle(ctx, sessionID, autoTitle(question)); err != nil {
		s.log.WithError(err).Warn("Failed to set session title")
	}
}

// autoTitle derives a session title from the first question.
func autoTitle(question string) string {
	title := strings.TrimSpace(question)
	runes := []rune(title)
	if len(runes) > sessionTitleLimit {
		title = string(runes[:sessionTitleLimit])
	}
	return title
}

func sourcesOf(prompt schema.Prompt) []schema.SourceReference {
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

// --- Documents ---

// SubmitForIndexing registers a document and kicks off chunking,
// embedding, and indexing in the background. It returns as soon as the
// document row exists in the processing state; progress is observable
// through DocumentStatus.
func (s *RAGService) SubmitForIndexing(ctx context.Context, sub DocumentSubmission) (*models.Document, error) {
	if sub.DocumentID == "" {
		sub.DocumentID = uuid.New().String()
	}
	if strings.TrimSpace(sub.Text) == "" {
		return nil, &ragerr.IngestionFailure{DocumentID: sub.DocumentID, Reason: "submit", Err: fmt.Errorf("document text is empty")}
	}

	metaJSON, err := json.Marshal(sub.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document metadata: %w", err)
	}

	doc := &models.Document{
		ID:        sub.DocumentID,
		Filename:  sub.Metadata.Filename,
		Title:     sub.Metadata.Title,
		Language:  sub.Metadata.Language,
		PageCount: sub.Metadata.PageCount,
		Metadata:  datatypes.JSON(metaJSON),
	}
	generation, err := s.documents.UpsertProcessing(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}
	s.cacheStatus(ctx, doc.ID, models.DocStatusProcessing)

	s.ingestions.Add(1)
	go s.runIngestion(sub, generation)

	return doc, nil
}

// runIngestion executes one background indexing run. It uses its own
// context: the submitting request finishing must not cancel indexing.
func (s *RAGService) runIngestion(sub DocumentSubmission, generation int) {
	defer s.ingestions.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	s.ingest(ctx, sub, generation)
}

// ingest is one indexing run over a document. Runs for the same
// document are serialized, and a run whose generation has been
// superseded by a re-submission exits before touching the vector index,
// so the index only ever holds chunks of the newest generation.
func (s *RAGService) ingest(ctx context.Context, sub DocumentSubmission, generation int) {
	lock := s.lockDocument(sub.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	log := s.log.WithField("document_id", sub.DocumentID)

	doc, err := s.documents.GetByID(ctx, sub.DocumentID)
	if err != nil {
		log.WithError(err).Error("Failed to load document before indexing")
		return
	}
	if doc.Generation != generation {
		log.WithPayload(map[string]interface{}{"generation": generation, "current": doc.Generation}).
			Info("Skipping superseded indexing run")
		return
	}

	// Stale vectors of an earlier generation are removed first so a
	// failed run cannot leave a mix of old and new chunks searchable.
	if err := s.indexer.Remove(ctx, sub.DocumentID); err != nil {
		log.WithError(err).Warn("Failed to clear previous vectors before re-indexing")
	}

	chunks, err := s.indexer.Index(ctx, sub.DocumentID, sub.Metadata.Filename, sub.Text)
	if err != nil {
		log.WithError(err).Error("Document ingestion failed")
		if dbErr := s.documents.MarkFailed(ctx, sub.DocumentID, generation, err.Error()); dbErr != nil {
			log.WithError(dbErr).Error("Failed to record ingestion failure")
		}
		s.cacheStatus(ctx, sub.DocumentID, models.DocStatusFailed)
		// A partial document must not be searchable.
		if remErr := s.indexer.Remove(ctx, sub.DocumentID); remErr != nil {
			log.WithError(remErr).Error("Failed to remove vectors of failed document")
		}
		return
	}

	if err := s.documents.MarkCompleted(ctx, sub.DocumentID, generation, len(chunks)); err != nil {
		log.WithError(err).Error("Failed to mark document completed")
		return
	}
	s.cacheStatus(ctx, sub.DocumentID, models.DocStatusCompleted)
}

// lockDocument returns the mutex serializing indexing runs of one
// document.
func (s *RAGService) lockDocument(documentID string) *sync.Mutex {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	lock, ok := s.docLocks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.docLocks[documentID] = lock
	}
	return lock
}

// DocumentStatus reports where a document is in the ingestion
// lifecycle. The hot path is served from Redis; the database is the
// fallback and the source of truth.
func (s *RAGService) DocumentStatus(ctx context.Context, documentID string) (*DocumentStatusInfo, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, statusKeyPrefix+documentID).Result()
		if err == nil && cached == string(models.DocStatusProcessing) {
			return &DocumentStatusInfo{DocumentID: documentID, Status: models.DocStatusProcessing}, nil
		}
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &DocumentStatusInfo{
		DocumentID: doc.ID,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
		FailReason: doc.FailReason,
	}, nil
}

// DocumentStats aggregates the corpus by lifecycle state.
func (s *RAGService) DocumentStats(ctx context.Context) (*DocumentStatsInfo, error) {
	counts, err := s.documents.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &DocumentStatsInfo{
		Processing: counts[models.DocStatusProcessing],
		Completed:  counts[models.DocStatusCompleted],
		Failed:     counts[models.DocStatusFailed],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// GetDocument returns the document record.
func (s *RAGService) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return s.documents.GetByID(ctx, documentID)
}

// ListDocuments returns documents, newest first.
func (s *RAGService) ListDocuments(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.documents.List(ctx, limit, offset)
}

// UpdateDocumentMetadata replaces a document's submitted metadata. The
// indexed text and vectors are untouched.
func (s *RAGService) UpdateDocumentMetadata(ctx context.Context, documentID string, meta schema.DocumentMeta) (*models.Document, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document metadata: %w", err)
	}
	if err := s.documents.SetMetadata(ctx, documentID, datatypes.JSON(metaJSON)); err != nil {
		return nil, err
	}
	return s.documents.GetByID(ctx, documentID)
}

// DeleteDocument removes a document's vectors and its record. Vectors
// go first: a dangling row is recoverable, dangling vectors would keep
// surfacing in answers.
func (s *RAGService) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return err
	}
	if err := s.indexer.Remove(ctx, documentID); err != nil {
		return fmt.Errorf("failed to remove document vectors: %w", err)
	}
	if err := s.documents.Delete(ctx, documentID); err != nil {
		return err
	}
	if s.redis != nil {
		s.redis.Del(ctx, statusKeyPrefix+documentID)
	}
	return nil
}

func (s *RAGService) cacheStatus(ctx context.Context, documentID string, status models.DocumentStatus) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, statusKeyPrefix+documentID, string(status), statusCacheTTL).Err(); err != nil {
		s.log.WithError(err).Warn("Failed to cache document status")
	}
}

// Shutdown waits for in-flight ingestion runs to finish.
func (s *RAGService) Shutdown() {
	s.ingestions.Wait()
}
