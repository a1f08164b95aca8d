package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/internal/rag_service/service"
	"ComplianceRAG/pkg/logger"

	"github.com/gin-gonic/gin"
)

// API provides the HTTP handlers of the RAG service.
type API struct {
	service *service.RAGService
	logger  *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(svc *service.RAGService, log *logger.Logger) *API {
	return &API{service: svc, logger: log}
}

// --- Sessions ---

// CreateSessionHandler opens a new chat session for the caller.
func (a *API) CreateSessionHandler(c *gin.Context) {
	userID, _ := c.Get("userID")

	session, err := a.service.CreateSession(c.Request.Context(), userID.(string))
	if err != nil {
		a.logger.WithError(err).Error("Failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ListSessionsHandler lists the caller's sessions.
func (a *API) ListSessionsHandler(c *gin.Context) {
	userID, _ := c.Get("userID")

	sessions, err := a.service.ListSessions(c.Request.Context(), userID.(string))
	if err != nil {
		a.logger.WithError(err).Error("Failed to list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// ListMessagesHandler returns all messages of a session in order.
func (a *API) ListMessagesHandler(c *gin.Context) {
	messages, err := a.service.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err, "Failed to list messages")
		return
	}
	c.JSON(http.StatusOK, messages)
}

// DeleteSessionHandler removes a session and its messages.
func (a *API) DeleteSessionHandler(c *gin.Context) {
	if err := a.service.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		a.respondError(c, err, "Failed to delete session")
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Asking ---

type askRequest struct {
	Question       string `json:"question" binding:"required"`
	IncludeSources *bool  `json:"include_sources"`
	MaxSources     int    `json:"max_sources"`
}

// options translates the request knobs; sources are included unless
// the caller opts out.
func (r askRequest) options() service.AskOptions {
	opts := service.DefaultAskOptions()
	if r.IncludeSources != nil {
		opts.IncludeSources = *r.IncludeSources
	}
	opts.MaxSources = r.MaxSources
	return opts
}

// AskHandler streams an answer over Server-Sent Events. Each event is a
// single JSON object in a "data:" frame; the stream ends with a done or
// error event.
func (a *API) AskHandler(c *gin.Context) {
	var payload askRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	emit, started, ok := a.sseEmitter(c)
	if !ok {
		return
	}

	err := a.service.Ask(c.Request.Context(), c.Param("id"), payload.Question, payload.options(), emit)
	a.finishStream(c, started, err)
}

// RegenerateHandler discards the last assistant answer and streams a
// fresh one.
func (a *API) RegenerateHandler(c *gin.Context) {
	emit, started, ok := a.sseEmitter(c)
	if !ok {
		return
	}

	err := a.service.Regenerate(c.Request.Context(), c.Param("id"), service.DefaultAskOptions(), emit)
	a.finishStream(c, started, err)
}

// AskSyncHandler answers without streaming.
func (a *API) AskSyncHandler(c *gin.Context) {
	var payload askRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	answer, sources, err := a.service.AskSync(c.Request.Context(), c.Param("id"), payload.Question, payload.options())
	if err != nil {
		a.respondError(c, err, "Failed to answer question")
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer, "sources": sources})
}

// sseEmitter returns an emit callback that lazily switches the
// response to Server-Sent Events on the first event. Failures raised
// before any event was written can therefore still get a plain JSON
// status.
func (a *API) sseEmitter(c *gin.Context) (func(schema.Event) error, *bool, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return nil, nil, false
	}

	started := new(bool)
	emit := func(event schema.Event) error {
		if !*started {
			c.Writer.Header().Set("Content-Type", "text/event-stream")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.Header().Set("Connection", "keep-alive")
			c.Writer.WriteHeader(http.StatusOK)
			*started = true
		}
		raw, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := c.Writer.Write(raw); err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	return emit, started, true
}

// finishStream maps pre-stream failures to HTTP statuses. Once
// streaming has begun, failures have already been delivered as
// in-stream error events and nothing further can be sent.
func (a *API) finishStream(c *gin.Context, started *bool, err error) {
	if err == nil || *started {
		if err != nil {
			a.logger.WithError(err).Error("Stream ended with error")
		}
		return
	}
	a.respondError(c, err, "Failed to answer question")
}

// --- Documents ---

// SubmitDocumentHandler registers a document for asynchronous indexing.
func (a *API) SubmitDocumentHandler(c *gin.Context) {
	var sub service.DocumentSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	doc, err := a.service.SubmitForIndexing(c.Request.Context(), sub)
	if err != nil {
		var ingest *ragerr.IngestionFailure
		if errors.As(err, &ingest) && ingest.Reason == "submit" {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a.logger.WithError(err).Error("Failed to submit document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit document"})
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

// ListDocumentsHandler lists documents, newest first.
func (a *API) ListDocumentsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := a.service.ListDocuments(c.Request.Context(), limit, offset)
	if err != nil {
		a.logger.WithError(err).Error("Failed to list documents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// GetDocumentHandler returns one document record.
func (a *API) GetDocumentHandler(c *gin.Context) {
	doc, err := a.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err, "Failed to retrieve document")
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DocumentStatusHandler reports ingestion progress. Clients poll this
// endpoint while a document is processing.
func (a *API) DocumentStatusHandler(c *gin.Context) {
	info, err := a.service.DocumentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err, "Failed to retrieve document status")
		return
	}
	c.JSON(http.StatusOK, info)
}

// DocumentStatsHandler returns the corpus overview: document counts
// per lifecycle state.
func (a *API) DocumentStatsHandler(c *gin.Context) {
	stats, err := a.service.DocumentStats(c.Request.Context())
	if err != nil {
		a.logger.WithError(err).Error("Failed to compute document stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute document stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// UpdateDocumentMetadataHandler replaces a document's submitted
// metadata without re-indexing it.
func (a *API) UpdateDocumentMetadataHandler(c *gin.Context) {
	var meta schema.DocumentMeta
	if err := c.ShouldBindJSON(&meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	doc, err := a.service.UpdateDocumentMetadata(c.Request.Context(), c.Param("id"), meta)
	if err != nil {
		a.respondError(c, err, "Failed to update document metadata")
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteDocumentHandler removes a document and its vectors.
func (a *API) DeleteDocumentHandler(c *gin.Context) {
	if err := a.service.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		a.respondError(c, err, "Failed to delete document")
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError maps service errors to HTTP statuses.
func (a *API) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ragerr.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, ragerr.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	case errors.Is(err, ragerr.ErrConcurrentStream):
		c.JSON(http.StatusConflict, gin.H{"error": "Session already has an active stream"})
	default:
		a.logger.WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
