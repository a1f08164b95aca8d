package api

import (
	"net/http"

	"ComplianceRAG/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all routes of the RAG service. The ask
// limiter throttles the endpoints that reach the model backends.
func RegisterRoutes(router *gin.Engine, api *API, jwtSecret string, askLimiter ratelimiter.RateLimiter) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(jwtSecret))
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", api.CreateSessionHandler)
			sessions.GET("", api.ListSessionsHandler)
			sessions.GET("/:id/messages", api.ListMessagesHandler)
			sessions.DELETE("/:id", api.DeleteSessionHandler)

			asking := sessions.Group("")
			asking.Use(RateLimitMiddleware(askLimiter))
			{
				asking.POST("/:id/ask", api.AskHandler)
				asking.POST("/:id/ask/sync", api.AskSyncHandler)
				asking.POST("/:id/regenerate", api.RegenerateHandler)
			}
		}

		documents := v1.Group("/documents")
		{
			documents.POST("", api.SubmitDocumentHandler)
			documents.GET("", api.ListDocumentsHandler)
			documents.GET("/stats/overview", api.DocumentStatsHandler)
			documents.GET("/:id", api.GetDocumentHandler)
			documents.GET("/:id/status", api.DocumentStatusHandler)
			documents.PATCH("/:id/metadata", api.UpdateDocumentMetadataHandler)
			documents.DELETE("/:id", api.DeleteDocumentHandler)
		}
	}
}
