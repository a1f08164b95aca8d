package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ComplianceRAG/internal/config"
	"ComplianceRAG/internal/database/milvus"
	"ComplianceRAG/internal/database/mysql"
	"ComplianceRAG/internal/database/redis"
	"ComplianceRAG/internal/models"
	"ComplianceRAG/internal/rag/embeddings"
	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/llms"
	"ComplianceRAG/internal/rag/pipeline"
	"ComplianceRAG/internal/rag/splitters"
	"ComplianceRAG/internal/rag/storages/vectorstore"
	"ComplianceRAG/internal/rag_service/api"
	"ComplianceRAG/internal/rag_service/consumer"
	"ComplianceRAG/internal/rag_service/dal"
	"ComplianceRAG/internal/rag_service/service"
	"ComplianceRAG/pkg/circuitbreaker"
	"ComplianceRAG/pkg/logger"
	"ComplianceRAG/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Configuration is validated up front; the process must not come up
	// in a half-working state.
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	serviceLogger := logger.New("ComplianceRAG", "", "")
	serviceLogger.Info("Starting compliance RAG service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relational store.
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to connect to MySQL")
	}
	if err := db.AutoMigrate(&models.Document{}, &models.ChatSession{}, &models.ChatMessage{}); err != nil {
		serviceLogger.WithError(err).Fatal("Failed to run database migrations")
	}
	serviceLogger.Info("Connected to MySQL")

	// Status cache.
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to connect to Redis")
	}
	serviceLogger.Info("Connected to Redis")

	// Pipeline components, built from the validated configuration.
	embedder, err := buildEmbedder(ctx, cfg, serviceLogger)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to create embedder")
	}
	generator, err := buildGenerator(ctx, cfg)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to create generator")
	}
	index, err := buildVectorIndex(ctx, cfg, serviceLogger)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to create vector index")
	}
	splitter, err := splitters.NewCharSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to create splitter")
	}
	counter, err := pipeline.NewTiktokenCounter()
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to load tokenizer")
	}

	indexer := pipeline.NewIndexingPipeline(splitter, embedder, index, serviceLogger)
	retriever := pipeline.NewRetriever(embedder, index, cfg.RAG.TopK, cfg.RAG.OverfetchFactor, cfg.RAG.MinScore, cfg.RAG.DedupWindow, serviceLogger)
	prompts := pipeline.NewPromptBuilder(counter, cfg.RAG.ContextTokenBudget, cfg.RAG.HistoryTokenBudget, cfg.RAG.MaxHistoryTurns, serviceLogger)

	ragService := service.NewRAGService(
		serviceLogger,
		dal.NewDocumentDAL(db),
		dal.NewChatDAL(db),
		indexer,
		retriever,
		prompts,
		generator,
		redisClient,
		cfg.RAG.TopK,
		cfg.RAG.MaxHistoryTurns,
	)

	// Optional Kafka ingestion trigger.
	var ingestionConsumer *consumer.IngestionConsumer
	if len(cfg.Databases.Kafka.Brokers) > 0 {
		ingestionConsumer = consumer.NewIngestionConsumer(
			cfg.Databases.Kafka.Brokers,
			cfg.Databases.Kafka.Topic,
			cfg.Databases.Kafka.GroupID,
			ragService,
			serviceLogger,
		)
		ingestionConsumer.Start(ctx)
		serviceLogger.Info("Kafka ingestion consumer started")
	}

	// HTTP server.
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	apiHandler := api.NewAPI(ragService, serviceLogger)
	askLimiter := ratelimiter.NewTokenBucket(10, 20)
	api.RegisterRoutes(router, apiHandler, cfg.Auth.JwtSecret, askLimiter)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		serviceLogger.Info("HTTP server listening on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(err).Error("HTTP server shutdown failed")
	}

	if ingestionConsumer != nil {
		if err := ingestionConsumer.Close(); err != nil {
			serviceLogger.WithError(err).Error("Failed to close Kafka consumer")
		}
	}
	ragService.Shutdown()

	if err := mysql.Close(); err != nil {
		serviceLogger.WithError(err).Error("Failed to close MySQL connection")
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(err).Error("Failed to close Redis connection")
	}
	serviceLogger.Info("Shutdown complete")
}

// buildEmbedder selects the embedding backend and wraps it with
// transient-failure retries.
func buildEmbedder(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (interfaces.Embedder, error) {
	var (
		inner interfaces.Embedder
		err   error
	)
	switch cfg.Embedding.Provider {
	case "gemini":
		inner, err = embeddings.NewGenaiEmbedder(ctx, cfg.Embedding.Gemini.APIKey, cfg.Embedding.Gemini.Model, cfg.Embedding.Dimension)
	case "ollama":
		inner, err = embeddings.NewOllamaEmbedder(cfg.Embedding.Ollama.Model, cfg.Embedding.Ollama.BaseURL, cfg.Embedding.Dimension)
	default:
		err = fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, err
	}
	retry := cfg.RAG.EmbedRetry
	retrying := embeddings.NewRetryingEmbedder(inner, retry.Attempts, retry.BaseBackoffDuration(), log)
	// The cache sits outside the retry layer so a hit never touches the
	// backend at all.
	return embeddings.NewCachingEmbedder(retrying, 4096, time.Hour)
}

// buildGenerator selects the answer-generation backend and guards it
// with a circuit breaker.
func buildGenerator(ctx context.Context, cfg *config.AppConfig) (interfaces.Generator, error) {
	var (
		inner interfaces.Generator
		err   error
	)
	switch cfg.LLM.Provider {
	case "gemini":
		inner, err = llms.NewGemini(ctx, cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.Model)
	case "ollama":
		inner, err = llms.NewOllama(cfg.LLM.Ollama.Model, cfg.LLM.Ollama.BaseURL)
	default:
		err = fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}
	breaker := circuitbreaker.New(5, 2, 30*time.Second)
	return llms.NewBreakerGenerator(inner, breaker), nil
}

// buildVectorIndex selects the vector index backend.
func buildVectorIndex(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (interfaces.VectorIndex, error) {
	switch cfg.VectorIndex.Provider {
	case "memory":
		return vectorstore.NewMemoryIndex(cfg.Embedding.Dimension, log)
	case "milvus":
		milvusClient, err := milvus.GetClient(ctx, &cfg.VectorIndex.Milvus)
		if err != nil {
			return nil, err
		}
		if err := milvusClient.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
			return nil, err
		}
		return vectorstore.NewMilvusIndex(milvusClient.Client, cfg.VectorIndex.Milvus.Collection, cfg.Embedding.Dimension, log)
	default:
		return nil, fmt.Errorf("unsupported vector index provider %q", cfg.VectorIndex.Provider)
	}
}
