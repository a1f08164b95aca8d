package milvus

import (
	"context"
	"fmt"
	"sync"

	"ComplianceRAG/internal/config"
	"ComplianceRAG/internal/rag/storages/vectorstore"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient holds the Milvus connection and its configuration.
type MilvusClient struct {
	Client client.Client
	Config *config.MilvusConfig
}

// GetClient initializes and returns the shared Milvus client.
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("failed to connect to Milvus: %w", err)
			return
		}
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close safely closes the Milvus connection.
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// HealthCheck verifies the connection by listing collections.
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the chunk collection with a COSINE HNSW
// index if it does not exist yet, then loads it for search.
func (c *MilvusClient) EnsureCollection(ctx context.Context, dimension int) error {
	collection := c.Config.Collection

	has, err := c.Client.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection '%s': %w", collection, err)
	}

	if !has {
		schema := entity.NewSchema().
			WithName(collection).
			WithDescription("compliance document chunks").
			WithField(entity.NewField().
				WithName(vectorstore.FieldChunkID).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(64).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().
				WithName(vectorstore.FieldDocumentID).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(64)).
			WithField(entity.NewField().
				WithName(vectorstore.FieldChunkIndex).
				WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().
				WithName(vectorstore.FieldFilename).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(512)).
			WithField(entity.NewField().
				WithName(vectorstore.FieldSnippet).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(2048)).
			WithField(entity.NewField().
				WithName(vectorstore.FieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(dimension)))

		if err := c.Client.CreateCollection(ctx, schema, 1); err != nil {
			return fmt.Errorf("failed to create collection '%s': %w", collection, err)
		}

		index, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
		if err != nil {
			return fmt.Errorf("failed to build HNSW index definition: %w", err)
		}
		if err := c.Client.CreateIndex(ctx, collection, vectorstore.FieldEmbedding, index, false); err != nil {
			return fmt.Errorf("failed to create index on '%s': %w", collection, err)
		}
	}

	if err := c.Client.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to load collection '%s': %w", collection, err)
	}
	return nil
}
