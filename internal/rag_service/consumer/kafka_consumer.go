package consumer

import (
	"context"
	"encoding/json"

	"ComplianceRAG/internal/rag_service/service"
	"ComplianceRAG/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// IngestionConsumer consumes document-ingestion triggers from Kafka.
// Upstream extraction services publish the normalized text of a
// document to the topic; each message becomes one indexing submission.
type IngestionConsumer struct {
	reader  *kafka.Reader
	service *service.RAGService
	log     *logger.Logger
}

// NewIngestionConsumer creates a consumer bound to the trigger topic.
func NewIngestionConsumer(brokers []string, topic, groupID string, svc *service.RAGService, log *logger.Logger) *IngestionConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &IngestionConsumer{
		reader:  reader,
		service: svc,
		log:     log,
	}
}

// Start begins consuming in a background goroutine until ctx is
// cancelled. A malformed message is committed and skipped; a submission
// failure is logged but the message is still committed, because retries
// belong to the publisher.
func (c *IngestionConsumer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				c.log.Info("Stopping ingestion consumer...")
				return
			default:
				msg, err := c.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						c.log.WithError(err).Error("Error fetching message from Kafka")
					}
					continue
				}

				if err := c.handle(ctx, msg); err != nil {
					c.log.WithError(err).WithPayload(map[string]interface{}{
						"topic":     msg.Topic,
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Error("Error handling ingestion trigger")
				}

				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.log.WithError(err).Error("Failed to commit Kafka message")
				}
			}
		}
	}()
}

func (c *IngestionConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var sub service.DocumentSubmission
	if err := json.Unmarshal(msg.Value, &sub); err != nil {
		c.log.WithError(err).Warn("Skipping malformed ingestion trigger")
		return nil
	}

	doc, err := c.service.SubmitForIndexing(ctx, sub)
	if err != nil {
		return err
	}
	c.log.WithField("document_id", doc.ID).Info("Document submitted from Kafka trigger")
	return nil
}

// Close closes the underlying Kafka reader.
func (c *IngestionConsumer) Close() error {
	return c.reader.Close()
}
