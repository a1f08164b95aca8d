package dal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ComplianceRAG/internal/models"
	"ComplianceRAG/internal/rag/ragerr"
	"ComplianceRAG/internal/rag/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatDAL provides data access methods for chat sessions and messages.
type ChatDAL struct {
	db *gorm.DB
}

// NewChatDAL creates a new ChatDAL.
func NewChatDAL(db *gorm.DB) *ChatDAL {
	return &ChatDAL{db: db}
}

// CreateSession creates an empty session for a user.
func (dal *ChatDAL) CreateSession(ctx context.Context, userID, title string) (*models.ChatSession, error) {
	session := &models.ChatSession{
		ID:     uuid.New().String(),
		UserID: userID,
		Title:  title,
	}
	if err := dal.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession returns one session, or ragerr.ErrSessionNotFound.
func (dal *ChatDAL) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	result := dal.db.WithContext(ctx).Where("id = ?", sessionID).First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ragerr.ErrSessionNotFound
		}
		return nil, result.Error
	}
	return &session, nil
}

// ListSessionsByUser returns a user's sessions, most recently updated
// first.
func (dal *ChatDAL) ListSessionsByUser(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	var sessions []*models.ChatSession
	result := dal.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

// SetSessionTitle updates a session's title.
func (dal *ChatDAL) SetSessionTitle(ctx context.Context, sessionID, title string) error {
	result := dal.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("id = ?", sessionID).
		Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ragerr.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session and all of its messages.
func (dal *ChatDAL) DeleteSession(ctx context.Context, sessionID string) error {
	return dal.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", sessionID).Delete(&models.ChatSession{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ragerr.ErrSessionNotFound
		}
		return nil
	})
}

// AppendMessage appends one message to a session, assigning the next
// dense position inside a transaction so concurrent appends cannot
// produce gaps or duplicates.
func (dal *ChatDAL) AppendMessage(ctx context.Context, sessionID, messageID, role, content string, sources []schema.SourceReference) (*models.ChatMessage, error) {
	if messageID == "" {
		messageID = uuid.New().String()
	}

	var payload []byte
	if len(sources) > 0 {
		raw, err := json.Marshal(sources)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize sources: %w", err)
		}
		payload = raw
	}

	msg := &models.ChatMessage{
		ID:        messageID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Sources:   payload,
	}

	err := dal.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ChatSession
		if err := tx.Where("id = ?", sessionID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ragerr.ErrSessionNotFound
			}
			return err
		}

		var maxPosition int
		row := tx.Model(&models.ChatMessage{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(position), -1)").
			Row()
		if err := row.Scan(&maxPosition); err != nil {
			return err
		}
		msg.Position = maxPosition + 1

		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatSession{}).
			Where("id = ?", sessionID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a session's messages in position order.
func (dal *ChatDAL) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	if _, err := dal.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var messages []*models.ChatMessage
	result := dal.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}
	return messages, nil
}

// RecentHistory returns the newest turns of a session as prompt-ready
// history, oldest first, capped at maxTurns.
func (dal *ChatDAL) RecentHistory(ctx context.Context, sessionID string, maxTurns int) ([]schema.ChatTurn, error) {
	var messages []*models.ChatMessage
	result := dal.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position DESC").
		Limit(maxTurns).
		Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}

	turns := make([]schema.ChatTurn, len(messages))
	for i, m := range messages {
		turns[len(messages)-1-i] = schema.ChatTurn{Role: m.Role, Content: m.Content}
	}
	return turns, nil
}

// DeleteLastAssistantMessage removes the final message of a session if
// it is an assistant turn. Used by regeneration.
func (dal *ChatDAL) DeleteLastAssistantMessage(ctx context.Context, sessionID string) error {
	return dal.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last models.ChatMessage
		err := tx.Where("session_id = ?", sessionID).
			Order("position DESC").
			First(&last).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if last.Role != "assistant" {
			return nil
		}
		return tx.Delete(&last).Error
	})
}
