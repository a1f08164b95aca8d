package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChatSession groups an ordered conversation between a user and the
// assistant. Title is derived from the first user message.
type ChatSession struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"index;not null;size:255" json:"user_id"`
	Title     string    `gorm:"size:255" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one turn of a session. Position is a dense, gapless
// sequence per session; assistant messages carry the sources that
// grounded them as a JSON array of citations.
type ChatMessage struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	SessionID string         `gorm:"index:idx_session_position,unique;not null;size:64" json:"session_id"`
	Position  int            `gorm:"index:idx_session_position,unique;not null" json:"position"`
	Role      string         `gorm:"type:varchar(16);not null" json:"role"`
	Content   string         `gorm:"type:longtext;not null" json:"content"`
	Sources   datatypes.JSON `json:"sources,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
