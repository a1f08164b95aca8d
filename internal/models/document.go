package models

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentStatus tracks a document through the ingestion lifecycle.
type DocumentStatus string

const (
	DocStatusProcessing DocumentStatus = "processing" // submitted, chunking and embedding in flight
	DocStatusCompleted  DocumentStatus = "completed"  // indexed and visible to retrieval
	DocStatusFailed     DocumentStatus = "failed"     // ingestion aborted, FailReason set
)

// Document is the relational record of an ingested compliance document.
// The text itself lives in the vector index as chunk snippets; this row
// carries lifecycle state and metadata for the management API.
type Document struct {
	ID         string         `gorm:"primaryKey;size:64" json:"id"`
	Filename   string         `gorm:"not null;size:512" json:"filename"`
	Title      string         `gorm:"size:512" json:"title"`
	Language   string         `gorm:"size:16" json:"language"`
	PageCount  int            `json:"page_count"`
	ChunkCount int            `json:"chunk_count"`
	Status     DocumentStatus `gorm:"type:varchar(20);default:'processing';not null;index" json:"status"`
	FailReason string         `gorm:"size:1024" json:"fail_reason,omitempty"`

	// Generation increments on every re-ingestion of the same document
	// ID, so a stale async indexing run can detect it was superseded.
	Generation int `gorm:"default:1;not null" json:"-"`

	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}
