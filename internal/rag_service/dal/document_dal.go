package dal

import (
	"context"
	"errors"

	"ComplianceRAG/internal/models"
	"ComplianceRAG/internal/rag/ragerr"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentDAL provides data access methods for documents.
type DocumentDAL struct {
	db *gorm.DB
}

// NewDocumentDAL creates a new DocumentDAL.
func NewDocumentDAL(db *gorm.DB) *DocumentDAL {
	return &DocumentDAL{db: db}
}

// UpsertProcessing creates the document row in the processing state, or
// resets an existing row for re-ingestion. Re-ingestion bumps the
// generation so an in-flight indexing run for the old text can detect
// it was superseded. Returns the generation the caller now owns.
func (dal *DocumentDAL) UpsertProcessing(ctx context.Context, doc *models.Document) (int, error) {
	doc.Status = models.DocStatusProcessing
	doc.FailReason = ""
	doc.ChunkCount = 0

	err := dal.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Document
		result := tx.Where("id = ?", doc.ID).First(&existing)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				doc.Generation = 1
				return tx.Create(doc).Error
			}
			return result.Error
		}

		doc.Generation = existing.Generation + 1
		doc.CreatedAt = existing.CreatedAt
		return tx.Model(&models.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
			"filename":    doc.Filename,
			"title":       doc.Title,
			"language":    doc.Language,
			"page_count":  doc.PageCount,
			"chunk_count": 0,
			"status":      models.DocStatusProcessing,
			"fail_reason": "",
			"generation":  doc.Generation,
			"metadata":    doc.Metadata,
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return doc.Generation, nil
}

// MarkCompleted transitions a document to completed for the given
// generation. A stale generation is a no-op: a newer ingestion has
// taken over the row.
func (dal *DocumentDAL) MarkCompleted(ctx context.Context, documentID string, generation, chunkCount int) error {
	return dal.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND generation = ?", documentID, generation).
		Updates(map[string]interface{}{
			"status":      models.DocStatusCompleted,
			"chunk_count": chunkCount,
			"fail_reason": "",
		}).Error
}

// MarkFailed transitions a document to failed with a reason, for the
// given generation only.
func (dal *DocumentDAL) MarkFailed(ctx context.Context, documentID string, generation int, reason string) error {
	return dal.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND generation = ?", documentID, generation).
		Updates(map[string]interface{}{
			"status":      models.DocStatusFailed,
			"fail_reason": reason,
			"chunk_count": 0,
		}).Error
}

// GetByID returns one document, or ragerr.ErrDocumentNotFound.
func (dal *DocumentDAL) GetByID(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	result := dal.db.WithContext(ctx).Where("id = ?", documentID).First(&doc)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ragerr.ErrDocumentNotFound
		}
		return nil, result.Error
	}
	return &doc, nil
}

// List returns documents ordered by newest first.
func (dal *DocumentDAL) List(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	var docs []*models.Document
	result := dal.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&docs)
	if result.Error != nil {
		return nil, result.Error
	}
	return docs, nil
}

// Delete removes the document row. Vector cleanup is the caller's job.
func (dal *DocumentDAL) Delete(ctx context.Context, documentID string) error {
	result := dal.db.WithContext(ctx).Where("id = ?", documentID).Delete(&models.Document{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ragerr.ErrDocumentNotFound
	}
	return nil
}

// SetMetadata replaces the document's metadata JSON.
func (dal *DocumentDAL) SetMetadata(ctx context.Context, documentID string, metadata datatypes.JSON) error {
	return dal.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", documentID).
		Update("metadata", metadata).Error
}

// CountByStatus returns how many documents sit in each lifecycle state.
func (dal *DocumentDAL) CountByStatus(ctx context.Context) (map[models.DocumentStatus]int64, error) {
	type row struct {
		Status models.DocumentStatus
		Total  int64
	}
	var rows []row
	result := dal.db.WithContext(ctx).Model(&models.Document{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	counts := make(map[models.DocumentStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
