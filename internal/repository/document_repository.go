package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ip-workflow-service/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	return GetDB(ctx, r.db).Create(doc).Error
}

func (r *DocumentRepository) CreateSubmissionDocument(ctx context.Context, sd *model.SubmissionDocument) error {
	sd.IsActive = sd.Status.Active()
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(sd).Error
}

func (r *DocumentRepository) GetSubmissionDocument(ctx context.Context, id uuid.UUID) (*model.SubmissionDocument, error) {
	var sd model.SubmissionDocument
	if err := GetDB(ctx, r.db).
		Preload("Document").
		Preload("Requirement").
		Where("id = ?", id).
		First(&sd).Error; err != nil {
		return nil, err
	}
	return &sd, nil
}

// GetSubmissionDocumentForUpdate re-reads the row under FOR UPDATE. Callers
// hold the owning submission's lock first.
func (r *DocumentRepository) GetSubmissionDocumentForUpdate(ctx context.Context, id uuid.UUID) (*model.SubmissionDocument, error) {
	var sd model.SubmissionDocument
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Document").
		Preload("Requirement").
		Where("id = ?", id).
		First(&sd).Error; err != nil {
		return nil, err
	}
	return &sd, nil
}

func (r *DocumentRepository) ListSubmissionDocuments(ctx context.Context, submissionID uuid.UUID) ([]model.SubmissionDocument, error) {
	var docs []model.SubmissionDocument
	if err := GetDB(ctx, r.db).
		Preload("Document").
		Preload("Requirement").
		Where("submission_id = ?", submissionID).
		Order("created_at ASC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateSubmissionDocumentStatus persists status, the derived active flag and
// notes together.
func (r *DocumentRepository) UpdateSubmissionDocumentStatus(ctx context.Context, sd *model.SubmissionDocument) error {
	return GetDB(ctx, r.db).
		Model(&model.SubmissionDocument{}).
		Where("id = ?", sd.ID).
		Updates(map[string]interface{}{
			"status":    sd.Status,
			"is_active": sd.Status.Active(),
			"notes":     sd.Notes,
		}).Error
}
