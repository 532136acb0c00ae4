package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ip-workflow-service/internal/model"
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListSubmissionTypes(ctx context.Context) ([]model.SubmissionType, error) {
	var types []model.SubmissionType
	if err := GetDB(ctx, r.db).
		Order("name ASC").
		Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

func (r *CatalogRepository) GetSubmissionType(ctx context.Context, id uuid.UUID) (*model.SubmissionType, error) {
	var st model.SubmissionType
	if err := GetDB(ctx, r.db).
		Preload("Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("stage_order ASC")
		}).
		Preload("Requirements", func(db *gorm.DB) *gorm.DB {
			return db.Order("requirement_order ASC")
		}).
		Where("id = ?", id).
		First(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *CatalogRepository) GetSubmissionTypeBySlug(ctx context.Context, slug string) (*model.SubmissionType, error) {
	var st model.SubmissionType
	if err := GetDB(ctx, r.db).Where("slug = ?", slug).First(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *CatalogRepository) CreateSubmissionType(ctx context.Context, st *model.SubmissionType) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(st).Error
}

func (r *CatalogRepository) UpdateSubmissionType(ctx context.Context, st *model.SubmissionType) error {
	return GetDB(ctx, r.db).
		Model(&model.SubmissionType{}).
		Where("id = ?", st.ID).
		Updates(map[string]interface{}{
			"name":        st.Name,
			"slug":        st.Slug,
			"description": st.Description,
		}).Error
}

// ListStages returns the stages of a type in ascending order.
func (r *CatalogRepository) ListStages(ctx context.Context, typeID uuid.UUID, activeOnly bool) ([]model.WorkflowStage, error) {
	query := GetDB(ctx, r.db).Where("submission_type_id = ?", typeID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var stages []model.WorkflowStage
	if err := query.Order("stage_order ASC").Find(&stages).Error; err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *CatalogRepository) GetStage(ctx context.Context, id uuid.UUID) (*model.WorkflowStage, error) {
	var stage model.WorkflowStage
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&stage).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

// GetStageForUpdate locks the stage row for catalog edits.
func (r *CatalogRepository) GetStageForUpdate(ctx context.Context, id uuid.UUID) (*model.WorkflowStage, error) {
	return r.lockedStage(ctx, id, "UPDATE")
}

// GetStageForShare locks the stage row against concurrent edits while a
// submission moves onto it.
func (r *CatalogRepository) GetStageForShare(ctx context.Context, id uuid.UUID) (*model.WorkflowStage, error) {
	return r.lockedStage(ctx, id, "SHARE")
}

func (r *CatalogRepository) lockedStage(ctx context.Context, id uuid.UUID, strength string) (*model.WorkflowStage, error) {
	var stage model.WorkflowStage
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: strength}).
		Where("id = ?", id).
		First(&stage).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *CatalogRepository) CreateStage(ctx context.Context, stage *model.WorkflowStage) error {
	return GetDB(ctx, r.db).Create(stage).Error
}

func (r *CatalogRepository) UpdateStage(ctx context.Context, stage *model.WorkflowStage) error {
	return GetDB(ctx, r.db).
		Model(&model.WorkflowStage{}).
		Where("id = ?", stage.ID).
		Updates(map[string]interface{}{
			"code":        stage.Code,
			"name":        stage.Name,
			"stage_order": stage.Order,
			"is_active":   stage.IsActive,
			"description": stage.Description,
		}).Error
}

func (r *CatalogRepository) DeleteStage(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.WorkflowStage{}).Error
}

func (r *CatalogRepository) GetRequirement(ctx context.Context, id uuid.UUID) (*model.DocumentRequirement, error) {
	var req model.DocumentRequirement
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *CatalogRepository) ListRequirements(ctx context.Context, typeID uuid.UUID) ([]model.DocumentRequirement, error) {
	var reqs []model.DocumentRequirement
	if err := GetDB(ctx, r.db).
		Where("submission_type_id = ?", typeID).
		Order("requirement_order ASC").
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *CatalogRepository) CreateRequirement(ctx context.Context, req *model.DocumentRequirement) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *CatalogRepository) ListStageRequirements(ctx context.Context, stageID uuid.UUID) ([]model.StageRequirement, error) {
	var links []model.StageRequirement
	if err := GetDB(ctx, r.db).
		Preload("DocumentRequirement").
		Where("workflow_stage_id = ?", stageID).
		Order("sort_order ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *CatalogRepository) UpsertStageRequirement(ctx context.Context, link *model.StageRequirement) error {
	return GetDB(ctx, r.db).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workflow_stage_id"}, {Name: "document_requirement_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_required", "sort_order"}),
		}).
		Create(link).Error
}
