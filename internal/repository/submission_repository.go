package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ip-workflow-service/internal/model"
)

type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

type SubmissionFilter struct {
	Scope    model.Scope
	Statuses []model.SubmissionStatus
	TypeIDs  []uuid.UUID
	StageID  *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Limit    int
	Offset   int
}

func (r *SubmissionRepository) Create(ctx context.Context, submission *model.Submission, detail *model.SubmissionDetail) error {
	db := GetDB(ctx, r.db)
	if err := db.Omit(clause.Associations).Create(submission).Error; err != nil {
		return err
	}
	if detail != nil {
		detail.SubmissionID = submission.ID
		if err := db.Create(detail).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *SubmissionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var submission model.Submission
	if err := GetDB(ctx, r.db).
		Preload("SubmissionType").
		Preload("CurrentStage").
		Where("id = ?", id).
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

// GetForUpdate reads the submission row under SELECT ... FOR UPDATE. It must
// run inside a transaction.
func (r *SubmissionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var submission model.Submission
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionRepository) GetDetail(ctx context.Context, submissionID uuid.UUID) (*model.SubmissionDetail, error) {
	var detail model.SubmissionDetail
	if err := GetDB(ctx, r.db).Where("submission_id = ?", submissionID).First(&detail).Error; err != nil {
		return nil, err
	}
	return &detail, nil
}

func (r *SubmissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := GetDB(ctx, r.db).Model(&model.Submission{})
	query = applyScopeFilter(query, filter.Scope)

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if len(filter.TypeIDs) > 0 {
		query = query.Where("submission_type_id IN ?", filter.TypeIDs)
	}
	if filter.StageID != nil {
		query = query.Where("current_stage_id = ?", *filter.StageID)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}
	if filter.Search != "" {
		query = query.Where("title ILIKE ?", "%"+filter.Search+"%")
	}

	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	} else {
		query = query.Limit(200)
	}

	var submissions []model.Submission
	if err := query.Order("created_at DESC").
		Preload("SubmissionType").
		Preload("CurrentStage").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

// UpdateState writes status, stage pointer and certificate guarded by the
// version column. On success the version in submission is bumped.
func (r *SubmissionRepository) UpdateState(ctx context.Context, submission *model.Submission) error {
	result := GetDB(ctx, r.db).
		Model(&model.Submission{}).
		Where("id = ? AND version = ?", submission.ID, submission.Version).
		Updates(map[string]interface{}{
			"status":             submission.Status,
			"current_stage_id":   submission.CurrentStageID,
			"certificate":        submission.Certificate,
			"certificate_number": submission.CertificateNumber,
			"version":            gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	submission.Version++
	return nil
}

func (r *SubmissionRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Submission{}).Error
}

// CountByType counts every submission of the type, soft-deleted ones included.
func (r *SubmissionRepository) CountByType(ctx context.Context, typeID uuid.UUID) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).
		Unscoped().
		Model(&model.Submission{}).
		Where("submission_type_id = ?", typeID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SubmissionRepository) CountByStage(ctx context.Context, stageID uuid.UUID, statuses []model.SubmissionStatus) (int64, error) {
	var count int64
	query := GetDB(ctx, r.db).
		Model(&model.Submission{}).
		Where("current_stage_id = ?", stageID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SubmissionRepository) CountByStatus(ctx context.Context, scope model.Scope) (map[model.SubmissionStatus]int64, error) {
	type row struct {
		Status model.SubmissionStatus
		Total  int64
	}
	var rows []row
	query := GetDB(ctx, r.db).
		Model(&model.Submission{}).
		Select("status, COUNT(*) AS total")
	query = applyScopeFilter(query, scope)
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[model.SubmissionStatus]int64, len(rows))
	for _, r := range rows {
		result[r.Status] = r.Total
	}
	return result, nil
}

func applyScopeFilter(query *gorm.DB, scope model.Scope) *gorm.DB {
	if scope.Type == model.ScopeOwner && scope.OwnerID != nil {
		return query.Where("submissions.user_id = ?", *scope.OwnerID)
	}
	return query
}
