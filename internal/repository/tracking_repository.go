package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ip-workflow-service/internal/model"
)

// TrackingRepository is append-only: there is no update or delete.
type TrackingRepository struct {
	db *gorm.DB
}

func NewTrackingRepository(db *gorm.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

type HistoryFilter struct {
	Actions    []string
	EventTypes []string
	StageID    *uuid.UUID
	DocumentID *uuid.UUID
	DateFrom   *time.Time
	DateTo     *time.Time
}

func (r *TrackingRepository) Append(ctx context.Context, entry *model.TrackingHistoryEntry) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

// NextSequence must be called while the submission row is locked.
func (r *TrackingRepository) NextSequence(ctx context.Context, submissionID uuid.UUID) (int64, error) {
	var next int64
	if err := GetDB(ctx, r.db).
		Model(&model.TrackingHistoryEntry{}).
		Select("COALESCE(MAX(sequence), 0) + 1").
		Where("submission_id = ?", submissionID).
		Scan(&next).Error; err != nil {
		return 0, err
	}
	return next, nil
}

func (r *TrackingRepository) ListForSubmission(ctx context.Context, submissionID uuid.UUID, filter HistoryFilter) ([]model.TrackingHistoryEntry, error) {
	query := GetDB(ctx, r.db).
		Model(&model.TrackingHistoryEntry{}).
		Where("submission_id = ?", submissionID)

	if len(filter.Actions) > 0 {
		query = query.Where("action IN ?", filter.Actions)
	}
	if len(filter.EventTypes) > 0 {
		query = query.Where("event_type IN ?", filter.EventTypes)
	}
	if filter.StageID != nil {
		query = query.Where("stage_id = ?", *filter.StageID)
	}
	if filter.DocumentID != nil {
		query = query.Where("document_id = ?", *filter.DocumentID)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}

	var entries []model.TrackingHistoryEntry
	if err := query.Order("created_at ASC, sequence ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Recent returns the newest entries across submissions visible in scope.
func (r *TrackingRepository) Recent(ctx context.Context, scope model.Scope, limit int) ([]model.TrackingHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := GetDB(ctx, r.db).
		Model(&model.TrackingHistoryEntry{}).
		Joins("JOIN submissions ON submissions.id = tracking_histories.submission_id AND submissions.deleted_at IS NULL")
	query = applyScopeFilter(query, scope)

	var entries []model.TrackingHistoryEntry
	if err := query.
		Order("tracking_histories.created_at DESC, tracking_histories.sequence DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
