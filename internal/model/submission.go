package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	SubmissionStatusDraft          SubmissionStatus = "draft"
	SubmissionStatusSubmitted      SubmissionStatus = "submitted"
	SubmissionStatusInReview       SubmissionStatus = "in_review"
	SubmissionStatusRevisionNeeded SubmissionStatus = "revision_needed"
	SubmissionStatusApproved       SubmissionStatus = "approved"
	SubmissionStatusRejected       SubmissionStatus = "rejected"
	SubmissionStatusCompleted      SubmissionStatus = "completed"
	SubmissionStatusCancelled      SubmissionStatus = "cancelled"
)

var SubmissionStatuses = []SubmissionStatus{
	SubmissionStatusDraft,
	SubmissionStatusSubmitted,
	SubmissionStatusInReview,
	SubmissionStatusRevisionNeeded,
	SubmissionStatusApproved,
	SubmissionStatusRejected,
	SubmissionStatusCompleted,
	SubmissionStatusCancelled,
}

func (s SubmissionStatus) Valid() bool {
	for _, known := range SubmissionStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// InProgress covers the statuses in which a submission occupies a stage and
// may still move.
func (s SubmissionStatus) InProgress() bool {
	switch s {
	case SubmissionStatusSubmitted, SubmissionStatusInReview, SubmissionStatusRevisionNeeded, SubmissionStatusApproved:
		return true
	}
	return false
}

func (s SubmissionStatus) Terminal() bool {
	switch s {
	case SubmissionStatusCompleted, SubmissionStatusRejected, SubmissionStatusCancelled:
		return true
	}
	return false
}

// DocumentsEditable reports whether uploads are accepted in this status.
func (s SubmissionStatus) DocumentsEditable() bool {
	switch s {
	case SubmissionStatusDraft, SubmissionStatusSubmitted, SubmissionStatusInReview, SubmissionStatusRevisionNeeded:
		return true
	}
	return false
}

var InProgressStatuses = []SubmissionStatus{
	SubmissionStatusSubmitted,
	SubmissionStatusInReview,
	SubmissionStatusRevisionNeeded,
	SubmissionStatusApproved,
}

type Submission struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SerialNo          int64            `gorm:"column:serial_no;->" json:"serial_no"`
	SubmissionTypeID  uuid.UUID        `gorm:"type:uuid;not null" json:"submission_type_id"`
	CurrentStageID    *uuid.UUID       `gorm:"type:uuid" json:"current_stage_id"`
	Title             string           `gorm:"type:varchar(500);not null" json:"title"`
	Status            SubmissionStatus `gorm:"type:submission_status;not null;default:'draft'" json:"status"`
	Certificate       *string          `gorm:"type:text" json:"certificate"`
	CertificateNumber *string          `gorm:"type:varchar(32)" json:"certificate_number"`
	UserID            uuid.UUID        `gorm:"type:uuid;not null" json:"user_id"`
	Version           int              `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt   `gorm:"index" json:"-"`

	SubmissionType *SubmissionType `gorm:"foreignKey:SubmissionTypeID" json:"submission_type,omitempty"`
	CurrentStage   *WorkflowStage  `gorm:"foreignKey:CurrentStageID" json:"current_stage,omitempty"`
}

func (Submission) TableName() string {
	return "submissions"
}

// CheckStageInvariant verifies that only drafts have no current stage.
func (s Submission) CheckStageInvariant() error {
	isDraft := s.Status == SubmissionStatusDraft
	if isDraft != (s.CurrentStageID == nil) {
		return fmt.Errorf("submission %s: status %s with current stage %v", s.ID, s.Status, s.CurrentStageID)
	}
	return nil
}

// CertificateNumberFor formats the certificate number issued on completion.
func CertificateNumberFor(issuedAt time.Time, serialNo int64) string {
	return fmt.Sprintf("CERT-%04d-%06d", issuedAt.Year(), serialNo)
}
