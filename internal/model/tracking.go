package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionSubmissionCreated = "submission_created"
	ActionReviewStarted     = "review_started"
	ActionStageCompleted    = "stage_completed"
	ActionAdvanceStage      = "advance_stage"
	ActionReturnStage       = "return_stage"
	ActionRequestRevision   = "request_revision"
	ActionRevisionSubmitted = "revision_submitted"
	ActionApprove           = "approve"
	ActionReject            = "reject"
	ActionCertificate       = "certificate_uploaded"
	ActionCancel            = "cancel"
	ActionDocumentUploaded  = "document_uploaded"
	ActionDocumentStatus    = "document_status_changed"
)

const (
	EventCreation                    = "creation"
	EventStatusChange                = "status_change"
	EventStageCompleted              = "stage_completed"
	EventStageTransition             = "stage_transition"
	EventStageReturned               = "stage_returned"
	EventRevisionRequested           = "revision_requested"
	EventSubmissionRevisionSubmitted = "submission_revision_submitted"
	EventSubmissionApproved          = "submission_approved"
	EventSubmissionRejected          = "submission_rejected"
	EventCompletion                  = "completion"
	EventSubmissionCancelled         = "submission_cancelled"
	EventDocumentUploaded            = "document_uploaded"
	EventDocumentApproved            = "document_approved"
	EventDocumentRejected            = "document_rejected"
	EventDocumentRevisionNeeded      = "document_revision_needed"
	EventDocumentReplaced            = "document_replaced"
	EventDocumentStatusChanged       = "document_status_changed"
)

// Stage-level statuses written on stage transition entries.
const (
	StageStatusApproved = "approved"
	StageStatusStarted  = "started"
	StageStatusReturned = "returned"
)

// TrackingHistoryEntry is one immutable audit row. Rows are ordered by
// CreatedAt and then Sequence.
type TrackingHistoryEntry struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SubmissionID    uuid.UUID         `gorm:"type:uuid;not null" json:"submission_id"`
	Sequence        int64             `gorm:"not null" json:"sequence"`
	StageID         *uuid.UUID        `gorm:"type:uuid" json:"stage_id"`
	PreviousStageID *uuid.UUID        `gorm:"type:uuid" json:"previous_stage_id"`
	Action          string            `gorm:"type:varchar(64);not null" json:"action"`
	EventType       string            `gorm:"type:varchar(64);not null" json:"event_type"`
	Status          string            `gorm:"type:varchar(32);not null" json:"status"`
	Comment         string            `gorm:"type:text" json:"comment"`
	DocumentID      *uuid.UUID        `gorm:"type:uuid" json:"document_id"`
	ProcessedBy     *uuid.UUID        `gorm:"type:uuid" json:"processed_by"`
	SourceStatus    *string           `gorm:"type:varchar(32)" json:"source_status"`
	TargetStatus    *string           `gorm:"type:varchar(32)" json:"target_status"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
}

func (TrackingHistoryEntry) TableName() string {
	return "tracking_histories"
}

// Before reports whether e precedes other in canonical timeline order.
func (e TrackingHistoryEntry) Before(other TrackingHistoryEntry) bool {
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.Sequence < other.Sequence
}

type StageGroup struct {
	StageID   *uuid.UUID             `json:"stage_id"`
	StageCode string                 `json:"stage_code,omitempty"`
	StageName string                 `json:"stage_name,omitempty"`
	StartDate time.Time              `json:"start_date"`
	EndDate   *time.Time             `json:"end_date"`
	Entries   []TrackingHistoryEntry `json:"entries"`
}

type StageDuration struct {
	StageID   uuid.UUID `json:"stage_id"`
	StageCode string    `json:"stage_code"`
	StageName string    `json:"stage_name"`
	Days      int       `json:"days"`
	Visits    int       `json:"visits"`
	Active    bool      `json:"active"`
}

type SubmissionStatistics struct {
	SubmissionID         uuid.UUID              `json:"submission_id"`
	Status               SubmissionStatus       `json:"status"`
	CurrentStageID       *uuid.UUID             `json:"current_stage_id"`
	PerStage             []StageDuration        `json:"per_stage"`
	EntryStatusCounts    map[string]int         `json:"entry_status_counts"`
	EventTypeCounts      map[string]int         `json:"event_type_counts"`
	DocumentStatusCounts map[DocumentStatus]int `json:"document_status_counts"`
	TotalEntries         int                    `json:"total_entries"`
	TotalDays            int                    `json:"total_days"`
	LastActivityAt       *time.Time             `json:"last_activity_at"`
}
