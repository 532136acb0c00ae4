package model

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusPending        DocumentStatus = "pending"
	DocumentStatusApproved       DocumentStatus = "approved"
	DocumentStatusRejected       DocumentStatus = "rejected"
	DocumentStatusRevisionNeeded DocumentStatus = "revision_needed"
	DocumentStatusReplaced       DocumentStatus = "replaced"
	DocumentStatusFinal          DocumentStatus = "final"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusApproved, DocumentStatusRejected,
		DocumentStatusRevisionNeeded, DocumentStatusReplaced, DocumentStatusFinal:
		return true
	}
	return false
}

// Active is false exactly for rejected and replaced documents.
func (s DocumentStatus) Active() bool {
	return s != DocumentStatusRejected && s != DocumentStatusReplaced
}

// Satisfies reports whether a document in this status counts towards a
// required document when advancing.
func (s DocumentStatus) Satisfies() bool {
	return s == DocumentStatusApproved || s == DocumentStatusFinal
}

// EventType maps a new document status to its tracking event type.
func (s DocumentStatus) EventType() string {
	switch s {
	case DocumentStatusApproved:
		return EventDocumentApproved
	case DocumentStatusRejected:
		return EventDocumentRejected
	case DocumentStatusRevisionNeeded:
		return EventDocumentRevisionNeeded
	case DocumentStatusReplaced:
		return EventDocumentReplaced
	default:
		return EventDocumentStatusChanged
	}
}

// Document is an uploaded file; the bytes live in the blob store under BlobRef.
type Document struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	BlobRef    string    `gorm:"type:text;not null" json:"blob_ref"`
	FileName   string    `gorm:"type:varchar(255);not null" json:"file_name"`
	MimeType   string    `gorm:"type:varchar(128)" json:"mime_type"`
	Size       int64     `gorm:"not null;default:0" json:"size"`
	UploadedBy uuid.UUID `gorm:"type:uuid;not null" json:"uploaded_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Document) TableName() string {
	return "documents"
}

type SubmissionDocument struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SubmissionID  uuid.UUID      `gorm:"type:uuid;not null" json:"submission_id"`
	DocumentID    uuid.UUID      `gorm:"type:uuid;not null" json:"document_id"`
	RequirementID *uuid.UUID     `gorm:"type:uuid" json:"requirement_id"`
	Status        DocumentStatus `gorm:"type:submission_document_status;not null;default:'pending'" json:"status"`
	IsActive      bool           `gorm:"not null;default:true" json:"is_active"`
	Notes         string         `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	Document    *Document            `gorm:"foreignKey:DocumentID" json:"document,omitempty"`
	Requirement *DocumentRequirement `gorm:"foreignKey:RequirementID" json:"requirement,omitempty"`
}

func (SubmissionDocument) TableName() string {
	return "submission_documents"
}

// SetStatus is the only way status changes; it keeps IsActive in step.
func (d *SubmissionDocument) SetStatus(status DocumentStatus) {
	d.Status = status
	d.IsActive = status.Active()
}
