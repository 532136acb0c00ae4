package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SubmissionType struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Slug        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Stages       []WorkflowStage       `gorm:"foreignKey:SubmissionTypeID" json:"stages,omitempty"`
	Requirements []DocumentRequirement `gorm:"foreignKey:SubmissionTypeID" json:"requirements,omitempty"`
}

func (SubmissionType) TableName() string {
	return "submission_types"
}

type WorkflowStage struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SubmissionTypeID uuid.UUID `gorm:"type:uuid;not null" json:"submission_type_id"`
	Code             string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	Name             string    `gorm:"type:varchar(255);not null" json:"name"`
	Order            int       `gorm:"column:stage_order;not null" json:"order"`
	IsActive         bool      `gorm:"not null;default:true" json:"is_active"`
	Description      string    `gorm:"type:text" json:"description"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WorkflowStage) TableName() string {
	return "workflow_stages"
}

type DocumentRequirement struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SubmissionTypeID uuid.UUID                   `gorm:"type:uuid;not null" json:"submission_type_id"`
	Code             string                      `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	Name             string                      `gorm:"type:varchar(255);not null" json:"name"`
	Description      string                      `gorm:"type:text" json:"description"`
	Required         bool                        `gorm:"not null;default:false" json:"required"`
	Order            int                         `gorm:"column:requirement_order;not null" json:"order"`
	AllowedFileTypes datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"allowed_file_types"`
	MaxSizeKB        int64                       `gorm:"column:max_size_kb" json:"max_size_kb"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DocumentRequirement) TableName() string {
	return "document_requirements"
}

// AcceptsMimeType matches the mime type or its extension-like subtype against
// the allow list. An empty allow list accepts everything.
func (r DocumentRequirement) AcceptsMimeType(mimeType string) bool {
	if len(r.AllowedFileTypes) == 0 {
		return true
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	subtype := mimeType
	if idx := strings.LastIndex(mimeType, "/"); idx >= 0 {
		subtype = mimeType[idx+1:]
	}
	for _, allowed := range r.AllowedFileTypes {
		allowed = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(allowed), "."))
		if allowed == mimeType || allowed == subtype {
			return true
		}
	}
	return false
}

func (r DocumentRequirement) AcceptsSize(size int64) bool {
	if r.MaxSizeKB <= 0 {
		return true
	}
	return size <= r.MaxSizeKB*1024
}

type StageRequirement struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	WorkflowStageID       uuid.UUID `gorm:"type:uuid;not null" json:"workflow_stage_id"`
	DocumentRequirementID uuid.UUID `gorm:"type:uuid;not null" json:"document_requirement_id"`
	IsRequired            *bool     `json:"is_required"`
	Order                 int       `gorm:"column:sort_order;not null;default:0" json:"order"`

	DocumentRequirement *DocumentRequirement `gorm:"foreignKey:DocumentRequirementID" json:"document_requirement,omitempty"`
}

func (StageRequirement) TableName() string {
	return "stage_requirements"
}

// ResolvedRequirement is a requirement as it applies to one stage.
type ResolvedRequirement struct {
	Requirement DocumentRequirement `json:"requirement"`
	IsRequired  bool                `json:"is_required"`
	Order       int                 `json:"order"`
}

func Resolve(link StageRequirement, req DocumentRequirement) ResolvedRequirement {
	resolved := ResolvedRequirement{
		Requirement: req,
		IsRequired:  req.Required,
		Order:       req.Order,
	}
	if link.IsRequired != nil {
		resolved.IsRequired = *link.IsRequired
	}
	if link.Order != 0 {
		resolved.Order = link.Order
	}
	return resolved
}
