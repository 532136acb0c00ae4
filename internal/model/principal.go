package model

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleSuperAdmin UserRole = "SUPER_ADMIN"
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleReviewer   UserRole = "REVIEWER"
	UserRoleApplicant  UserRole = "APPLICANT"
)

type Capability string

const (
	CapSubmissionCreate  Capability = "submission.create"
	CapSubmissionReview  Capability = "submission.review"
	CapSubmissionViewAll Capability = "submission.view_all"
	CapDocumentReview    Capability = "document.review"
	CapCatalogManage     Capability = "catalog.manage"
)

var roleCapabilities = map[UserRole][]Capability{
	UserRoleSuperAdmin: {CapSubmissionCreate, CapSubmissionReview, CapSubmissionViewAll, CapDocumentReview, CapCatalogManage},
	UserRoleAdmin:      {CapSubmissionCreate, CapSubmissionReview, CapSubmissionViewAll, CapDocumentReview, CapCatalogManage},
	UserRoleReviewer:   {CapSubmissionReview, CapSubmissionViewAll, CapDocumentReview},
	UserRoleApplicant:  {CapSubmissionCreate},
}

func (r UserRole) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin || p.Role == UserRoleSuperAdmin
}

// Can reports whether the principal's role grants the capability.
func (p Principal) Can(capability Capability) bool {
	for _, c := range roleCapabilities[p.Role] {
		if c == capability {
			return true
		}
	}
	return false
}
