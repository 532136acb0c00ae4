package model

import "github.com/google/uuid"

type ScopeType string

const (
	ScopeAll   ScopeType = "ALL"
	ScopeOwner ScopeType = "OWNER"
)

type Scope struct {
	Type    ScopeType
	OwnerID *uuid.UUID
}

func ScopeFor(p Principal) Scope {
	if p.Can(CapSubmissionViewAll) {
		return Scope{Type: ScopeAll}
	}
	id := p.UserID
	return Scope{Type: ScopeOwner, OwnerID: &id}
}

func (s Scope) AllowsSubmission(ownerID uuid.UUID) bool {
	if s.Type == ScopeAll {
		return true
	}
	return s.OwnerID != nil && *s.OwnerID == ownerID
}
