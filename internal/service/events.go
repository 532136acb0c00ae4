package service

import (
	"time"

	"github.com/google/uuid"

	"ip-workflow-service/internal/model"
)

type EventKind string

const (
	KindSubmitted             EventKind = "submission.submitted"
	KindReviewStarted         EventKind = "submission.review_started"
	KindStageAdvanced         EventKind = "submission.stage_advanced"
	KindStageReturned         EventKind = "submission.stage_returned"
	KindRevisionRequested     EventKind = "submission.revision_requested"
	KindRevisionSubmitted     EventKind = "submission.revision_submitted"
	KindApproved              EventKind = "submission.approved"
	KindRejected              EventKind = "submission.rejected"
	KindCompleted             EventKind = "submission.completed"
	KindCancelled             EventKind = "submission.cancelled"
	KindDocumentUploaded      EventKind = "document.uploaded"
	KindDocumentStatusChanged EventKind = "document.status_changed"
)

// Event is the one canonical record of a committed workflow change. The
// Recorder turns it into ledger entries and the Notifier receives it after
// commit.
type Event struct {
	Kind         EventKind
	SubmissionID uuid.UUID
	Title        string
	OwnerID      uuid.UUID
	ActorID      *uuid.UUID
	ActorEmail   string

	FromStatus model.SubmissionStatus
	ToStatus   model.SubmissionStatus

	// StageID is the stage the submission occupies after the change.
	// PreviousStageID is set only when the stage pointer moved.
	StageID         *uuid.UUID
	PreviousStageID *uuid.UUID

	DocumentID         *uuid.UUID
	DocumentFromStatus model.DocumentStatus
	DocumentToStatus   model.DocumentStatus

	Comment    string
	Metadata   map[string]interface{}
	OccurredAt time.Time
}

func (e Event) IsDocumentEvent() bool {
	return e.Kind == KindDocumentUploaded || e.Kind == KindDocumentStatusChanged
}
