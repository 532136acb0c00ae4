package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"ip-workflow-service/internal/model"
)

type DocumentService struct {
	tx       TxManager
	subs     SubmissionStore
	docs     DocumentStore
	catalog  *CatalogService
	recorder *Recorder
	blobs    BlobStore
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

type DocumentServiceDeps struct {
	Tx       TxManager
	Subs     SubmissionStore
	Docs     DocumentStore
	Catalog  *CatalogService
	Recorder *Recorder
	Blobs    BlobStore
	Notifier Notifier
	Log      zerolog.Logger
	Now      func() time.Time
}

func NewDocumentService(deps DocumentServiceDeps) *DocumentService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &DocumentService{
		tx:       deps.Tx,
		subs:     deps.Subs,
		docs:     deps.Docs,
		catalog:  deps.Catalog,
		recorder: deps.Recorder,
		blobs:    deps.Blobs,
		notifier: deps.Notifier,
		log:      deps.Log,
		now:      now,
	}
}

type UploadInput struct {
	RequirementID *uuid.UUID
	BlobRef       string
	FileName      string
	MimeType      string
	Size          int64
	Notes         string
}

// Upload attaches a stored blob to a submission. Active documents already
// filed under the same requirement become replaced.
func (s *DocumentService) Upload(ctx context.Context, principal model.Principal, submissionID uuid.UUID, input UploadInput) (*model.SubmissionDocument, error) {
	input.BlobRef = strings.TrimSpace(input.BlobRef)
	input.FileName = strings.TrimSpace(input.FileName)
	if input.BlobRef == "" {
		return nil, invalid("blob reference is required")
	}
	if input.FileName == "" {
		return nil, invalid("file name is required")
	}
	if input.Size < 0 {
		return nil, invalid("file size must not be negative")
	}

	var (
		created *model.SubmissionDocument
		events  []Event
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := lockSubmission(txCtx, s.subs, principal, submissionID)
		if err != nil {
			return err
		}
		if sub.UserID != principal.UserID && !principal.Can(model.CapDocumentReview) {
			return ErrPermissionDenied
		}
		if !sub.Status.DocumentsEditable() {
			return illegal("cannot upload documents while the submission is %s", sub.Status)
		}

		if input.RequirementID != nil {
			req, err := s.catalog.store.GetRequirement(txCtx, *input.RequirementID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return invalid("document requirement %s does not exist", *input.RequirementID)
				}
				return err
			}
			if req.SubmissionTypeID != sub.SubmissionTypeID {
				return reason(ErrInvalidStage, "requirement '%s' belongs to another submission type", req.Name)
			}
			if !req.AcceptsMimeType(input.MimeType) {
				return invalid("file type %q is not allowed for '%s'", input.MimeType, req.Name)
			}
			if !req.AcceptsSize(input.Size) {
				return invalid("file exceeds the %d KB limit for '%s'", req.MaxSizeKB, req.Name)
			}
		}

		if err := s.ensureBlob(txCtx, input.BlobRef); err != nil {
			return err
		}

		now := s.now().UTC()
		doc := &model.Document{
			ID:         uuid.New(),
			BlobRef:    input.BlobRef,
			FileName:   input.FileName,
			MimeType:   input.MimeType,
			Size:       input.Size,
			UploadedBy: principal.UserID,
		}
		if err := s.docs.CreateDocument(txCtx, doc); err != nil {
			return err
		}

		if input.RequirementID != nil {
			existing, err := s.docs.ListSubmissionDocuments(txCtx, sub.ID)
			if err != nil {
				return err
			}
			for i := range existing {
				prev := existing[i]
				if !prev.IsActive || prev.RequirementID == nil || *prev.RequirementID != *input.RequirementID {
					continue
				}
				old := prev.Status
				prev.SetStatus(model.DocumentStatusReplaced)
				if err := s.docs.UpdateSubmissionDocumentStatus(txCtx, &prev); err != nil {
					return err
				}
				ev := documentEvent(sub, principal, KindDocumentStatusChanged, prev.DocumentID, old, prev.Status, now)
				ev.Comment = "replaced by a newer upload"
				ev.Metadata["submission_document_id"] = prev.ID.String()
				if _, err := s.recorder.Record(txCtx, ev); err != nil {
					return err
				}
				events = append(events, ev)
			}
		}

		sd := &model.SubmissionDocument{
			ID:            uuid.New(),
			SubmissionID:  sub.ID,
			DocumentID:    doc.ID,
			RequirementID: input.RequirementID,
			Notes:         strings.TrimSpace(input.Notes),
		}
		sd.SetStatus(model.DocumentStatusPending)
		if err := s.docs.CreateSubmissionDocument(txCtx, sd); err != nil {
			return err
		}

		ev := documentEvent(sub, principal, KindDocumentUploaded, doc.ID, "", sd.Status, now)
		ev.Comment = sd.Notes
		ev.Metadata["submission_document_id"] = sd.ID.String()
		ev.Metadata["file_name"] = doc.FileName
		if input.RequirementID != nil {
			ev.Metadata["requirement_id"] = input.RequirementID.String()
		}
		if _, err := s.recorder.Record(txCtx, ev); err != nil {
			return err
		}
		events = append(events, ev)

		sd.Document = doc
		created = sd
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		dispatch(ctx, s.notifier, s.log, ev)
	}
	return created, nil
}

func (s *DocumentService) ensureBlob(ctx context.Context, ref string) error {
	if s.blobs == nil {
		return invalid("blob store is not configured")
	}
	ok, err := s.blobs.Exists(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return invalid("blob %q does not exist", ref)
	}
	return nil
}

// SetStatus changes a document's review status. The active flag is derived
// in the same write and the change is recorded in tracking history.
func (s *DocumentService) SetStatus(ctx context.Context, principal model.Principal, submissionDocumentID uuid.UUID, status model.DocumentStatus, notes string) (*model.SubmissionDocument, error) {
	if !principal.Can(model.CapDocumentReview) {
		return nil, ErrPermissionDenied
	}
	if !status.Valid() {
		return nil, invalid("unknown document status %q", status)
	}

	var (
		updated *model.SubmissionDocument
		event   *Event
	)
	// The unlocked read only finds the owning submission. The row is read
	// again once that submission is locked.
	located, err := s.docs.GetSubmissionDocument(ctx, submissionDocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := lockSubmission(txCtx, s.subs, principal, located.SubmissionID)
		if err != nil {
			return err
		}
		sd, err := s.docs.GetSubmissionDocumentForUpdate(txCtx, submissionDocumentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if sub.Status.Terminal() {
			return illegal("cannot review documents of a %s submission", sub.Status)
		}
		if sd.Status == model.DocumentStatusReplaced && status != model.DocumentStatusReplaced {
			return illegal("document '%s' was replaced by a newer upload", documentName(sd))
		}

		notes = strings.TrimSpace(notes)
		old := sd.Status
		if notes != "" {
			sd.Notes = notes
		}
		sd.SetStatus(status)
		if err := s.docs.UpdateSubmissionDocumentStatus(txCtx, sd); err != nil {
			return err
		}
		updated = sd
		if old == status {
			return nil
		}

		ev := documentEvent(sub, principal, KindDocumentStatusChanged, sd.DocumentID, old, status, s.now().UTC())
		ev.Comment = notes
		ev.Metadata["submission_document_id"] = sd.ID.String()
		if _, err := s.recorder.Record(txCtx, ev); err != nil {
			return err
		}
		event = &ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	if event != nil {
		dispatch(ctx, s.notifier, s.log, *event)
	}
	return updated, nil
}

// MissingDocuments lists the required requirements of a stage that have no
// active approved or final document.
func (s *DocumentService) MissingDocuments(ctx context.Context, submissionID, stageID uuid.UUID) ([]model.ResolvedRequirement, error) {
	return s.missingWhere(ctx, submissionID, stageID, model.DocumentStatus.Satisfies)
}

func (s *DocumentService) IsStageComplete(ctx context.Context, submissionID, stageID uuid.UUID) (bool, error) {
	missing, err := s.MissingDocuments(ctx, submissionID, stageID)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// missingResubmission treats pending uploads as present: they wait for the
// reviewer after the revision is handed back.
func (s *DocumentService) missingResubmission(ctx context.Context, submissionID, stageID uuid.UUID) ([]model.ResolvedRequirement, error) {
	return s.missingWhere(ctx, submissionID, stageID, func(st model.DocumentStatus) bool {
		return st == model.DocumentStatusPending || st.Satisfies()
	})
}

func (s *DocumentService) missingWhere(ctx context.Context, submissionID, stageID uuid.UUID, accept func(model.DocumentStatus) bool) ([]model.ResolvedRequirement, error) {
	resolved, err := s.catalog.ResolveRequirements(ctx, stageID)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.ListSubmissionDocuments(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	var missing []model.ResolvedRequirement
	for _, r := range resolved {
		if !r.IsRequired {
			continue
		}
		found := false
		for _, d := range docs {
			if d.IsActive && d.RequirementID != nil && *d.RequirementID == r.Requirement.ID && accept(d.Status) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, r)
		}
	}
	return missing, nil
}

func (s *DocumentService) List(ctx context.Context, principal model.Principal, submissionID uuid.UUID) ([]model.SubmissionDocument, error) {
	if _, err := visibleSubmission(ctx, s.subs, principal, submissionID); err != nil {
		return nil, err
	}
	return s.docs.ListSubmissionDocuments(ctx, submissionID)
}

func documentEvent(sub *model.Submission, principal model.Principal, kind EventKind, documentID uuid.UUID, from, to model.DocumentStatus, at time.Time) Event {
	actor := principal.UserID
	docID := documentID
	return Event{
		Kind:               kind,
		SubmissionID:       sub.ID,
		Title:              sub.Title,
		OwnerID:            sub.UserID,
		ActorID:            &actor,
		ActorEmail:         principal.Email,
		FromStatus:         sub.Status,
		ToStatus:           sub.Status,
		StageID:            sub.CurrentStageID,
		DocumentID:         &docID,
		DocumentFromStatus: from,
		DocumentToStatus:   to,
		Metadata:           map[string]interface{}{},
		OccurredAt:         at,
	}
}

// lockSubmission takes the row lock and hides submissions outside the
// principal's scope.
func lockSubmission(ctx context.Context, subs SubmissionStore, principal model.Principal, id uuid.UUID) (*model.Submission, error) {
	sub, err := subs.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !model.ScopeFor(principal).AllowsSubmission(sub.UserID) {
		return nil, ErrNotFound
	}
	return sub, nil
}

func visibleSubmission(ctx context.Context, subs SubmissionStore, principal model.Principal, id uuid.UUID) (*model.Submission, error) {
	sub, err := subs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !model.ScopeFor(principal).AllowsSubmission(sub.UserID) {
		return nil, ErrNotFound
	}
	return sub, nil
}

// dispatch runs after commit. Notifier failures are logged and dropped.
func dispatch(ctx context.Context, notifier Notifier, log zerolog.Logger, ev Event) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, ev); err != nil {
		log.Warn().
			Err(err).
			Str("event", string(ev.Kind)).
			Str("submission_id", ev.SubmissionID.String()).
			Msg("notification failed")
	}
}

func documentName(sd *model.SubmissionDocument) string {
	if sd.Document != nil && sd.Document.FileName != "" {
		return sd.Document.FileName
	}
	return sd.ID.String()
}
