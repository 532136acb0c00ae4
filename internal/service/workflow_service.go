package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"ip-workflow-service/internal/model"
	"ip-workflow-service/internal/repository"
)

type WorkflowService struct {
	tx       TxManager
	subs     SubmissionStore
	catalog  *CatalogService
	docs     *DocumentService
	recorder *Recorder
	blobs    BlobStore
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

type WorkflowServiceDeps struct {
	Tx        TxManager
	Subs      SubmissionStore
	Catalog   *CatalogService
	Documents *DocumentService
	Recorder  *Recorder
	Blobs     BlobStore
	Notifier  Notifier
	Log       zerolog.Logger
	Now       func() time.Time
}

func NewWorkflowService(deps WorkflowServiceDeps) *WorkflowService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &WorkflowService{
		tx:       deps.Tx,
		subs:     deps.Subs,
		catalog:  deps.Catalog,
		docs:     deps.Documents,
		recorder: deps.Recorder,
		blobs:    deps.Blobs,
		notifier: deps.Notifier,
		log:      deps.Log,
		now:      now,
	}
}

type Action string

const (
	ActionSubmit          Action = "submit"
	ActionStartReview     Action = "start_review"
	ActionAdvance         Action = "advance"
	ActionReturn          Action = "return"
	ActionRequestRevision Action = "request_revision"
	ActionResubmit        Action = "resubmit"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionComplete        Action = "complete"
	ActionCancel          Action = "cancel"
)

type ProcessInput struct {
	Action          Action
	Comment         string
	TargetStageID   *uuid.UUID
	CertificateRef  string
	ExpectedVersion *int
}

type CreateSubmissionInput struct {
	SubmissionTypeID uuid.UUID
	Title            string
	Detail           json.RawMessage
}

// SubmissionView is a submission with its decoded type-specific detail and
// its documents.
type SubmissionView struct {
	Submission *model.Submission          `json:"submission"`
	Detail     model.Detail               `json:"detail,omitempty"`
	Documents  []model.SubmissionDocument `json:"documents"`
}

type ListSubmissionsOptions struct {
	Statuses []model.SubmissionStatus
	TypeIDs  []uuid.UUID
	StageID  *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Limit    int
	Offset   int
}

func (s *WorkflowService) Create(ctx context.Context, principal model.Principal, input CreateSubmissionInput) (*model.Submission, error) {
	if !principal.Can(model.CapSubmissionCreate) {
		return nil, ErrPermissionDenied
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalid("title is required")
	}

	st, err := s.catalog.store.GetSubmissionType(ctx, input.SubmissionTypeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid("submission type %s does not exist", input.SubmissionTypeID)
		}
		return nil, err
	}

	var detail *model.SubmissionDetail
	if len(input.Detail) > 0 && string(input.Detail) != "null" {
		d, err := model.DecodeDetail(model.DetailKind(st.Slug), input.Detail)
		if err != nil {
			if errors.Is(err, model.ErrUnknownDetailKind) {
				return nil, invalid("submission type '%s' takes no detail", st.Name)
			}
			return nil, invalid("detail: %v", err)
		}
		if err := d.Validate(); err != nil {
			return nil, invalid("detail: %v", err)
		}
		detail, err = model.EncodeDetail(uuid.Nil, d)
		if err != nil {
			return nil, err
		}
	}

	sub := &model.Submission{
		ID:               uuid.New(),
		SubmissionTypeID: st.ID,
		Title:            title,
		Status:           model.SubmissionStatusDraft,
		UserID:           principal.UserID,
		Version:          1,
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.subs.Create(txCtx, sub, detail)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("type", st.Slug).
		Msg("submission created")
	return sub, nil
}

func (s *WorkflowService) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*SubmissionView, error) {
	sub, err := visibleSubmission(ctx, s.subs, principal, id)
	if err != nil {
		return nil, err
	}
	view := &SubmissionView{Submission: sub}

	raw, err := s.subs.GetDetail(ctx, id)
	switch {
	case err == nil:
		d, err := raw.Decode()
		if err != nil {
			return nil, err
		}
		view.Detail = d
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	docs, err := s.docs.docs.ListSubmissionDocuments(ctx, id)
	if err != nil {
		return nil, err
	}
	view.Documents = docs
	return view, nil
}

func (s *WorkflowService) List(ctx context.Context, principal model.Principal, opts ListSubmissionsOptions) ([]model.Submission, error) {
	for _, status := range opts.Statuses {
		if !status.Valid() {
			return nil, invalid("unknown submission status %q", status)
		}
	}
	return s.subs.List(ctx, repository.SubmissionFilter{
		Scope:    model.ScopeFor(principal),
		Statuses: opts.Statuses,
		TypeIDs:  opts.TypeIDs,
		StageID:  opts.StageID,
		DateFrom: opts.DateFrom,
		DateTo:   opts.DateTo,
		Search:   strings.TrimSpace(opts.Search),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// DiscardDraft soft-deletes a draft. Drafts are never cancelled: a cancelled
// submission keeps a stage, a draft has none.
func (s *WorkflowService) DiscardDraft(ctx context.Context, principal model.Principal, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := lockSubmission(txCtx, s.subs, principal, id)
		if err != nil {
			return err
		}
		if err := s.authorize(principal, sub, accessOwner); err != nil {
			return err
		}
		if sub.Status != model.SubmissionStatusDraft {
			return illegal("only drafts can be discarded; submission is %s", sub.Status)
		}
		return s.subs.SoftDelete(txCtx, sub.ID)
	})
}

// Process dispatches a named workflow action.
func (s *WorkflowService) Process(ctx context.Context, principal model.Principal, id uuid.UUID, input ProcessInput) (*model.Submission, error) {
	switch input.Action {
	case ActionSubmit:
		return s.Submit(ctx, principal, id, input.ExpectedVersion)
	case ActionStartReview:
		return s.StartReview(ctx, principal, id, input.Comment, input.ExpectedVersion)
	case ActionAdvance:
		return s.Advance(ctx, principal, id, input.Comment, input.ExpectedVersion)
	case ActionReturn:
		return s.Return(ctx, principal, id, input.TargetStageID, input.Comment, input.ExpectedVersion)
	case ActionRequestRevision:
		return s.RequestRevision(ctx, principal, id, input.Comment, input.ExpectedVersion)
	case ActionResubmit:
		return s.ResubmitAfterRevision(ctx, principal, id, input.Comment, input.ExpectedVersion)
	case ActionApprove:
		return s.ApproveFinal(ctx, principal, id, input.Comment, input.ExpectedVersion)
	case ActionReject:
		return s.Reject(ctx, principal, id, input.Comment, input.ExpectedVersion)
	case ActionComplete:
		return s.Complete(ctx, principal, id, input.CertificateRef, input.Comment, input.ExpectedVersion)
	case ActionCancel:
		return s.Cancel(ctx, principal, id, input.Comment, input.ExpectedVersion)
	}
	return nil, invalid("unknown action %q", input.Action)
}

func (s *WorkflowService) Submit(ctx context.Context, principal model.Principal, id uuid.UUID, expected *int) (*model.Submission, error) {
	return s.transition(ctx, principal, id, expected, accessOwner, func(txCtx context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusDraft {
			return illegal("cannot submit: submission is %s", sub.Status)
		}
		first, err := s.catalog.FirstStage(txCtx, sub.SubmissionTypeID)
		if err != nil {
			return err
		}
		if first == nil {
			return reason(ErrMissingStage, "cannot submit: submission type has no active stage")
		}
		sub.CurrentStageID = &first.ID
		sub.Status = model.SubmissionStatusSubmitted
		ev.Kind = KindSubmitted
		ev.Metadata["stage_code"] = first.Code
		return nil
	})
}

func (s *WorkflowService) StartReview(ctx context.Context, principal model.Principal, id uuid.UUID, comment string, expected *int) (*model.Submission, error) {
	return s.transition(ctx, principal, id, expected, accessReviewer, func(_ context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusSubmitted {
			return illegal("cannot start review: submission is %s", sub.Status)
		}
		sub.Status = model.SubmissionStatusInReview
		ev.Kind = KindReviewStarted
		ev.Comment = comment
		return nil
	})
}

// Advance moves the stage pointer to the next active stage. Status stays
// in_review; only ApproveFinal and Complete change it further.
func (s *WorkflowService) Advance(ctx context.Context, principal model.Principal, id uuid.UUID, comment string, expected *int) (*model.Submission, error) {
	return s.transition(ctx, principal, id, expected, accessReviewer, func(txCtx context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusInReview {
			return illegal("cannot advance: submission is %s", sub.Status)
		}
		current, err := s.catalog.StageOfType(txCtx, *sub.CurrentStageID, sub.SubmissionTypeID)
		if err != nil {
			return err
		}
		if err := s.requireStageComplete(txCtx, sub, current, "advance"); err != nil {
			return err
		}
		next, err := s.catalog.NextStage(txCtx, current.ID)
		if err != nil {
			return err
		}
		if next == nil {
			return illegal("cannot advance: '%s' is the last stage", current.Name)
		}

		sub.CurrentStageID = &next.ID
		ev.Kind = KindStageAdvanced
		ev.PreviousStageID = &current.ID
		ev.Comment = comment
		ev.Metadata["from_stage"] = current.Code
		ev.Metadata["to_stage"] = next.Code
		return nil
	})
}

// Return sends an in-review submission back to the previous active stage, or
// to target when it is an earlier active stage of the same type.
func (s *WorkflowService) Return(ctx context.Context, principal model.Principal, id uuid.UUID, target *uuid.UUID, comment string, expected *int) (*model.Submission, error) {
	return s.transition(ctx, principal, id, expected, accessReviewer, func(txCtx context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusInReview {
			return illegal("cannot return: submission is %s", sub.Status)
		}
		current, err := s.catalog.StageOfType(txCtx, *sub.CurrentStageID, sub.SubmissionTypeID)
		if err != nil {
			return err
		}

		var dest *model.WorkflowStage
		if target == nil {
			dest, err = s.catalog.PreviousStage(txCtx, current.ID)
			if err != nil {
				return err
			}
			if dest == nil {
				return illegal("cannot return: '%s' is the first stage", current.Name)
			}
		} else {
			dest, err = s.catalog.StageOfType(txCtx, *target, sub.SubmissionTypeID)
			if err != nil {
				return err
			}
			if !dest.IsActive {
				return reason(ErrInvalidStage, "cannot return to inactive stage '%s'", dest.Name)
			}
			if dest.Order >= current.Order {
				return illegal("cannot return: '%s' does not come before '%s'", dest.Name, current.Name)
			}
		}

		sub.CurrentStageID = &dest.ID
		ev.Kind = KindStageReturned
		ev.PreviousStageID = &current.ID
		ev.Comment = comment
		ev.Metadata["from_stage"] = current.Code
		ev.Metadata["to_stage"] = dest.Code
		return nil
	})
}

func (s *WorkflowService) RequestRevision(ctx context.Context, principal model.Principal, id uuid.UUID, comment string, expected *int) (*model.Submission, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, invalid("a comment is required when requesting a revision")
	}
	return s.transition(ctx, principal, id, expected, accessReviewer, func(_ context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusInReview {
			return illegal("cannot request a revision: submission is %s", sub.Status)
		}
		sub.Status = model.SubmissionStatusRevisionNeeded
		ev.Kind = KindRevisionRequested
		ev.Comment = comment
		return nil
	})
}

// ResubmitAfterRevision requires every required document of the current stage
// to be present again, pending review or already approved.
func (s *WorkflowService) ResubmitAfterRevision(ctx context.Context, principal model.Principal, id uuid.UUID, comment string, expected *int) (*model.Submission, error) {
	return s.transition(ctx, principal, id, expected, accessOwner, func(txCtx context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusRevisionNeeded {
			return illegal("cannot resubmit: submission is %s", sub.Status)
		}
		missing, err := s.docs.missingResubmission(txCtx, sub.ID, *sub.CurrentStageID)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return illegal("cannot resubmit: required document '%s' has not been uploaded", missing[0].Requirement.Name)
		}
		sub.Status = model.SubmissionStatusInReview
		ev.Kind = KindRevisionSubmitted
		ev.Comment = comment
		return nil
	})
}

// ApproveFinal approves a submission sitting on its last active stage with
// that stage's required documents approved.
func (s *WorkflowService) ApproveFinal(ctx context.Context, principal model.Principal, id uuid.UUID, comment string, expected *int) (*model.Submission, error) {
	return s.transition(ctx, principal, id, expected, accessReviewer, func(txCtx context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusInReview {
			return illegal("cannot approve: submission is %s", sub.Status)
		}
		current, err := s.catalog.StageOfType(txCtx, *sub.CurrentStageID, sub.SubmissionTypeID)
		if err != nil {
			return err
		}
		next, err := s.catalog.NextStage(txCtx, current.ID)
		if err != nil {
			return err
		}
		if next != nil {
			return illegal("cannot approve: '%s' is not the final stage", current.Name)
		}
		if err := s.requireStageComplete(txCtx, sub, current, "approve"); err != nil {
			return err
		}
		sub.Status = model.SubmissionStatusApproved
		ev.Kind = KindApproved
		ev.Comment = comment
		return nil
	})
}

func (s *WorkflowService) Reject(ctx context.Context, principal model.Principal, id uuid.UUID, comment string, expected *int) (*model.Submission, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, invalid("a rejection reason is required")
	}
	return s.transition(ctx, principal, id, expected, accessReviewer, func(_ context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusSubmitted && sub.Status != model.SubmissionStatusInReview {
			return illegal("cannot reject: submission is %s", sub.Status)
		}
		sub.Status = model.SubmissionStatusRejected
		ev.Kind = KindRejected
		ev.Comment = comment
		return nil
	})
}

// Complete attaches the certificate blob and issues the certificate number.
func (s *WorkflowService) Complete(ctx context.Context, principal model.Principal, id uuid.UUID, certificateRef, comment string, expected *int) (*model.Submission, error) {
	certificateRef = strings.TrimSpace(certificateRef)
	if certificateRef == "" {
		return nil, invalid("a certificate document is required to complete")
	}
	return s.transition(ctx, principal, id, expected, accessReviewer, func(txCtx context.Context, sub *model.Submission, ev *Event) error {
		if sub.Status != model.SubmissionStatusApproved {
			return illegal("cannot complete: submission is %s", sub.Status)
		}
		if err := s.docs.ensureBlob(txCtx, certificateRef); err != nil {
			return err
		}
		number := model.CertificateNumberFor(s.now().UTC(), sub.SerialNo)
		sub.Certificate = &certificateRef
		sub.CertificateNumber = &number
		sub.Status = model.SubmissionStatusCompleted
		ev.Kind = KindCompleted
		ev.Comment = comment
		ev.Metadata["certificate"] = certificateRef
		ev.Metadata["certificate_number"] = number
		return nil
	})
}

func (s *WorkflowService) Cancel(ctx context.Context, principal model.Principal, id uuid.UUID, comment string, expected *int) (*model.Submission, error) {
	return s.transition(ctx, principal, id, expected, accessOwnerOrReviewer, func(_ context.Context, sub *model.Submission, ev *Event) error {
		switch sub.Status {
		case model.SubmissionStatusCompleted, model.SubmissionStatusCancelled:
			return illegal("cannot cancel: submission is %s", sub.Status)
		case model.SubmissionStatusDraft:
			return illegal("cannot cancel a draft; discard it instead")
		}
		sub.Status = model.SubmissionStatusCancelled
		ev.Kind = KindCancelled
		ev.Comment = strings.TrimSpace(comment)
		return nil
	})
}

func (s *WorkflowService) requireStageComplete(ctx context.Context, sub *model.Submission, stage *model.WorkflowStage, verb string) error {
	missing, err := s.docs.MissingDocuments(ctx, sub.ID, stage.ID)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return illegal("cannot %s: required document '%s' is not approved", verb, missing[0].Requirement.Name)
	}
	return nil
}

type access int

const (
	accessOwner access = iota
	accessReviewer
	accessOwnerOrReviewer
)

func (s *WorkflowService) authorize(principal model.Principal, sub *model.Submission, a access) error {
	if principal.IsAdmin() {
		return nil
	}
	owner := sub.UserID == principal.UserID && principal.Can(model.CapSubmissionCreate)
	reviewer := principal.Can(model.CapSubmissionReview)
	switch a {
	case accessOwner:
		if owner {
			return nil
		}
	case accessReviewer:
		if reviewer {
			return nil
		}
	case accessOwnerOrReviewer:
		if owner || reviewer {
			return nil
		}
	}
	return ErrPermissionDenied
}

type stepFunc func(txCtx context.Context, sub *model.Submission, ev *Event) error

// transition runs one state change: lock, check, mutate, bump version, record,
// commit, then notify. A version race is retried once unless the caller
// pinned the version.
func (s *WorkflowService) transition(ctx context.Context, principal model.Principal, id uuid.UUID, expected *int, a access, step stepFunc) (*model.Submission, error) {
	sub, ev, err := s.runTransition(ctx, principal, id, expected, a, step)
	if errors.Is(err, ErrConcurrentModification) && expected == nil {
		s.log.Debug().Str("submission_id", id.String()).Msg("retrying transition after version conflict")
		sub, ev, err = s.runTransition(ctx, principal, id, expected, a, step)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("event", string(ev.Kind)).
		Str("from", string(ev.FromStatus)).
		Str("to", string(ev.ToStatus)).
		Msg("submission transition")
	dispatch(ctx, s.notifier, s.log, ev)
	return sub, nil
}

func (s *WorkflowService) runTransition(ctx context.Context, principal model.Principal, id uuid.UUID, expected *int, a access, step stepFunc) (*model.Submission, Event, error) {
	var (
		out *model.Submission
		ev  Event
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := lockSubmission(txCtx, s.subs, principal, id)
		if err != nil {
			return err
		}
		if err := s.authorize(principal, sub, a); err != nil {
			return err
		}
		if expected != nil && *expected != sub.Version {
			return reason(ErrConcurrentModification, "submission was modified by someone else (version %d, expected %d)", sub.Version, *expected)
		}

		actor := principal.UserID
		ev = Event{
			SubmissionID: sub.ID,
			Title:        sub.Title,
			OwnerID:      sub.UserID,
			ActorID:      &actor,
			ActorEmail:   principal.Email,
			FromStatus:   sub.Status,
			Metadata:     map[string]interface{}{},
			OccurredAt:   s.now().UTC(),
		}
		var fromStage *uuid.UUID
		if sub.CurrentStageID != nil {
			current := *sub.CurrentStageID
			fromStage = &current
		}
		if err := step(txCtx, sub, &ev); err != nil {
			return err
		}
		if sub.CurrentStageID != nil && !sameStage(fromStage, sub.CurrentStageID) {
			if _, err := s.catalog.HoldStage(txCtx, *sub.CurrentStageID); err != nil {
				return err
			}
		}
		if err := sub.CheckStageInvariant(); err != nil {
			return err
		}
		ev.ToStatus = sub.Status
		ev.StageID = sub.CurrentStageID

		if err := s.subs.UpdateState(txCtx, sub); err != nil {
			if errors.Is(err, repository.ErrStaleVersion) {
				return reason(ErrConcurrentModification, "submission was modified concurrently")
			}
			return err
		}
		if _, err := s.recorder.Record(txCtx, ev); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, Event{}, err
	}
	return out, ev, nil
}
