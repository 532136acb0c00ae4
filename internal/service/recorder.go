package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"ip-workflow-service/internal/model"
)

// Recorder is the only writer of tracking history. Every mutating operation
// hands it exactly one Event inside the same transaction as the mutation.
type Recorder struct {
	ledger LedgerStore
	now    func() time.Time
}

func NewRecorder(ledger LedgerStore, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{ledger: ledger, now: now}
}

// Record appends the entries for ev with consecutive sequence numbers. The
// caller must hold the submission row lock.
func (r *Recorder) Record(ctx context.Context, ev Event) ([]model.TrackingHistoryEntry, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.now().UTC()
	}
	entries, err := EntriesFor(ev)
	if err != nil {
		return nil, err
	}

	next, err := r.ledger.NextSequence(ctx, ev.SubmissionID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Sequence = next + int64(i)
		if err := r.ledger.Append(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// EntriesFor expands an event into ledger rows without touching storage.
// Stage advances produce a closing row for the old stage followed by an
// opening row for the new one; every other event produces one row.
func EntriesFor(ev Event) ([]model.TrackingHistoryEntry, error) {
	base := model.TrackingHistoryEntry{
		SubmissionID: ev.SubmissionID,
		StageID:      ev.StageID,
		Comment:      ev.Comment,
		DocumentID:   ev.DocumentID,
		ProcessedBy:  ev.ActorID,
		CreatedAt:    ev.OccurredAt,
		Metadata:     metadataOf(ev),
	}

	switch ev.Kind {
	case KindSubmitted:
		return []model.TrackingHistoryEntry{statusEntry(base, ev, model.ActionSubmissionCreated, model.EventCreation)}, nil
	case KindReviewStarted:
		return []model.TrackingHistoryEntry{statusEntry(base, ev, model.ActionReviewStarted, model.EventStatusChange)}, nil
	case KindRevisionRequested:
		return []model.TrackingHistoryEntry{statusEntry(base, ev, model.ActionRequestRevision, model.EventRevisionRequested)}, nil
	case KindRevisionSubmitted:
		return []model.TrackingHistoryEntry{statusEntry(base, ev, model.ActionRevisionSubmitted, model.EventSubmissionRevisionSubmitted)}, nil
	case KindApproved:
		return []model.TrackingHistoryEntry{statusEntry(base, ev, model.ActionApprove, model.EventSubmissionApproved)}, nil
	case KindRejected:
		return []model.TrackingHistoryEntry{statusEntry(base, ev, model.ActionReject, model.EventSubmissionRejected)}, nil
	case KindCompleted:
		return []model.TrackingHistoryEntry{statusEntry(base, ev, model.ActionCertificate, model.EventCompletion)}, nil
	case KindCancelled:
		return []model.TrackingHistoryEntry{statusEntry(base, ev, model.ActionCancel, model.EventSubmissionCancelled)}, nil

	case KindStageAdvanced:
		closing := base
		closing.StageID = ev.PreviousStageID
		closing.Action = model.ActionStageCompleted
		closing.EventType = model.EventStageCompleted
		closing.Status = model.StageStatusApproved
		closing.Metadata = copyMetadata(base.Metadata)

		opening := base
		opening.Comment = ""
		opening.PreviousStageID = ev.PreviousStageID
		opening.Action = model.ActionAdvanceStage
		opening.EventType = model.EventStageTransition
		opening.Status = model.StageStatusStarted
		opening.SourceStatus = statusPtr(ev.FromStatus)
		opening.TargetStatus = statusPtr(ev.ToStatus)
		return []model.TrackingHistoryEntry{closing, opening}, nil

	case KindStageReturned:
		entry := base
		entry.PreviousStageID = ev.PreviousStageID
		entry.Action = model.ActionReturnStage
		entry.EventType = model.EventStageReturned
		entry.Status = model.StageStatusReturned
		entry.SourceStatus = statusPtr(ev.FromStatus)
		entry.TargetStatus = statusPtr(ev.ToStatus)
		return []model.TrackingHistoryEntry{entry}, nil

	case KindDocumentUploaded:
		entry := base
		entry.Action = model.ActionDocumentUploaded
		entry.EventType = model.EventDocumentUploaded
		entry.Status = string(ev.DocumentToStatus)
		return []model.TrackingHistoryEntry{entry}, nil

	case KindDocumentStatusChanged:
		entry := base
		entry.Action = model.ActionDocumentStatus
		entry.EventType = ev.DocumentToStatus.EventType()
		entry.Status = string(ev.DocumentToStatus)
		old := string(ev.DocumentFromStatus)
		target := string(ev.DocumentToStatus)
		entry.SourceStatus = &old
		entry.TargetStatus = &target
		entry.Metadata["old_status"] = old
		entry.Metadata["new_status"] = target
		return []model.TrackingHistoryEntry{entry}, nil
	}
	return nil, fmt.Errorf("no ledger mapping for event %q", ev.Kind)
}

func statusEntry(base model.TrackingHistoryEntry, ev Event, action, eventType string) model.TrackingHistoryEntry {
	entry := base
	entry.Action = action
	entry.EventType = eventType
	entry.Status = string(ev.ToStatus)
	entry.SourceStatus = statusPtr(ev.FromStatus)
	entry.TargetStatus = statusPtr(ev.ToStatus)
	return entry
}

func metadataOf(ev Event) datatypes.JSONMap {
	meta := datatypes.JSONMap{}
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	return meta
}

func copyMetadata(in datatypes.JSONMap) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func statusPtr(s model.SubmissionStatus) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}
