package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ip-workflow-service/internal/model"
)

func statementUpload(h *harness, ref string) UploadInput {
	return UploadInput{
		RequirementID: &h.statement.ID,
		BlobRef:       ref,
		FileName:      "statement.pdf",
		MimeType:      "application/pdf",
		Size:          4096,
	}
}

func TestUploadReplacesActiveDocumentOfSameRequirement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)

	first, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	require.NoError(t, err)
	second, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement-v2.pdf"))
	require.NoError(t, err)

	docs, err := h.documents.List(ctx, applicant, sub.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		switch d.ID {
		case first.ID:
			assert.Equal(t, model.DocumentStatusReplaced, d.Status)
			assert.False(t, d.IsActive)
		case second.ID:
			assert.Equal(t, model.DocumentStatusPending, d.Status)
			assert.True(t, d.IsActive)
		}
	}

	entries := h.store.entriesFor(sub.ID)
	n := len(entries)
	require.GreaterOrEqual(t, n, 2)
	replaced, uploaded := entries[n-2], entries[n-1]
	assert.Equal(t, model.EventDocumentReplaced, replaced.EventType)
	assert.Equal(t, first.DocumentID, *replaced.DocumentID)
	assert.Equal(t, "pending", replaced.Metadata["old_status"])
	assert.Equal(t, "replaced", replaced.Metadata["new_status"])
	assert.Equal(t, model.EventDocumentUploaded, uploaded.EventType)
	assert.Equal(t, second.DocumentID, *uploaded.DocumentID)
	assert.Equal(t, h.stages[0].ID, *uploaded.StageID)
}

func TestUploadValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)

	brandReq, err := h.catalog.CreateRequirement(ctx, admin, h.otherType.ID, RequirementInput{Code: "logo", Name: "Logo", Required: true})
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(in *UploadInput)
		want   error
	}{
		{"missing blob ref", func(in *UploadInput) { in.BlobRef = "" }, ErrValidation},
		{"blob not stored", func(in *UploadInput) { in.BlobRef = "documents/nowhere.pdf" }, ErrValidation},
		{"mime type not allowed", func(in *UploadInput) { in.MimeType = "image/png" }, ErrValidation},
		{"file too large", func(in *UploadInput) { in.Size = 2 * 1024 * 1024 }, ErrValidation},
		{"requirement of another type", func(in *UploadInput) { in.RequirementID = &brandReq.ID }, ErrInvalidStage},
	}

	entries := len(h.store.entriesFor(sub.ID))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := statementUpload(h, "documents/statement.pdf")
			tc.mutate(&in)
			_, err := h.documents.Upload(ctx, applicant, sub.ID, in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Len(t, h.store.entriesFor(sub.ID), entries)
}

func TestUploadWhileDraftHasNoStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.create(t)

	_, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	require.NoError(t, err)

	entries := h.store.entriesFor(sub.ID)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].StageID)
	assert.Equal(t, "pending", entries[0].Status)
}

func TestUploadRefusedOnceSubmissionIsClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)
	_, err := h.workflow.Reject(ctx, reviewer, sub.ID, "incomplete", nil)
	require.NoError(t, err)

	_, err = h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = h.documents.Upload(ctx, applicant2, sub.ID, statementUpload(h, "documents/statement.pdf"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusKeepsActiveFlagInSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)
	sd, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	require.NoError(t, err)

	sequence := []model.DocumentStatus{
		model.DocumentStatusApproved,
		model.DocumentStatusRevisionNeeded,
		model.DocumentStatusRejected,
		model.DocumentStatusPending,
		model.DocumentStatusFinal,
		model.DocumentStatusReplaced,
	}
	prev := model.DocumentStatusPending
	for _, status := range sequence {
		out, err := h.documents.SetStatus(ctx, reviewer, sd.ID, status, "")
		require.NoError(t, err)
		assert.Equal(t, status.Active(), out.IsActive, status)

		stored, err := h.store.GetSubmissionDocument(ctx, sd.ID)
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
		assert.Equal(t, status.Active(), stored.IsActive, status)

		entries := h.store.entriesFor(sub.ID)
		last := entries[len(entries)-1]
		assert.Equal(t, status.EventType(), last.EventType)
		assert.Equal(t, string(prev), *last.SourceStatus)
		assert.Equal(t, string(status), *last.TargetStatus)
		assert.Equal(t, reviewer.UserID, *last.ProcessedBy)
		prev = status
	}
}

func TestSetStatusUnchangedAppendsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)
	sd, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	require.NoError(t, err)
	entries := len(h.store.entriesFor(sub.ID))

	out, err := h.documents.SetStatus(ctx, reviewer, sd.ID, model.DocumentStatusPending, "checked scan quality")
	require.NoError(t, err)
	assert.Equal(t, "checked scan quality", out.Notes)
	assert.Len(t, h.store.entriesFor(sub.ID), entries)
}

func TestSetStatusChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)
	sd, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	require.NoError(t, err)

	_, err = h.documents.SetStatus(ctx, applicant, sd.ID, model.DocumentStatusApproved, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = h.documents.SetStatus(ctx, reviewer, sd.ID, model.DocumentStatus("lost"), "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.documents.SetStatus(ctx, reviewer, h.stages[0].ID, model.DocumentStatusApproved, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusRefusesReplacedDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)
	first, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	require.NoError(t, err)
	_, err = h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement-v2.pdf"))
	require.NoError(t, err)
	entries := len(h.store.entriesFor(sub.ID))

	_, err = h.documents.SetStatus(ctx, reviewer, first.ID, model.DocumentStatusApproved, "")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Len(t, h.store.entriesFor(sub.ID), entries)
}

// uploadOnLookup runs a competing upload right after the first unlocked
// lookup of a submission document, before the reviewer's transaction starts.
type uploadOnLookup struct {
	*memStore
	once   sync.Once
	upload func()
}

func (u *uploadOnLookup) GetSubmissionDocument(ctx context.Context, id uuid.UUID) (*model.SubmissionDocument, error) {
	sd, err := u.memStore.GetSubmissionDocument(ctx, id)
	u.once.Do(u.upload)
	return sd, err
}

func TestSetStatusSeesUploadCommittedBeforeLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)
	first, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	require.NoError(t, err)

	docs := &uploadOnLookup{memStore: h.store, upload: func() {
		_, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement-v2.pdf"))
		require.NoError(t, err)
	}}
	reviewing := NewDocumentService(DocumentServiceDeps{
		Tx:       h.store,
		Subs:     h.store,
		Docs:     docs,
		Catalog:  h.catalog,
		Recorder: NewRecorder(h.store, h.clock.Now),
		Blobs:    h.blobs,
		Notifier: h.notifier,
		Log:      zerolog.Nop(),
		Now:      h.clock.Now,
	})

	_, err = reviewing.SetStatus(ctx, reviewer, first.ID, model.DocumentStatusApproved, "")
	require.ErrorIs(t, err, ErrIllegalTransition)

	list, err := h.documents.List(ctx, applicant, sub.ID)
	require.NoError(t, err)
	active := 0
	for _, d := range list {
		if d.IsActive {
			active++
			assert.NotEqual(t, first.ID, d.ID)
		}
	}
	assert.Equal(t, 1, active)

	entries := h.store.entriesFor(sub.ID)
	assert.Equal(t, model.EventDocumentUploaded, entries[len(entries)-1].EventType)

	complete, err := h.documents.IsStageComplete(ctx, sub.ID, h.stages[0].ID)
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestFinalDocumentSatisfiesStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.inReview(t)

	missing, err := h.documents.MissingDocuments(ctx, sub.ID, h.stages[0].ID)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "Inventor Statement", missing[0].Requirement.Name)

	sd, err := h.documents.Upload(ctx, applicant, sub.ID, statementUpload(h, "documents/statement.pdf"))
	require.NoError(t, err)
	complete, err := h.documents.IsStageComplete(ctx, sub.ID, h.stages[0].ID)
	require.NoError(t, err)
	assert.False(t, complete, "pending does not satisfy")

	_, err = h.documents.SetStatus(ctx, reviewer, sd.ID, model.DocumentStatusFinal, "")
	require.NoError(t, err)
	complete, err = h.documents.IsStageComplete(ctx, sub.ID, h.stages[0].ID)
	require.NoError(t, err)
	assert.True(t, complete)
}
