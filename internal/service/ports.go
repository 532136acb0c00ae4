package service

import (
	"context"
	"io"

	"github.com/google/uuid"

	"ip-workflow-service/internal/model"
	"ip-workflow-service/internal/repository"
)

// TxManager runs fn in one transaction carried by the context.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type CatalogStore interface {
	ListSubmissionTypes(ctx context.Context) ([]model.SubmissionType, error)
	GetSubmissionType(ctx context.Context, id uuid.UUID) (*model.SubmissionType, error)
	GetSubmissionTypeBySlug(ctx context.Context, slug string) (*model.SubmissionType, error)
	CreateSubmissionType(ctx context.Context, st *model.SubmissionType) error
	UpdateSubmissionType(ctx context.Context, st *model.SubmissionType) error
	ListStages(ctx context.Context, typeID uuid.UUID, activeOnly bool) ([]model.WorkflowStage, error)
	GetStage(ctx context.Context, id uuid.UUID) (*model.WorkflowStage, error)
	GetStageForUpdate(ctx context.Context, id uuid.UUID) (*model.WorkflowStage, error)
	GetStageForShare(ctx context.Context, id uuid.UUID) (*model.WorkflowStage, error)
	CreateStage(ctx context.Context, stage *model.WorkflowStage) error
	UpdateStage(ctx context.Context, stage *model.WorkflowStage) error
	DeleteStage(ctx context.Context, id uuid.UUID) error
	GetRequirement(ctx context.Context, id uuid.UUID) (*model.DocumentRequirement, error)
	ListRequirements(ctx context.Context, typeID uuid.UUID) ([]model.DocumentRequirement, error)
	CreateRequirement(ctx context.Context, req *model.DocumentRequirement) error
	ListStageRequirements(ctx context.Context, stageID uuid.UUID) ([]model.StageRequirement, error)
	UpsertStageRequirement(ctx context.Context, link *model.StageRequirement) error
}

type SubmissionStore interface {
	Create(ctx context.Context, submission *model.Submission, detail *model.SubmissionDetail) error
	Get(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	GetDetail(ctx context.Context, submissionID uuid.UUID) (*model.SubmissionDetail, error)
	List(ctx context.Context, filter repository.SubmissionFilter) ([]model.Submission, error)
	UpdateState(ctx context.Context, submission *model.Submission) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	CountByType(ctx context.Context, typeID uuid.UUID) (int64, error)
	CountByStage(ctx context.Context, stageID uuid.UUID, statuses []model.SubmissionStatus) (int64, error)
	CountByStatus(ctx context.Context, scope model.Scope) (map[model.SubmissionStatus]int64, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	CreateSubmissionDocument(ctx context.Context, sd *model.SubmissionDocument) error
	GetSubmissionDocument(ctx context.Context, id uuid.UUID) (*model.SubmissionDocument, error)
	GetSubmissionDocumentForUpdate(ctx context.Context, id uuid.UUID) (*model.SubmissionDocument, error)
	ListSubmissionDocuments(ctx context.Context, submissionID uuid.UUID) ([]model.SubmissionDocument, error)
	UpdateSubmissionDocumentStatus(ctx context.Context, sd *model.SubmissionDocument) error
}

type LedgerStore interface {
	Append(ctx context.Context, entry *model.TrackingHistoryEntry) error
	NextSequence(ctx context.Context, submissionID uuid.UUID) (int64, error)
	ListForSubmission(ctx context.Context, submissionID uuid.UUID, filter repository.HistoryFilter) ([]model.TrackingHistoryEntry, error)
	Recent(ctx context.Context, scope model.Scope, limit int) ([]model.TrackingHistoryEntry, error)
}

// BlobStore holds document bytes. References are opaque to the workflow.
type BlobStore interface {
	Store(ctx context.Context, r io.Reader, size int64, fileName, mimeType string) (string, error)
	Retrieve(ctx context.Context, ref string) (io.ReadCloser, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// Notifier is told about committed workflow events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

var (
	_ TxManager       = (*repository.TransactionManager)(nil)
	_ CatalogStore    = (*repository.CatalogRepository)(nil)
	_ SubmissionStore = (*repository.SubmissionRepository)(nil)
	_ DocumentStore   = (*repository.DocumentRepository)(nil)
	_ LedgerStore     = (*repository.TrackingRepository)(nil)
)
