package service

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ip-workflow-service/internal/model"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[_-][a-z0-9]+)*$`)

type CatalogService struct {
	tx    TxManager
	store CatalogStore
	subs  SubmissionStore
}

func NewCatalogService(tx TxManager, store CatalogStore, subs SubmissionStore) *CatalogService {
	return &CatalogService{tx: tx, store: store, subs: subs}
}

// ActiveStages returns the active stages of a type ordered by stage order.
func (s *CatalogService) ActiveStages(ctx context.Context, typeID uuid.UUID) ([]model.WorkflowStage, error) {
	stages, err := s.store.ListStages(ctx, typeID, true)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
	return stages, nil
}

// FirstStage returns nil when the type has no active stage.
func (s *CatalogService) FirstStage(ctx context.Context, typeID uuid.UUID) (*model.WorkflowStage, error) {
	stages, err := s.ActiveStages(ctx, typeID)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, nil
	}
	first := stages[0]
	return &first, nil
}

// NextStage returns the active stage with the lowest order above the given
// stage, or nil when the stage is the last one.
func (s *CatalogService) NextStage(ctx context.Context, stageID uuid.UUID) (*model.WorkflowStage, error) {
	current, stages, err := s.neighbours(ctx, stageID)
	if err != nil {
		return nil, err
	}
	for i := range stages {
		if stages[i].Order > current.Order {
			next := stages[i]
			return &next, nil
		}
	}
	return nil, nil
}

func (s *CatalogService) PreviousStage(ctx context.Context, stageID uuid.UUID) (*model.WorkflowStage, error) {
	current, stages, err := s.neighbours(ctx, stageID)
	if err != nil {
		return nil, err
	}
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i].Order < current.Order {
			prev := stages[i]
			return &prev, nil
		}
	}
	return nil, nil
}

func (s *CatalogService) neighbours(ctx context.Context, stageID uuid.UUID) (*model.WorkflowStage, []model.WorkflowStage, error) {
	current, err := s.store.GetStage(ctx, stageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, reason(ErrInvalidStage, "stage %s does not exist", stageID)
		}
		return nil, nil, err
	}
	stages, err := s.ActiveStages(ctx, current.SubmissionTypeID)
	if err != nil {
		return nil, nil, err
	}
	return current, stages, nil
}

// StageOfType loads a stage and rejects it when it belongs to another type.
func (s *CatalogService) StageOfType(ctx context.Context, stageID, typeID uuid.UUID) (*model.WorkflowStage, error) {
	stage, err := s.store.GetStage(ctx, stageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reason(ErrInvalidStage, "stage %s does not exist", stageID)
		}
		return nil, err
	}
	if stage.SubmissionTypeID != typeID {
		return nil, reason(ErrInvalidStage, "stage '%s' belongs to another submission type", stage.Name)
	}
	return stage, nil
}

// ResolveRequirements returns the requirements linked to a stage with the
// stage-level override applied, ordered by the resolved order.
func (s *CatalogService) ResolveRequirements(ctx context.Context, stageID uuid.UUID) ([]model.ResolvedRequirement, error) {
	links, err := s.store.ListStageRequirements(ctx, stageID)
	if err != nil {
		return nil, err
	}
	resolved := make([]model.ResolvedRequirement, 0, len(links))
	for _, link := range links {
		if link.DocumentRequirement == nil {
			continue
		}
		resolved = append(resolved, model.Resolve(link, *link.DocumentRequirement))
	}
	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].Order < resolved[j].Order })
	return resolved, nil
}

func (s *CatalogService) RequiredDocuments(ctx context.Context, stageID uuid.UUID) ([]model.DocumentRequirement, error) {
	resolved, err := s.ResolveRequirements(ctx, stageID)
	if err != nil {
		return nil, err
	}
	var out []model.DocumentRequirement
	for _, r := range resolved {
		if r.IsRequired {
			out = append(out, r.Requirement)
		}
	}
	return out, nil
}

func (s *CatalogService) ListSubmissionTypes(ctx context.Context) ([]model.SubmissionType, error) {
	return s.store.ListSubmissionTypes(ctx)
}

func (s *CatalogService) GetSubmissionType(ctx context.Context, id uuid.UUID) (*model.SubmissionType, error) {
	st, err := s.store.GetSubmissionType(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

func (s *CatalogService) ListStages(ctx context.Context, typeID uuid.UUID) ([]model.WorkflowStage, error) {
	if _, err := s.GetSubmissionType(ctx, typeID); err != nil {
		return nil, err
	}
	return s.store.ListStages(ctx, typeID, false)
}

func (s *CatalogService) ListRequirements(ctx context.Context, typeID uuid.UUID) ([]model.DocumentRequirement, error) {
	if _, err := s.GetSubmissionType(ctx, typeID); err != nil {
		return nil, err
	}
	return s.store.ListRequirements(ctx, typeID)
}

type SubmissionTypeInput struct {
	Name        string
	Slug        string
	Description string
}

func (in *SubmissionTypeInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return invalid("name is required")
	}
	if !slugPattern.MatchString(in.Slug) {
		return invalid("slug %q must be lowercase letters, digits, '-' or '_'", in.Slug)
	}
	return nil
}

func (s *CatalogService) CreateSubmissionType(ctx context.Context, principal model.Principal, input SubmissionTypeInput) (*model.SubmissionType, error) {
	if !principal.Can(model.CapCatalogManage) {
		return nil, ErrPermissionDenied
	}
	if err := input.normalize(); err != nil {
		return nil, err
	}
	if err := s.ensureSlugFree(ctx, input.Slug, uuid.Nil); err != nil {
		return nil, err
	}
	st := &model.SubmissionType{
		ID:          uuid.New(),
		Name:        input.Name,
		Slug:        input.Slug,
		Description: input.Description,
	}
	if err := s.store.CreateSubmissionType(ctx, st); err != nil {
		return nil, translateWriteError(err)
	}
	return st, nil
}

// UpdateSubmissionType refuses to change the slug once any submission, even a
// discarded draft, references the type.
func (s *CatalogService) UpdateSubmissionType(ctx context.Context, principal model.Principal, id uuid.UUID, input SubmissionTypeInput) (*model.SubmissionType, error) {
	if !principal.Can(model.CapCatalogManage) {
		return nil, ErrPermissionDenied
	}
	if err := input.normalize(); err != nil {
		return nil, err
	}
	st, err := s.GetSubmissionType(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Slug != input.Slug {
		count, err := s.subs.CountByType(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, reason(ErrConflict, "slug of '%s' cannot change: %d submissions reference it", st.Name, count)
		}
		if err := s.ensureSlugFree(ctx, input.Slug, st.ID); err != nil {
			return nil, err
		}
	}
	st.Name = input.Name
	st.Slug = input.Slug
	st.Description = input.Description
	if err := s.store.UpdateSubmissionType(ctx, st); err != nil {
		return nil, translateWriteError(err)
	}
	return st, nil
}

func (s *CatalogService) ensureSlugFree(ctx context.Context, slug string, self uuid.UUID) error {
	existing, err := s.store.GetSubmissionTypeBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != self {
		return reason(ErrConflict, "slug %q is already used", slug)
	}
	return nil
}

type StageInput struct {
	Code        string
	Name        string
	Order       int
	IsActive    *bool
	Description string
}

func (in *StageInput) normalize() error {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Code == "" || in.Name == "" {
		return invalid("stage code and name are required")
	}
	if in.Order <= 0 {
		return invalid("stage order must be positive")
	}
	return nil
}

func (s *CatalogService) CreateStage(ctx context.Context, principal model.Principal, typeID uuid.UUID, input StageInput) (*model.WorkflowStage, error) {
	if !principal.Can(model.CapCatalogManage) {
		return nil, ErrPermissionDenied
	}
	if err := input.normalize(); err != nil {
		return nil, err
	}
	if _, err := s.GetSubmissionType(ctx, typeID); err != nil {
		return nil, err
	}
	if err := s.ensureOrderFree(ctx, typeID, input.Order, uuid.Nil); err != nil {
		return nil, err
	}
	stage := &model.WorkflowStage{
		ID:               uuid.New(),
		SubmissionTypeID: typeID,
		Code:             input.Code,
		Name:             input.Name,
		Order:            input.Order,
		IsActive:         true,
		Description:      input.Description,
	}
	if input.IsActive != nil {
		stage.IsActive = *input.IsActive
	}
	if err := s.store.CreateStage(ctx, stage); err != nil {
		return nil, translateWriteError(err)
	}
	return stage, nil
}

// UpdateStage may reorder a stage freely: submissions hold their stage by id.
// Deactivating a stage that an in-progress submission occupies is refused.
// UpdateStage holds the stage row lock across the in-use check and the
// write; transitions share-lock a stage before moving onto it.
func (s *CatalogService) UpdateStage(ctx context.Context, principal model.Principal, stageID uuid.UUID, input StageInput) (*model.WorkflowStage, error) {
	if !principal.Can(model.CapCatalogManage) {
		return nil, ErrPermissionDenied
	}
	if err := input.normalize(); err != nil {
		return nil, err
	}

	var updated *model.WorkflowStage
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		stage, err := s.lockStage(txCtx, stageID)
		if err != nil {
			return err
		}
		if input.Order != stage.Order {
			if err := s.ensureOrderFree(txCtx, stage.SubmissionTypeID, input.Order, stage.ID); err != nil {
				return err
			}
		}
		if input.IsActive != nil && stage.IsActive && !*input.IsActive {
			if err := s.ensureNotOccupied(txCtx, stage, model.InProgressStatuses); err != nil {
				return err
			}
		}

		stage.Code = input.Code
		stage.Name = input.Name
		stage.Order = input.Order
		stage.Description = input.Description
		if input.IsActive != nil {
			stage.IsActive = *input.IsActive
		}
		if err := s.store.UpdateStage(txCtx, stage); err != nil {
			return translateWriteError(err)
		}
		updated = stage
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteStage refuses while any submission points at the stage. Stages that
// appear in tracking history are kept by the foreign key; deactivate those.
func (s *CatalogService) DeleteStage(ctx context.Context, principal model.Principal, stageID uuid.UUID) error {
	if !principal.Can(model.CapCatalogManage) {
		return ErrPermissionDenied
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		stage, err := s.lockStage(txCtx, stageID)
		if err != nil {
			return err
		}
		if err := s.ensureNotOccupied(txCtx, stage, nil); err != nil {
			return err
		}
		if err := s.store.DeleteStage(txCtx, stage.ID); err != nil {
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return reason(ErrStageInUse, "stage '%s' appears in tracking history; deactivate it instead", stage.Name)
			}
			return err
		}
		return nil
	})
}

func (s *CatalogService) lockStage(ctx context.Context, stageID uuid.UUID) (*model.WorkflowStage, error) {
	stage, err := s.store.GetStageForUpdate(ctx, stageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return stage, nil
}

// HoldStage share-locks the stage a submission is moving onto. A stage
// deactivated in the meantime is refused.
func (s *CatalogService) HoldStage(ctx context.Context, stageID uuid.UUID) (*model.WorkflowStage, error) {
	stage, err := s.store.GetStageForShare(ctx, stageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reason(ErrInvalidStage, "stage %s does not exist", stageID)
		}
		return nil, err
	}
	if !stage.IsActive {
		return nil, reason(ErrInvalidStage, "stage '%s' is no longer active", stage.Name)
	}
	return stage, nil
}

func (s *CatalogService) ensureOrderFree(ctx context.Context, typeID uuid.UUID, order int, self uuid.UUID) error {
	stages, err := s.store.ListStages(ctx, typeID, false)
	if err != nil {
		return err
	}
	for _, st := range stages {
		if st.Order == order && st.ID != self {
			return invalid("stage order %d is already used by '%s'", order, st.Name)
		}
	}
	return nil
}

func (s *CatalogService) ensureNotOccupied(ctx context.Context, stage *model.WorkflowStage, statuses []model.SubmissionStatus) error {
	count, err := s.subs.CountByStage(ctx, stage.ID, statuses)
	if err != nil {
		return err
	}
	if count > 0 {
		return reason(ErrStageInUse, "stage '%s' is the current stage of %d submissions", stage.Name, count)
	}
	return nil
}

type RequirementInput struct {
	Code             string
	Name             string
	Description      string
	Required         bool
	Order            int
	AllowedFileTypes []string
	MaxSizeKB        int64
}

func (s *CatalogService) CreateRequirement(ctx context.Context, principal model.Principal, typeID uuid.UUID, input RequirementInput) (*model.DocumentRequirement, error) {
	if !principal.Can(model.CapCatalogManage) {
		return nil, ErrPermissionDenied
	}
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" || input.Name == "" {
		return nil, invalid("requirement code and name are required")
	}
	if input.MaxSizeKB < 0 {
		return nil, invalid("max size must not be negative")
	}
	if _, err := s.GetSubmissionType(ctx, typeID); err != nil {
		return nil, err
	}
	allowed := make([]string, 0, len(input.AllowedFileTypes))
	for _, t := range input.AllowedFileTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			allowed = append(allowed, t)
		}
	}
	req := &model.DocumentRequirement{
		ID:               uuid.New(),
		SubmissionTypeID: typeID,
		Code:             input.Code,
		Name:             input.Name,
		Description:      strings.TrimSpace(input.Description),
		Required:         input.Required,
		Order:            input.Order,
		AllowedFileTypes: allowed,
		MaxSizeKB:        input.MaxSizeKB,
	}
	if err := s.store.CreateRequirement(ctx, req); err != nil {
		return nil, translateWriteError(err)
	}
	return req, nil
}

// AttachRequirement links a requirement to a stage of the same type. A nil
// isRequired keeps the requirement's own default.
func (s *CatalogService) AttachRequirement(ctx context.Context, principal model.Principal, stageID, requirementID uuid.UUID, isRequired *bool, order int) (*model.StageRequirement, error) {
	if !principal.Can(model.CapCatalogManage) {
		return nil, ErrPermissionDenied
	}
	stage, err := s.store.GetStage(ctx, stageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	req, err := s.store.GetRequirement(ctx, requirementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if req.SubmissionTypeID != stage.SubmissionTypeID {
		return nil, reason(ErrInvalidStage, "requirement '%s' belongs to another submission type than stage '%s'", req.Name, stage.Name)
	}
	link := &model.StageRequirement{
		ID:                    uuid.New(),
		WorkflowStageID:       stage.ID,
		DocumentRequirementID: req.ID,
		IsRequired:            isRequired,
		Order:                 order,
		DocumentRequirement:   req,
	}
	if err := s.store.UpsertStageRequirement(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func translateWriteError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return reason(ErrConflict, "a record with the same code already exists")
	}
	return err
}
