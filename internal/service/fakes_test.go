package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ip-workflow-service/internal/model"
	"ip-workflow-service/internal/repository"
)

type memState struct {
	types     map[uuid.UUID]model.SubmissionType
	stages    map[uuid.UUID]model.WorkflowStage
	reqs      map[uuid.UUID]model.DocumentRequirement
	links     []model.StageRequirement
	subs      map[uuid.UUID]model.Submission
	deleted   map[uuid.UUID]bool
	details   map[uuid.UUID]model.SubmissionDetail
	documents map[uuid.UUID]model.Document
	subDocs   []model.SubmissionDocument
	entries   []model.TrackingHistoryEntry
	serial    int64
}

func (s memState) clone() memState {
	out := memState{
		types:     make(map[uuid.UUID]model.SubmissionType, len(s.types)),
		stages:    make(map[uuid.UUID]model.WorkflowStage, len(s.stages)),
		reqs:      make(map[uuid.UUID]model.DocumentRequirement, len(s.reqs)),
		links:     append([]model.StageRequirement(nil), s.links...),
		subs:      make(map[uuid.UUID]model.Submission, len(s.subs)),
		deleted:   make(map[uuid.UUID]bool, len(s.deleted)),
		details:   make(map[uuid.UUID]model.SubmissionDetail, len(s.details)),
		documents: make(map[uuid.UUID]model.Document, len(s.documents)),
		subDocs:   append([]model.SubmissionDocument(nil), s.subDocs...),
		entries:   append([]model.TrackingHistoryEntry(nil), s.entries...),
		serial:    s.serial,
	}
	for k, v := range s.types {
		out.types[k] = v
	}
	for k, v := range s.stages {
		out.stages[k] = v
	}
	for k, v := range s.reqs {
		out.reqs[k] = v
	}
	for k, v := range s.subs {
		out.subs[k] = v
	}
	for k, v := range s.deleted {
		out.deleted[k] = v
	}
	for k, v := range s.details {
		out.details[k] = v
	}
	for k, v := range s.documents {
		out.documents[k] = v
	}
	return out
}

type txMarker struct{}

// memStore implements every store port in memory. RunInTx snapshots the
// state and restores it when fn fails.
type memStore struct {
	mu    sync.Mutex
	state memState

	failAppend  error
	staleWrites int
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		types:     map[uuid.UUID]model.SubmissionType{},
		stages:    map[uuid.UUID]model.WorkflowStage{},
		reqs:      map[uuid.UUID]model.DocumentRequirement{},
		subs:      map[uuid.UUID]model.Submission{},
		deleted:   map[uuid.UUID]bool{},
		details:   map[uuid.UUID]model.SubmissionDetail{},
		documents: map[uuid.UUID]model.Document{},
	}}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// catalog

func (m *memStore) ListSubmissionTypes(_ context.Context) ([]model.SubmissionType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SubmissionType
	for _, t := range m.state.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetSubmissionType(_ context.Context, id uuid.UUID) (*model.SubmissionType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.types[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (m *memStore) GetSubmissionTypeBySlug(_ context.Context, slug string) (*model.SubmissionType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.state.types {
		if t.Slug == slug {
			out := t
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) CreateSubmissionType(_ context.Context, st *model.SubmissionType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.types[st.ID] = *st
	return nil
}

func (m *memStore) UpdateSubmissionType(_ context.Context, st *model.SubmissionType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.types[st.ID] = *st
	return nil
}

func (m *memStore) ListStages(_ context.Context, typeID uuid.UUID, activeOnly bool) ([]model.WorkflowStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WorkflowStage
	for _, st := range m.state.stages {
		if st.SubmissionTypeID != typeID || (activeOnly && !st.IsActive) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memStore) GetStage(_ context.Context, id uuid.UUID) (*model.WorkflowStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state.stages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &st, nil
}

func (m *memStore) GetStageForUpdate(ctx context.Context, id uuid.UUID) (*model.WorkflowStage, error) {
	return m.GetStage(ctx, id)
}

func (m *memStore) GetStageForShare(ctx context.Context, id uuid.UUID) (*model.WorkflowStage, error) {
	return m.GetStage(ctx, id)
}

func (m *memStore) CreateStage(_ context.Context, stage *model.WorkflowStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.stages[stage.ID] = *stage
	return nil
}

func (m *memStore) UpdateStage(_ context.Context, stage *model.WorkflowStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.stages[stage.ID] = *stage
	return nil
}

func (m *memStore) DeleteStage(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.state.entries {
		if (e.StageID != nil && *e.StageID == id) || (e.PreviousStageID != nil && *e.PreviousStageID == id) {
			return gorm.ErrForeignKeyViolated
		}
	}
	delete(m.state.stages, id)
	return nil
}

func (m *memStore) GetRequirement(_ context.Context, id uuid.UUID) (*model.DocumentRequirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.reqs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &r, nil
}

func (m *memStore) ListRequirements(_ context.Context, typeID uuid.UUID) ([]model.DocumentRequirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DocumentRequirement
	for _, r := range m.state.reqs {
		if r.SubmissionTypeID == typeID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memStore) CreateRequirement(_ context.Context, req *model.DocumentRequirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.reqs[req.ID] = *req
	return nil
}

func (m *memStore) ListStageRequirements(_ context.Context, stageID uuid.UUID) ([]model.StageRequirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StageRequirement
	for _, l := range m.state.links {
		if l.WorkflowStageID != stageID {
			continue
		}
		if r, ok := m.state.reqs[l.DocumentRequirementID]; ok {
			req := r
			l.DocumentRequirement = &req
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memStore) UpsertStageRequirement(_ context.Context, link *model.StageRequirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *link
	stored.DocumentRequirement = nil
	for i, l := range m.state.links {
		if l.WorkflowStageID == link.WorkflowStageID && l.DocumentRequirementID == link.DocumentRequirementID {
			stored.ID = l.ID
			m.state.links[i] = stored
			return nil
		}
	}
	m.state.links = append(m.state.links, stored)
	return nil
}

// submissions

func (m *memStore) Create(_ context.Context, sub *model.Submission, detail *model.SubmissionDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.serial++
	sub.SerialNo = m.state.serial
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	m.state.subs[sub.ID] = *sub
	if detail != nil {
		detail.SubmissionID = sub.ID
		m.state.details[sub.ID] = *detail
	}
	return nil
}

func (m *memStore) getSub(id uuid.UUID) (*model.Submission, error) {
	sub, ok := m.state.subs[id]
	if !ok || m.state.deleted[id] {
		return nil, gorm.ErrRecordNotFound
	}
	return &sub, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSub(id)
}

func (m *memStore) GetForUpdate(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSub(id)
}

func (m *memStore) GetDetail(_ context.Context, submissionID uuid.UUID) (*model.SubmissionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.state.details[submissionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &d, nil
}

func (m *memStore) List(_ context.Context, filter repository.SubmissionFilter) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for id, sub := range m.state.subs {
		if m.state.deleted[id] || !filter.Scope.AllowsSubmission(sub.UserID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, sub.Status) {
			continue
		}
		if filter.StageID != nil && !sameStage(filter.StageID, sub.CurrentStageID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(sub.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNo > out[j].SerialNo })
	return out, nil
}

func (m *memStore) UpdateState(_ context.Context, sub *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleWrites > 0 {
		m.staleWrites--
		return repository.ErrStaleVersion
	}
	stored, ok := m.state.subs[sub.ID]
	if !ok || stored.Version != sub.Version {
		return repository.ErrStaleVersion
	}
	stored.Status = sub.Status
	stored.CurrentStageID = sub.CurrentStageID
	stored.Certificate = sub.Certificate
	stored.CertificateNumber = sub.CertificateNumber
	stored.Version++
	m.state.subs[sub.ID] = stored
	sub.Version++
	return nil
}

func (m *memStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.deleted[id] = true
	return nil
}

func (m *memStore) CountByType(_ context.Context, typeID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, sub := range m.state.subs {
		if sub.SubmissionTypeID == typeID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountByStage(_ context.Context, stageID uuid.UUID, statuses []model.SubmissionStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sub := range m.state.subs {
		if m.state.deleted[id] || sub.CurrentStageID == nil || *sub.CurrentStageID != stageID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, sub.Status) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *memStore) CountByStatus(_ context.Context, scope model.Scope) (map[model.SubmissionStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.SubmissionStatus]int64{}
	for id, sub := range m.state.subs {
		if m.state.deleted[id] || !scope.AllowsSubmission(sub.UserID) {
			continue
		}
		out[sub.Status]++
	}
	return out, nil
}

// documents

func (m *memStore) CreateDocument(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.documents[doc.ID] = *doc
	return nil
}

func (m *memStore) CreateSubmissionDocument(_ context.Context, sd *model.SubmissionDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sd.IsActive = sd.Status.Active()
	stored := *sd
	stored.Document = nil
	stored.Requirement = nil
	m.state.subDocs = append(m.state.subDocs, stored)
	return nil
}

func (m *memStore) hydrate(sd model.SubmissionDocument) model.SubmissionDocument {
	if doc, ok := m.state.documents[sd.DocumentID]; ok {
		d := doc
		sd.Document = &d
	}
	if sd.RequirementID != nil {
		if r, ok := m.state.reqs[*sd.RequirementID]; ok {
			req := r
			sd.Requirement = &req
		}
	}
	return sd
}

func (m *memStore) GetSubmissionDocument(_ context.Context, id uuid.UUID) (*model.SubmissionDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sd := range m.state.subDocs {
		if sd.ID == id {
			out := m.hydrate(sd)
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) GetSubmissionDocumentForUpdate(ctx context.Context, id uuid.UUID) (*model.SubmissionDocument, error) {
	return m.GetSubmissionDocument(ctx, id)
}

func (m *memStore) ListSubmissionDocuments(_ context.Context, submissionID uuid.UUID) ([]model.SubmissionDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SubmissionDocument
	for _, sd := range m.state.subDocs {
		if sd.SubmissionID == submissionID {
			out = append(out, m.hydrate(sd))
		}
	}
	return out, nil
}

func (m *memStore) UpdateSubmissionDocumentStatus(_ context.Context, sd *model.SubmissionDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.state.subDocs {
		if m.state.subDocs[i].ID == sd.ID {
			m.state.subDocs[i].Status = sd.Status
			m.state.subDocs[i].IsActive = sd.Status.Active()
			m.state.subDocs[i].Notes = sd.Notes
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ledger

func (m *memStore) Append(_ context.Context, entry *model.TrackingHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend != nil {
		return m.failAppend
	}
	for _, e := range m.state.entries {
		if e.SubmissionID == entry.SubmissionID && e.Sequence == entry.Sequence {
			return gorm.ErrDuplicatedKey
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m.state.entries = append(m.state.entries, *entry)
	return nil
}

func (m *memStore) NextSequence(_ context.Context, submissionID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var highest int64
	for _, e := range m.state.entries {
		if e.SubmissionID == submissionID && e.Sequence > highest {
			highest = e.Sequence
		}
	}
	return highest + 1, nil
}

func (m *memStore) ListForSubmission(_ context.Context, submissionID uuid.UUID, filter repository.HistoryFilter) ([]model.TrackingHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TrackingHistoryEntry
	for _, e := range m.state.entries {
		if e.SubmissionID != submissionID {
			continue
		}
		if len(filter.Actions) > 0 && !containsString(filter.Actions, e.Action) {
			continue
		}
		if len(filter.EventTypes) > 0 && !containsString(filter.EventTypes, e.EventType) {
			continue
		}
		if filter.StageID != nil && !sameStage(filter.StageID, e.StageID) {
			continue
		}
		if filter.DocumentID != nil && !sameStage(filter.DocumentID, e.DocumentID) {
			continue
		}
		if filter.DateFrom != nil && e.CreatedAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && e.CreatedAt.After(*filter.DateTo) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *memStore) Recent(_ context.Context, scope model.Scope, limit int) ([]model.TrackingHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TrackingHistoryEntry
	for _, e := range m.state.entries {
		sub, ok := m.state.subs[e.SubmissionID]
		if !ok || m.state.deleted[e.SubmissionID] || !scope.AllowsSubmission(sub.UserID) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[j].Before(out[i]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) entriesFor(id uuid.UUID) []model.TrackingHistoryEntry {
	out, _ := m.ListForSubmission(context.Background(), id, repository.HistoryFilter{})
	return out
}

func (m *memStore) submission(id uuid.UUID) model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.subs[id]
}

func containsStatus(list []model.SubmissionStatus, s model.SubmissionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobs(refs ...string) *memBlobs {
	b := &memBlobs{blobs: map[string][]byte{}}
	for _, r := range refs {
		b.blobs[r] = []byte("content of " + r)
	}
	return b
}

func (b *memBlobs) Store(_ context.Context, r io.Reader, _ int64, fileName, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ref := "documents/" + uuid.NewString() + "-" + fileName
	b.blobs[ref] = data
	return ref, nil
}

func (b *memBlobs) Retrieve(_ context.Context, ref string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[ref]
	if !ok {
		return nil, errors.New("no such blob")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobs) Exists(_ context.Context, ref string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[ref]
	return ok, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventKind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var (
	applicant  = model.Principal{UserID: uuid.MustParse("00000000-0000-0000-0000-00000000a001"), Email: "applicant@example.edu", Role: model.UserRoleApplicant}
	applicant2 = model.Principal{UserID: uuid.MustParse("00000000-0000-0000-0000-00000000a002"), Email: "other@example.edu", Role: model.UserRoleApplicant}
	reviewer   = model.Principal{UserID: uuid.MustParse("00000000-0000-0000-0000-00000000b001"), Email: "reviewer@example.edu", Role: model.UserRoleReviewer}
	admin      = model.Principal{UserID: uuid.MustParse("00000000-0000-0000-0000-00000000c001"), Email: "admin@example.edu", Role: model.UserRoleAdmin}
)

// harness wires the services over one memStore and seeds a "paten" type with
// three active stages. Stage one requires an inventor statement.
type harness struct {
	store     *memStore
	blobs     *memBlobs
	notifier  *recordingNotifier
	clock     *fakeClock
	catalog   *CatalogService
	documents *DocumentService
	workflow  *WorkflowService
	projector *ProjectorService

	patent      model.SubmissionType
	stages      []model.WorkflowStage
	statement   model.DocumentRequirement
	otherType   model.SubmissionType
	otherStage  model.WorkflowStage
	certificate string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:       newMemStore(),
		blobs:       newMemBlobs("documents/statement.pdf", "documents/statement-v2.pdf", "certificates/cert.pdf"),
		notifier:    &recordingNotifier{},
		clock:       &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		certificate: "certificates/cert.pdf",
	}
	log := zerolog.Nop()

	h.catalog = NewCatalogService(h.store, h.store, h.store)
	recorder := NewRecorder(h.store, h.clock.Now)
	h.documents = NewDocumentService(DocumentServiceDeps{
		Tx:       h.store,
		Subs:     h.store,
		Docs:     h.store,
		Catalog:  h.catalog,
		Recorder: recorder,
		Blobs:    h.blobs,
		Notifier: h.notifier,
		Log:      log,
		Now:      h.clock.Now,
	})
	h.workflow = NewWorkflowService(WorkflowServiceDeps{
		Tx:        h.store,
		Subs:      h.store,
		Catalog:   h.catalog,
		Documents: h.documents,
		Recorder:  recorder,
		Blobs:     h.blobs,
		Notifier:  h.notifier,
		Log:       log,
		Now:       h.clock.Now,
	})
	h.projector = NewProjectorService(h.store, h.store, h.store, h.store, h.clock.Now, 20)

	ctx := context.Background()
	patent, err := h.catalog.CreateSubmissionType(ctx, admin, SubmissionTypeInput{Name: "Paten", Slug: "paten"})
	require.NoError(t, err)
	h.patent = *patent

	for i, code := range []string{"formal_check", "substantive_review", "final_decision"} {
		st, err := h.catalog.CreateStage(ctx, admin, patent.ID, StageInput{Code: code, Name: strings.ReplaceAll(code, "_", " "), Order: i + 1})
		require.NoError(t, err)
		h.stages = append(h.stages, *st)
	}

	req, err := h.catalog.CreateRequirement(ctx, admin, patent.ID, RequirementInput{
		Code:             "inventor_statement",
		Name:             "Inventor Statement",
		Required:         true,
		Order:            1,
		AllowedFileTypes: []string{"pdf"},
		MaxSizeKB:        1024,
	})
	require.NoError(t, err)
	h.statement = *req
	_, err = h.catalog.AttachRequirement(ctx, admin, h.stages[0].ID, req.ID, nil, 1)
	require.NoError(t, err)

	other, err := h.catalog.CreateSubmissionType(ctx, admin, SubmissionTypeInput{Name: "Brand", Slug: "brand"})
	require.NoError(t, err)
	h.otherType = *other
	otherStage, err := h.catalog.CreateStage(ctx, admin, other.ID, StageInput{Code: "brand_check", Name: "Brand check", Order: 1})
	require.NoError(t, err)
	h.otherStage = *otherStage
	return h
}

func (h *harness) create(t *testing.T) model.Submission {
	t.Helper()
	sub, err := h.workflow.Create(context.Background(), applicant, CreateSubmissionInput{
		SubmissionTypeID: h.patent.ID,
		Title:            "Low-cost water filter",
		Detail:           []byte(`{"patent_type":"utility","inventors":["A. Rahman"]}`),
	})
	require.NoError(t, err)
	return *sub
}

// inReview returns a submission on stage one in review.
func (h *harness) inReview(t *testing.T) model.Submission {
	t.Helper()
	ctx := context.Background()
	sub := h.create(t)
	_, err := h.workflow.Submit(ctx, applicant, sub.ID, nil)
	require.NoError(t, err)
	out, err := h.workflow.StartReview(ctx, reviewer, sub.ID, "", nil)
	require.NoError(t, err)
	return *out
}

// approveStatement uploads and approves the stage one document.
func (h *harness) approveStatement(t *testing.T, submissionID uuid.UUID) model.SubmissionDocument {
	t.Helper()
	ctx := context.Background()
	sd, err := h.documents.Upload(ctx, applicant, submissionID, UploadInput{
		RequirementID: &h.statement.ID,
		BlobRef:       "documents/statement.pdf",
		FileName:      "statement.pdf",
		MimeType:      "application/pdf",
		Size:          2048,
	})
	require.NoError(t, err)
	out, err := h.documents.SetStatus(ctx, reviewer, sd.ID, model.DocumentStatusApproved, "looks good")
	require.NoError(t, err)
	return *out
}

// onLastStage drives a submission to the final stage in review.
func (h *harness) onLastStage(t *testing.T) model.Submission {
	t.Helper()
	ctx := context.Background()
	sub := h.inReview(t)
	h.approveStatement(t, sub.ID)
	_, err := h.workflow.Advance(ctx, reviewer, sub.ID, "", nil)
	require.NoError(t, err)
	out, err := h.workflow.Advance(ctx, reviewer, sub.ID, "", nil)
	require.NoError(t, err)
	require.Equal(t, h.stages[2].ID, *out.CurrentStageID)
	return *out
}
