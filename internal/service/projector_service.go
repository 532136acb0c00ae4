package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"ip-workflow-service/internal/model"
	"ip-workflow-service/internal/repository"
)

const maxRecentActivity = 100

// ProjectorService derives timelines and counters from tracking history. It
// keeps no state of its own.
type ProjectorService struct {
	subs        SubmissionStore
	ledger      LedgerStore
	docs        DocumentStore
	catalog     CatalogStore
	now         func() time.Time
	recentLimit int
}

func NewProjectorService(subs SubmissionStore, ledger LedgerStore, docs DocumentStore, catalog CatalogStore, now func() time.Time, recentLimit int) *ProjectorService {
	if now == nil {
		now = time.Now
	}
	if recentLimit <= 0 {
		recentLimit = 20
	}
	return &ProjectorService{
		subs:        subs,
		ledger:      ledger,
		docs:        docs,
		catalog:     catalog,
		now:         now,
		recentLimit: recentLimit,
	}
}

func (s *ProjectorService) History(ctx context.Context, principal model.Principal, submissionID uuid.UUID, filter repository.HistoryFilter) ([]model.TrackingHistoryEntry, error) {
	if _, err := visibleSubmission(ctx, s.subs, principal, submissionID); err != nil {
		return nil, err
	}
	return s.ledger.ListForSubmission(ctx, submissionID, filter)
}

func (s *ProjectorService) Timeline(ctx context.Context, principal model.Principal, submissionID uuid.UUID) ([]model.StageGroup, error) {
	sub, err := visibleSubmission(ctx, s.subs, principal, submissionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListForSubmission(ctx, sub.ID, repository.HistoryFilter{})
	if err != nil {
		return nil, err
	}
	stages, err := s.stageIndex(ctx, sub.SubmissionTypeID)
	if err != nil {
		return nil, err
	}
	return BuildTimeline(entries, stages), nil
}

func (s *ProjectorService) Statistics(ctx context.Context, principal model.Principal, submissionID uuid.UUID) (*model.SubmissionStatistics, error) {
	sub, err := visibleSubmission(ctx, s.subs, principal, submissionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListForSubmission(ctx, sub.ID, repository.HistoryFilter{})
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.ListSubmissionDocuments(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	stages, err := s.stageIndex(ctx, sub.SubmissionTypeID)
	if err != nil {
		return nil, err
	}
	stats := BuildStatistics(*sub, entries, docs, stages, s.now().UTC())
	return &stats, nil
}

// StatusDistribution counts visible submissions per status. Every status is
// present in the result.
func (s *ProjectorService) StatusDistribution(ctx context.Context, principal model.Principal) (map[model.SubmissionStatus]int64, error) {
	counts, err := s.subs.CountByStatus(ctx, model.ScopeFor(principal))
	if err != nil {
		return nil, err
	}
	out := make(map[model.SubmissionStatus]int64, len(model.SubmissionStatuses))
	for _, st := range model.SubmissionStatuses {
		out[st] = counts[st]
	}
	return out, nil
}

func (s *ProjectorService) RecentActivity(ctx context.Context, principal model.Principal, limit int) ([]model.TrackingHistoryEntry, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}
	if limit > maxRecentActivity {
		limit = maxRecentActivity
	}
	return s.ledger.Recent(ctx, model.ScopeFor(principal), limit)
}

func (s *ProjectorService) stageIndex(ctx context.Context, typeID uuid.UUID) (map[uuid.UUID]model.WorkflowStage, error) {
	stages, err := s.catalog.ListStages(ctx, typeID, false)
	if err != nil {
		return nil, err
	}
	index := make(map[uuid.UUID]model.WorkflowStage, len(stages))
	for _, st := range stages {
		index[st.ID] = st
	}
	return index, nil
}

// BuildTimeline buckets consecutive entries that share a stage. A group ends
// when the next group starts; the last group is open.
func BuildTimeline(entries []model.TrackingHistoryEntry, stages map[uuid.UUID]model.WorkflowStage) []model.StageGroup {
	ordered := make([]model.TrackingHistoryEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	var groups []model.StageGroup
	for _, e := range ordered {
		if n := len(groups); n > 0 && sameStage(groups[n-1].StageID, e.StageID) {
			groups[n-1].Entries = append(groups[n-1].Entries, e)
			continue
		}
		g := model.StageGroup{
			StageID:   e.StageID,
			StartDate: e.CreatedAt,
			Entries:   []model.TrackingHistoryEntry{e},
		}
		if e.StageID != nil {
			if st, ok := stages[*e.StageID]; ok {
				g.StageCode = st.Code
				g.StageName = st.Name
			}
		}
		groups = append(groups, g)
	}
	for i := 0; i+1 < len(groups); i++ {
		end := groups[i+1].StartDate
		groups[i].EndDate = &end
	}
	return groups
}

// BuildStatistics is a pure function of the ledger, the current submission
// and document state, and now.
func BuildStatistics(sub model.Submission, entries []model.TrackingHistoryEntry, docs []model.SubmissionDocument, stages map[uuid.UUID]model.WorkflowStage, now time.Time) model.SubmissionStatistics {
	stats := model.SubmissionStatistics{
		SubmissionID:         sub.ID,
		Status:               sub.Status,
		CurrentStageID:       sub.CurrentStageID,
		PerStage:             []model.StageDuration{},
		EntryStatusCounts:    map[string]int{},
		EventTypeCounts:      map[string]int{},
		DocumentStatusCounts: map[model.DocumentStatus]int{},
		TotalEntries:         len(entries),
	}

	for _, e := range entries {
		stats.EntryStatusCounts[e.Status]++
		stats.EventTypeCounts[e.EventType]++
	}
	for _, d := range docs {
		stats.DocumentStatusCounts[d.Status]++
	}

	groups := BuildTimeline(entries, stages)
	if len(groups) == 0 {
		return stats
	}
	lastEntries := groups[len(groups)-1].Entries
	last := lastEntries[len(lastEntries)-1].CreatedAt
	stats.LastActivityAt = &last

	position := map[uuid.UUID]int{}
	for i, g := range groups {
		if g.StageID == nil {
			continue
		}
		var end time.Time
		switch {
		case g.EndDate != nil:
			end = *g.EndDate
		case sub.Status.InProgress():
			end = now
		default:
			end = g.Entries[len(g.Entries)-1].CreatedAt
		}
		days := 0
		if d := end.Sub(g.StartDate); d > 0 {
			days = int(d / (24 * time.Hour))
		}

		idx, seen := position[*g.StageID]
		if !seen {
			st := stages[*g.StageID]
			stats.PerStage = append(stats.PerStage, model.StageDuration{
				StageID:   *g.StageID,
				StageCode: st.Code,
				StageName: st.Name,
			})
			idx = len(stats.PerStage) - 1
			position[*g.StageID] = idx
		}
		stats.PerStage[idx].Days += days
		stats.PerStage[idx].Visits++
		if i == len(groups)-1 && sub.Status.InProgress() && sameStage(sub.CurrentStageID, g.StageID) {
			stats.PerStage[idx].Active = true
		}
		stats.TotalDays += days
	}
	return stats
}

func sameStage(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
