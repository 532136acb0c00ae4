package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ip-workflow-service/internal/model"
	"ip-workflow-service/internal/repository"
)

const day = 24 * time.Hour

// walkToLastStage spends two days on stage one and three on stage two, then
// leaves the submission one day into stage three.
func walkToLastStage(t *testing.T, h *harness) model.Submission {
	t.Helper()
	ctx := context.Background()
	sub := h.inReview(t)
	h.clock.Advance(2 * day)
	h.approveStatement(t, sub.ID)
	_, err := h.workflow.Advance(ctx, reviewer, sub.ID, "", nil)
	require.NoError(t, err)
	h.clock.Advance(3 * day)
	_, err = h.workflow.Advance(ctx, reviewer, sub.ID, "", nil)
	require.NoError(t, err)
	h.clock.Advance(day + 4*time.Hour)
	return h.store.submission(sub.ID)
}

func TestTimelineGroupsConsecutiveStages(t *testing.T) {
	h := newHarness(t)
	sub := walkToLastStage(t, h)

	groups, err := h.projector.Timeline(context.Background(), applicant, sub.ID)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	total := 0
	for i, g := range groups {
		assert.Equal(t, h.stages[i].ID, *g.StageID)
		assert.Equal(t, h.stages[i].Name, g.StageName)
		assert.Equal(t, g.Entries[0].CreatedAt, g.StartDate)
		for _, e := range g.Entries {
			assert.Equal(t, *g.StageID, *e.StageID)
		}
		if i+1 < len(groups) {
			require.NotNil(t, g.EndDate)
			assert.Equal(t, groups[i+1].StartDate, *g.EndDate)
		}
		total += len(g.Entries)
	}
	assert.Nil(t, groups[2].EndDate, "current stage is open")
	assert.Equal(t, len(h.store.entriesFor(sub.ID)), total)
}

func TestBuildTimelineOrdersBySequenceOnTies(t *testing.T) {
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s1, s2 := uuid.New(), uuid.New()
	entries := []model.TrackingHistoryEntry{
		{Sequence: 3, StageID: &s2, CreatedAt: at},
		{Sequence: 1, CreatedAt: at.Add(-time.Hour)},
		{Sequence: 2, StageID: &s1, CreatedAt: at},
		{Sequence: 4, StageID: &s2, CreatedAt: at.Add(time.Minute)},
	}

	groups := BuildTimeline(entries, nil)
	require.Len(t, groups, 3)
	assert.Nil(t, groups[0].StageID, "draft-time entries form their own group")
	assert.Equal(t, s1, *groups[1].StageID)
	assert.Equal(t, s2, *groups[2].StageID)
	assert.Len(t, groups[2].Entries, 2)
	assert.Equal(t, at, *groups[1].EndDate)
	assert.Equal(t, int64(1), entries[1].Sequence, "input is not reordered")
}

func TestStatisticsFromLedger(t *testing.T) {
	h := newHarness(t)
	sub := walkToLastStage(t, h)
	ctx := context.Background()

	stats, err := h.projector.Statistics(ctx, applicant, sub.ID)
	require.NoError(t, err)

	require.Len(t, stats.PerStage, 3)
	assert.Equal(t, 2, stats.PerStage[0].Days)
	assert.Equal(t, 3, stats.PerStage[1].Days)
	assert.Equal(t, 1, stats.PerStage[2].Days)
	assert.True(t, stats.PerStage[2].Active)
	assert.False(t, stats.PerStage[0].Active)
	for _, st := range stats.PerStage {
		assert.Equal(t, 1, st.Visits)
	}
	assert.Equal(t, 6, stats.TotalDays)
	assert.Equal(t, 8, stats.TotalEntries)
	assert.Equal(t, 3, stats.EntryStatusCounts["approved"])
	assert.Equal(t, 2, stats.EntryStatusCounts["started"])
	assert.Equal(t, 1, stats.EventTypeCounts[model.EventCreation])
	assert.Equal(t, 1, stats.DocumentStatusCounts[model.DocumentStatusApproved])
	assert.Equal(t, model.SubmissionStatusInReview, stats.Status)
	assert.Equal(t, h.stages[2].ID, *stats.CurrentStageID)
	require.NotNil(t, stats.LastActivityAt)

	again, err := h.projector.Statistics(ctx, applicant, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, stats, again)
}

func TestStatisticsCountsRevisits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := walkToLastStage(t, h)

	_, err := h.workflow.Return(ctx, reviewer, sub.ID, nil, "", nil)
	require.NoError(t, err)
	h.clock.Advance(day)
	_, err = h.workflow.Advance(ctx, reviewer, sub.ID, "", nil)
	require.NoError(t, err)

	stats, err := h.projector.Statistics(ctx, reviewer, sub.ID)
	require.NoError(t, err)
	require.Len(t, stats.PerStage, 3)
	assert.Equal(t, 2, stats.PerStage[1].Visits)
	assert.Equal(t, 4, stats.PerStage[1].Days)
	assert.Equal(t, 2, stats.PerStage[2].Visits)
}

func TestStatusDistributionAndRecentActivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t)
	sub := h.create(t)
	_, err := h.workflow.Submit(ctx, applicant, sub.ID, nil)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, err = h.workflow.StartReview(ctx, reviewer, sub.ID, "", nil)
	require.NoError(t, err)

	dist, err := h.projector.StatusDistribution(ctx, reviewer)
	require.NoError(t, err)
	assert.Len(t, dist, len(model.SubmissionStatuses))
	assert.Equal(t, int64(1), dist[model.SubmissionStatusDraft])
	assert.Equal(t, int64(1), dist[model.SubmissionStatusInReview])
	assert.Equal(t, int64(0), dist[model.SubmissionStatusCompleted])

	other, err := h.projector.StatusDistribution(ctx, applicant2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other[model.SubmissionStatusDraft])

	recent, err := h.projector.RecentActivity(ctx, reviewer, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.EventStatusChange, recent[0].EventType)

	recent, err = h.projector.RecentActivity(ctx, reviewer, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	recent, err = h.projector.RecentActivity(ctx, applicant2, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestHistoryFilters(t *testing.T) {
	h := newHarness(t)
	sub := walkToLastStage(t, h)
	ctx := context.Background()

	transitions, err := h.projector.History(ctx, applicant, sub.ID, repository.HistoryFilter{EventTypes: []string{model.EventStageTransition}})
	require.NoError(t, err)
	assert.Len(t, transitions, 2)

	_, err = h.projector.History(ctx, applicant2, sub.ID, repository.HistoryFilter{})
	assert.ErrorIs(t, err, ErrNotFound)
}
