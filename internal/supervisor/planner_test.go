package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/uav-memtrust/internal/domain"
)

func scanCandidates(sectors ...string) []domain.SubTask {
	out := make([]domain.SubTask, 0, len(sectors))
	for _, s := range sectors {
		out = append(out, domain.SubTask{Task: "scan_sector", Sector: s})
	}
	return out
}

func failureEpisode(id int64, task, sector string) domain.Episode {
	return domain.Episode{
		ID:      id,
		Task:    task,
		Outcome: domain.OutcomeFailure,
		Context: map[string]any{"params": map[string]any{"sector": sector}},
	}
}

func TestPlanKeepsCleanSectors(t *testing.T) {
	plan := ComputeStagePlan(0, scanCandidates("A", "B"), nil, nil)

	assert.Equal(t, scanCandidates("A", "B"), plan.Keep)
	assert.Empty(t, plan.Exclusions)
}

func TestPlanExcludesOnEpisodicEvidence(t *testing.T) {
	episodes := []domain.Episode{
		failureEpisode(4, "scan_sector", "B"),
		failureEpisode(9, "scan_sector", "B"),
	}

	plan := ComputeStagePlan(2, scanCandidates("A", "B"), episodes, nil)

	assert.Equal(t, 2, plan.Stage)
	assert.Equal(t, scanCandidates("A"), plan.Keep)
	require.Len(t, plan.Exclusions, 1)

	excl := plan.Exclusions[0]
	assert.Equal(t, "B", excl.SubTask.Sector)
	assert.Equal(t, domain.CauseEpisodicEvidence, excl.Cause)
	assert.Equal(t, []int64{4, 9}, excl.EpisodeIDs)
	assert.NotEmpty(t, excl.Reason)
}

func TestPlanIgnoresForeignEvidence(t *testing.T) {
	episodes := []domain.Episode{
		// другая задача
		failureEpisode(1, "takeoff", "B"),
		// успех, не улика
		{ID: 2, Task: "scan_sector", Outcome: domain.OutcomeSuccess,
			Context: map[string]any{"params": map[string]any{"sector": "B"}}},
		// без params
		{ID: 3, Task: "scan_sector", Outcome: domain.OutcomeFailure, Context: map[string]any{}},
	}

	plan := ComputeStagePlan(0, scanCandidates("A", "B"), episodes, nil)
	assert.Len(t, plan.Keep, 2)
	assert.Empty(t, plan.Exclusions)
}

func TestPlanExcludesOnSemanticRule(t *testing.T) {
	rules := []domain.Rule{
		{RuleID: 11, Content: "avoid B", Category: "mission_constraints", Active: true},
	}

	plan := ComputeStagePlan(0, scanCandidates("A", "B"), nil, rules)

	assert.Equal(t, scanCandidates("A"), plan.Keep)
	require.Len(t, plan.Exclusions, 1)

	excl := plan.Exclusions[0]
	assert.Equal(t, domain.CauseSemanticRule, excl.Cause)
	assert.Equal(t, int64(11), excl.RuleID)
	assert.Empty(t, excl.EpisodeIDs)
}

func TestPlanInactiveRuleIgnored(t *testing.T) {
	rules := []domain.Rule{
		{RuleID: 11, Content: "avoid B", Category: "mission_constraints", Active: false},
	}

	plan := ComputeStagePlan(0, scanCandidates("A", "B"), nil, rules)
	assert.Len(t, plan.Keep, 2)
	assert.Empty(t, plan.Exclusions)
}

func TestPlanAvoidAllRuleExcludesEverything(t *testing.T) {
	// Сам планировщик не занимается валидацией: если over-broad правило
	// дожило до планирования (защита выключена), оно гасит все сектора.
	rules := []domain.Rule{
		{RuleID: 3, Content: "avoid everything", Category: "mission_constraints", Active: true},
	}

	plan := ComputeStagePlan(0, scanCandidates("A", "B", "C"), nil, rules)
	assert.Empty(t, plan.Keep)
	assert.Len(t, plan.Exclusions, 3)
}

func TestPlanEvidenceOutweighsRule(t *testing.T) {
	episodes := []domain.Episode{failureEpisode(5, "scan_sector", "B")}
	rules := []domain.Rule{
		{RuleID: 11, Content: "avoid B", Category: "mission_constraints", Active: true},
	}

	plan := ComputeStagePlan(0, scanCandidates("B"), episodes, rules)

	require.Len(t, plan.Exclusions, 1)
	assert.Equal(t, domain.CauseEpisodicEvidence, plan.Exclusions[0].Cause)
	assert.Equal(t, []int64{5}, plan.Exclusions[0].EpisodeIDs)
}
