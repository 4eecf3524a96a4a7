package supervisor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/attack"
	"github.com/xela07ax/uav-memtrust/internal/audit"
	"github.com/xela07ax/uav-memtrust/internal/domain"
	"github.com/xela07ax/uav-memtrust/internal/executor"
	"github.com/xela07ax/uav-memtrust/internal/integrity"
	"github.com/xela07ax/uav-memtrust/internal/memory"
	"github.com/xela07ax/uav-memtrust/internal/repository/sqlite"
	"github.com/xela07ax/uav-memtrust/internal/validator"
)

// recorderStub собирает события trail в память, без асинхронщины.
type recorderStub struct {
	mu     sync.Mutex
	events []audit.DecisionEvent
}

func (r *recorderStub) Record(e audit.DecisionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorderStub) Pending() int { return 0 }

func (r *recorderStub) byVerdict(verdict string) []audit.DecisionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.DecisionEvent
	for _, e := range r.events {
		if e.Verdict == verdict {
			out = append(out, e)
		}
	}
	return out
}

// executorStub всегда успешен и мгновенен.
type executorStub struct{}

func (executorStub) Call(ctx context.Context, action string, payload []byte) ([]byte, error) {
	return []byte(`{"status":"ok"}`), nil
}

type testRig struct {
	mem     *memory.Interface
	mgr     *integrity.Manager
	harness *attack.Harness
	trail   *recorderStub
	profile domain.MissionProfile
}

func newTestRig(t *testing.T, sectors ...string) *testRig {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "mem.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mgr := integrity.NewManager([]byte("test-key"))
	mem := memory.New(sqlite.NewEpisodicRepo(db), sqlite.NewSemanticRepo(db), mgr, zap.NewNop(), nil)

	return &testRig{
		mem:     mem,
		mgr:     mgr,
		harness: attack.New(mem, zap.NewNop(), nil),
		trail:   &recorderStub{},
		profile: domain.MissionProfile{
			Agents: []string{"uav-1", "uav-2"},
			Stages: []domain.MissionStage{{Task: "scan_sector", Sectors: sectors}},
		},
	}
}

func (r *testRig) supervisor(t *testing.T, defense bool, exec executor.ActionExecutor) *Supervisor {
	t.Helper()
	options := validator.CategoryOptions(r.profile, "mission_constraints")
	v := validator.New(r.mem, r.mgr, options, zap.NewNop(), nil)
	return New(r.mem, r.mgr, v, exec, r.trail, zap.NewNop(), nil, Options{
		Defense:      defense,
		Profile:      r.profile,
		RuleCategory: "mission_constraints",
	})
}

func poisonSector(t *testing.T, rig *testRig, sector string, count int) []int64 {
	t.Helper()
	ids, err := rig.harness.InjectEpisodicPoison(context.Background(), "ghost-uav", "scan_sector", count, map[string]any{
		"params": map[string]any{"sector": sector},
	})
	require.NoError(t, err)
	return ids
}

func TestEpisodicPoisonDeniesSectorWithoutDefense(t *testing.T) {
	rig := newTestRig(t, "A", "B")
	poisonIDs := poisonSector(t, rig, "B", 2)

	sup := rig.supervisor(t, false, executorStub{})
	report, err := sup.RunMission(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, report.Plans, 1)
	plan := report.Plans[0]
	assert.Equal(t, []domain.SubTask{{Task: "scan_sector", Sector: "A"}}, plan.Keep)

	require.Len(t, plan.Exclusions, 1)
	excl := plan.Exclusions[0]
	assert.Equal(t, "B", excl.SubTask.Sector)
	assert.Equal(t, domain.CauseEpisodicEvidence, excl.Cause)
	assert.ElementsMatch(t, poisonIDs, excl.EpisodeIDs, "отчет обязан назвать улики поименно")

	// trail зафиксировал и KEPT, и EXCLUDED
	assert.Len(t, rig.trail.byVerdict(audit.VerdictKept), 1)
	assert.Len(t, rig.trail.byVerdict(audit.VerdictExcluded), 1)
}

func TestDefenseDiscardsUnsignedPoison(t *testing.T) {
	rig := newTestRig(t, "A", "B")
	poisonSector(t, rig, "B", 2)

	sup := rig.supervisor(t, true, executorStub{})
	report, err := sup.RunMission(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, report.Plans, 1)
	plan := report.Plans[0]
	assert.Len(t, plan.Keep, 2, "подделки отброшены, оба сектора в плане")
	assert.Empty(t, plan.Exclusions)
	assert.Equal(t, 2, report.Stats.DiscardedUnsigned)

	drops := rig.trail.byVerdict(audit.VerdictEvidenceDrop)
	require.Len(t, drops, 2)
	assert.Equal(t, "unsigned", drops[0].Reason)
}

func TestSemanticPoisonDeniesSectorWithoutDefense(t *testing.T) {
	rig := newTestRig(t, "A", "B")
	ruleID, err := rig.harness.InjectSemanticPoison(context.Background(), "avoid B", "mission_constraints")
	require.NoError(t, err)

	sup := rig.supervisor(t, false, executorStub{})
	report, err := sup.RunMission(context.Background(), "")
	require.NoError(t, err)

	plan := report.Plans[0]
	require.Len(t, plan.Exclusions, 1)
	assert.Equal(t, domain.CauseSemanticRule, plan.Exclusions[0].Cause)
	assert.Equal(t, ruleID, plan.Exclusions[0].RuleID)
}

func TestDefenseRevalidatesPoisonedRule(t *testing.T) {
	// Правило влито ДО включения защиты — ревалидация на чтении его гасит.
	rig := newTestRig(t, "A", "B")
	_, err := rig.harness.InjectSemanticPoison(context.Background(), "avoid B", "mission_constraints")
	require.NoError(t, err)

	sup := rig.supervisor(t, true, executorStub{})
	report, err := sup.RunMission(context.Background(), "")
	require.NoError(t, err)

	plan := report.Plans[0]
	assert.Len(t, plan.Keep, 2)
	assert.Empty(t, plan.Exclusions)
	assert.Equal(t, 1, report.Stats.RejectedRules)
	assert.Len(t, rig.trail.byVerdict(audit.VerdictRuleRejected), 1)
}

func TestHonestFailureStillExcludesUnderDefense(t *testing.T) {
	// Защита не должна выбрасывать легитимный опыт: в первом этапе сектор B
	// честно падает (подписанный failure), во втором — исключается по улике.
	rig := newTestRig(t, "A", "B")
	rig.profile.Stages = append(rig.profile.Stages, domain.MissionStage{
		Task: "scan_sector", Sectors: []string{"A", "B"},
	})

	sitl := executor.NewSITLConnector("B")
	sup := rig.supervisor(t, true, sitl)

	report, err := sup.RunMission(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Plans, 2)

	// этап 0: улик еще нет, оба сектора в работе
	assert.Len(t, report.Plans[0].Keep, 2)

	// этап 1: подписанный failure по B пережил защиту
	plan := report.Plans[1]
	assert.Equal(t, []domain.SubTask{{Task: "scan_sector", Sector: "A"}}, plan.Keep)
	require.Len(t, plan.Exclusions, 1)

	excl := plan.Exclusions[0]
	assert.Equal(t, "B", excl.SubTask.Sector)
	assert.Equal(t, domain.CauseEpisodicEvidence, excl.Cause)
	require.NotEmpty(t, excl.EpisodeIDs)

	// улика — подписанный эпизод
	got, err := rig.mem.RecallEpisodes(context.Background(), map[string]any{"id": excl.EpisodeIDs[0]}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, rig.mgr.VerifyEpisode(&got[0]))
	assert.Equal(t, domain.OutcomeFailure, got[0].Outcome)
}

func TestMissionWritesSignedOutcomes(t *testing.T) {
	rig := newTestRig(t, "A", "B")

	sup := rig.supervisor(t, true, executorStub{})
	_, err := sup.RunMission(context.Background(), "")
	require.NoError(t, err)

	episodes, err := rig.mem.RecallEpisodes(context.Background(), map[string]any{"task": "scan_sector"}, 0)
	require.NoError(t, err)
	require.Len(t, episodes, 2)

	for i := range episodes {
		e := &episodes[i]
		assert.True(t, rig.mgr.VerifyEpisode(e), "исходы миссии пишутся подписанными")
		assert.Contains(t, e.Context, "soc")
		assert.Contains(t, e.Context, "energy_used")
	}
}
