package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/uav-memtrust/internal/audit"
)

func TestAuditWriteBatchAndSelect(t *testing.T) {
	repo := NewAuditRepo(newTestDB(t))
	ctx := context.Background()

	missionID := uuid.NewString()
	base := time.Now()
	events := []audit.DecisionEvent{
		{ID: uuid.NewString(), MissionID: missionID, Stage: 0, Task: "scan_sector", Sector: "A", Verdict: audit.VerdictKept, Timestamp: base},
		{ID: uuid.NewString(), MissionID: missionID, Stage: 0, Task: "scan_sector", Sector: "B", Verdict: audit.VerdictExcluded, Reason: "rule 1: avoid B", Evidence: []int64{1}, Timestamp: base.Add(time.Millisecond)},
		{ID: uuid.NewString(), MissionID: uuid.NewString(), Stage: 0, Task: "scan_sector", Sector: "C", Verdict: audit.VerdictKept, Timestamp: base.Add(2 * time.Millisecond)},
	}
	require.NoError(t, repo.WriteBatch(ctx, events))

	got, err := repo.SelectByMission(ctx, missionID, 0)
	require.NoError(t, err)
	require.Len(t, got, 2, "чужая миссия не должна попасть в выборку")

	assert.Equal(t, audit.VerdictKept, got[0].Verdict)
	assert.Equal(t, audit.VerdictExcluded, got[1].Verdict)
	assert.Equal(t, []int64{1}, got[1].Evidence)
	assert.Equal(t, "rule 1: avoid B", got[1].Reason)

	// polling с offset: хвост после уже увиденных событий
	tail, err := repo.SelectByMission(ctx, missionID, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "B", tail[0].Sector)
}

func TestAuditWriteBatchEmpty(t *testing.T) {
	repo := NewAuditRepo(newTestDB(t))
	assert.NoError(t, repo.WriteBatch(context.Background(), nil))
}
