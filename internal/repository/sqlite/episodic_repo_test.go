package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "mem.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertEpisode(t *testing.T, repo *EpisodicRepo, agentID, task, outcome, sector string) int64 {
	t.Helper()
	ctx := context.Background()

	id, err := repo.NextID(ctx)
	require.NoError(t, err)

	e := &domain.Episode{
		ID:      id,
		AgentID: agentID,
		Task:    task,
		Action:  task,
		Outcome: outcome,
		Context: map[string]any{"params": map[string]any{"sector": sector}},
	}
	e.StampNow()
	require.NoError(t, repo.Insert(ctx, e))
	return id
}

func TestEpisodeRoundTrip(t *testing.T) {
	repo := NewEpisodicRepo(newTestDB(t))
	ctx := context.Background()

	id := insertEpisode(t, repo, "uav-1", "scan_sector", domain.OutcomeFailure, "B")

	got, err := repo.Select(ctx, map[string]any{"id": id}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	e := got[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "uav-1", e.AgentID)
	assert.Equal(t, "scan_sector", e.Task)
	assert.Equal(t, domain.OutcomeFailure, e.Outcome)
	assert.NotZero(t, e.Timestamp)
	assert.NotEmpty(t, e.ISOTime)

	params, ok := e.Context["params"].(map[string]any)
	require.True(t, ok, "params должны пережить JSON round-trip")
	assert.Equal(t, "B", params["sector"])
}

func TestEpisodeSelectFiltersAndOrder(t *testing.T) {
	repo := NewEpisodicRepo(newTestDB(t))
	ctx := context.Background()

	first := insertEpisode(t, repo, "uav-1", "scan_sector", domain.OutcomeFailure, "A")
	insertEpisode(t, repo, "uav-2", "scan_sector", domain.OutcomeSuccess, "B")
	third := insertEpisode(t, repo, "uav-1", "scan_sector", domain.OutcomeFailure, "C")

	// все совпавшие, свежие первыми
	got, err := repo.Select(ctx, map[string]any{
		"agent_id": "uav-1",
		"outcome":  domain.OutcomeFailure,
	}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, third, got[0].ID)
	assert.Equal(t, first, got[1].ID)

	// limit усечет до самых свежих
	got, err = repo.Select(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, third, got[0].ID)

	// пустой фильтр без лимита — вся последовательность
	got, err = repo.Select(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	// нет совпадений — пусто, не ошибка
	got, err = repo.Select(ctx, map[string]any{"agent_id": "ghost"}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEpisodeStats(t *testing.T) {
	repo := NewEpisodicRepo(newTestDB(t))
	ctx := context.Background()

	insertEpisode(t, repo, "uav-1", "scan_sector", domain.OutcomeSuccess, "A")

	id, err := repo.NextID(ctx)
	require.NoError(t, err)
	signed := &domain.Episode{
		ID:      id,
		AgentID: "uav-1",
		Task:    "scan_sector",
		Action:  "scan_sector",
		Outcome: domain.OutcomeSuccess,
		Context: map[string]any{domain.SignatureKey: "aabbcc"},
	}
	signed.StampNow()
	require.NoError(t, repo.Insert(ctx, signed))

	total, signedCount, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), signedCount)
}

func TestCorruptedFileRecovery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mem.db")

	// пишем заведомый мусор вместо базы
	require.NoError(t, writeGarbage(path))

	db, err := Open(path, zap.NewNop())
	require.NoError(t, err, "битый файл должен уехать в карантин, стор подняться пустым")
	defer db.Close()

	repo := NewEpisodicRepo(db)
	got, err := repo.Select(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	// карантинная копия лежит рядом
	quarantined, err := filepath.Glob(path + ".corrupted.*")
	require.NoError(t, err)
	assert.NotEmpty(t, quarantined)
}
