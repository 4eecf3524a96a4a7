package sqlite

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/uav-memtrust/internal/domain"
)

func writeGarbage(path string) error {
	return os.WriteFile(path, bytes.Repeat([]byte("not a database "), 64), 0o644)
}

func insertRule(t *testing.T, repo *SemanticRepo, content, category, source string, active bool) int64 {
	t.Helper()
	ctx := context.Background()

	id, err := repo.NextID(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, &domain.Rule{
		RuleID:     id,
		Content:    content,
		Category:   category,
		Confidence: 1.0,
		Source:     source,
		Active:     active,
	}))
	return id
}

func TestRuleRoundTripAndCategoryFilter(t *testing.T) {
	repo := NewSemanticRepo(newTestDB(t))
	ctx := context.Background()

	id := insertRule(t, repo, "avoid B", "mission_constraints", domain.SourceSystem, true)
	insertRule(t, repo, "prefer daylight", "preferences", domain.SourceManual, true)

	rules, err := repo.SelectByCategory(ctx, "mission_constraints", true)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, id, rules[0].RuleID)
	assert.Equal(t, "avoid B", rules[0].Content)
	assert.Equal(t, domain.SourceSystem, rules[0].Source)
	assert.True(t, rules[0].Active)
}

func TestRuleSoftDelete(t *testing.T) {
	repo := NewSemanticRepo(newTestDB(t))
	ctx := context.Background()

	id := insertRule(t, repo, "avoid B", "mission_constraints", domain.SourceSystem, true)

	require.NoError(t, repo.Deactivate(ctx, id))

	// деактивированное правило исчезает из активной выборки
	active, err := repo.SelectByCategory(ctx, "mission_constraints", true)
	require.NoError(t, err)
	assert.Empty(t, active)

	// но строка остается для аудита
	all, err := repo.SelectByCategory(ctx, "mission_constraints", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
}

func TestDeactivateUnknownRule(t *testing.T) {
	repo := NewSemanticRepo(newTestDB(t))

	err := repo.Deactivate(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRuleStats(t *testing.T) {
	repo := NewSemanticRepo(newTestDB(t))
	ctx := context.Background()

	insertRule(t, repo, "avoid B", "mission_constraints", domain.SourceSystem, true)
	insertRule(t, repo, "avoid C", "mission_constraints", domain.SourceInjected, true)
	id := insertRule(t, repo, "avoid D", "mission_constraints", domain.SourceManual, true)
	require.NoError(t, repo.Deactivate(ctx, id))

	total, active, injected, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), active)
	assert.Equal(t, int64(1), injected)
}
