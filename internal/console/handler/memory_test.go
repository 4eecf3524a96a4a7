package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/domain"
	"github.com/xela07ax/uav-memtrust/internal/integrity"
	"github.com/xela07ax/uav-memtrust/internal/memory"
	"github.com/xela07ax/uav-memtrust/internal/repository/sqlite"
)

func newTestRouter(t *testing.T) (*chi.Mux, *memory.Interface) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "mem.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mgr := integrity.NewManager([]byte("test-key"))
	mem := memory.New(sqlite.NewEpisodicRepo(db), sqlite.NewSemanticRepo(db), mgr, zap.NewNop(), nil)

	h := NewMemoryHandler(mem)
	r := chi.NewRouter()
	r.Get("/v1/memory/episodes", h.ListEpisodes)
	r.Get("/v1/memory/rules", h.ListRules)
	r.Post("/v1/rules/{id}/deactivate", h.DeactivateRule)
	return r, mem
}

func TestListEpisodesFiltered(t *testing.T) {
	router, mem := newTestRouter(t)
	ctx := context.Background()

	for _, agent := range []string{"uav-1", "uav-1", "uav-2"} {
		_, err := mem.LogEpisode(ctx, memory.EpisodeInput{
			AgentID: agent, Task: "scan_sector", Action: "scan_sector", Outcome: domain.OutcomeSuccess,
		}, false)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/memory/episodes?agent_id=uav-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var episodes []domain.Episode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &episodes))
	assert.Len(t, episodes, 2)
}

func TestListEpisodesUnknownFilterKeyIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/memory/episodes?agentid=uav-1", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentid")
}

func TestDeactivateRuleEndpoint(t *testing.T) {
	router, mem := newTestRouter(t)
	ctx := context.Background()

	id, err := mem.AddRule(ctx, memory.RuleInput{
		Content: "avoid B", Category: "mission_constraints", Source: domain.SourceManual,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/rules/1/deactivate", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rules, err := mem.GetRules(ctx, "mission_constraints", true)
	require.NoError(t, err)
	assert.Empty(t, rules, "правило %d должно погаснуть", id)

	// повторная деактивация несуществующего — 404
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/rules/999/deactivate", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
