package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/uav-memtrust/internal/memory"
	"github.com/xela07ax/uav-memtrust/internal/repository/sqlite"
)

type MemoryHandler struct {
	memory *memory.Interface
}

func NewMemoryHandler(mem *memory.Interface) *MemoryHandler {
	return &MemoryHandler{memory: mem}
}

// ListEpisodes возвращает эпизоды по equality-фильтру из query-параметров.
// GET /v1/memory/episodes?agent_id=...&task=...&outcome=...&limit=...
// Неизвестный ключ фильтра — это 400, а не пустой результат: опечатка
// оператора не должна маскироваться под «ничего не нашлось».
func (h *MemoryHandler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	filter := make(map[string]any)
	limit := 0

	for key, vals := range r.URL.Query() {
		if len(vals) == 0 {
			continue
		}
		switch key {
		case "limit":
			n, err := strconv.Atoi(vals[0])
			if err != nil {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = n
		case "id":
			id, err := strconv.ParseInt(vals[0], 10, 64)
			if err != nil {
				http.Error(w, "bad id", http.StatusBadRequest)
				return
			}
			filter[key] = id
		default:
			filter[key] = vals[0]
		}
	}

	episodes, err := h.memory.RecallEpisodes(r.Context(), filter, limit)
	if err != nil {
		if errors.Is(err, memory.ErrUnknownFilterKey) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to fetch episodes", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(episodes)
}

// ListRules возвращает правила категории.
// GET /v1/memory/rules?category=...&all=true — all включает деактивированные.
func (h *MemoryHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	activeOnly := r.URL.Query().Get("all") != "true"

	rules, err := h.memory.GetRules(r.Context(), category, activeOnly)
	if err != nil {
		http.Error(w, "Failed to fetch rules", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rules)
}

// DeactivateRule гасит правило, строка остается для аудита.
// POST /v1/rules/{id}/deactivate
func (h *MemoryHandler) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad rule id", http.StatusBadRequest)
		return
	}

	if err := h.memory.DeactivateRule(r.Context(), id); err != nil {
		if errors.Is(err, sqlite.ErrRuleNotFound) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to deactivate rule", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
