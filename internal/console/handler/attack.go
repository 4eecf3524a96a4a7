package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/uav-memtrust/internal/attack"
)

// AttackHandler — ручки управления харнессом противника. Доступны только
// оператору стенда: это часть эксперимента, а не бэкдор.
type AttackHandler struct {
	harness *attack.Harness
}

func NewAttackHandler(h *attack.Harness) *AttackHandler {
	return &AttackHandler{harness: h}
}

type episodicPoisonRequest struct {
	AgentID string         `json:"agent_id"`
	Task    string         `json:"task"`
	Count   int            `json:"count"`
	Context map[string]any `json:"context"`
}

type semanticPoisonRequest struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Episodic вливает поддельные failure-эпизоды.
// POST /v1/attack/episodic
func (h *AttackHandler) Episodic(w http.ResponseWriter, r *http.Request) {
	var req episodicPoisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ids, err := h.harness.InjectEpisodicPoison(r.Context(), req.AgentID, req.Task, req.Count, req.Context)
	if err != nil {
		http.Error(w, "Injection failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"injected_ids": ids})
}

// Semantic вливает правило в обход валидатора.
// POST /v1/attack/semantic
func (h *AttackHandler) Semantic(w http.ResponseWriter, r *http.Request) {
	var req semanticPoisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	id, err := h.harness.InjectSemanticPoison(r.Context(), req.Content, req.Category)
	if err != nil {
		http.Error(w, "Injection failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"rule_id": id})
}
