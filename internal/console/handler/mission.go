package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/uav-memtrust/internal/console/service"
)

type MissionHandler struct {
	service *service.MissionService
}

func NewMissionHandler(s *service.MissionService) *MissionHandler {
	return &MissionHandler{service: s}
}

// Start стартует прогон миссии в фоне.
// POST /v1/mission/start
func (h *MissionHandler) Start(w http.ResponseWriter, r *http.Request) {
	missionID := h.service.Start()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"mission_id": missionID})
}

// Events — polling хвоста decision trail.
// GET /v1/mission/{id}/events?from=N
func (h *MissionHandler) Events(w http.ResponseWriter, r *http.Request) {
	missionID := chi.URLParam(r, "id")

	from := 0
	if raw := r.URL.Query().Get("from"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "bad from", http.StatusBadRequest)
			return
		}
		from = n
	}

	events, err := h.service.Events(r.Context(), missionID, from)
	if err != nil {
		if errors.Is(err, service.ErrMissionNotFound) {
			http.Error(w, "mission not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// Summary — итоговый отчет завершенного прогона.
// GET /v1/mission/{id}/summary
func (h *MissionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	missionID := chi.URLParam(r, "id")

	report, err := h.service.Summary(missionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissionNotFound):
			http.Error(w, "mission not found", http.StatusNotFound)
		case errors.Is(err, service.ErrMissionRunning):
			// прогон еще идет, клиенту стоит продолжать polling
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"status": "running"})
		default:
			http.Error(w, "Mission failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
