package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

type taskListResponse struct {
	Active []domain.TaskEvent  `json:"active"`
	Recent []domain.TaskRecord `json:"recent,omitempty"`
}

func (rt *Router) listTasks(w http.ResponseWriter, r *http.Request) {
	resp := taskListResponse{Active: rt.svc.Tasks.Active()}

	if raw := r.URL.Query().Get("recent"); raw != "" && rt.svc.History != nil {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 500 {
			writeError(w, domain.ValidationError("recent must be between 1 and 500"))
			return
		}
		recent, err := rt.svc.History.ListRecent(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Recent = recent
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) getTask(w http.ResponseWriter, r *http.Request) {
	event, err := rt.svc.Tasks.Snapshot(r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// stopTask ends local tracking only; the backend job is untouched.
func (rt *Router) stopTask(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Tasks.Stop(r.PathValue("task_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) revokeTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if err := rt.svc.Tasks.Revoke(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "status": "revoke_requested"})
}
