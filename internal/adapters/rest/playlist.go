package rest

import (
	"net/http"
	"strconv"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

type commitRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type commitResponse struct {
	Result domain.CommitResult `json:"result"`
	Report reportView          `json:"report"`
	State  stateView           `json:"state"`
}

// Commit handles POST /sessions/{id}/commit
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.session(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, rep := p.Commit(r.Context(), req.Title)
	body := commitResponse{
		Result: result,
		Report: reportView{Stage: rep.Stage, OK: rep.OK, Warning: rep.Warning, Cancelled: rep.Cancelled},
		State:  viewOf(p.State()),
	}
	if rep.Err != nil {
		body.Report.Error = domain.UserMessage(rep.Err)
		status, _ := classify(rep.Err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

// PlaylistHistory handles GET /playlists/history
func (h *Handler) PlaylistHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeError(w, http.StatusNotImplemented, "playlist history not configured")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErrorWithCode(w, http.StatusBadRequest, "limit must be a positive integer", errCodeInvalidRequest)
			return
		}
		limit = n
	}

	playlists, err := h.deps.History.Recent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if playlists == nil {
		playlists = []domain.PlaylistSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}
