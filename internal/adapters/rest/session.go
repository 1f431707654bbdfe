package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/pipeline"
)

// stateView is the session state as clients see it.
type stateView struct {
	domain.PipelineState
	HistoryCount int `json:"historyCount"`
}

func viewOf(st domain.PipelineState) stateView {
	return stateView{PipelineState: st, HistoryCount: st.HistoryCount()}
}

type sessionResponse struct {
	ID    string    `json:"id"`
	State stateView `json:"state"`
}

type reportView struct {
	Stage     domain.Stage `json:"stage"`
	OK        bool         `json:"ok"`
	Warning   string       `json:"warning,omitempty"`
	Error     string       `json:"error,omitempty"`
	Cancelled bool         `json:"cancelled,omitempty"`
}

type stageResponse struct {
	Report reportView `json:"report"`
	State  stateView  `json:"state"`
}

// writeStage answers a stage run: 200 with the report when it succeeded,
// otherwise the error's status with the same body.
func writeStage(w http.ResponseWriter, p *pipeline.Pipeline, rep pipeline.StageReport) {
	body := stageResponse{
		Report: reportView{Stage: rep.Stage, OK: rep.OK, Warning: rep.Warning, Cancelled: rep.Cancelled},
		State:  viewOf(p.State()),
	}
	if rep.Err == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}
	body.Report.Error = domain.UserMessage(rep.Err)
	status, _ := classify(rep.Err)
	if rep.Cancelled {
		status = http.StatusConflict
	}
	writeJSON(w, status, body)
}

// session resolves the {id} URL parameter, answering 404 itself.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*pipeline.Pipeline, bool) {
	p, err := h.deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return p, true
}

// CreateSession handles POST /sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var opts SessionOptions
	if !decodeJSON(w, r, &opts) {
		return
	}
	id, p, err := h.deps.Sessions.Create(opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+id)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, State: viewOf(p.State())})
}

// GetSession handles GET /sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	p, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: chi.URLParam(r, "id"), State: viewOf(p.State())})
}

// DeleteSession handles DELETE /sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectModelRequest struct {
	ModelID string `json:"modelId" validate:"required,max=200"`
}

// SelectModel handles POST /sessions/{id}/model
func (h *Handler) SelectModel(w http.ResponseWriter, r *http.Request) {
	p, ok := h.session(w, r)
	if !ok {
		return
	}
	var req selectModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := p.SelectModel(req.ModelID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p.State()))
}

type stageRequest struct {
	Stage string `json:"stage" validate:"required"`
}

func (h *Handler) moveTo(w http.ResponseWriter, r *http.Request, move func(p *pipeline.Pipeline, s domain.Stage) error) {
	p, ok := h.session(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	stage, err := domain.ParseStage(req.Stage)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := move(p, stage); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p.State()))
}

// Navigate handles POST /sessions/{id}/navigate
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	h.moveTo(w, r, func(p *pipeline.Pipeline, s domain.Stage) error {
		return p.NavigateTo(r.Context(), s)
	})
}

// Advance handles POST /sessions/{id}/advance
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	h.moveTo(w, r, func(p *pipeline.Pipeline, s domain.Stage) error {
		return p.Advance(s)
	})
}

// ListModels handles GET /models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	if h.deps.Models == nil {
		writeError(w, http.StatusNotImplemented, "model listing not configured")
		return
	}
	models, err := h.deps.Models.ListModels(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
