package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/pipeline"
)

func entryIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("draft index %q: %w", raw, domain.ErrInvalidIndex)
	}
	return i, nil
}

// RegenerateEntry handles POST /sessions/{id}/draft/{index}/regenerate
func (h *Handler) RegenerateEntry(w http.ResponseWriter, r *http.Request) {
	index, err := entryIndex(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.runStage(w, r, func(ctx context.Context, p *pipeline.Pipeline) pipeline.StageReport {
		return p.RegenerateEntry(ctx, index)
	})
}

// RemoveEntry handles DELETE /sessions/{id}/draft/{index}
func (h *Handler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.session(w, r)
	if !ok {
		return
	}
	index, err := entryIndex(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := p.RemoveEntry(r.Context(), index); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p.State()))
}

type moveEntryRequest struct {
	From *int `json:"from" validate:"required,gte=0"`
	To   *int `json:"to" validate:"required,gte=0"`
}

// MoveEntry handles POST /sessions/{id}/draft/move
func (h *Handler) MoveEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.session(w, r)
	if !ok {
		return
	}
	var req moveEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := p.MoveEntry(r.Context(), *req.From, *req.To); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p.State()))
}
