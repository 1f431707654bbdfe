package rest

import (
	"context"
	"net/http"

	"github.com/ewilliams-labs/setlist/internal/core/pipeline"
)

func (h *Handler) runStage(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, p *pipeline.Pipeline) pipeline.StageReport) {
	p, ok := h.session(w, r)
	if !ok {
		return
	}
	writeStage(w, p, run(r.Context(), p))
}

// LoadData handles POST /sessions/{id}/data
func (h *Handler) LoadData(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, func(ctx context.Context, p *pipeline.Pipeline) pipeline.StageReport {
		return p.LoadData(ctx)
	})
}

// RunAnalysis handles POST /sessions/{id}/analyze
func (h *Handler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, func(ctx context.Context, p *pipeline.Pipeline) pipeline.StageReport {
		return p.RunAnalysis(ctx)
	})
}

// RunAvailabilityCheck handles POST /sessions/{id}/availability
func (h *Handler) RunAvailabilityCheck(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, func(ctx context.Context, p *pipeline.Pipeline) pipeline.StageReport {
		return p.RunAvailabilityCheck(ctx)
	})
}

// RunGeneration handles POST /sessions/{id}/generate
func (h *Handler) RunGeneration(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, func(ctx context.Context, p *pipeline.Pipeline) pipeline.StageReport {
		return p.RunGeneration(ctx)
	})
}

// RegeneratePlaylist handles POST /sessions/{id}/draft/regenerate
func (h *Handler) RegeneratePlaylist(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, func(ctx context.Context, p *pipeline.Pipeline) pipeline.StageReport {
		return p.RegeneratePlaylist(ctx)
	})
}

// RegenerateInvalid handles POST /sessions/{id}/draft/regenerate-invalid
func (h *Handler) RegenerateInvalid(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, func(ctx context.Context, p *pipeline.Pipeline) pipeline.StageReport {
		return p.RegenerateInvalid(ctx)
	})
}
