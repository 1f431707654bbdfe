// Package rest exposes pipeline sessions over HTTP.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ewilliams-labs/setlist/internal/core/ports"
)

// Dependencies are what the handler serves. Models, History and Ping are
// optional; their endpoints answer 501 (or skip the check) without them.
type Dependencies struct {
	Sessions *Sessions
	Models   ports.ModelLister
	History  ports.PlaylistHistoryRepository
	// Ping reports storage health for GET /health.
	Ping func(ctx context.Context) error
}

// Options tune the middleware stack.
type Options struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// Handler manages the HTTP interface of setlist.
type Handler struct {
	deps   Dependencies
	router chi.Router
}

// NewHandler initializes the HTTP adapter and sets up routes.
func NewHandler(deps Dependencies, opts Options) *Handler {
	h := &Handler{deps: deps, router: chi.NewRouter()}
	h.routes(opts)
	return h
}

// ServeHTTP satisfies the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes(opts Options) {
	r := h.router
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(correlationID)
	r.Use(instrument)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", correlationHeader},
			ExposedHeaders: []string{correlationHeader, "Location"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimitReqs > 0 && opts.RateLimitWindow > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitReqs, opts.RateLimitWindow))
		}

		r.Get("/models", h.ListModels)
		r.Get("/playlists/history", h.PlaylistHistory)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/model", h.SelectModel)
			r.Post("/navigate", h.Navigate)
			r.Post("/advance", h.Advance)
			r.Post("/data", h.LoadData)
			r.Post("/analyze", h.RunAnalysis)
			r.Post("/availability", h.RunAvailabilityCheck)
			r.Post("/generate", h.RunGeneration)

			r.Post("/draft/regenerate", h.RegeneratePlaylist)
			r.Post("/draft/regenerate-invalid", h.RegenerateInvalid)
			r.Post("/draft/move", h.MoveEntry)
			r.Post("/draft/{index}/regenerate", h.RegenerateEntry)
			r.Delete("/draft/{index}", h.RemoveEntry)
			r.Post("/commit", h.Commit)
		})
	})
}

// HealthCheck reports liveness and, when configured, storage reachability.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "storage": err.Error()})
			return
		}
	}
	sessions := 0
	if h.deps.Sessions != nil {
		sessions = h.deps.Sessions.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": sessions})
}
