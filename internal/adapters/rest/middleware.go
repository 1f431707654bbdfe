package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

const correlationHeader = "X-Correlation-ID"

// correlationID tags the request context with the caller's correlation ID,
// or a new one, and echoes it back.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" || len(id) > 64 {
			id = logging.GenerateCorrelationID()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithCorrelationID(r.Context(), id)))
	})
}

// instrument records request metrics under the matched route pattern and
// logs each request.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(r.Method, pattern, status, elapsed)

		event := logging.Ctx(r.Context()).Debug()
		if status >= http.StatusInternalServerError {
			event = logging.Ctx(r.Context()).Warn()
		}
		event.Str("component", "rest").
			Str("method", r.Method).
			Str("route", pattern).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("request handled")
	})
}
