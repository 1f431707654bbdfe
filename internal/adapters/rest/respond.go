package rest

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/validation"
)

const (
	errCodeInvalidRequest = "INVALID_REQUEST"
	errCodeNotFound       = "NOT_FOUND"
	errCodeStageLocked    = "STAGE_LOCKED"
	errCodeStageBusy      = "STAGE_BUSY"
	errCodeWrongStage     = "WRONG_STAGE"
	errCodeCancelled      = "CANCELLED"
	errCodeRateLimited    = "RATE_LIMITED"
	errCodeUnauthorized   = "UPSTREAM_UNAUTHORIZED"
	errCodeUpstream       = "UPSTREAM_FAILURE"
	errCodeConfiguration  = "CONFIGURATION"
	errCodeInternal       = "INTERNAL"

	maxBodyBytes = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Str("component", "rest").Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeErrorWithCode(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps err onto a status and the message shown to users.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := domain.UserMessage(err)
	if status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusConflict {
		msg = err.Error()
	}
	writeErrorWithCode(w, status, msg, code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgs), errors.Is(err, domain.ErrInvalidIndex):
		return http.StatusBadRequest, errCodeInvalidRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errCodeNotFound
	case errors.Is(err, domain.ErrStageLocked):
		return http.StatusConflict, errCodeStageLocked
	case errors.Is(err, domain.ErrStageBusy):
		return http.StatusConflict, errCodeStageBusy
	case errors.Is(err, domain.ErrWrongStage):
		return http.StatusConflict, errCodeWrongStage
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusConflict, errCodeCancelled
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, errCodeRateLimited
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusBadGateway, errCodeUnauthorized
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable, errCodeConfiguration
	case errors.Is(err, domain.ErrTransient), errors.Is(err, domain.ErrMalformedOutput):
		return http.StatusBadGateway, errCodeUpstream
	case errors.Is(err, domain.ErrNoHistory), errors.Is(err, domain.ErrNoAvailability), errors.Is(err, domain.ErrNoFallback):
		return http.StatusUnprocessableEntity, errCodeUpstream
	default:
		return http.StatusInternalServerError, errCodeInternal
	}
}

func isJSONContentType(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeJSON reads and validates an optional JSON body into v. An empty
// body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength != 0 && r.Header.Get("Content-Type") != "" && !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeErrorWithCode(w, http.StatusBadRequest, "Invalid request body", errCodeInvalidRequest)
		return false
	}
	if err := validation.Struct(v); err != nil {
		writeErrorWithCode(w, http.StatusBadRequest, err.Error(), errCodeInvalidRequest)
		return false
	}
	return true
}
