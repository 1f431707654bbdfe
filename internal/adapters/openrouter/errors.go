package openrouter

import (
	"fmt"
	"net/http"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// APIError is a non-2xx response, or an error object inside a 2xx response.
// It unwraps to the domain error class of its status code.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openrouter: status %d", e.StatusCode)
	}
	return fmt.Sprintf("openrouter: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case e.StatusCode == http.StatusPaymentRequired:
		return domain.ErrConfiguration
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode >= 500:
		return domain.ErrTransient
	default:
		return nil
	}
}
