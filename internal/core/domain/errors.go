package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("domain: not found")

	// ErrConfiguration marks missing credentials or endpoints. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks network failures and timeouts.
	ErrTransient = errors.New("transient failure")
	// ErrMalformedOutput marks generator output that could not be coerced.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrUnauthorized marks a 401/403 from a collaborator.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited marks a 429 from a collaborator. The user retries.
	ErrRateLimited = errors.New("rate limited")

	ErrStageLocked    = errors.New("domain: stage prerequisites not completed")
	ErrStageBusy      = errors.New("domain: a stage is already processing")
	ErrWrongStage     = errors.New("domain: operation not available in the current stage")
	ErrInvalidIndex   = errors.New("domain: draft index out of range")
	ErrInvalidArgs    = errors.New("domain: invalid argument")
	ErrNoHistory      = errors.New("domain: no listening history")
	ErrNoAvailability = errors.New("domain: nothing suggested is in the library")
	ErrNoFallback     = errors.New("domain: no data to build a fallback from")
	ErrCancelled      = errors.New("domain: stage cancelled")
)

// IsRetryable reports whether the error class may succeed on a later attempt
// without user intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRateLimited) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrMalformedOutput)
}

// UserMessage maps an error onto the text shown to the person running the flow.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "The service is missing credentials or an endpoint. Check the configuration and restart."
	case errors.Is(err, ErrUnauthorized):
		return "Access was denied. Re-check your API key or media server token."
	case errors.Is(err, ErrRateLimited):
		return "The AI service is rate limiting requests. Wait a moment and try again."
	case errors.Is(err, ErrTransient):
		return "A network request failed or timed out. Please try again."
	case errors.Is(err, ErrNoHistory):
		return "No listening history was found for this account."
	case errors.Is(err, ErrNoAvailability):
		return "None of the suggested music was found in your library."
	case errors.Is(err, ErrNoFallback):
		return "The AI response could not be used and there was nothing to fall back on."
	case errors.Is(err, ErrMalformedOutput):
		return "The AI returned an unreadable response. Please try again."
	case errors.Is(err, ErrStageLocked):
		return "Finish the earlier steps first."
	case errors.Is(err, ErrStageBusy):
		return "A step is still running."
	case errors.Is(err, ErrCancelled):
		return "The step was cancelled."
	default:
		return "Something went wrong. Please try again."
	}
}
