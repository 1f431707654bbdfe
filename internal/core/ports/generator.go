package ports

import (
	"context"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// GenerationRequest is one call to the text generation service.
type GenerationRequest struct {
	ModelID         string
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxOutputTokens int
	// Timeout bounds the call; zero leaves it to the adapter default.
	Timeout time.Duration
	// ContinueFrom is the number of items already received when this is a
	// continuation request.
	ContinueFrom int
}

// Generator returns free text that is expected, but not guaranteed, to be a single JSON value.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// ModelLister lists the models a Generator can be asked to use.
type ModelLister interface {
	ListModels(ctx context.Context) ([]domain.Model, error)
}
