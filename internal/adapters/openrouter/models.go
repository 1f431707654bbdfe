package openrouter

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

type modelsResponse struct {
	Data []modelWire `json:"data"`
}

type modelWire struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	Pricing       struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
}

func (w modelWire) toDomain() domain.Model {
	provider, _, _ := strings.Cut(w.ID, "/")
	name := w.Name
	if name == "" {
		name = w.ID
	}
	return domain.Model{
		ID:            w.ID,
		Name:          name,
		Provider:      provider,
		ContextLength: w.ContextLength,
		Free:          w.Pricing.Prompt == "0" && w.Pricing.Completion == "0",
	}
}

// ListModels returns the available models, free ones first, then by
// provider and name.
func (c *Client) ListModels(ctx context.Context) ([]domain.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openrouter: decode models: %w", err)
	}

	models := make([]domain.Model, 0, len(parsed.Data))
	for _, w := range parsed.Data {
		if w.ID == "" {
			continue
		}
		models = append(models, w.toDomain())
	}
	SortModels(models)
	return models, nil
}

// SortModels orders free models first, then by provider, then by name.
func SortModels(models []domain.Model) {
	slices.SortStableFunc(models, func(a, b domain.Model) int {
		if a.Free != b.Free {
			if a.Free {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.Provider, b.Provider); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
}
