// Package openrouter provides an adapter for the OpenRouter chat completion
// service. It implements ports.Generator by sending a system and user prompt
// and returning the raw text of the first choice, and ports.ModelLister.
package openrouter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
	"github.com/ewilliams-labs/setlist/internal/logging"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "deepseek/deepseek-r1"

	defaultTimeout = 90 * time.Second
	maxErrorBody   = 4 << 10
)

// Config configures the client. APIKey is required.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	// Referer and Title identify the application to OpenRouter.
	Referer string
	Title   string
	Timeout time.Duration
	// Transport is the base round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

type Client struct {
	baseURL      string
	defaultModel string
	referer      string
	title        string
	httpClient   *http.Client
}

var (
	_ ports.Generator   = (*Client)(nil)
	_ ports.ModelLister = (*Client)(nil)
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
}

// NewClient builds a client whose requests carry the API key as a bearer token.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openrouter: missing API key: %w", domain.ErrConfiguration)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		baseURL:      baseURL,
		defaultModel: model,
		referer:      cfg.Referer,
		title:        cfg.Title,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}),
				Base:   base,
			},
		},
	}, nil
}

// DefaultModelID is the model used when a request names none.
func (c *Client) DefaultModelID() string { return c.defaultModel }

// Generate sends one chat completion and returns the content of the first
// choice verbatim. Shape checking is left to the caller.
func (c *Client) Generate(ctx context.Context, req ports.GenerationRequest) (string, error) {
	model := req.ModelID
	if model == "" {
		model = c.defaultModel
	}
	payload := chatRequest{
		Model:     model,
		MaxTokens: req.MaxOutputTokens,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		payload.Temperature = &t
	}
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("openrouter: marshal request: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", readAPIError(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w: %w", domain.ErrMalformedOutput, err)
	}
	if parsed.Error != nil {
		return "", parsed.Error.apiError(resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openrouter: no choices in response: %w", domain.ErrMalformedOutput)
	}

	choice := parsed.Choices[0]
	logging.Ctx(ctx).Debug().
		Str("component", "openrouter").
		Str("model", model).
		Str("finish_reason", choice.FinishReason).
		Int("chars", len(choice.Message.Content)).
		Dur("duration", time.Since(start)).
		Msg("completion received")
	return choice.Message.Content, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}

// transportError classifies a failed round trip. Cancellation by the caller
// is passed through; everything else is worth another attempt.
func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("openrouter: request canceled: %w", ctx.Err())
	}
	return fmt.Errorf("openrouter: request failed: %w: %w", domain.ErrTransient, err)
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, RetryAfter: resp.Header.Get("Retry-After")}

	var wrapped struct {
		Error *errorBody `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Error != nil {
		apiErr.Message = wrapped.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func (e *errorBody) apiError(status int) error {
	code := status
	if n, err := e.Code.Int64(); err == nil && n > 0 {
		code = int(n)
	}
	return &APIError{StatusCode: code, Message: e.Message}
}
