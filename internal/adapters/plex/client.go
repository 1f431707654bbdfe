// Package plex adapts a Plex Media Server to the catalog, history,
// vocabulary and playlist ports. Every request passes a client-side rate
// limiter and a circuit breaker, and idempotent requests are retried.
package plex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

const (
	defaultTimeout           = 15 * time.Second
	defaultRequestsPerSecond = 20
	defaultBurst             = 10
	defaultBreakerFailures   = 5
	defaultBreakerTimeout    = 30 * time.Second
	breakerName              = "plex-api"
)

// Config configures the client. BaseURL and Token are required.
type Config struct {
	BaseURL string
	Token   string
	// UserID is the account whose history is read when a call names none.
	UserID string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// MaxRetries is the number of retries after the first attempt of a
	// history, library or identity GET. Zero disables retries and a
	// negative value takes the default. Searches are never retried.
	MaxRetries        int
	RetryBackoff      time.Duration

	// BreakerFailures consecutive transient failures open the circuit for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	HTTPClient *http.Client
}

// Client talks to one Plex server.
type Client struct {
	baseURL     string
	token       string
	userID      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	cb          *gobreaker.CircuitBreaker[[]byte]
	maxRetries  int
	baseBackoff time.Duration

	mu       sync.Mutex
	sections []directory
	machine  string
}

var (
	_ ports.CatalogSearcher   = (*Client)(nil)
	_ ports.VocabularySource  = (*Client)(nil)
	_ ports.HistorySource     = (*Client)(nil)
	_ ports.PlaylistCommitter = (*Client)(nil)
)

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("plex adapter: missing server URL: %w", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("plex adapter: missing token: %w", domain.ErrConfiguration)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = defaultBreakerTimeout
	}

	return &Client{
		baseURL:     baseURL,
		token:       cfg.Token,
		userID:      cfg.UserID,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		cb:          newBreaker(failures, breakerTimeout),
		maxRetries:  maxRetries,
		baseBackoff: backoff,
	}, nil
}

func newBreaker(failures uint32, timeout time.Duration) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only server and network trouble counts against the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrTransient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("component", "plex").Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// get issues a GET, retried on transient failures, and decodes the JSON
// body into out.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, endpoint, path, query, out, true)
}

// getOnce is get without retries. Catalog searches use it: a failed search
// only marks its proposal unavailable.
func (c *Client) getOnce(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, endpoint, path, query, out, false)
}

// call runs one request through the limiter and the breaker. endpoint is
// the low-cardinality label used for metrics.
func (c *Client) call(ctx context.Context, method, endpoint, path string, query url.Values, out any, retry bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("plex adapter: rate limiter: %w", err)
	}

	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path, query, retry)
	})
	metrics.CatalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
			return fmt.Errorf("plex adapter: %s: %w: %w", endpoint, domain.ErrTransient, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		return err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("plex adapter: decode %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, retry bool) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("plex adapter: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)

	var resp *http.Response
	if retry && method == http.MethodGet {
		resp, err = c.doRequestWithRetry(req)
	} else {
		resp, err = c.httpClient.Do(req)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("plex adapter: %w", ctx.Err())
		}
		return nil, fmt.Errorf("plex adapter: %w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("plex adapter: read body: %w: %w", domain.ErrTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode)
	}
	return body, nil
}

func statusError(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("plex adapter: status %d: %w", status, domain.ErrUnauthorized)
	case status == http.StatusNotFound:
		return fmt.Errorf("plex adapter: status %d: %w", status, domain.ErrNotFound)
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("plex adapter: status %d: %w", status, domain.ErrTransient)
	default:
		return fmt.Errorf("plex adapter: status %d", status)
	}
}
