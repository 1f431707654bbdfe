package plex

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ewilliams-labs/setlist/internal/logging"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 250 * time.Millisecond
)

// doRequestWithRetry retries bodyless requests on network errors, 429 and
// 5xx with exponential backoff, honouring Retry-After. It makes at most
// maxRetries+1 attempts.
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	attempts := max(c.maxRetries, 0) + 1

	baseBackoff := c.baseBackoff
	if baseBackoff <= 0 {
		baseBackoff = defaultRetryBackoff
	}

	ctx := req.Context()
	log := logging.Ctx(ctx).With().Str("component", "plex").Str("path", req.URL.Path).Logger()
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("plex adapter: request canceled: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry || ctx.Err() != nil {
			return resp, err
		}

		attemptNum := attempt + 1
		if attempt == attempts-1 {
			// The last response is handed back so the caller can classify it.
			if err != nil && attempts > 1 {
				log.Warn().Err(err).Int("attempts", attempts).Msg("request failed after retries")
			}
			return resp, err
		}

		if err != nil {
			log.Warn().Err(err).Int("attempt", attemptNum).Int("max_attempts", attempts).Msg("retrying after error")
		} else {
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attemptNum).Int("max_attempts", attempts).Msg("retrying after status")
			_ = resp.Body.Close()
		}

		backoff := baseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("plex adapter: request failed after %d attempts", attempts)
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, true
	}
	if resp == nil {
		return 0, false
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}

	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("plex adapter: request canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
