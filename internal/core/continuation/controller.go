// Package continuation re-asks the generator for more output when a
// structured response comes back short or cut off.
package continuation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/setlist/internal/core/coerce"
	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

const defaultMaxAttempts = 3

// Options controls one continuation run.
type Options[T any] struct {
	MaxAttempts int
	// ExpectedCount is the element count at which an array run stops early.
	ExpectedCount int
	ArrayShaped   bool

	// Valid is the required-field predicate for array elements.
	Valid func(T) bool
	// Key identifies elements for de-duplication across merges. Nil keeps duplicates.
	Key func(T) string
	// Required lists the top-level sections an object response must carry.
	Required []string
	// Decode replaces the generic object coercion when set.
	Decode func(raw string) (T, error)
	// Operation labels logs and metrics.
	Operation string
}

// Outcome is the result of a run. Success with fewer Items than
// ExpectedCount is a partial result; it is never padded.
type Outcome[T any] struct {
	Success      bool
	Items        []T
	Value        T
	AttemptsUsed int
	Err          error
}

// Partial reports whether an array run ended with fewer items than expected.
func (o Outcome[T]) Partial(expected int) bool {
	return o.Success && len(o.Items) < expected
}

// Controller issues generation calls strictly one after another.
type Controller struct {
	gen ports.Generator
}

func NewController(gen ports.Generator) *Controller {
	return &Controller{gen: gen}
}

// Request runs the continuation loop for req.
//
// Array-shaped runs coerce every response, append the new elements to the
// accumulated slice and, while attempts remain and the count is short of
// ExpectedCount, issue a continuation request annotated with the count so far.
// Object-shaped runs simply retry until a response coerces.
func Request[T any](ctx context.Context, c *Controller, req ports.GenerationRequest, opts Options[T]) Outcome[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.ArrayShaped {
		return requestArray(ctx, c, req, opts)
	}
	return requestObject(ctx, c, req, opts)
}

func requestArray[T any](ctx context.Context, c *Controller, req ports.GenerationRequest, opts Options[T]) Outcome[T] {
	log := logging.Ctx(ctx).With().Str("component", "continuation").Str("operation", opts.Operation).Logger()

	var (
		items   []T
		seen    = make(map[string]struct{})
		parsed  bool
		pending string
		lastErr error
		out     Outcome[T]
	)

	appendItems := func(elems []json.RawMessage) int {
		decoded, dropped := coerce.DecodeElements(elems, opts.Valid)
		added := 0
		for _, item := range decoded {
			if opts.Key != nil {
				k := opts.Key(item)
				if _, dup := seen[k]; dup {
					dropped++
					continue
				}
				seen[k] = struct{}{}
			}
			items = append(items, item)
			added++
		}
		if dropped > 0 {
			log.Debug().Int("dropped", dropped).Msg("elements rejected during merge")
		}
		return added
	}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("%w: %w", domain.ErrCancelled, err)
			break
		}

		call := req
		if attempt > 1 {
			call = ContinuationRequest(req, len(items), opts.ExpectedCount)
		}

		out.AttemptsUsed = attempt
		text, err := c.generate(ctx, call, opts.Operation)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", opts.MaxAttempts).Msg("generation attempt failed")
			if !domain.IsRetryable(err) {
				break
			}
			continue
		}

		elems, perr := coerce.Elements(text)
		if perr != nil && pending != "" {
			spliced := SpliceArrayText(pending, text)
			if selems, serr := coerce.Elements(spliced); serr == nil {
				log.Info().Int("attempt", attempt).Msg("recovered truncated output by text splice")
				elems, perr = selems, nil
			} else {
				pending = spliced
			}
		} else if perr != nil {
			pending = text
		}
		if perr != nil {
			lastErr = perr
			log.Warn().Err(perr).Int("attempt", attempt).Msg("response did not parse, requesting continuation")
			continue
		}

		pending = ""
		parsed = true
		added := appendItems(elems)
		log.Debug().Int("attempt", attempt).Int("added", added).Int("total", len(items)).Int("expected", opts.ExpectedCount).Msg("merged continuation fragment")

		if len(items) >= opts.ExpectedCount {
			out.Success = true
			out.Items = items
			metrics.ContinuationAttempts.WithLabelValues(opts.Operation, "complete").Observe(float64(attempt))
			return out
		}
	}

	if parsed && len(items) > 0 {
		out.Success = true
		out.Items = items
		metrics.ContinuationAttempts.WithLabelValues(opts.Operation, "partial").Observe(float64(out.AttemptsUsed))
		log.Warn().Int("items", len(items)).Int("expected", opts.ExpectedCount).Msg("returning partial result after exhausting attempts")
		return out
	}

	if lastErr == nil {
		lastErr = &coerce.Error{Kind: coerce.KindNoValidItems}
	}
	out.Err = lastErr
	metrics.ContinuationAttempts.WithLabelValues(opts.Operation, "failed").Observe(float64(out.AttemptsUsed))
	return out
}

func requestObject[T any](ctx context.Context, c *Controller, req ports.GenerationRequest, opts Options[T]) Outcome[T] {
	log := logging.Ctx(ctx).With().Str("component", "continuation").Str("operation", opts.Operation).Logger()

	var (
		lastErr error
		out     Outcome[T]
	)
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("%w: %w", domain.ErrCancelled, err)
			break
		}

		out.AttemptsUsed = attempt
		text, err := c.generate(ctx, req, opts.Operation)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("generation attempt failed")
			if !domain.IsRetryable(err) {
				break
			}
			continue
		}

		value, cerr := decodeObject(text, opts)
		if cerr != nil {
			lastErr = cerr
			log.Warn().Err(cerr).Int("attempt", attempt).Msg("object response did not coerce")
			continue
		}

		out.Success = true
		out.Value = value
		metrics.ContinuationAttempts.WithLabelValues(opts.Operation, "complete").Observe(float64(attempt))
		return out
	}

	out.Err = lastErr
	metrics.ContinuationAttempts.WithLabelValues(opts.Operation, "failed").Observe(float64(out.AttemptsUsed))
	return out
}

func decodeObject[T any](text string, opts Options[T]) (T, error) {
	if opts.Decode != nil {
		return opts.Decode(text)
	}
	res, err := coerce.Object[T](text, opts.Required...)
	return res.Value, err
}

func (c *Controller) generate(ctx context.Context, req ports.GenerationRequest, op string) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.gen.Generate(ctx, req)
	metrics.GenerationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTransient) {
			err = fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}
		metrics.GenerationRequests.WithLabelValues(op, "error").Inc()
		return "", err
	}
	metrics.GenerationRequests.WithLabelValues(op, "ok").Inc()
	return text, nil
}
