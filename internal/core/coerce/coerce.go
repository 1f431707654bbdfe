// Package coerce turns generator text into validated structures.
//
// Parsing is strict: the text must be exactly one JSON value. Markdown fences,
// leading prose and trailing commentary are all failures, so prompt
// regressions surface instead of being papered over.
package coerce

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// Kind classifies a coercion failure.
type Kind string

const (
	KindEmpty          Kind = "empty"
	KindSyntax         Kind = "syntax"
	KindShape          Kind = "shape"
	KindMissingSection Kind = "missing_section"
	KindNoValidItems   Kind = "no_valid_items"
)

// Error is a total coercion failure. It matches domain.ErrMalformedOutput.
type Error struct {
	Kind    Kind
	Section string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("coerce: ")
	b.WriteString(string(e.Kind))
	if e.Section != "" {
		b.WriteString(" ")
		b.WriteString(e.Section)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == domain.ErrMalformedOutput
}

// Result is a successfully coerced value.
type Result[T any] struct {
	Value T
	// Dropped counts array elements rejected by the schema.
	Dropped int
	// Fallback is set when Value came from a fallback generator.
	Fallback bool
}

// Elements strictly parses raw as a JSON array and returns its elements undecoded.
func Elements(raw string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &Error{Kind: KindEmpty}
	}
	if trimmed[0] != '[' {
		return nil, &Error{Kind: KindShape, Err: errors.New("expected a JSON array")}
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, &Error{Kind: KindSyntax, Err: errors.New("invalid JSON")}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
		return nil, &Error{Kind: KindSyntax, Err: err}
	}
	return elems, nil
}

// Array decodes raw as an array of T. Elements that do not decode into T or
// fail valid are excluded and counted in Result.Dropped. A parse that leaves
// no valid element is a failure.
func Array[T any](raw string, valid func(T) bool) (Result[[]T], error) {
	elems, err := Elements(raw)
	if err != nil {
		return Result[[]T]{}, err
	}
	items, dropped := DecodeElements(elems, valid)
	if len(items) == 0 {
		return Result[[]T]{Dropped: dropped}, &Error{Kind: KindNoValidItems, Err: fmt.Errorf("%d elements rejected", dropped)}
	}
	return Result[[]T]{Value: items, Dropped: dropped}, nil
}

// DecodeElements decodes each element into T, keeping those accepted by valid.
// A nil valid accepts everything that decodes.
func DecodeElements[T any](elems []json.RawMessage, valid func(T) bool) ([]T, int) {
	items := make([]T, 0, len(elems))
	dropped := 0
	for _, el := range elems {
		var item T
		if err := json.Unmarshal(el, &item); err != nil {
			dropped++
			continue
		}
		if valid != nil && !valid(item) {
			dropped++
			continue
		}
		items = append(items, item)
	}
	return items, dropped
}

// Object decodes raw as a JSON object into T after confirming that every
// required top-level section is present and non-null.
func Object[T any](raw string, required ...string) (Result[T], error) {
	var zero Result[T]
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return zero, &Error{Kind: KindEmpty}
	}
	if trimmed[0] != '{' {
		return zero, &Error{Kind: KindShape, Err: errors.New("expected a JSON object")}
	}

	if !json.Valid([]byte(trimmed)) {
		return zero, &Error{Kind: KindSyntax, Err: errors.New("invalid JSON")}
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &sections); err != nil {
		return zero, &Error{Kind: KindSyntax, Err: err}
	}
	for _, name := range required {
		v, ok := sections[name]
		if !ok || len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return zero, &Error{Kind: KindMissingSection, Section: name}
		}
	}

	var out T
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return zero, &Error{Kind: KindShape, Err: err}
	}
	return Result[T]{Value: out}, nil
}

// WithFallback returns res unchanged when err is nil. Otherwise it calls
// fallback, which must be a pure function of data already known to be good.
// If the fallback cannot be built, the returned error wraps both failures.
func WithFallback[T any](res Result[T], err error, fallback func() (T, error)) (Result[T], error) {
	if err == nil {
		return res, nil
	}
	if fallback == nil {
		return res, err
	}
	v, ferr := fallback()
	if ferr != nil {
		return res, errors.Join(err, ferr)
	}
	return Result[T]{Value: v, Fallback: true}, nil
}
