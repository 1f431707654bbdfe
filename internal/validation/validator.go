// Package validation holds the shared struct validator used by config loading
// and request decoding.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the process-wide validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// FieldError is one failed constraint.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s failed %s=%s", e.Field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed %s", e.Field, e.Tag)
}

// Error collects every failed constraint of a struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return strings.Join(parts, "; ")
}

// Struct validates s and converts validator errors into *Error.
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: fe.Namespace(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}
