// Package validation runs struct-tag validation on request types before any
// network call is made.
package validation

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Error lists field failures keyed by their JSON name.
type Error struct {
	Fields map[string]string
}

// Field builds an Error for a single field.
func Field(name, message string) *Error {
	return &Error{Fields: map[string]string{name: message}}
}

func (e *Error) Error() string {
	return "validation failed: " + e.DisplayMessage()
}

// DisplayMessage implements errors.Displayable.
func (e *Error) DisplayMessage() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, e.Fields[name])
	}
	return strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error {
	return apperrors.ErrValidation
}

// Struct validates v by its `validate` tags.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Wrapf(apperrors.ErrValidation, "%v", err)
	}

	out := &Error{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL.", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address.", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s.", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid identifier.", fe.Field())
	}
	return fmt.Sprintf("%s is invalid.", fe.Field())
}
