// Package validate evaluates the declarative validation tags on request
// structs and turns failures into uniform field-level errors.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"account-service/internal/httputil"
)

var v = validator.New(validator.WithRequiredStructEnabled())

// Struct validates a request struct against its `validate` tags and returns
// one error per failing field. A nil slice means the request is valid.
func Struct(req any) []httputil.FieldError {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []httputil.FieldError{{Field: "request", Message: "invalid request"}}
	}

	fields := make([]httputil.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, httputil.FieldError{
			Field:   fieldName(fe),
			Message: message(fe),
		})
	}
	return fields
}

// fieldName reports the field by its JSON name (snake_case of the Go name is
// close enough for the request structs used here, which name fields to match
// their JSON keys).
func fieldName(fe validator.FieldError) string {
	return toSnake(fe.Field())
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters long", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters long", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "eqfield":
		return fmt.Sprintf("must match %s", toSnake(fe.Param()))
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			// Break before a capital that follows a lowercase rune, so
			// acronyms like BVN stay a single word.
			if i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
