package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Kind separates format problems from range problems.
type Kind string

const (
	KindRequired Kind = "required"
	KindFormat   Kind = "format"
	KindRange    Kind = "range"
)

// FieldError describes why one field value was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Message
}

// Errors is the record-level validation failure.
type Errors struct {
	Fields map[string]*FieldError
}

func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range SortedFields(e.Fields) {
		parts = append(parts, e.Fields[field].Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var errs *Errors
	if errors.As(err, &errs) {
		return true
	}
	var fe *FieldError
	return errors.As(err, &fe)
}
