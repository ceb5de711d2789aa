package core

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrPermissionDenied is returned by services when the acting user may not perform an operation.
var ErrPermissionDenied = errors.New("permission denied")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldsError builds a ValidationError out of a {field: message} map; fields are sorted for stable output.
func NewFieldsError(err error, fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flds := make([]FieldError, 0, len(keys))
	for _, k := range keys {
		flds = append(flds, FieldError{Field: k, Error: fields[k]})
	}
	return NewValidationError(err, flds...)
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

type notFound struct {
	message string
}

// NewNotFoundError returns an error that the API layer translates into a 404.
func NewNotFoundError(msg string) error {
	return &notFound{message: msg}
}

func (nf notFound) Error() string {
	return nf.message
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*notFound)
	return ok
}

type conflict struct {
	message string
}

// NewConflictError returns an error that the API layer translates into a 409.
func NewConflictError(msg string) error {
	return &conflict{message: msg}
}

func (c conflict) Error() string {
	return c.message
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*conflict)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
