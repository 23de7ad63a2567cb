package utils

import (
	"errors"
	"fmt"
	"strings"
)

var ErrorRecordNotFound = errors.New("record not found")

// Typed errors below map one-to-one onto API error kinds. Callers match
// with errors.As; handlers translate to HTTP status + JSON body.

// ValidationError reports malformed or business-rule-violating input.
// Fields carries per-field detail when available.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return e.Message + " (" + strings.Join(parts, ", ") + ")"
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func NewFieldValidationError(message string, fields map[string]string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

// InvalidStateError reports an operation attempted against a record whose
// current status does not permit it (e.g. paying a Void bill).
type InvalidStateError struct {
	Resource      string
	CurrentStatus string
	Message       string
}

func (e *InvalidStateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is in status %s which does not allow this operation", e.Resource, e.CurrentStatus)
}

func NewInvalidStateError(resource string, currentStatus string, message string) *InvalidStateError {
	return &InvalidStateError{Resource: resource, CurrentStatus: currentStatus, Message: message}
}

// ForbiddenError reports a caller who is authenticated but lacks the
// capability for the operation.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	if e.Message == "" {
		return "forbidden"
	}
	return e.Message
}

func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{Message: message}
}

// ConflictError reports a lost race: concurrent mutation of the same record,
// duplicate sequence number, or lock contention that exhausted retries.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return "conflict"
	}
	return e.Message
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// NotFoundError reports a missing record. Cross-tenant reads also surface as
// NotFound so tenancy is never leaked through error kinds.
type NotFoundError struct {
	Resource string
	Id       string
}

func (e *NotFoundError) Error() string {
	if e.Id == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.Id)
}

func NewNotFoundError(resource string, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, Id: id}
}

// ErrorKind returns the taxonomy name for err, or "Internal" when the error
// carries no kind. Used by the HTTP layer for status mapping.
func ErrorKind(err error) string {
	var ve *ValidationError
	var ise *InvalidStateError
	var fe *ForbiddenError
	var ce *ConflictError
	var nfe *NotFoundError
	switch {
	case errors.As(err, &ve):
		return "ValidationError"
	case errors.As(err, &ise):
		return "InvalidStateError"
	case errors.As(err, &fe):
		return "ForbiddenError"
	case errors.As(err, &ce):
		return "ConflictError"
	case errors.As(err, &nfe), errors.Is(err, ErrorRecordNotFound):
		return "NotFoundError"
	default:
		return "Internal"
	}
}
