package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"validation", NewValidationError("bad input"), "ValidationError"},
		{"field validation", NewFieldValidationError("bad input", map[string]string{"amount": "required"}), "ValidationError"},
		{"invalid state", NewInvalidStateError("bill", "Void", ""), "InvalidStateError"},
		{"forbidden", NewForbiddenError("not allowed"), "ForbiddenError"},
		{"conflict", NewConflictError("lost race"), "ConflictError"},
		{"not found", NewNotFoundError("bill", "b1"), "NotFoundError"},
		{"record not found sentinel", ErrorRecordNotFound, "NotFoundError"},
		{"plain error", errors.New("boom"), "Internal"},
		{"nil", nil, "Internal"},
	}

	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("%s: ErrorKind = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestErrorKind_Wrapped(t *testing.T) {
	err := fmt.Errorf("allocate payment: %w", NewConflictError("row locked"))
	if got := ErrorKind(err); got != "ConflictError" {
		t.Fatalf("wrapped conflict: got %s", got)
	}

	err = fmt.Errorf("load bill: %w", ErrorRecordNotFound)
	if got := ErrorKind(err); got != "NotFoundError" {
		t.Fatalf("wrapped sentinel: got %s", got)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewFieldValidationError("invalid bill", map[string]string{"items": "required"})
	if err.Error() != "invalid bill (items: required)" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if NewValidationError("plain").Error() != "plain" {
		t.Fatal("plain message lost")
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	if got := NewNotFoundError("bill", "b-123").Error(); got != "bill b-123 not found" {
		t.Fatalf("unexpected message: %s", got)
	}
	if got := NewNotFoundError("bill", "").Error(); got != "bill not found" {
		t.Fatalf("unexpected message: %s", got)
	}
}
