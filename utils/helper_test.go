package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRoundMoney(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10.005", "10.01"},
		{"10.004", "10.00"},
		{"-10.005", "-10.01"},
		{"0.333", "0.33"},
		{"100", "100"},
	}
	for _, tc := range cases {
		in, _ := decimal.NewFromString(tc.in)
		want, _ := decimal.NewFromString(tc.want)
		if got := RoundMoney(in); !got.Equal(want) {
			t.Fatalf("RoundMoney(%s) = %v, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	if _, err := ParseDecimal(""); err == nil {
		t.Fatal("empty string must be rejected")
	}
	if _, err := ParseDecimal("abc"); err == nil {
		t.Fatal("non-numeric string must be rejected")
	}
	got, err := ParseDecimal(" 12.50 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, _ := decimal.NewFromString("12.50"); !got.Equal(want) {
		t.Fatalf("got %v", got)
	}
}

func TestRetryOnLockContention_RetriesConflicts(t *testing.T) {
	calls := 0
	err := RetryOnLockContention(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return NewConflictError("row locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryOnLockContention_Exhausted(t *testing.T) {
	calls := 0
	err := RetryOnLockContention(context.Background(), 3, func() error {
		calls++
		return NewConflictError("row locked")
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if ErrorKind(err) != "ConflictError" {
		t.Fatalf("expected ConflictError after exhaustion, got %v", err)
	}
}

func TestRetryOnLockContention_NonConflictReturnsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryOnLockContention(context.Background(), 5, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-conflict errors must not retry, got %d attempts", calls)
	}
}

func TestRetryOnLockContention_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := RetryOnLockContention(ctx, 10, func() error {
		return NewConflictError("row locked")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 42
	if got := DereferencePtr(&v); got != 42 {
		t.Fatalf("got %d", got)
	}
	if got := DereferencePtr[int](nil); got != 0 {
		t.Fatalf("nil pointer must yield zero value, got %d", got)
	}
	if got := DereferencePtr[string](nil, "fallback"); got != "fallback" {
		t.Fatalf("got %s", got)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "c", "b"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("got %v", got)
	}
}

func TestNilIfEmpty(t *testing.T) {
	if NilIfEmpty("") != nil {
		t.Fatal("empty string must yield nil")
	}
	if p := NilIfEmpty("x"); p == nil || *p != "x" {
		t.Fatalf("got %v", p)
	}
}

func TestValidateStruct_FieldDetail(t *testing.T) {
	type input struct {
		Name  string `validate:"required,max=10"`
		Email string `validate:"omitempty,email"`
	}
	err := ValidateStruct(&input{Name: "this name is far too long"})
	if err == nil {
		t.Fatal("overlong name must be rejected")
	}
	if ErrorKind(err) != "ValidationError" {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields["Name"] != "max" {
		t.Fatalf("expected field detail for Name, got %+v", ve)
	}
	if err := ValidateStruct(&input{Name: "ok", Email: "a@b.co"}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}
